// Package main implements the claimbank CLI for manual operations against
// the claimbankd HTTP server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the claimbankd HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "claimbank",
	Short: "CLI for claimbankd HTTP server operations",
	Long: `claimbank is a command-line interface for interacting with the claimbankd
HTTP server. It provides commands for querying hypothesis context, inspecting
individual hypotheses, and curating their lifecycle.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9290", "claimbankd server URL")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(hudCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(promoteCmd)
	rootCmd.AddCommand(proveCmd)
	rootCmd.AddCommand(retireCmd)
	rootCmd.AddCommand(reactivateCmd)
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check claimbankd server health",
	Long: `Check the health status of the claimbankd HTTP server.

Examples:
  # Check health
  claimbank health

  # Check health on a different server
  claimbank health --server http://localhost:8080`,
	RunE: runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	body, err := httpGet("/health")
	if err != nil {
		return err
	}
	fmt.Println(string(body))
	return nil
}

// httpClient returns the shared client for server requests.
func httpClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// httpGet performs a GET against the server and returns the response body.
func httpGet(path string) ([]byte, error) {
	resp, err := httpClient().Get(serverURL + path)
	if err != nil {
		return nil, fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// httpPost performs a JSON POST against the server and returns the response
// body.
func httpPost(path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	resp, err := httpClient().Post(serverURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// printJSON re-indents a JSON response for terminal output.
func printJSON(body []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return nil
	}
	fmt.Println(buf.String())
	return nil
}
