package main

import (
	"net/url"

	"github.com/spf13/cobra"
)

var curateActor string

// ActorRequest matches internal/httpapi/server.go ActorRequest
type ActorRequest struct {
	Actor string `json:"actor"`
}

func curationCommand(use, short, action string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <hypothesis-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := httpPost(
				"/api/v1/hypotheses/"+url.PathEscape(args[0])+"/"+action,
				ActorRequest{Actor: curateActor},
			)
			if err != nil {
				return err
			}
			return printJSON(body)
		},
	}
	cmd.Flags().StringVar(&curateActor, "actor", "", "who is performing the action (required)")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

var (
	promoteCmd    = curationCommand("promote", "Promote a draft hypothesis to active", "promote")
	proveCmd      = curationCommand("prove", "Mark an active hypothesis as proven", "prove")
	retireCmd     = curationCommand("retire", "Retire a hypothesis", "retire")
	reactivateCmd = curationCommand("reactivate", "Return a retired hypothesis to active", "reactivate")
)
