// Package config provides configuration loading for claimbank.
//
// Configuration is loaded from a YAML file and overridden by environment
// variables. All tunable thresholds of the hypothesis pipeline (novelty
// floor, merge threshold, activation/retirement thresholds, fit weights)
// live here rather than being hard-coded; the shipped defaults are starting
// points that should be validated empirically per corpus.
package config

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/fyrsmithlabs/claimbank/internal/logging"
)

// Config holds the complete claimbank configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    logging.Config   `koanf:"logging"`
	Store      StoreConfig      `koanf:"store"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Bank       BankConfig       `koanf:"bank"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// StoreConfig holds vector store configuration.
type StoreConfig struct {
	// Path is the directory for persistent chromem storage.
	Path string `koanf:"path"`

	// Collection is the hypothesis collection name.
	Collection string `koanf:"collection"`

	// Compress enables gzip compression for stored data.
	Compress bool `koanf:"compress"`
}

// EmbeddingsConfig holds embedding provider configuration.
type EmbeddingsConfig struct {
	// Model is the embedding model name (default BAAI/bge-small-en-v1.5).
	Model string `koanf:"model"`

	// CacheDir is the model cache directory for FastEmbed downloads.
	CacheDir string `koanf:"cache_dir"`
}

// BankConfig holds the hypothesis pipeline thresholds and weights.
type BankConfig struct {
	// NoveltyFloor is the minimum insight novelty score; insights below it
	// are dropped at the trail buffer without error.
	NoveltyFloor float64 `koanf:"novelty_floor"`

	// MergeThreshold is the minimum embedding similarity for a draft to be
	// merged into an existing hypothesis. Deliberately conservative: a false
	// merge silently loses a distinct claim, a missed merge only costs a
	// duplicate row.
	MergeThreshold float64 `koanf:"merge_threshold"`

	// MergeEpsilon is the similarity band within which two merge candidates
	// are considered tied; ties go to the higher-confidence hypothesis.
	MergeEpsilon float64 `koanf:"merge_epsilon"`

	// ActivationThreshold is the confidence at which a draft hypothesis
	// auto-activates, provided it has at least MinEvidenceToActivate entries.
	ActivationThreshold float64 `koanf:"activation_threshold"`

	// MinEvidenceToActivate is the minimum evidence count for auto-activation.
	// Single-evidence claims never auto-activate.
	MinEvidenceToActivate int `koanf:"min_evidence_to_activate"`

	// RetirementFloor is the confidence below which a hypothesis is retired
	// after a contested evidence append.
	RetirementFloor float64 `koanf:"retirement_floor"`

	// ScopeCeiling normalizes the scope fit component: a hypothesis whose
	// evidence spans this many distinct anchors scores 1.0 on scope.
	ScopeCeiling int `koanf:"scope_ceiling"`

	// Weights are the fit component weights; they must sum to 1.0.
	Weights WeightsConfig `koanf:"weights"`

	// HUD holds retrieval defaults.
	HUD HUDConfig `koanf:"hud"`

	// Finalize holds flush retry configuration.
	Finalize FinalizeConfig `koanf:"finalize"`
}

// WeightsConfig holds the composite confidence weights.
type WeightsConfig struct {
	ExplanatoryPower float64 `koanf:"explanatory_power"`
	Simplicity       float64 `koanf:"simplicity"`
	Scope            float64 `koanf:"scope"`
	Consilience      float64 `koanf:"consilience"`
}

// HUDConfig holds HUD retrieval defaults.
type HUDConfig struct {
	DefaultK         int           `koanf:"default_k"`
	MaxK             int           `koanf:"max_k"`
	MinConfidence    float64       `koanf:"min_confidence"`
	SnippetsPerEntry int           `koanf:"snippets_per_entry"`
	Timeout          time.Duration `koanf:"timeout"`
}

// FinalizeConfig holds flush retry configuration.
type FinalizeConfig struct {
	// MaxAttempts bounds flush retries at the finalize boundary.
	MaxAttempts int `koanf:"max_attempts"`

	// InitialBackoff is the first retry delay; subsequent delays grow
	// exponentially.
	InitialBackoff time.Duration `koanf:"initial_backoff"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 9290
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	c.Logging.ApplyDefaults()

	if c.Store.Path == "" {
		c.Store.Path = "~/.config/claimbank/store"
	}
	if c.Store.Collection == "" {
		c.Store.Collection = "hypotheses"
	}

	if c.Embeddings.Model == "" {
		c.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}

	b := &c.Bank
	if b.NoveltyFloor == 0 {
		b.NoveltyFloor = 0.35
	}
	if b.MergeThreshold == 0 {
		b.MergeThreshold = 0.92
	}
	if b.MergeEpsilon == 0 {
		b.MergeEpsilon = 0.02
	}
	if b.ActivationThreshold == 0 {
		b.ActivationThreshold = 0.6
	}
	if b.MinEvidenceToActivate == 0 {
		b.MinEvidenceToActivate = 2
	}
	if b.RetirementFloor == 0 {
		b.RetirementFloor = 0.15
	}
	if b.ScopeCeiling == 0 {
		b.ScopeCeiling = 8
	}
	if b.Weights == (WeightsConfig{}) {
		b.Weights = WeightsConfig{
			ExplanatoryPower: 0.35,
			Simplicity:       0.20,
			Scope:            0.25,
			Consilience:      0.20,
		}
	}
	if b.HUD.DefaultK == 0 {
		b.HUD.DefaultK = 5
	}
	if b.HUD.MaxK == 0 {
		b.HUD.MaxK = 20
	}
	if b.HUD.MinConfidence == 0 {
		b.HUD.MinConfidence = 0.3
	}
	if b.HUD.SnippetsPerEntry == 0 {
		b.HUD.SnippetsPerEntry = 2
	}
	if b.HUD.Timeout == 0 {
		b.HUD.Timeout = 2 * time.Second
	}
	if b.Finalize.MaxAttempts == 0 {
		b.Finalize.MaxAttempts = 4
	}
	if b.Finalize.InitialBackoff == 0 {
		b.Finalize.InitialBackoff = 100 * time.Millisecond
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}

	b := c.Bank
	for _, check := range []struct {
		name  string
		value float64
	}{
		{"novelty_floor", b.NoveltyFloor},
		{"merge_threshold", b.MergeThreshold},
		{"activation_threshold", b.ActivationThreshold},
		{"retirement_floor", b.RetirementFloor},
		{"hud.min_confidence", b.HUD.MinConfidence},
	} {
		if check.value < 0 || check.value > 1 {
			return fmt.Errorf("bank.%s must be in [0,1], got %v", check.name, check.value)
		}
	}
	if b.MergeEpsilon < 0 || b.MergeEpsilon > 0.5 {
		return fmt.Errorf("bank.merge_epsilon must be in [0,0.5], got %v", b.MergeEpsilon)
	}
	if b.RetirementFloor >= b.ActivationThreshold {
		return fmt.Errorf("bank.retirement_floor (%v) must be below bank.activation_threshold (%v)",
			b.RetirementFloor, b.ActivationThreshold)
	}
	if b.MinEvidenceToActivate < 1 {
		return errors.New("bank.min_evidence_to_activate must be at least 1")
	}
	if b.ScopeCeiling < 1 {
		return errors.New("bank.scope_ceiling must be at least 1")
	}

	sum := b.Weights.ExplanatoryPower + b.Weights.Simplicity + b.Weights.Scope + b.Weights.Consilience
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("bank.weights must sum to 1.0, got %v", sum)
	}

	if b.HUD.DefaultK < 1 || b.HUD.MaxK < b.HUD.DefaultK {
		return fmt.Errorf("bank.hud: default_k (%d) must be >= 1 and <= max_k (%d)", b.HUD.DefaultK, b.HUD.MaxK)
	}
	if b.HUD.SnippetsPerEntry < 1 {
		return errors.New("bank.hud.snippets_per_entry must be at least 1")
	}
	if b.Finalize.MaxAttempts < 1 {
		return errors.New("bank.finalize.max_attempts must be at least 1")
	}

	return nil
}
