package hypothesis

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
)

// HUDOptions configures the heads-up retriever.
type HUDOptions struct {
	// DefaultK is used when a request does not specify how many entries it
	// wants.
	DefaultK int
	// MaxK caps the number of entries a single request can ask for.
	MaxK int
	// MinConfidence is the default confidence floor for returned entries.
	MinConfidence float64
	// SnippetsPerEntry is how many evidence snippets each entry carries.
	SnippetsPerEntry int
	// Timeout bounds a single retrieval end to end.
	Timeout time.Duration
}

// RetrieveOptions narrows a single HUD request. Zero values fall back to the
// retriever's configured defaults. MinConfidence is a pointer so that an
// explicit zero floor stays distinguishable from "use the default".
type RetrieveOptions struct {
	K             int
	MinConfidence *float64
	Statuses      []Status
}

// HUDEntry is one hypothesis shaped for display alongside a running trail.
type HUDEntry struct {
	HypothesisID string   `json:"hypothesis_id"`
	Claim        string   `json:"claim"`
	Status       Status   `json:"status"`
	Confidence   float64  `json:"confidence"`
	Score        float64  `json:"score"`
	Snippets     []string `json:"snippets,omitempty"`
	AnchorRefs   []string `json:"anchor_refs,omitempty"`
}

// Retriever serves bounded, ranked hypothesis context for the HUD. It
// degrades rather than fails: any internal error is logged and surfaces as
// an empty result so the calling pipeline never stalls on memory.
type Retriever struct {
	store  *Store
	opts   HUDOptions
	logger *zap.Logger
}

// NewRetriever creates a HUD retriever.
func NewRetriever(store *Store, opts HUDOptions, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultK <= 0 {
		opts.DefaultK = 5
	}
	if opts.MaxK <= 0 {
		opts.MaxK = 20
	}
	if opts.SnippetsPerEntry <= 0 {
		opts.SnippetsPerEntry = 2
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	return &Retriever{store: store, opts: opts, logger: logger}
}

// Retrieve returns up to k hypotheses relevant to the query, ordered by
// similarity. Draft and retired claims are excluded unless the request asks
// for them explicitly. Never returns an error: degraded retrievals come back
// empty.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts RetrieveOptions) []HUDEntry {
	start := time.Now()
	defer func() {
		metricHUDLatency.Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	k := opts.K
	if k <= 0 {
		k = r.opts.DefaultK
	}
	if k > r.opts.MaxK {
		k = r.opts.MaxK
	}
	minConfidence := r.opts.MinConfidence
	if opts.MinConfidence != nil {
		minConfidence = *opts.MinConfidence
	}
	statuses := opts.Statuses
	if len(statuses) == 0 {
		statuses = []Status{StatusActive, StatusProven}
	}

	if NormalizeClaim(query) == "" {
		r.logger.Warn("hud retrieval with empty query")
		metricHUDRequests.WithLabelValues("degraded").Inc()
		return []HUDEntry{}
	}

	scored, err := r.store.QueryBySimilarity(ctx, query, Filter{
		Statuses:      statuses,
		MinConfidence: minConfidence,
	}, k)
	if err != nil {
		r.logger.Warn("hud retrieval degraded", zap.Error(err))
		metricHUDRequests.WithLabelValues("degraded").Inc()
		return []HUDEntry{}
	}

	entries := make([]HUDEntry, 0, len(scored))
	for _, sc := range scored {
		entries = append(entries, HUDEntry{
			HypothesisID: sc.Hypothesis.ID,
			Claim:        sc.Hypothesis.NormalizedClaim,
			Status:       sc.Hypothesis.Status,
			Confidence:   sc.Hypothesis.Confidence,
			Score:        sc.Score,
			Snippets:     topSnippets(sc.Hypothesis.Evidence, r.opts.SnippetsPerEntry),
			AnchorRefs:   sc.Hypothesis.DistinctAnchors(),
		})
	}
	metricHUDRequests.WithLabelValues("ok").Inc()
	return entries
}

// topSnippets picks the strongest evidence snippets: supporting before
// contesting, then by confidence.
func topSnippets(evidence []Evidence, n int) []string {
	if len(evidence) == 0 || n <= 0 {
		return nil
	}
	ordered := append([]Evidence(nil), evidence...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Contesting != ordered[j].Contesting {
			return !ordered[i].Contesting
		}
		return ordered[i].Confidence > ordered[j].Confidence
	})
	var snippets []string
	for _, ev := range ordered {
		if ev.Snippet == "" {
			continue
		}
		snippets = append(snippets, ev.Snippet)
		if len(snippets) == n {
			break
		}
	}
	return snippets
}
