// Package hypothesis provides durable hypothesis memory for research trails.
//
// Detectors emit insights while a trail runs; the package buffers them
// per trail, and on commit deduplicates each draft against the stored
// corpus before persisting. A draft either becomes a new hypothesis or
// merges its evidence into an existing one. Aborted trails leave no trace.
//
// # Deduplication
//
// Resolution is two-stage. An exact match on the normalized claim hash
// always merges. Otherwise the draft's claim is embedded and compared
// against draft and active hypotheses; the nearest neighbor above the
// merge threshold absorbs it, with near-ties broken by existing
// confidence. Claim hashes are unique among non-retired hypotheses.
//
// # Confidence
//
// Each hypothesis carries a confidence score in [0, 1] combined from four
// fit components: explanatory power (confidence-weighted share of
// supporting evidence), simplicity (short, unhedged claims score higher),
// scope (distinct anchor coverage), and consilience (similarity to active
// anchor-sharing neighbors). Scoring is deterministic and recomputed after
// every evidence append.
//
// # Lifecycle
//
// Hypotheses move draft -> active -> proven, with retirement reachable
// from every state and reactivation from retired back to active. Drafts
// auto-activate once confidence clears the activation threshold with
// enough evidence; contested claims auto-retire when confidence falls
// under the retirement floor. Proving and reactivating are human actions.
//
// # HUD Retrieval
//
// The Retriever serves a bounded, ranked slice of relevant hypotheses for
// display alongside a running trail. It degrades to an empty result on any
// internal failure so the calling pipeline never blocks on memory.
package hypothesis
