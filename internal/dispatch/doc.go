// Package dispatch is the serialized job/notification pipeline.
//
// It owns two in-memory FIFO queues (group-membership jobs and
// outbound notifications), a per-document progress aggregator, and the
// two single-threaded worker loops that drain them. Work is serialized
// on purpose: the Telegram platform rate-limits aggressively, so one
// job at a time with randomized pacing between operations is the
// intended throughput, not a bottleneck.
//
// Delivery semantics are at-most-once. The queues are not persisted;
// on restart, lost work is re-derived from the job-outcome store by an
// external reconciliation pass.
//
// Concepts
//
// A document is a logical unit of N jobs whose individual outcomes are
// aggregated into exactly one terminal summary, reported through the
// OnDocumentCompleted/OnDocumentFailed callbacks registered at
// construction. A document is classified failed only when its failure
// count reaches the configured threshold; partial success is still
// reported as completion.
package dispatch
