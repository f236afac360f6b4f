/*
Package session implements the Council lifecycle manager.

The Manager owns the registry of live councils, enforces the global concurrency
limit and drives each council through the pure state machine in internal/runtime.
Every change, including adapter completions and timer expirations, is applied
through SubmitEvent under a per-council lock; adapter calls run on their own
goroutines and never hold that lock across their latency.

Terminal councils stay readable for a retention grace period, are then evicted
and, when a ports.ArchiveStore is configured, archived for later retrieval.
*/
package session
