// Package indexer defines the core types shared across the reconciliation
// pipeline: the closed status taxonomy and its classifier, the per-URL cache
// entry, the collaborator interfaces, and the fatal error values that the
// run entry point turns into a process exit code.
package indexer
