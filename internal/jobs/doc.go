// Package jobs persists conversion job state in SQLite and enforces the
// forward-only job state machine. Jobs are mutated exclusively through the
// workflow coordinator; the store's transition guard rejects backward moves
// and writes to terminal jobs.
package jobs
