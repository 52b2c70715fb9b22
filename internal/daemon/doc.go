// Package daemon hosts the conversion service: it enforces single-instance
// execution with a lock file, serves the HTTP API, and owns the lifecycle
// of the job coordinator and its stores.
package daemon
