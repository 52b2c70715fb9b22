// Package services provides shared error classification and context helpers
// used by pipeline stages and external tool clients.
package services
