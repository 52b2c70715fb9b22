// Package logging constructs the slog loggers used across comic2kindle and
// defines the standardized attribute keys for structured output.
package logging
