package services

import (
	"errors"
	"fmt"
	"strings"

	"comic2kindle/internal/jobs"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later status classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind maps a stage error to the error kind persisted on a failed job.
func Kind(err error) jobs.ErrorKind {
	switch {
	case errors.Is(err, ErrValidation):
		return jobs.ErrorKindValidation
	case errors.Is(err, ErrConfiguration):
		return jobs.ErrorKindConfiguration
	case errors.Is(err, ErrNotFound):
		return jobs.ErrorKindNotFound
	case errors.Is(err, ErrExternalTool):
		return jobs.ErrorKindExternalTool
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrTransient):
		return jobs.ErrorKindTransient
	default:
		return jobs.ErrorKindInternal
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

// Message extracts the human-readable portion of a wrapped stage error,
// stripping the sentinel prefix when present.
func Message(err error) string {
	if err == nil {
		return ""
	}
	text := err.Error()
	for _, marker := range []error{ErrExternalTool, ErrValidation, ErrConfiguration, ErrNotFound, ErrTimeout, ErrTransient} {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(text, prefix) {
			return strings.TrimPrefix(text, prefix)
		}
	}
	return text
}
