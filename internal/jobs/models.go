package jobs

import (
	"strings"
	"time"
)

// Status represents the lifecycle phase of a conversion job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusExtracting Status = "extracting"
	StatusProcessing Status = "processing"
	StatusMerging    Status = "merging"
	StatusConverting Status = "converting"
	StatusSplitting  Status = "splitting"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusExtracting,
	StatusProcessing,
	StatusMerging,
	StatusConverting,
	StatusSplitting,
	StatusCompleted,
	StatusFailed,
}

// statusRank orders phases for the forward-only transition guard. Merging and
// splitting are optional phases; skipping them is still a forward move.
var statusRank = map[Status]int{
	StatusPending:    0,
	StatusExtracting: 1,
	StatusProcessing: 2,
	StatusMerging:    3,
	StatusConverting: 4,
	StatusSplitting:  5,
	StatusCompleted:  6,
	StatusFailed:     6,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from one status to another is legal.
// Transitions are strictly forward; failed is reachable from any non-terminal
// state; terminal states are final, so even a same-status write to a terminal
// job is rejected.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if from == to {
		return true
	}
	if to == StatusFailed {
		return true
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// ErrorKind classifies terminal job failures for API consumers.
type ErrorKind string

const (
	ErrorKindNone          ErrorKind = ""
	ErrorKindValidation    ErrorKind = "validation"
	ErrorKindConfiguration ErrorKind = "configuration"
	ErrorKindNotFound      ErrorKind = "not_found"
	ErrorKindExternalTool  ErrorKind = "external_tool"
	ErrorKindTransient     ErrorKind = "transient"
	ErrorKindInternal      ErrorKind = "internal"
)

// Format identifies the requested output format set.
type Format string

const (
	FormatEPUB Format = "epub"
	FormatMOBI Format = "mobi"
	FormatBoth Format = "both"
)

// ParseFormat converts a string into a known Format.
func ParseFormat(value string) (Format, bool) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case FormatEPUB, "":
		return FormatEPUB, true
	case FormatMOBI:
		return FormatMOBI, true
	case FormatBoth:
		return FormatBoth, true
	default:
		return "", false
	}
}

// WantsEPUB reports whether the primary EPUB artifact should be delivered.
func (f Format) WantsEPUB() bool { return f == FormatEPUB || f == FormatBoth }

// WantsMOBI reports whether the legacy MOBI artifact should be attempted.
func (f Format) WantsMOBI() bool { return f == FormatMOBI || f == FormatBoth }

// Job represents one conversion request persisted in SQLite.
type Job struct {
	ID             string
	SessionID      string
	FileIDs        []string
	Merge          bool
	MaxVolumeBytes int64
	OutputFormat   Format
	NamingTemplate string
	OptionsJSON    string
	MetadataJSON   string
	Status         Status
	Progress       float64
	CurrentFile    string
	OutputFiles    []string
	Warnings       []string
	ErrorMessage   string
	ErrorKind      ErrorKind
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

// SetProgress raises the job's progress, clamped to [0, 99] outside terminal
// states. Progress never decreases.
func (j *Job) SetProgress(percent float64) {
	if percent < 0 {
		percent = 0
	}
	if !j.Status.IsTerminal() && percent > 99 {
		percent = 99
	}
	if percent > j.Progress {
		j.Progress = percent
	}
}

// SetCompleted marks the job completed, forcing progress to exactly 100 and
// clearing the current file marker.
func (j *Job) SetCompleted(outputFiles []string) {
	now := time.Now().UTC()
	j.Status = StatusCompleted
	j.Progress = 100
	j.CurrentFile = ""
	j.OutputFiles = outputFiles
	j.CompletedAt = &now
}

// SetFailed marks the job failed with the given message and kind. Progress is
// left unchanged and the current file marker is cleared.
func (j *Job) SetFailed(message string, kind ErrorKind) {
	now := time.Now().UTC()
	j.Status = StatusFailed
	j.ErrorMessage = message
	if kind == ErrorKindNone {
		kind = ErrorKindInternal
	}
	j.ErrorKind = kind
	j.CurrentFile = ""
	j.CompletedAt = &now
}

// AddWarning records a non-fatal problem on the job result.
func (j *Job) AddWarning(message string) {
	message = strings.TrimSpace(message)
	if message == "" {
		return
	}
	j.Warnings = append(j.Warnings, message)
}

// IsProcessing reports whether the job reflects in-flight pipeline work.
func (j Job) IsProcessing() bool {
	switch j.Status {
	case StatusExtracting, StatusProcessing, StatusMerging, StatusConverting, StatusSplitting:
		return true
	default:
		return false
	}
}

// HealthSummary describes aggregated job counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Completed  int
}
