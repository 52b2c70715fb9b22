package services

import "context"

type contextKey string

const (
	jobIDContextKey     contextKey = "job_id"
	sessionIDContextKey contextKey = "session_id"
	stageContextKey     contextKey = "stage"
)

// WithJobID annotates ctx with the conversion job identifier.
func WithJobID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, jobIDContextKey, id)
}

// JobIDFromContext extracts a job identifier previously stored with WithJobID.
func JobIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(jobIDContextKey).(string)
	return id, ok && id != ""
}

// WithSessionID annotates ctx with the owning session identifier.
func WithSessionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDContextKey, id)
}

// SessionIDFromContext extracts a session identifier previously stored with WithSessionID.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(sessionIDContextKey).(string)
	return id, ok && id != ""
}

// WithStage annotates ctx with the active pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageContextKey, stage)
}

// StageFromContext extracts a stage name previously stored with WithStage.
func StageFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	stage, ok := ctx.Value(stageContextKey).(string)
	return stage, ok && stage != ""
}
