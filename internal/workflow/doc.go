// Package workflow coordinates conversion jobs end to end.
//
// The Coordinator validates submissions, persists job state through
// internal/jobs, and drives each job through extraction, image transform,
// volume planning, and package assembly on a dedicated goroutine. Callers
// observe progress by polling the job store; terminal state is reported
// through the configured notification service.
package workflow
