package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"comic2kindle/internal/assembly"
	"comic2kindle/internal/config"
	"comic2kindle/internal/extract"
	"comic2kindle/internal/fileutil"
	"comic2kindle/internal/imaging"
	"comic2kindle/internal/jobs"
	"comic2kindle/internal/logging"
	"comic2kindle/internal/notifications"
	"comic2kindle/internal/pages"
	"comic2kindle/internal/planner"
	"comic2kindle/internal/services"
	"comic2kindle/internal/services/calibre"
	"comic2kindle/internal/sessions"
	"comic2kindle/internal/upscale"
)

// notifyTimeout bounds best-effort notification delivery.
const notifyTimeout = 10 * time.Second

// Progress shares per phase. Extraction is cheap relative to the transform
// and assembly phases.
const (
	extractShare = 5.0
	processShare = 60.0
	convertShare = 34.0
)

// Request describes one conversion submission.
type Request struct {
	SessionID      string                   `json:"session_id"`
	FileIDs        []string                 `json:"file_ids"`
	Merge          bool                     `json:"merge"`
	MaxVolumeMB    int                      `json:"max_volume_mb,omitempty"`
	OutputFormat   string                   `json:"output_format,omitempty"`
	NamingTemplate string                   `json:"naming_template,omitempty"`
	Options        *imaging.TransformOptions `json:"options,omitempty"`
	Metadata       *assembly.Metadata       `json:"metadata,omitempty"`
}

// Coordinator validates submissions and drives conversion jobs to a
// terminal state.
type Coordinator struct {
	cfg       *config.Config
	store     *jobs.Store
	sessions  *sessions.Store
	converter calibre.Converter
	notifier  notifications.Service
	logger    *slog.Logger

	mu      sync.Mutex
	running map[string]*runningJob
	wg      sync.WaitGroup

	// progressMu serializes job mutation and persistence across the worker
	// goroutines that report progress concurrently.
	progressMu sync.Mutex
}

type runningJob struct {
	sessionID string
	cancel    context.CancelFunc
}

// NewCoordinator wires a coordinator over the given stores and services.
// A nil converter disables legacy MOBI output with a warning per job.
func NewCoordinator(cfg *config.Config, store *jobs.Store, sessionStore *sessions.Store, converter calibre.Converter, notifier notifications.Service, logger *slog.Logger) *Coordinator {
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	return &Coordinator{
		cfg:       cfg,
		store:     store,
		sessions:  sessionStore,
		converter: converter,
		notifier:  notifier,
		logger:    logging.NewComponentLogger(logger, "workflow"),
		running:   make(map[string]*runningJob),
	}
}

// Submit validates a request, persists a pending job, and launches its
// pipeline goroutine. Callers poll the job store for progress.
func (c *Coordinator) Submit(ctx context.Context, req Request) (*jobs.Job, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, services.Wrap(services.ErrValidation, "workflow", "submit", "session id required", nil)
	}
	if !c.sessions.Exists(req.SessionID) {
		return nil, services.Wrap(services.ErrNotFound, "workflow", "submit", fmt.Sprintf("session %s not found", req.SessionID), nil)
	}
	if len(req.FileIDs) == 0 {
		return nil, services.Wrap(services.ErrValidation, "workflow", "submit", "at least one file id required", nil)
	}
	for _, fileID := range req.FileIDs {
		if _, err := c.sessions.ResolveFile(req.SessionID, fileID); err != nil {
			return nil, services.Wrap(services.ErrNotFound, "workflow", "submit", fmt.Sprintf("file %s not found in session", fileID), err)
		}
	}

	budget := int64(req.MaxVolumeMB) * 1024 * 1024
	if budget == 0 {
		budget = c.cfg.MaxVolumeBytes()
	}
	if budget < config.MinVolumeBytes() {
		return nil, services.Wrap(services.ErrValidation, "workflow", "submit", fmt.Sprintf("volume budget %d below 1 MiB minimum", budget), nil)
	}

	format, ok := jobs.ParseFormat(req.OutputFormat)
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "workflow", "submit", fmt.Sprintf("unknown output format %q", req.OutputFormat), nil)
	}

	template := strings.TrimSpace(req.NamingTemplate)
	if template == "" {
		template = c.cfg.Output.NamingTemplate
	}

	opts := imaging.DefaultTransformOptions()
	if c.cfg.Pipeline.JPEGQuality > 0 {
		opts.Quality = c.cfg.Pipeline.JPEGQuality
	}
	if req.Options != nil {
		opts = *req.Options
	}
	optionsJSON, err := json.Marshal(opts)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "workflow", "submit", "encode transform options", err)
	}

	meta := assembly.Metadata{}
	if req.Metadata != nil {
		meta = *req.Metadata
	}
	metadataJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "workflow", "submit", "encode metadata", err)
	}

	job, err := c.store.NewJob(ctx, &jobs.Job{
		SessionID:      req.SessionID,
		FileIDs:        req.FileIDs,
		Merge:          req.Merge,
		MaxVolumeBytes: budget,
		OutputFormat:   format,
		NamingTemplate: template,
		OptionsJSON:    string(optionsJSON),
		MetadataJSON:   string(metadataJSON),
	})
	if err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.mu.Lock()
	c.running[job.ID] = &runningJob{sessionID: job.SessionID, cancel: cancel}
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		defer func() {
			c.mu.Lock()
			delete(c.running, job.ID)
			c.mu.Unlock()
		}()
		c.run(jobCtx, job)
	}()

	return job, nil
}

// Cancel stops all in-flight jobs owned by a session and returns how many
// were signaled.
func (c *Coordinator) Cancel(sessionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, active := range c.running {
		if active.sessionID == sessionID {
			active.cancel()
			count++
		}
	}
	return count
}

// ActiveJobs reports the number of in-flight pipeline goroutines.
func (c *Coordinator) ActiveJobs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.running)
}

// Wait blocks until every launched job goroutine has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// run drives one job from pending to a terminal state.
func (c *Coordinator) run(ctx context.Context, job *jobs.Job) {
	logger := c.logger.With(logging.String("job_id", job.ID), logging.String("session_id", job.SessionID))
	logger.Info("conversion started", logging.Int("files", len(job.FileIDs)))

	// Terminal state persists even when the job context is already canceled.
	persistCtx := context.WithoutCancel(ctx)

	outputs, err := c.execute(ctx, job, logger)
	if err != nil {
		message := services.Message(err)
		if errors.Is(err, context.Canceled) {
			message = "conversion canceled"
		}
		job.SetFailed(message, services.Kind(err))
		if updateErr := c.store.Update(persistCtx, job); updateErr != nil {
			logger.Error("persist failed state", logging.Error(updateErr))
		}
		if !c.cfg.Pipeline.KeepPartialOutput {
			c.removeArtifacts(outputs, logger)
		}
		logger.Error("conversion failed", logging.Error(err))
		c.notify(notifications.EventJobFailed, notifications.Payload{
			"title": c.jobTitle(job),
			"error": message,
		})
		return
	}

	job.SetCompleted(outputs)
	if err := c.store.Update(persistCtx, job); err != nil {
		logger.Error("persist completed state", logging.Error(err))
	}
	logger.Info("conversion completed",
		logging.Int("volumes", len(outputs)),
		logging.Int("warnings", len(job.Warnings)))
	c.notify(notifications.EventJobCompleted, notifications.Payload{
		"title":    c.jobTitle(job),
		"volumes":  strconv.Itoa(len(outputs)),
		"warnings": strings.Join(job.Warnings, "\n"),
	})
}

func (c *Coordinator) execute(ctx context.Context, job *jobs.Job, logger *slog.Logger) ([]string, error) {
	opts := imaging.DefaultTransformOptions()
	if job.OptionsJSON != "" {
		if err := json.Unmarshal([]byte(job.OptionsJSON), &opts); err != nil {
			return nil, services.Wrap(services.ErrValidation, "workflow", "decode options", "", err)
		}
	}
	meta := assembly.Metadata{}
	if job.MetadataJSON != "" {
		if err := json.Unmarshal([]byte(job.MetadataJSON), &meta); err != nil {
			return nil, services.Wrap(services.ErrValidation, "workflow", "decode metadata", "", err)
		}
	}

	docs, err := c.extractAll(ctx, job, opts.Direction)
	if err != nil {
		return nil, err
	}

	processed, err := c.transformAll(ctx, job, docs, opts, logger)
	if err != nil {
		return nil, err
	}

	if job.Merge {
		job.Status = jobs.StatusMerging
		c.persistProgress(ctx, job, extractShare+processShare, "")
	}

	plan, err := planner.Build(processed, job.Merge, job.MaxVolumeBytes)
	if err != nil {
		return nil, err
	}
	for _, warning := range plan.Warnings {
		job.AddWarning(warning)
	}
	for _, volume := range plan.Volumes {
		if volume.Oversized {
			job.AddWarning(fmt.Sprintf("volume %d exceeds the size budget and was emitted as-is", volume.Index))
		}
	}

	outputs, err := c.assembleAll(ctx, job, plan, meta, opts)
	if err != nil {
		return outputs, err
	}

	if needsSplitPhase(job.Merge, len(plan.Volumes)) {
		job.Status = jobs.StatusSplitting
		c.persistProgress(ctx, job, 99, "")
	}
	return outputs, nil
}

// needsSplitPhase reports whether the job passes through the splitting
// status. Merging and splitting are only visible on merge jobs; a non-merge
// batch that yields one volume per document never enters either phase.
func needsSplitPhase(merge bool, volumes int) bool {
	return merge && volumes > 1
}

// extractAll reads every submitted archive into page documents, preserving
// submission order.
func (c *Coordinator) extractAll(ctx context.Context, job *jobs.Job, direction pages.ReadingDirection) ([]*pages.SourceDocument, error) {
	job.Status = jobs.StatusExtracting
	docs := make([]*pages.SourceDocument, 0, len(job.FileIDs))
	for i, fileID := range job.FileIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path, err := c.sessions.ResolveFile(job.SessionID, fileID)
		if err != nil {
			return nil, err
		}
		c.persistProgress(ctx, job, extractShare*float64(i)/float64(len(job.FileIDs)), filepath.Base(path))

		doc, err := extract.Extract(ctx, path, fileID, direction)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// transformAll runs the page pipeline over every document with progress
// weighted by page count.
func (c *Coordinator) transformAll(ctx context.Context, job *jobs.Job, docs []*pages.SourceDocument, opts imaging.TransformOptions, logger *slog.Logger) ([]*pages.SourceDocument, error) {
	job.Status = jobs.StatusProcessing

	var external upscale.Upscaler
	if opts.UpscaleMethod == imaging.UpscaleExternal {
		external = upscale.NewRealESRGAN(c.cfg.Pipeline.UpscalerBinary, logger)
	}
	transformer := imaging.NewTransformer(opts, external, logger)

	totalPages := 0
	for _, doc := range docs {
		totalPages += len(doc.Pages)
	}
	if totalPages == 0 {
		return nil, services.Wrap(services.ErrValidation, "workflow", "transform", "no pages found in submitted files", nil)
	}

	processed := make([]*pages.SourceDocument, 0, len(docs))
	pagesDone := 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		docPages := len(doc.Pages)
		result, err := transformer.ProcessDocument(ctx, doc, c.workers(), c.cfg.Pipeline.MaxPageFailureRatio, func(done, total int) {
			fraction := float64(pagesDone+done) / float64(totalPages)
			c.persistProgress(ctx, job, extractShare+processShare*fraction, doc.Name)
		})
		if err != nil {
			return nil, err
		}
		pagesDone += docPages
		for _, warning := range result.Warnings {
			job.AddWarning(warning)
		}
		processed = append(processed, result.Document)
	}
	return processed, nil
}

// assembleAll writes one package per planned volume, in parallel, and
// attempts legacy MOBI conversion when the job asks for it.
func (c *Coordinator) assembleAll(ctx context.Context, job *jobs.Job, plan *planner.Plan, meta assembly.Metadata, opts imaging.TransformOptions) ([]string, error) {
	job.Status = jobs.StatusConverting
	base := extractShare + processShare
	c.persistProgress(ctx, job, base, "")

	outputDir, err := c.sessions.OutputDir(job.SessionID)
	if err != nil {
		return nil, err
	}

	targetWidth, targetHeight := imaging.NewTransformer(opts, nil, c.logger).TargetDimensions()
	total := len(plan.Volumes)

	var mu sync.Mutex
	outputs := make([]string, 0, total)
	volumesDone := 0

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.workers())
	for _, volume := range plan.Volumes {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			name := assembly.RenderName(job.NamingTemplate, meta, volume.Index, total)
			epubPath := fileutil.UniquePath(filepath.Join(outputDir, name+".epub"))
			if err := assembly.WriteEPUB(epubPath, volume, meta, total, assembly.EPUBOptions{
				TargetWidth:  targetWidth,
				TargetHeight: targetHeight,
			}); err != nil {
				return err
			}

			produced := []string{epubPath}
			if job.OutputFormat.WantsMOBI() {
				mobiPath, warning := c.convertLegacy(groupCtx, epubPath, job.OutputFormat)
				if warning != "" {
					c.appendWarning(job, warning)
				}
				if mobiPath != "" {
					if job.OutputFormat == jobs.FormatMOBI {
						_ = os.Remove(epubPath)
						produced = []string{mobiPath}
					} else {
						produced = append(produced, mobiPath)
					}
				}
			}

			mu.Lock()
			outputs = append(outputs, produced...)
			volumesDone++
			fraction := float64(volumesDone) / float64(total)
			mu.Unlock()
			c.persistProgress(ctx, job, base+convertShare*fraction, name)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return outputs, err
	}

	sort.Strings(outputs)
	return outputs, nil
}

// convertLegacy produces a MOBI next to the EPUB. Failure downgrades to a
// warning so the primary package still ships.
func (c *Coordinator) convertLegacy(ctx context.Context, epubPath string, format jobs.Format) (string, string) {
	if c.converter == nil {
		return "", "legacy MOBI conversion skipped: no converter configured"
	}
	mobiPath := strings.TrimSuffix(epubPath, filepath.Ext(epubPath)) + ".mobi"
	if err := c.converter.Convert(ctx, epubPath, mobiPath); err != nil {
		if format == jobs.FormatMOBI {
			return "", fmt.Sprintf("MOBI conversion failed, delivering EPUB instead: %s", services.Message(err))
		}
		return "", fmt.Sprintf("MOBI conversion failed: %s", services.Message(err))
	}
	return mobiPath, ""
}

func (c *Coordinator) workers() int {
	if c.cfg.Pipeline.Workers > 0 {
		return c.cfg.Pipeline.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// persistProgress raises job progress and mirrors the active file marker.
// Persistence failures are logged, not fatal; the in-memory job remains
// authoritative for the pipeline.
func (c *Coordinator) persistProgress(ctx context.Context, job *jobs.Job, percent float64, currentFile string) {
	c.progressMu.Lock()
	defer c.progressMu.Unlock()
	job.SetProgress(percent)
	job.CurrentFile = currentFile
	if err := c.store.Update(ctx, job); err != nil && ctx.Err() == nil {
		c.logger.Warn("persist job progress",
			logging.String("job_id", job.ID),
			logging.Error(err))
	}
}

// appendWarning records a warning under the same lock that guards
// concurrent progress persistence.
func (c *Coordinator) appendWarning(job *jobs.Job, message string) {
	c.progressMu.Lock()
	defer c.progressMu.Unlock()
	job.AddWarning(message)
}

func (c *Coordinator) removeArtifacts(paths []string, logger *slog.Logger) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("remove partial output", logging.String("path", path), logging.Error(err))
		}
	}
}

func (c *Coordinator) jobTitle(job *jobs.Job) string {
	meta := assembly.Metadata{}
	if job.MetadataJSON != "" {
		_ = json.Unmarshal([]byte(job.MetadataJSON), &meta)
	}
	return meta.DisplayTitle()
}

func (c *Coordinator) notify(event notifications.Event, payload notifications.Payload) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := c.notifier.Publish(ctx, event, payload); err != nil {
		c.logger.Warn("publish notification", logging.String("event", string(event)), logging.Error(err))
	}
}

