package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Paashik/MyIS-sub004/internal/dto"
	"github.com/Paashik/MyIS-sub004/internal/models"
	"github.com/Paashik/MyIS-sub004/pkg/config"
	appErrors "github.com/Paashik/MyIS-sub004/pkg/errors"
	"github.com/Paashik/MyIS-sub004/pkg/jobs"
)

type externalReader interface {
	ReadSnapshot(ctx context.Context, scope models.SyncScope, afterKey string, limit int) ([]models.ExternalRecord, error)
	ReadDelta(ctx context.Context, scope models.SyncScope, sinceKey string, limit int) ([]models.ExternalRecord, error)
}

type syncItemStore interface {
	GetByID(ctx context.Context, id string) (*models.Item, error)
	FindByNormalizedCode(ctx context.Context, kind models.ItemKind, normalizedCode string) ([]models.Item, error)
	Create(ctx context.Context, item *models.Item) error
	Update(ctx context.Context, item *models.Item) error
}

type syncLinkStore interface {
	GetByExternalKey(ctx context.Context, connectionID, entityType, externalKey string) ([]models.ExternalEntityLink, error)
	Create(ctx context.Context, link *models.ExternalEntityLink) error
	TouchSynced(ctx context.Context, id string, syncedAt time.Time) error
}

type syncCursorStore interface {
	GetLastProcessedKey(ctx context.Context, connectionID, sourceEntity string) (string, error)
	UpsertCursor(ctx context.Context, connectionID, sourceEntity, lastKey string) error
}

type syncRunStore interface {
	Add(ctx context.Context, run *models.SyncRun) error
	Finish(ctx context.Context, params models.SyncRunFinish) error
	AddError(ctx context.Context, syncErr *models.SyncError) error
	GetByID(ctx context.Context, id string) (*models.SyncRun, error)
	GetRuns(ctx context.Context, filter models.SyncRunFilter) ([]models.SyncRun, error)
	GetLastSuccessfulRun(ctx context.Context, scope models.SyncScope) (*models.SyncRun, error)
	GetRunErrors(ctx context.Context, runID string) ([]models.SyncError, error)
}

// SyncService coordinates Component2020 synchronization runs: fetch, link
// resolution, apply, per-run accounting and cursor advancement.
type SyncService struct {
	reader   externalReader
	items    syncItemStore
	links    syncLinkStore
	cursors  syncCursorStore
	runs     syncRunStore
	resolver *LinkResolver
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      config.SyncConfig

	queue *jobs.Queue

	// One active run per connection. Runs against different connections
	// proceed in parallel.
	mu     sync.Mutex
	active map[string]struct{}
}

// NewSyncService constructs the coordinator. Call StartWorkers before
// triggering runs.
func NewSyncService(reader externalReader, items syncItemStore, links syncLinkStore, cursors syncCursorStore, runs syncRunStore, resolver *LinkResolver, metrics *MetricsService, logger *zap.Logger, cfg config.SyncConfig) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		resolver = NewLinkResolver()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}
	svc := &SyncService{
		reader:   reader,
		items:    items,
		links:    links,
		cursors:  cursors,
		runs:     runs,
		resolver: resolver,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		active:   make(map[string]struct{}),
	}
	svc.queue = jobs.NewQueue("sync", svc.processJob, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		Logger:     logger,
	})
	return svc
}

// StartWorkers launches the background run queue.
func (s *SyncService) StartWorkers(ctx context.Context) {
	s.queue.Start(ctx)
}

// StopWorkers stops the pool. Runs still queued are drained through the
// normal execution path under the cancelled context, so each accepted run
// ends up marked Failed rather than stuck in Started.
func (s *SyncService) StopWorkers() {
	s.queue.Stop()
}

type runParams struct {
	RunID        string
	ConnectionID string
	Scope        models.SyncScope
	Mode         models.SyncMode
	DryRun       bool
}

// StartRun validates the trigger, reserves the per-connection guard,
// records the run in Started state and queues it for execution.
func (s *SyncService) StartRun(ctx context.Context, req dto.StartSyncRequest, actorID string) (*models.SyncRun, error) {
	connectionID := strings.TrimSpace(req.ConnectionID)
	if connectionID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "connectionId is required")
	}
	scope, ok := models.NormalizeScope(strings.ToUpper(strings.TrimSpace(req.Scope)))
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown sync scope %q", req.Scope))
	}
	mode := models.SyncMode(strings.ToUpper(strings.TrimSpace(req.Mode)))
	switch mode {
	case models.SyncModeDelta, models.SyncModeSnapshotUpsert, models.SyncModeOverwrite:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown sync mode %q", req.Mode))
	}

	if !s.acquire(connectionID) {
		return nil, appErrors.Clone(appErrors.ErrSyncRunInProgress, "")
	}

	run := &models.SyncRun{
		ConnectionID: connectionID,
		Scope:        scope,
		Mode:         mode,
		Status:       models.SyncRunStarted,
		DryRun:       req.DryRun,
		StartedBy:    actorID,
		StartedAt:    time.Now().UTC(),
	}
	if err := s.runs.Add(ctx, run); err != nil {
		s.release(connectionID)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record sync run")
	}

	job := jobs.Job{
		ID:   run.ID,
		Type: "sync_run",
		Payload: runParams{
			RunID:        run.ID,
			ConnectionID: connectionID,
			Scope:        scope,
			Mode:         mode,
			DryRun:       req.DryRun,
		},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.failRun(context.Background(), run.ID, models.SyncCounters{}, "failed to queue run: "+err.Error())
		s.release(connectionID)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue sync run")
	}
	return run, nil
}

func (s *SyncService) processJob(ctx context.Context, job jobs.Job) error {
	params, ok := job.Payload.(runParams)
	if !ok {
		return fmt.Errorf("unexpected sync job payload %T", job.Payload)
	}
	s.executeRun(ctx, params)
	// Run outcomes live on the run record; the queue never retries a run
	// that has already reached a terminal state.
	return nil
}

// executeRun performs one run to completion. Any non-recoverable error marks
// the run Failed and leaves the cursor untouched, guaranteeing at-least-once
// reprocessing of the failed window on retry.
func (s *SyncService) executeRun(ctx context.Context, params runParams) {
	defer s.release(params.ConnectionID)

	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	started := time.Now()
	counters := models.SyncCounters{}
	status := models.SyncRunFailed

	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveSyncRun(params.Scope, params.Mode, status, time.Since(started))
		}
	}()

	// A run drained out of the queue at shutdown arrives with its context
	// already cancelled. It still gets a durable terminal state.
	if ctx.Err() != nil {
		s.failRun(ctx, params.RunID, counters, "run cancelled: "+ctx.Err().Error())
		return
	}

	pageAfter := ""
	if params.Mode == models.SyncModeDelta {
		cursor, err := s.cursors.GetLastProcessedKey(ctx, params.ConnectionID, string(params.Scope))
		if err != nil {
			s.failRun(ctx, params.RunID, counters, "failed to read cursor: "+err.Error())
			return
		}
		pageAfter = cursor
	}

	for {
		records, err := s.readPage(ctx, params, pageAfter)
		if err != nil {
			// Cancellation between pages surfaces as a reader error; the
			// recorded reason must say cancellation, not source failure.
			if ctx.Err() != nil {
				s.failRun(ctx, params.RunID, counters, "run cancelled: "+ctx.Err().Error())
				return
			}
			s.failRun(ctx, params.RunID, counters, "external source unreachable: "+err.Error())
			return
		}
		if len(records) == 0 {
			break
		}

		for _, record := range records {
			// Cancellation stops the batch between records; the cursor
			// stays at the last fully-committed page.
			if ctx.Err() != nil {
				s.failRun(ctx, params.RunID, counters, "run cancelled: "+ctx.Err().Error())
				return
			}
			s.processRecord(ctx, params, record, &counters)
		}

		lastKey := records[len(records)-1].Key
		if params.Mode == models.SyncModeDelta && !params.DryRun {
			if err := s.cursors.UpsertCursor(ctx, params.ConnectionID, string(params.Scope), lastKey); err != nil {
				s.failRun(ctx, params.RunID, counters, "failed to advance cursor: "+err.Error())
				return
			}
		}
		pageAfter = lastKey

		if len(records) < s.cfg.PageSize {
			break
		}
	}

	status = models.SyncRunCompleted
	payload, _ := json.Marshal(counters)
	// The run timeout may expire between the last page and this write; the
	// terminal state still has to land, so the write ignores cancellation.
	if err := s.runs.Finish(context.WithoutCancel(ctx), models.SyncRunFinish{
		ID:         params.RunID,
		Status:     models.SyncRunCompleted,
		Processed:  counters.Processed,
		ErrorCount: counters.Errors,
		Counters:   payload,
		FinishedAt: time.Now().UTC(),
	}); err != nil {
		s.logger.Error("failed to finish sync run", zap.String("run", params.RunID), zap.Error(err))
	}
}

func (s *SyncService) readPage(ctx context.Context, params runParams, afterKey string) ([]models.ExternalRecord, error) {
	if params.Mode == models.SyncModeDelta {
		return s.reader.ReadDelta(ctx, params.Scope, afterKey, s.cfg.PageSize)
	}
	return s.reader.ReadSnapshot(ctx, params.Scope, afterKey, s.cfg.PageSize)
}

// processRecord reconciles one external record. Per-record failures are
// recorded against the run and never abort the batch.
func (s *SyncService) processRecord(ctx context.Context, params runParams, record models.ExternalRecord, counters *models.SyncCounters) {
	counters.Processed++

	// Tombstones never delete local data. The record is skipped and the
	// catalog entry, if any, stays untouched.
	if record.DeletedAt != nil {
		counters.Skipped++
		return
	}

	links, err := s.links.GetByExternalKey(ctx, params.ConnectionID, string(params.Scope), record.Key)
	if err != nil {
		s.recordError(ctx, params, record, "failed to load links: "+err.Error(), nil)
		counters.Errors++
		return
	}

	var candidates []models.Item
	normalized := NormalizeCode(record.Code)
	if len(links) == 0 && normalized != "" {
		candidates, err = s.items.FindByNormalizedCode(ctx, models.ItemKindForScope(params.Scope), normalized)
		if err != nil {
			s.recordError(ctx, params, record, "failed to load candidates: "+err.Error(), nil)
			counters.Errors++
			return
		}
	}

	resolution := s.resolver.Resolve(record, links, candidates)
	if s.metrics != nil {
		s.metrics.ObserveSyncRecord(params.Scope, resolution.Action)
	}

	switch resolution.Action {
	case models.ResolutionSkip:
		counters.Skipped++

	case models.ResolutionMerge:
		counters.Review++
		details := strings.Join(resolution.Reasons, "; ")
		s.recordReview(ctx, params, record, details)

	case models.ResolutionCreate:
		if params.DryRun {
			counters.Created++
			return
		}
		if err := s.applyCreate(ctx, params, record, normalized); err != nil {
			s.recordError(ctx, params, record, err.Error(), nil)
			counters.Errors++
			return
		}
		counters.Created++

	case models.ResolutionUpdate:
		if params.DryRun {
			counters.Updated++
			return
		}
		if err := s.applyUpdate(ctx, params, record, normalized, resolution, links); err != nil {
			s.recordError(ctx, params, record, err.Error(), nil)
			counters.Errors++
			return
		}
		counters.Updated++
	}
}

func (s *SyncService) applyCreate(ctx context.Context, params runParams, record models.ExternalRecord, normalized string) error {
	item := &models.Item{
		Code:           strings.TrimSpace(record.Code),
		NormalizedCode: normalized,
		Kind:           models.ItemKindForScope(params.Scope),
	}
	applyRecordFields(item, record, true)
	if err := s.items.Create(ctx, item); err != nil {
		return fmt.Errorf("create item for %s: %w", record.Key, err)
	}

	now := time.Now().UTC()
	link := &models.ExternalEntityLink{
		EntityType:   string(params.Scope),
		EntityID:     item.ID,
		ConnectionID: params.ConnectionID,
		ExternalKey:  record.Key,
		SyncedAt:     &now,
		UpdatedAt:    now,
	}
	if err := s.links.Create(ctx, link); err != nil {
		return fmt.Errorf("link item %s to %s: %w", item.ID, record.Key, err)
	}
	return nil
}

func (s *SyncService) applyUpdate(ctx context.Context, params runParams, record models.ExternalRecord, normalized string, resolution models.Resolution, links []models.ExternalEntityLink) error {
	item, err := s.items.GetByID(ctx, resolution.TargetLocalID)
	if err != nil {
		return fmt.Errorf("load item %s: %w", resolution.TargetLocalID, err)
	}

	if record.Code != "" {
		item.Code = strings.TrimSpace(record.Code)
		item.NormalizedCode = normalized
	}
	applyRecordFields(item, record, params.Mode == models.SyncModeOverwrite)
	if err := s.items.Update(ctx, item); err != nil {
		return fmt.Errorf("update item %s: %w", item.ID, err)
	}

	now := time.Now().UTC()
	if resolution.AttachLink {
		link := &models.ExternalEntityLink{
			EntityType:   string(params.Scope),
			EntityID:     item.ID,
			ConnectionID: params.ConnectionID,
			ExternalKey:  record.Key,
			SyncedAt:     &now,
			UpdatedAt:    now,
		}
		if err := s.links.Create(ctx, link); err != nil {
			return fmt.Errorf("attach link for %s: %w", record.Key, err)
		}
		return nil
	}

	if latest := SelectLatestLink(links); latest != nil {
		if err := s.links.TouchSynced(ctx, latest.ID, now); err != nil {
			return fmt.Errorf("touch link %s: %w", latest.ID, err)
		}
	}
	return nil
}

// applyRecordFields copies present external fields onto the item. Overwrite
// mode clears local fields the external record does not carry; the merge
// modes leave them alone, so a null external field never erases local data.
func applyRecordFields(item *models.Item, record models.ExternalRecord, overwrite bool) {
	if record.Name != nil {
		item.Name = *record.Name
	} else if overwrite {
		item.Name = ""
	}
	if record.Description != nil {
		item.Description = *record.Description
	} else if overwrite {
		item.Description = ""
	}
	if record.Unit != nil {
		item.Unit = *record.Unit
	} else if overwrite {
		item.Unit = ""
	}
	if record.Manufacturer != nil {
		item.Manufacturer = *record.Manufacturer
	} else if overwrite {
		item.Manufacturer = ""
	}
}

func (s *SyncService) recordError(ctx context.Context, params runParams, record models.ExternalRecord, message string, details *string) {
	syncErr := &models.SyncError{
		RunID:       params.RunID,
		EntityType:  string(params.Scope),
		ExternalKey: record.Key,
		Kind:        models.SyncErrorKindRecord,
		Message:     message,
		Details:     details,
	}
	if err := s.runs.AddError(ctx, syncErr); err != nil {
		s.logger.Error("failed to record sync error", zap.String("run", params.RunID), zap.Error(err))
	}
}

func (s *SyncService) recordReview(ctx context.Context, params runParams, record models.ExternalRecord, details string) {
	syncErr := &models.SyncError{
		RunID:       params.RunID,
		EntityType:  string(params.Scope),
		ExternalKey: record.Key,
		Kind:        models.SyncErrorKindReview,
		Message:     "ambiguous match requires manual review",
	}
	if details != "" {
		syncErr.Details = &details
	}
	if err := s.runs.AddError(ctx, syncErr); err != nil {
		s.logger.Error("failed to record review item", zap.String("run", params.RunID), zap.Error(err))
	}
}

// failRun records the terminal Failed state. The run context is usually
// cancelled or past its deadline by the time this runs, and ExecContext
// refuses such a context, so the write goes out detached.
func (s *SyncService) failRun(ctx context.Context, runID string, counters models.SyncCounters, reason string) {
	payload, _ := json.Marshal(counters)
	if err := s.runs.Finish(context.WithoutCancel(ctx), models.SyncRunFinish{
		ID:            runID,
		Status:        models.SyncRunFailed,
		Processed:     counters.Processed,
		ErrorCount:    counters.Errors,
		Counters:      payload,
		FailureReason: &reason,
		FinishedAt:    time.Now().UTC(),
	}); err != nil {
		s.logger.Error("failed to mark sync run failed", zap.String("run", runID), zap.Error(err))
	}
}

// GetRuns lists runs matching the query.
func (s *SyncService) GetRuns(ctx context.Context, query dto.SyncRunQuery) ([]models.SyncRun, error) {
	return s.runs.GetRuns(ctx, models.SyncRunFilter{
		ConnectionID: query.ConnectionID,
		Scope:        query.Scope,
		Status:       query.Status,
		Limit:        query.Limit,
		Offset:       query.Offset,
	})
}

// GetRunDetail returns one run together with its recorded errors.
func (s *SyncService) GetRunDetail(ctx context.Context, runID string) (*dto.SyncRunDetail, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	runErrors, err := s.runs.GetRunErrors(ctx, runID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load run errors")
	}
	return &dto.SyncRunDetail{Run: *run, Errors: runErrors}, nil
}

// GetLastSuccessfulRun returns the newest Completed run for a scope.
func (s *SyncService) GetLastSuccessfulRun(ctx context.Context, rawScope string) (*models.SyncRun, error) {
	scope, ok := models.NormalizeScope(strings.ToUpper(strings.TrimSpace(rawScope)))
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown sync scope %q", rawScope))
	}
	return s.runs.GetLastSuccessfulRun(ctx, scope)
}

func (s *SyncService) acquire(connectionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.active[connectionID]; busy {
		return false
	}
	s.active[connectionID] = struct{}{}
	return true
}

func (s *SyncService) release(connectionID string) {
	s.mu.Lock()
	delete(s.active, connectionID)
	s.mu.Unlock()
}
