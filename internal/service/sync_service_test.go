package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Paashik/MyIS-sub004/internal/dto"
	"github.com/Paashik/MyIS-sub004/internal/models"
	"github.com/Paashik/MyIS-sub004/pkg/config"
	appErrors "github.com/Paashik/MyIS-sub004/pkg/errors"
)

type readerStub struct {
	records []models.ExternalRecord
	err     error
	// called after each page read, lets tests cancel mid-run
	onRead func()
	reads  int
}

func (r *readerStub) page(afterKey string, limit int) []models.ExternalRecord {
	r.reads++
	if r.onRead != nil {
		r.onRead()
	}
	page := make([]models.ExternalRecord, 0, limit)
	for _, rec := range r.records {
		if rec.Key > afterKey {
			page = append(page, rec)
			if len(page) == limit {
				break
			}
		}
	}
	return page
}

func (r *readerStub) ReadSnapshot(ctx context.Context, scope models.SyncScope, afterKey string, limit int) ([]models.ExternalRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.page(afterKey, limit), nil
}

func (r *readerStub) ReadDelta(ctx context.Context, scope models.SyncScope, afterKey string, limit int) ([]models.ExternalRecord, error) {
	return r.ReadSnapshot(ctx, scope, afterKey, limit)
}

type itemStoreStub struct {
	items  map[string]*models.Item
	nextID int
}

func newItemStoreStub() *itemStoreStub {
	return &itemStoreStub{items: make(map[string]*models.Item)}
}

func (s *itemStoreStub) GetByID(ctx context.Context, id string) (*models.Item, error) {
	if item, ok := s.items[id]; ok {
		copy := *item
		return &copy, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "item not found")
}

func (s *itemStoreStub) FindByNormalizedCode(ctx context.Context, kind models.ItemKind, normalizedCode string) ([]models.Item, error) {
	var result []models.Item
	for _, item := range s.items {
		if item.Kind == kind && item.NormalizedCode == normalizedCode {
			result = append(result, *item)
		}
	}
	return result, nil
}

func (s *itemStoreStub) Create(ctx context.Context, item *models.Item) error {
	if item.ID == "" {
		s.nextID++
		item.ID = "item-" + string(rune('0'+s.nextID))
	}
	copy := *item
	s.items[item.ID] = &copy
	return nil
}

func (s *itemStoreStub) Update(ctx context.Context, item *models.Item) error {
	if _, ok := s.items[item.ID]; !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "item not found")
	}
	copy := *item
	s.items[item.ID] = &copy
	return nil
}

type linkStoreStub struct {
	links []models.ExternalEntityLink
}

func (s *linkStoreStub) GetByExternalKey(ctx context.Context, connectionID, entityType, externalKey string) ([]models.ExternalEntityLink, error) {
	var result []models.ExternalEntityLink
	for _, link := range s.links {
		if link.ConnectionID == connectionID && link.EntityType == entityType && link.ExternalKey == externalKey {
			result = append(result, link)
		}
	}
	return result, nil
}

func (s *linkStoreStub) Create(ctx context.Context, link *models.ExternalEntityLink) error {
	if link.ID == "" {
		link.ID = "link-" + link.ExternalKey
	}
	s.links = append(s.links, *link)
	return nil
}

func (s *linkStoreStub) TouchSynced(ctx context.Context, id string, syncedAt time.Time) error {
	for i := range s.links {
		if s.links[i].ID == id {
			t := syncedAt
			s.links[i].SyncedAt = &t
			s.links[i].UpdatedAt = syncedAt
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrNotFound, "link not found")
}

type cursorStoreStub struct {
	cursors map[string]string
	upserts int
	// called after each committed page, lets tests cancel between pages
	onUpsert func()
}

func newCursorStoreStub() *cursorStoreStub {
	return &cursorStoreStub{cursors: make(map[string]string)}
}

func (s *cursorStoreStub) GetLastProcessedKey(ctx context.Context, connectionID, sourceEntity string) (string, error) {
	return s.cursors[connectionID+"/"+sourceEntity], nil
}

func (s *cursorStoreStub) UpsertCursor(ctx context.Context, connectionID, sourceEntity, lastKey string) error {
	s.upserts++
	s.cursors[connectionID+"/"+sourceEntity] = lastKey
	if s.onUpsert != nil {
		s.onUpsert()
	}
	return nil
}

type runStoreStub struct {
	runs     map[string]*models.SyncRun
	finishes []models.SyncRunFinish
	errs     []models.SyncError
	// Finish behaves like ExecContext and refuses a cancelled context.
	strictCtx bool
}

func newRunStoreStub() *runStoreStub {
	return &runStoreStub{runs: make(map[string]*models.SyncRun)}
}

func (s *runStoreStub) Add(ctx context.Context, run *models.SyncRun) error {
	if run.ID == "" {
		run.ID = "run-1"
	}
	copy := *run
	s.runs[run.ID] = &copy
	return nil
}

func (s *runStoreStub) Finish(ctx context.Context, params models.SyncRunFinish) error {
	if s.strictCtx {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	s.finishes = append(s.finishes, params)
	if run, ok := s.runs[params.ID]; ok {
		run.Status = params.Status
		run.Processed = params.Processed
		run.ErrorCount = params.ErrorCount
		run.Counters = params.Counters
		run.FailureReason = params.FailureReason
	}
	return nil
}

func (s *runStoreStub) AddError(ctx context.Context, syncErr *models.SyncError) error {
	s.errs = append(s.errs, *syncErr)
	return nil
}

func (s *runStoreStub) GetByID(ctx context.Context, id string) (*models.SyncRun, error) {
	if run, ok := s.runs[id]; ok {
		copy := *run
		return &copy, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "run not found")
}

func (s *runStoreStub) GetRuns(ctx context.Context, filter models.SyncRunFilter) ([]models.SyncRun, error) {
	var result []models.SyncRun
	for _, run := range s.runs {
		result = append(result, *run)
	}
	return result, nil
}

func (s *runStoreStub) GetLastSuccessfulRun(ctx context.Context, scope models.SyncScope) (*models.SyncRun, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "no successful run for scope")
}

func (s *runStoreStub) GetRunErrors(ctx context.Context, runID string) ([]models.SyncError, error) {
	var result []models.SyncError
	for _, e := range s.errs {
		if e.RunID == runID {
			result = append(result, e)
		}
	}
	return result, nil
}

type syncFixture struct {
	svc     *SyncService
	reader  *readerStub
	items   *itemStoreStub
	links   *linkStoreStub
	cursors *cursorStoreStub
	runs    *runStoreStub
}

func newSyncFixture(records []models.ExternalRecord) *syncFixture {
	f := &syncFixture{
		reader:  &readerStub{records: records},
		items:   newItemStoreStub(),
		links:   &linkStoreStub{},
		cursors: newCursorStoreStub(),
		runs:    newRunStoreStub(),
	}
	f.svc = NewSyncService(f.reader, f.items, f.links, f.cursors, f.runs, NewLinkResolver(), nil, nil, config.SyncConfig{PageSize: 2})
	return f
}

func strPtr(s string) *string { return &s }

func externalItem(key, code, name string, updatedAt time.Time) models.ExternalRecord {
	return models.ExternalRecord{Key: key, Code: code, Name: strPtr(name), UpdatedAt: updatedAt}
}

func (f *syncFixture) run(mode models.SyncMode, dryRun bool) runParams {
	params := runParams{
		RunID:        "run-1",
		ConnectionID: "conn-1",
		Scope:        models.SyncScopeItems,
		Mode:         mode,
		DryRun:       dryRun,
	}
	f.runs.runs["run-1"] = &models.SyncRun{ID: "run-1", ConnectionID: "conn-1", Scope: params.Scope, Mode: mode, Status: models.SyncRunStarted, DryRun: dryRun}
	return params
}

func countersOf(t *testing.T, finish models.SyncRunFinish) models.SyncCounters {
	t.Helper()
	var counters models.SyncCounters
	require.NoError(t, json.Unmarshal(finish.Counters, &counters))
	return counters
}

func TestDeltaRunCreatesItemsAndAdvancesCursor(t *testing.T) {
	now := time.Now().UTC()
	f := newSyncFixture([]models.ExternalRecord{
		externalItem("K-001", "AB-1", "Alpha", now),
		externalItem("K-002", "AB-2", "Beta", now),
		externalItem("K-003", "AB-3", "Gamma", now),
	})

	f.svc.executeRun(context.Background(), f.run(models.SyncModeDelta, false))

	require.Len(t, f.runs.finishes, 1)
	finish := f.runs.finishes[0]
	assert.Equal(t, models.SyncRunCompleted, finish.Status)

	counters := countersOf(t, finish)
	assert.Equal(t, 3, counters.Processed)
	assert.Equal(t, 3, counters.Created)
	assert.Len(t, f.items.items, 3)
	assert.Len(t, f.links.links, 3)
	assert.Equal(t, "K-003", f.cursors.cursors["conn-1/ITEMS"])
	// Two full pages plus the final short one.
	assert.Equal(t, 2, f.cursors.upserts)
}

func TestSecondDeltaRunIsIdempotent(t *testing.T) {
	now := time.Now().UTC()
	records := []models.ExternalRecord{
		externalItem("K-001", "AB-1", "Alpha", now),
		externalItem("K-002", "AB-2", "Beta", now),
	}
	f := newSyncFixture(records)

	f.svc.executeRun(context.Background(), f.run(models.SyncModeDelta, false))
	require.Len(t, f.items.items, 2)

	// Same source state again: the cursor filters everything out.
	f.runs.runs["run-2"] = &models.SyncRun{ID: "run-2", Status: models.SyncRunStarted}
	second := runParams{RunID: "run-2", ConnectionID: "conn-1", Scope: models.SyncScopeItems, Mode: models.SyncModeDelta}
	f.svc.executeRun(context.Background(), second)

	require.Len(t, f.runs.finishes, 2)
	counters := countersOf(t, f.runs.finishes[1])
	assert.Equal(t, 0, counters.Processed)
	assert.Len(t, f.items.items, 2)
	assert.Len(t, f.links.links, 2)
}

func TestSnapshotRerunSkipsViaFreshLinks(t *testing.T) {
	now := time.Now().UTC()
	records := []models.ExternalRecord{
		externalItem("K-001", "AB-1", "Alpha", now),
		externalItem("K-002", "AB-2", "Beta", now),
	}
	f := newSyncFixture(records)

	f.svc.executeRun(context.Background(), f.run(models.SyncModeSnapshotUpsert, false))
	require.Len(t, f.items.items, 2)

	// Snapshot mode ignores the cursor; the second pass resolves every
	// record to Skip through its fresh link.
	f.runs.runs["run-2"] = &models.SyncRun{ID: "run-2", Status: models.SyncRunStarted}
	second := runParams{RunID: "run-2", ConnectionID: "conn-1", Scope: models.SyncScopeItems, Mode: models.SyncModeSnapshotUpsert}
	f.svc.executeRun(context.Background(), second)

	counters := countersOf(t, f.runs.finishes[1])
	assert.Equal(t, 2, counters.Processed)
	assert.Equal(t, 2, counters.Skipped)
	assert.Equal(t, 0, counters.Created)
	assert.Len(t, f.items.items, 2)
}

func TestDryRunWritesNothing(t *testing.T) {
	now := time.Now().UTC()
	f := newSyncFixture([]models.ExternalRecord{
		externalItem("K-001", "AB-1", "Alpha", now),
	})

	f.svc.executeRun(context.Background(), f.run(models.SyncModeDelta, true))

	counters := countersOf(t, f.runs.finishes[0])
	assert.Equal(t, 1, counters.Processed)
	assert.Equal(t, 1, counters.Created)
	assert.Empty(t, f.items.items)
	assert.Empty(t, f.links.links)
	assert.Empty(t, f.cursors.cursors)
}

func TestReaderFailureFailsRunAndKeepsCursor(t *testing.T) {
	f := newSyncFixture(nil)
	f.cursors.cursors["conn-1/ITEMS"] = "K-100"
	f.reader.err = errors.New("staging database is down")

	f.svc.executeRun(context.Background(), f.run(models.SyncModeDelta, false))

	require.Len(t, f.runs.finishes, 1)
	finish := f.runs.finishes[0]
	assert.Equal(t, models.SyncRunFailed, finish.Status)
	require.NotNil(t, finish.FailureReason)
	assert.Contains(t, *finish.FailureReason, "unreachable")
	assert.Equal(t, "K-100", f.cursors.cursors["conn-1/ITEMS"])
	assert.Equal(t, 0, f.cursors.upserts)
}

func TestCancellationStopsAtCommittedPage(t *testing.T) {
	now := time.Now().UTC()
	f := newSyncFixture([]models.ExternalRecord{
		externalItem("K-001", "AB-1", "Alpha", now),
		externalItem("K-002", "AB-2", "Beta", now),
		externalItem("K-003", "AB-3", "Gamma", now),
		externalItem("K-004", "AB-4", "Delta", now),
	})

	ctx, cancel := context.WithCancel(context.Background())
	f.reader.onRead = func() {
		if f.reader.reads == 2 {
			cancel()
		}
	}

	f.svc.executeRun(ctx, f.run(models.SyncModeDelta, false))

	require.Len(t, f.runs.finishes, 1)
	finish := f.runs.finishes[0]
	assert.Equal(t, models.SyncRunFailed, finish.Status)
	require.NotNil(t, finish.FailureReason)
	assert.Contains(t, *finish.FailureReason, "cancelled")
	// Only the first fully processed page moved the cursor.
	assert.Equal(t, "K-002", f.cursors.cursors["conn-1/ITEMS"])
	assert.Len(t, f.items.items, 2)
}

func TestCancelledRunIsFinishedOnDetachedContext(t *testing.T) {
	now := time.Now().UTC()
	f := newSyncFixture([]models.ExternalRecord{
		externalItem("K-001", "AB-1", "Alpha", now),
		externalItem("K-002", "AB-2", "Beta", now),
		externalItem("K-003", "AB-3", "Gamma", now),
	})
	f.runs.strictCtx = true

	ctx, cancel := context.WithCancel(context.Background())
	f.reader.onRead = func() {
		if f.reader.reads == 2 {
			cancel()
		}
	}

	f.svc.executeRun(ctx, f.run(models.SyncModeDelta, false))

	// The terminal write must land even though the run context is dead.
	require.Len(t, f.runs.finishes, 1)
	finish := f.runs.finishes[0]
	assert.Equal(t, models.SyncRunFailed, finish.Status)
	require.NotNil(t, finish.FailureReason)
	assert.Contains(t, *finish.FailureReason, "cancelled")
	assert.Equal(t, models.SyncRunFailed, f.runs.runs["run-1"].Status)
}

func TestCancellationBetweenPagesReportsCancellation(t *testing.T) {
	now := time.Now().UTC()
	f := newSyncFixture([]models.ExternalRecord{
		externalItem("K-001", "AB-1", "Alpha", now),
		externalItem("K-002", "AB-2", "Beta", now),
	})
	f.runs.strictCtx = true

	// A full first page forces a second read; cancelling after the cursor
	// commit makes that read fail with the context error.
	ctx, cancel := context.WithCancel(context.Background())
	f.cursors.onUpsert = func() { cancel() }

	f.svc.executeRun(ctx, f.run(models.SyncModeDelta, false))

	require.Len(t, f.runs.finishes, 1)
	finish := f.runs.finishes[0]
	assert.Equal(t, models.SyncRunFailed, finish.Status)
	require.NotNil(t, finish.FailureReason)
	assert.Contains(t, *finish.FailureReason, "cancelled")
	assert.NotContains(t, *finish.FailureReason, "unreachable")
	assert.Equal(t, "K-002", f.cursors.cursors["conn-1/ITEMS"])
}

func TestRunDrainedAtShutdownIsMarkedFailed(t *testing.T) {
	f := newSyncFixture(nil)
	f.runs.strictCtx = true

	// A run handed back by the queue at shutdown carries an already
	// cancelled context and must not touch the source.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.svc.executeRun(ctx, f.run(models.SyncModeDelta, false))

	require.Len(t, f.runs.finishes, 1)
	finish := f.runs.finishes[0]
	assert.Equal(t, models.SyncRunFailed, finish.Status)
	require.NotNil(t, finish.FailureReason)
	assert.Contains(t, *finish.FailureReason, "cancelled")
	assert.Equal(t, 0, f.reader.reads)
}

func TestRecordErrorDoesNotAbortBatch(t *testing.T) {
	now := time.Now().UTC()
	f := newSyncFixture([]models.ExternalRecord{
		externalItem("K-001", "AB-1", "Alpha", now),
		// Two local items share the code, forcing a review outcome.
		externalItem("K-002", "DUP-1", "Beta", now),
		externalItem("K-003", "AB-3", "Gamma", now),
	})
	require.NoError(t, f.items.Create(context.Background(), &models.Item{ID: "dup-a", Code: "DUP-1", NormalizedCode: "DUP1", Kind: models.ItemKindItem}))
	require.NoError(t, f.items.Create(context.Background(), &models.Item{ID: "dup-b", Code: "DUP1", NormalizedCode: "DUP1", Kind: models.ItemKindItem}))

	f.svc.executeRun(context.Background(), f.run(models.SyncModeDelta, false))

	finish := f.runs.finishes[0]
	assert.Equal(t, models.SyncRunCompleted, finish.Status)
	counters := countersOf(t, finish)
	assert.Equal(t, 3, counters.Processed)
	assert.Equal(t, 2, counters.Created)
	assert.Equal(t, 1, counters.Review)

	require.Len(t, f.runs.errs, 1)
	assert.Equal(t, models.SyncErrorKindReview, f.runs.errs[0].Kind)
	assert.Equal(t, "K-002", f.runs.errs[0].ExternalKey)
}

func TestOverwriteClearsAbsentFields(t *testing.T) {
	item := &models.Item{Name: "Old", Description: "Old desc", Unit: "pcs", Manufacturer: "Acme"}
	record := models.ExternalRecord{Code: "AB-1", Name: strPtr("New")}

	applyRecordFields(item, record, true)
	assert.Equal(t, "New", item.Name)
	assert.Empty(t, item.Description)
	assert.Empty(t, item.Unit)
	assert.Empty(t, item.Manufacturer)
}

func TestMergeModesKeepAbsentFields(t *testing.T) {
	item := &models.Item{Name: "Old", Description: "Old desc", Unit: "pcs"}
	record := models.ExternalRecord{Code: "AB-1", Name: strPtr("New")}

	applyRecordFields(item, record, false)
	assert.Equal(t, "New", item.Name)
	assert.Equal(t, "Old desc", item.Description)
	assert.Equal(t, "pcs", item.Unit)
}

func TestUpdatePathAttachesLinkForCandidateMatch(t *testing.T) {
	now := time.Now().UTC()
	f := newSyncFixture([]models.ExternalRecord{
		externalItem("K-001", "AB-1", "Renamed", now),
	})
	require.NoError(t, f.items.Create(context.Background(), &models.Item{ID: "local-1", Code: "AB1", NormalizedCode: "AB1", Kind: models.ItemKindItem, Name: "Original"}))

	f.svc.executeRun(context.Background(), f.run(models.SyncModeDelta, false))

	counters := countersOf(t, f.runs.finishes[0])
	assert.Equal(t, 1, counters.Updated)
	assert.Equal(t, "Renamed", f.items.items["local-1"].Name)
	require.Len(t, f.links.links, 1)
	assert.Equal(t, "local-1", f.links.links[0].EntityID)
	assert.NotNil(t, f.links.links[0].SyncedAt)
}

func TestStartRunValidation(t *testing.T) {
	f := newSyncFixture(nil)
	actor := "u1"

	_, err := f.svc.StartRun(context.Background(), dto.StartSyncRequest{Scope: "ITEMS", Mode: "DELTA"}, actor)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connectionId")

	_, err = f.svc.StartRun(context.Background(), dto.StartSyncRequest{ConnectionID: "c1", Scope: "PLANETS", Mode: "DELTA"}, actor)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown sync scope")

	_, err = f.svc.StartRun(context.Background(), dto.StartSyncRequest{ConnectionID: "c1", Scope: "ITEMS", Mode: "SIDEWAYS"}, actor)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown sync mode")
}

func TestStartRunGuardsPerConnection(t *testing.T) {
	f := newSyncFixture(nil)
	require.True(t, f.svc.acquire("conn-1"))

	_, err := f.svc.StartRun(context.Background(), dto.StartSyncRequest{ConnectionID: "conn-1", Scope: "ITEMS", Mode: "DELTA"}, "u1")
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrSyncRunInProgress.Code, appErr.Code)

	// A different connection is not blocked by the guard.
	require.True(t, f.svc.acquire("conn-2"))
	f.svc.release("conn-1")
	f.svc.release("conn-2")
}

func TestDeletedRecordKeepsLocalItem(t *testing.T) {
	now := time.Now().UTC()
	deleted := externalItem("K-001", "AB-1", "Renamed upstream", now)
	deleted.DeletedAt = &now

	f := newSyncFixture([]models.ExternalRecord{deleted})
	f.items.items["item-1"] = &models.Item{ID: "item-1", Code: "AB-1", NormalizedCode: "AB1", Name: "Alpha", Kind: models.ItemKindItem}
	synced := now.Add(-time.Hour)
	f.links.links = []models.ExternalEntityLink{
		{ID: "link-1", EntityType: "ITEMS", EntityID: "item-1", ConnectionID: "conn-1", ExternalKey: "K-001", SyncedAt: &synced},
	}

	f.svc.executeRun(context.Background(), f.run(models.SyncModeDelta, false))

	require.Len(t, f.runs.finishes, 1)
	counters := countersOf(t, f.runs.finishes[0])
	assert.Equal(t, 1, counters.Processed)
	assert.Equal(t, 1, counters.Skipped)
	assert.Equal(t, 0, counters.Updated)
	assert.Equal(t, "Alpha", f.items.items["item-1"].Name)
}

func TestSuppliersScopeAliasesCounterparties(t *testing.T) {
	scope, ok := models.NormalizeScope("SUPPLIERS")
	require.True(t, ok)
	assert.Equal(t, models.SyncScopeCounterparties, scope)
	assert.Equal(t, models.ItemKindCounterparty, models.ItemKindForScope(scope))
}
