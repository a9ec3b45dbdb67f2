package models

import "time"

// SyncMode selects how a run fetches and applies external data.
type SyncMode string

const (
	// SyncModeDelta fetches only records newer than the stored cursor and
	// merges present fields.
	SyncModeDelta SyncMode = "DELTA"
	// SyncModeSnapshotUpsert fetches the full snapshot, ignoring the cursor,
	// and merges present fields.
	SyncModeSnapshotUpsert SyncMode = "SNAPSHOT_UPSERT"
	// SyncModeOverwrite fetches the full snapshot and fully replaces local
	// fields: fields absent from the external record are cleared.
	SyncModeOverwrite SyncMode = "OVERWRITE"
)

// SyncScope names a Component2020 source entity.
type SyncScope string

const (
	SyncScopeItems          SyncScope = "ITEMS"
	SyncScopeComponents     SyncScope = "COMPONENTS"
	SyncScopeCounterparties SyncScope = "COUNTERPARTIES"
)

// NormalizeScope maps legacy aliases onto canonical scopes. Suppliers has
// always been the same source entity as counterparties.
func NormalizeScope(raw string) (SyncScope, bool) {
	switch SyncScope(raw) {
	case SyncScopeItems, SyncScopeComponents, SyncScopeCounterparties:
		return SyncScope(raw), true
	case SyncScope("SUPPLIERS"):
		return SyncScopeCounterparties, true
	default:
		return "", false
	}
}

// ItemKindForScope returns the catalog kind records of this scope map to.
func ItemKindForScope(scope SyncScope) ItemKind {
	switch scope {
	case SyncScopeComponents:
		return ItemKindComponent
	case SyncScopeCounterparties:
		return ItemKindCounterparty
	default:
		return ItemKindItem
	}
}

// SyncRunStatus is the run state machine: Started → Completed | Failed.
type SyncRunStatus string

const (
	SyncRunStarted   SyncRunStatus = "STARTED"
	SyncRunCompleted SyncRunStatus = "COMPLETED"
	SyncRunFailed    SyncRunStatus = "FAILED"
)

// ExternalEntityLink relates one local catalog entity to one external key.
// Multiple links may accumulate for the same entity over time; the current
// one is always the latest by (SyncedAt, UpdatedAt), never insertion order.
type ExternalEntityLink struct {
	ID           string     `db:"id" json:"id"`
	EntityType   string     `db:"entity_type" json:"entityType"`
	EntityID     string     `db:"entity_id" json:"entityId"`
	ConnectionID string     `db:"connection_id" json:"connectionId"`
	ExternalKey  string     `db:"external_key" json:"externalKey"`
	SyncedAt     *time.Time `db:"synced_at" json:"syncedAt,omitempty"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updatedAt"`
}

// EffectiveTime is the instant used to order links: SyncedAt when present,
// otherwise UpdatedAt.
func (l ExternalEntityLink) EffectiveTime() time.Time {
	if l.SyncedAt != nil {
		return *l.SyncedAt
	}
	return l.UpdatedAt
}

// SyncCursor stores the last processed external key per (connection, source
// entity). Read once at delta-run start, advanced only after a successful
// batch commit.
type SyncCursor struct {
	ConnectionID string    `db:"connection_id" json:"connectionId"`
	SourceEntity string    `db:"source_entity" json:"sourceEntity"`
	LastKey      string    `db:"last_key" json:"lastKey"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// SyncCounters aggregates per-record outcomes of one run.
type SyncCounters struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
	Review    int `json:"review"`
	Errors    int `json:"errors"`
}

// SyncRun is one coordinator invocation. Immutable once finished except for
// the finish timestamp and final status.
type SyncRun struct {
	ID            string        `db:"id" json:"id"`
	ConnectionID  string        `db:"connection_id" json:"connectionId"`
	Scope         SyncScope     `db:"scope" json:"scope"`
	Mode          SyncMode      `db:"mode" json:"mode"`
	Status        SyncRunStatus `db:"status" json:"status"`
	DryRun        bool          `db:"dry_run" json:"dryRun"`
	StartedBy     string        `db:"started_by" json:"startedBy"`
	StartedAt     time.Time     `db:"started_at" json:"startedAt"`
	FinishedAt    *time.Time    `db:"finished_at" json:"finishedAt,omitempty"`
	Processed     int           `db:"processed" json:"processed"`
	ErrorCount    int           `db:"error_count" json:"errorCount"`
	Counters      []byte        `db:"counters" json:"counters,omitempty"`
	FailureReason *string       `db:"failure_reason" json:"failureReason,omitempty"`
}

// SyncRunFinish groups the terminal fields of a run.
type SyncRunFinish struct {
	ID            string
	Status        SyncRunStatus
	Processed     int
	ErrorCount    int
	Counters      []byte
	FailureReason *string
	FinishedAt    time.Time
}

// SyncErrorKind separates hard per-record failures from review outcomes.
const (
	SyncErrorKindRecord = "RECORD"
	SyncErrorKindReview = "REVIEW"
)

// SyncError is one per-record failure or review item tied to a run. A bad
// record never aborts the batch; it lands here instead.
type SyncError struct {
	ID          string    `db:"id" json:"id"`
	RunID       string    `db:"run_id" json:"runId"`
	EntityType  string    `db:"entity_type" json:"entityType"`
	ExternalKey string    `db:"external_key" json:"externalKey"`
	Kind        string    `db:"kind" json:"kind"`
	Message     string    `db:"message" json:"message"`
	Details     *string   `db:"details" json:"details,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// SyncRunFilter constrains run listing queries.
type SyncRunFilter struct {
	ConnectionID string
	Scope        SyncScope
	Status       SyncRunStatus
	Limit        int
	Offset       int
}

// ExternalRecord is one row read from the Component2020 staging schema.
// Pointer fields model presence: a nil field was absent from the source and
// must not erase local data outside Overwrite mode.
type ExternalRecord struct {
	Key          string     `db:"external_key"`
	Code         string     `db:"code"`
	Name         *string    `db:"name"`
	Description  *string    `db:"description"`
	Unit         *string    `db:"unit"`
	Manufacturer *string    `db:"manufacturer"`
	UpdatedAt    time.Time  `db:"updated_at"`
	DeletedAt    *time.Time `db:"deleted_at"`
}

// ResolutionAction classifies one external record against the local catalog.
type ResolutionAction string

const (
	ResolutionCreate ResolutionAction = "CREATE"
	ResolutionUpdate ResolutionAction = "UPDATE"
	ResolutionSkip   ResolutionAction = "SKIP"
	// ResolutionMerge marks an ambiguous match requiring manual review. It is
	// a designed outcome, never auto-resolved.
	ResolutionMerge ResolutionAction = "MERGE"
)

// Resolution is the link resolver's verdict for one external record.
type Resolution struct {
	Action        ResolutionAction `json:"action"`
	TargetLocalID string           `json:"targetLocalId,omitempty"`
	AttachLink    bool             `json:"attachLink,omitempty"`
	Reasons       []string         `json:"reasons,omitempty"`
}
