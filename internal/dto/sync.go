package dto

import "github.com/Paashik/MyIS-sub004/internal/models"

// StartSyncRequest triggers one synchronization run.
type StartSyncRequest struct {
	ConnectionID string `json:"connectionId"`
	Scope        string `json:"scope"`
	Mode         string `json:"mode"`
	DryRun       bool   `json:"dryRun"`
}

// StartSyncResponse acknowledges a queued run.
type StartSyncResponse struct {
	RunID string `json:"runId"`
}

// SyncRunQuery mirrors supported run listing filters.
type SyncRunQuery struct {
	ConnectionID string
	Scope        models.SyncScope
	Status       models.SyncRunStatus
	Limit        int
	Offset       int
}

// SyncRunDetail combines a run with its recorded errors.
type SyncRunDetail struct {
	Run    models.SyncRun     `json:"run"`
	Errors []models.SyncError `json:"errors"`
}
