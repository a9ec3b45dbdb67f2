package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Paashik/MyIS-sub004/internal/models"
	appErrors "github.com/Paashik/MyIS-sub004/pkg/errors"
	"github.com/Paashik/MyIS-sub004/pkg/export"
)

type exportRunStore interface {
	GetByID(ctx context.Context, id string) (*models.SyncRun, error)
	GetRunErrors(ctx context.Context, runID string) ([]models.SyncError, error)
}

type exportRequestStore interface {
	GetByID(ctx context.Context, id string) (*models.Request, error)
	ListHistory(ctx context.Context, requestID string) ([]models.RequestHistoryEntry, error)
}

type csvRenderer interface {
	Render(table export.Table) ([]byte, error)
}

type pdfRenderer interface {
	Render(table export.Table, title string) ([]byte, error)
}

// ExportResult carries rendered report bytes with download metadata.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders sync run error reports and request history sheets.
type ExportService struct {
	runs     exportRunStore
	requests exportRequestStore
	csv      csvRenderer
	pdf      pdfRenderer
	logger   *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(runs exportRunStore, requests exportRequestStore, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{runs: runs, requests: requests, csv: csv, pdf: pdf, logger: logger}
}

// SyncRunErrorsCSV renders the error and review log of one run as CSV.
func (s *ExportService) SyncRunErrorsCSV(ctx context.Context, runID string) (*ExportResult, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	runErrors, err := s.runs.GetRunErrors(ctx, runID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load run errors")
	}

	table := export.Table{
		Columns: []string{"external_key", "entity_type", "kind", "message", "details", "created_at"},
	}
	for _, item := range runErrors {
		details := ""
		if item.Details != nil {
			details = *item.Details
		}
		table.Rows = append(table.Rows, []string{
			item.ExternalKey,
			item.EntityType,
			item.Kind,
			item.Message,
			details,
			item.CreatedAt.Format(time.RFC3339),
		})
	}

	data, err := s.csv.Render(table)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	return &ExportResult{
		Filename:    fmt.Sprintf("sync-run-%s-errors.csv", run.ID),
		ContentType: "text/csv",
		Data:        data,
	}, nil
}

// RequestHistoryPDF renders the full action history of a request.
func (s *ExportService) RequestHistoryPDF(ctx context.Context, requestID string) (*ExportResult, error) {
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	history, err := s.requests.ListHistory(ctx, requestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request history")
	}

	table := export.Table{
		Columns: []string{"#", "action", "status", "actor", "comment", "at"},
	}
	for i, entry := range history {
		action := ""
		if entry.ActionCode != nil {
			action = *entry.ActionCode
		}
		comment := ""
		if entry.Comment != nil {
			comment = *entry.Comment
		}
		table.Rows = append(table.Rows, []string{
			strconv.Itoa(i + 1),
			action,
			entry.StatusID,
			entry.ActorID,
			comment,
			entry.CreatedAt.Format(time.RFC3339),
		})
	}

	title := fmt.Sprintf("Request %s history", request.ID)
	data, err := s.pdf.Render(table, title)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
	}
	return &ExportResult{
		Filename:    fmt.Sprintf("request-%s-history.pdf", request.ID),
		ContentType: "application/pdf",
		Data:        data,
	}, nil
}
