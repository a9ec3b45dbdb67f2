package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Paashik/MyIS-sub004/internal/dto"
	"github.com/Paashik/MyIS-sub004/internal/models"
	"github.com/Paashik/MyIS-sub004/internal/service"
	appErrors "github.com/Paashik/MyIS-sub004/pkg/errors"
	"github.com/Paashik/MyIS-sub004/pkg/response"
)

// SyncHandler exposes Component2020 synchronization endpoints.
type SyncHandler struct {
	sync *service.SyncService
}

// NewSyncHandler constructs handler.
func NewSyncHandler(sync *service.SyncService) *SyncHandler {
	return &SyncHandler{sync: sync}
}

// Start godoc
// @Summary Trigger a synchronization run
// @Description Queues a run for background execution. A second trigger for
// @Description the same connection while a run is active yields 409.
// @Tags Synchronization
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.StartSyncRequest true "Run parameters"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sync/runs [post]
func (h *SyncHandler) Start(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.StartSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	run, err := h.sync.StartRun(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, dto.StartSyncResponse{RunID: run.ID})
}

// List godoc
// @Summary List synchronization runs
// @Tags Synchronization
// @Produce json
// @Security BearerAuth
// @Param connectionId query string false "Filter by connection"
// @Param scope query string false "Filter by scope"
// @Param status query string false "Filter by status"
// @Param limit query int false "Limit"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /sync/runs [get]
func (h *SyncHandler) List(c *gin.Context) {
	query := dto.SyncRunQuery{
		ConnectionID: c.Query("connectionId"),
		Scope:        models.SyncScope(strings.ToUpper(c.Query("scope"))),
		Status:       models.SyncRunStatus(strings.ToUpper(c.Query("status"))),
	}
	query.Limit, _ = strconv.Atoi(c.Query("limit"))
	query.Offset, _ = strconv.Atoi(c.Query("offset"))

	runs, err := h.sync.GetRuns(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, nil)
}

// Get godoc
// @Summary Run detail with per-record errors and review items
// @Tags Synchronization
// @Produce json
// @Security BearerAuth
// @Param id path string true "Run id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sync/runs/{id} [get]
func (h *SyncHandler) Get(c *gin.Context) {
	detail, err := h.sync.GetRunDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// LastSuccessful godoc
// @Summary Newest completed run for a scope
// @Tags Synchronization
// @Produce json
// @Security BearerAuth
// @Param scope query string true "Sync scope"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sync/runs/last-successful [get]
func (h *SyncHandler) LastSuccessful(c *gin.Context) {
	run, err := h.sync.GetLastSuccessfulRun(c.Request.Context(), c.Query("scope"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}
