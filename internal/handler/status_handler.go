package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Paashik/MyIS-sub004/internal/models"
	"github.com/Paashik/MyIS-sub004/internal/service"
	appErrors "github.com/Paashik/MyIS-sub004/pkg/errors"
	"github.com/Paashik/MyIS-sub004/pkg/response"
)

// StatusHandler exposes the status dictionary.
type StatusHandler struct {
	statuses *service.StatusService
}

// NewStatusHandler constructs handler.
func NewStatusHandler(statuses *service.StatusService) *StatusHandler {
	return &StatusHandler{statuses: statuses}
}

// List godoc
// @Summary List request statuses
// @Tags Dictionaries
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /statuses [get]
func (h *StatusHandler) List(c *gin.Context) {
	statuses, err := h.statuses.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, statuses, nil)
}

// ListGroups godoc
// @Summary List status groups
// @Tags Dictionaries
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /statuses/groups [get]
func (h *StatusHandler) ListGroups(c *gin.Context) {
	groups, err := h.statuses.ListGroups(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, nil)
}

// Upsert godoc
// @Summary Create or update a status
// @Tags Dictionaries
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.Status true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /statuses [put]
func (h *StatusHandler) Upsert(c *gin.Context) {
	var status models.Status
	if err := c.ShouldBindJSON(&status); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.statuses.Upsert(c.Request.Context(), &status); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}
