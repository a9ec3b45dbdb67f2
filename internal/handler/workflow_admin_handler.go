package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Paashik/MyIS-sub004/internal/dto"
	"github.com/Paashik/MyIS-sub004/internal/service"
	appErrors "github.com/Paashik/MyIS-sub004/pkg/errors"
	"github.com/Paashik/MyIS-sub004/pkg/response"
)

// WorkflowAdminHandler manages per-type transition tables.
type WorkflowAdminHandler struct {
	workflow *service.WorkflowService
}

// NewWorkflowAdminHandler constructs handler.
func NewWorkflowAdminHandler(workflow *service.WorkflowService) *WorkflowAdminHandler {
	return &WorkflowAdminHandler{workflow: workflow}
}

// GetTransitions godoc
// @Summary List the transition table of a request type
// @Tags Workflow
// @Produce json
// @Security BearerAuth
// @Param typeCode path string true "Request type code"
// @Success 200 {object} response.Envelope
// @Router /workflow/{typeCode}/transitions [get]
func (h *WorkflowAdminHandler) GetTransitions(c *gin.Context) {
	transitions, err := h.workflow.GetTransitions(c.Request.Context(), c.Param("typeCode"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transitions, nil)
}

// ReplaceTransitions godoc
// @Summary Replace the transition table of a request type
// @Description The new table replaces the old one atomically; in-flight
// @Description requests keep their status and follow the new table afterwards.
// @Tags Workflow
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param typeCode path string true "Request type code"
// @Param payload body dto.ReplaceTransitionsRequest true "Transition table"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /workflow/{typeCode}/transitions [put]
func (h *WorkflowAdminHandler) ReplaceTransitions(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ReplaceTransitionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.workflow.ReplaceTransitions(c.Request.Context(), c.Param("typeCode"), req.Transitions, claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"typeCode": c.Param("typeCode"), "count": len(req.Transitions)}, nil)
}
