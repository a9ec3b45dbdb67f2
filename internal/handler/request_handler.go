package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Paashik/MyIS-sub004/internal/dto"
	"github.com/Paashik/MyIS-sub004/internal/service"
	appErrors "github.com/Paashik/MyIS-sub004/pkg/errors"
	"github.com/Paashik/MyIS-sub004/pkg/response"
)

// RequestHandler exposes request lifecycle endpoints.
type RequestHandler struct {
	requests *service.RequestService
	workflow *service.WorkflowService
}

// NewRequestHandler constructs handler.
func NewRequestHandler(requests *service.RequestService, workflow *service.WorkflowService) *RequestHandler {
	return &RequestHandler{requests: requests, workflow: workflow}
}

// Create godoc
// @Summary Register a new request
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateRequestRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	request, err := h.requests.Create(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// Get godoc
// @Summary Request detail with history and available actions
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	detail, err := h.requests.Get(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// List godoc
// @Summary List requests
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Param typeCode query string false "Filter by request type"
// @Param statusId query string false "Filter by status"
// @Param assigneeId query string false "Filter by assignee"
// @Param search query string false "Search in subject"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	query := dto.RequestQuery{
		TypeCode:   c.Query("typeCode"),
		StatusID:   c.Query("statusId"),
		AssigneeID: c.Query("assigneeId"),
		Search:     c.Query("search"),
	}
	query.Page, _ = strconv.Atoi(c.Query("page"))
	query.PageSize, _ = strconv.Atoi(c.Query("pageSize"))

	requests, pagination, err := h.requests.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}

// Update godoc
// @Summary Edit request fields
// @Description Edits descriptive fields only; status changes go through actions.
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request id"
// @Param payload body dto.UpdateRequestRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id} [patch]
func (h *RequestHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UpdateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	request, err := h.requests.Update(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// ApplyAction godoc
// @Summary Apply a workflow action
// @Description Moves the request along its transition table. Unknown actions
// @Description yield 422, missing permissions 403 and stale row versions 409.
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request id"
// @Param payload body dto.ApplyActionRequest true "Action payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /requests/{id}/actions [post]
func (h *RequestHandler) ApplyAction(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ApplyActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	request, entry, err := h.workflow.Apply(c.Request.Context(), c.Param("id"), req.ActionCode, claims.UserID, req.Comment, req.RowVersion)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"request": request, "historyEntry": entry}, nil)
}

// AvailableActions godoc
// @Summary Actions the current user may take on a request
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request id"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/available-actions [get]
func (h *RequestHandler) AvailableActions(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	detail, err := h.requests.Get(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail.AvailableActions, nil)
}

// AddComment godoc
// @Summary Append a comment to request history
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request id"
// @Param payload body dto.AddCommentRequest true "Comment payload"
// @Success 201 {object} response.Envelope
// @Router /requests/{id}/comments [post]
func (h *RequestHandler) AddComment(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	entry, err := h.requests.AddComment(c.Request.Context(), c.Param("id"), req.Comment, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}
