package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Paashik/MyIS-sub004/internal/models"
	"github.com/Paashik/MyIS-sub004/internal/service"
	appErrors "github.com/Paashik/MyIS-sub004/pkg/errors"
	"github.com/Paashik/MyIS-sub004/pkg/response"
)

// ItemHandler exposes the master-data catalog.
type ItemHandler struct {
	items *service.ItemService
}

// NewItemHandler constructs handler.
func NewItemHandler(items *service.ItemService) *ItemHandler {
	return &ItemHandler{items: items}
}

// List godoc
// @Summary List catalog entries
// @Tags Catalog
// @Produce json
// @Security BearerAuth
// @Param kind query string false "ITEM, COMPONENT or COUNTERPARTY"
// @Param search query string false "Search in code and name"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /items [get]
func (h *ItemHandler) List(c *gin.Context) {
	filter := models.ItemFilter{
		Kind:   models.ItemKind(strings.ToUpper(c.Query("kind"))),
		Search: c.Query("search"),
	}
	filter.Page, _ = strconv.Atoi(c.Query("page"))
	filter.PageSize, _ = strconv.Atoi(c.Query("pageSize"))

	items, pagination, err := h.items.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Catalog entry detail
// @Tags Catalog
// @Produce json
// @Security BearerAuth
// @Param id path string true "Item id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /items/{id} [get]
func (h *ItemHandler) Get(c *gin.Context) {
	item, err := h.items.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Create godoc
// @Summary Add a catalog entry
// @Tags Catalog
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.Item true "Item payload"
// @Success 201 {object} response.Envelope
// @Router /items [post]
func (h *ItemHandler) Create(c *gin.Context) {
	var item models.Item
	if err := c.ShouldBindJSON(&item); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.items.Create(c.Request.Context(), &item); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Edit a catalog entry
// @Tags Catalog
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Item id"
// @Param payload body models.Item true "Item payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /items/{id} [put]
func (h *ItemHandler) Update(c *gin.Context) {
	var item models.Item
	if err := c.ShouldBindJSON(&item); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	item.ID = c.Param("id")
	if err := h.items.Update(c.Request.Context(), &item); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}
