package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Paashik/MyIS-sub004/internal/service"
	"github.com/Paashik/MyIS-sub004/pkg/response"
)

// ExportHandler streams rendered reports.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs handler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// SyncRunErrors godoc
// @Summary Download run errors as CSV
// @Tags Exports
// @Produce text/csv
// @Security BearerAuth
// @Param id path string true "Run id"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /exports/sync-runs/{id}/errors [get]
func (h *ExportHandler) SyncRunErrors(c *gin.Context) {
	result, err := h.exports.SyncRunErrorsCSV(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Data)
}

// RequestHistory godoc
// @Summary Download request history as PDF
// @Tags Exports
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Request id"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /exports/requests/{id}/history [get]
func (h *ExportHandler) RequestHistory(c *gin.Context) {
	result, err := h.exports.RequestHistoryPDF(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Data)
}
