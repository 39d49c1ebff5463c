package handler

import (
	"io"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/formacore/vta-api/internal/service"
	appErrors "github.com/formacore/vta-api/pkg/errors"
	"github.com/formacore/vta-api/pkg/response"
)

// SettlementHandler exposes settlement computation, settling, rates and
// export endpoints.
type SettlementHandler struct {
	settlements *service.SettlementService
	exports     *service.ExportService
}

// NewSettlementHandler constructs SettlementHandler. exports may be nil when
// file exports are disabled.
func NewSettlementHandler(settlements *service.SettlementService, exports *service.ExportService) *SettlementHandler {
	return &SettlementHandler{settlements: settlements, exports: exports}
}

// ComputeEnrollment godoc
// @Summary Compute the settlement of an enrollment at the current meal rate
// @Tags Settlement
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/settlement [get]
func (h *SettlementHandler) ComputeEnrollment(c *gin.Context) {
	settlement, err := h.settlements.ComputeEnrollmentAtCurrentRate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settlement, nil)
}

// ComputeTeaching godoc
// @Summary Compute the settlement of a teaching at the current hourly rate
// @Tags Settlement
// @Produce json
// @Param id path string true "Teaching ID"
// @Success 200 {object} response.Envelope
// @Router /teachings/{id}/settlement [get]
func (h *SettlementHandler) ComputeTeaching(c *gin.Context) {
	settlement, err := h.settlements.ComputeTeachingAtCurrentRate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settlement, nil)
}

// ActionReport godoc
// @Summary Get the settlement report of an action
// @Tags Settlement
// @Produce json
// @Param id path string true "Action ID"
// @Success 200 {object} response.Envelope
// @Router /actions/{id}/settlement [get]
func (h *SettlementHandler) ActionReport(c *gin.Context) {
	report, err := h.settlements.ActionReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// SettleEnrollment godoc
// @Summary Persist a payment total onto an enrollment
// @Tags Settlement
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.SettleRequest true "Settlement payload"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/settle [post]
func (h *SettlementHandler) SettleEnrollment(c *gin.Context) {
	var req service.SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.settlements.SettleEnrollment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// SettleTeaching godoc
// @Summary Persist a payment total onto a teaching
// @Tags Settlement
// @Accept json
// @Produce json
// @Param id path string true "Teaching ID"
// @Param payload body service.SettleRequest true "Settlement payload"
// @Success 200 {object} response.Envelope
// @Router /teachings/{id}/settle [post]
func (h *SettlementHandler) SettleTeaching(c *gin.Context) {
	var req service.SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	teaching, err := h.settlements.SettleTeaching(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teaching, nil)
}

// Rates godoc
// @Summary Get the settlement rates
// @Tags Settlement
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /settings/rates [get]
func (h *SettlementHandler) Rates(c *gin.Context) {
	rates, err := h.settlements.Rates(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rates, nil)
}

// UpdateRates godoc
// @Summary Update the settlement rates
// @Tags Settlement
// @Accept json
// @Produce json
// @Param payload body service.UpdateRatesRequest true "Rates payload"
// @Success 200 {object} response.Envelope
// @Router /settings/rates [put]
func (h *SettlementHandler) UpdateRates(c *gin.Context) {
	var req service.UpdateRatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	rates, err := h.settlements.UpdateRates(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rates, nil)
}

// Export godoc
// @Summary Queue a settlement report export for an action
// @Tags Settlement
// @Produce json
// @Param id path string true "Action ID"
// @Param format query string true "csv or pdf"
// @Success 202 {object} response.Envelope
// @Router /actions/{id}/settlement/export [post]
func (h *SettlementHandler) Export(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "exports are disabled"))
		return
	}
	job, err := h.exports.QueueActionReport(c.Request.Context(), c.Param("id"), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// ExportStatus godoc
// @Summary Get an export job's status
// @Tags Settlement
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /exports/{id} [get]
func (h *SettlementHandler) ExportStatus(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "exports are disabled"))
		return
	}
	job, err := h.exports.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Download godoc
// @Summary Download a finished export through a signed token
// @Tags Settlement
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Router /exports/download [get]
func (h *SettlementHandler) Download(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "exports are disabled"))
		return
	}
	file, relPath, err := h.exports.Download(c.Request.Context(), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Disposition", "attachment; filename="+filepath.Base(relPath))
	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, file); err != nil {
		_ = c.Error(err)
	}
}
