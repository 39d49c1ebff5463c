package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/formacore/vta-api/internal/service"
	appErrors "github.com/formacore/vta-api/pkg/errors"
	"github.com/formacore/vta-api/pkg/response"
)

// ActionHandler exposes training action endpoints.
type ActionHandler struct {
	actions *service.ActionService
}

// NewActionHandler constructs ActionHandler.
func NewActionHandler(actions *service.ActionService) *ActionHandler {
	return &ActionHandler{actions: actions}
}

// Create godoc
// @Summary Schedule a training action for a course
// @Tags Actions
// @Accept json
// @Produce json
// @Param payload body service.CreateActionRequest true "Action payload"
// @Success 201 {object} response.Envelope
// @Router /actions [post]
func (h *ActionHandler) Create(c *gin.Context) {
	var req service.CreateActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	action, err := h.actions.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, action)
}

// Get godoc
// @Summary Get action detail
// @Tags Actions
// @Produce json
// @Param id path string true "Action ID"
// @Success 200 {object} response.Envelope
// @Router /actions/{id} [get]
func (h *ActionHandler) Get(c *gin.Context) {
	action, err := h.actions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, action, nil)
}

// ListByCourse godoc
// @Summary List the actions of a course
// @Tags Actions
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/actions [get]
func (h *ActionHandler) ListByCourse(c *gin.Context) {
	actions, err := h.actions.ListByCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, actions, nil)
}

// Coverage godoc
// @Summary Report staffing coverage of an action's module set
// @Tags Actions
// @Produce json
// @Param id path string true "Action ID"
// @Success 200 {object} response.Envelope
// @Router /actions/{id}/coverage [get]
func (h *ActionHandler) Coverage(c *gin.Context) {
	report, err := h.actions.Coverage(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// AssignTeaching godoc
// @Summary Assign a teacher to a module within an action
// @Tags Actions
// @Accept json
// @Produce json
// @Param id path string true "Action ID"
// @Param payload body service.AssignTeachingRequest true "Teaching payload"
// @Success 201 {object} response.Envelope
// @Router /actions/{id}/teachings [post]
func (h *ActionHandler) AssignTeaching(c *gin.Context) {
	var req service.AssignTeachingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	teaching, err := h.actions.AssignTeaching(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, teaching)
}

// ListTeachings godoc
// @Summary List the teachings of an action
// @Tags Actions
// @Produce json
// @Param id path string true "Action ID"
// @Success 200 {object} response.Envelope
// @Router /actions/{id}/teachings [get]
func (h *ActionHandler) ListTeachings(c *gin.Context) {
	teachings, err := h.actions.ListTeachings(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teachings, nil)
}

// CreateSession godoc
// @Summary Schedule a session under a teaching
// @Tags Actions
// @Accept json
// @Produce json
// @Param id path string true "Teaching ID"
// @Param payload body service.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Router /teachings/{id}/sessions [post]
func (h *ActionHandler) CreateSession(c *gin.Context) {
	var req service.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.actions.CreateSession(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// ListSessions godoc
// @Summary List the sessions of a teaching
// @Tags Actions
// @Produce json
// @Param id path string true "Teaching ID"
// @Success 200 {object} response.Envelope
// @Router /teachings/{id}/sessions [get]
func (h *ActionHandler) ListSessions(c *gin.Context) {
	sessions, err := h.actions.ListSessions(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// Delete godoc
// @Summary Delete an action with all dependent records
// @Tags Actions
// @Param id path string true "Action ID"
// @Success 204
// @Router /actions/{id} [delete]
func (h *ActionHandler) Delete(c *gin.Context) {
	if err := h.actions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
