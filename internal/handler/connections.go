package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"nowplaying/internal/models"
	"nowplaying/internal/poll"
	"nowplaying/internal/repository"
)

// SchedulerNotifier lets the API nudge the scheduler after a config change so
// new or edited connections start polling without waiting for the next
// reconcile tick.
type SchedulerNotifier interface {
	Kick()
}

type ConnectionHandler struct {
	Repo      repository.Repository
	Tester    *poll.Tester
	Scheduler SchedulerNotifier
}

func (h *ConnectionHandler) Register(r *gin.Engine) {
	group := r.Group("/api/connections")
	group.GET("", h.list)
	group.POST("", h.create)
	group.GET("/:id", h.get)
	group.PUT("/:id", h.update)
	group.DELETE("/:id", h.delete)
	group.POST("/:id/enable", h.enable)
	group.POST("/:id/disable", h.disable)
	group.POST("/:id/test", h.test)
}

type connectionRequest struct {
	StationID           string            `json:"station_id"`
	PayloadMappingID    *string           `json:"payload_mapping_id"`
	Name                string            `json:"name"`
	ConnectionType      string            `json:"connection_type"`
	URL                 string            `json:"url"`
	PollIntervalSeconds *int              `json:"poll_interval_seconds"`
	Headers             map[string]string `json:"headers"`
	Enabled             *bool             `json:"enabled"`
	UseDurationPolling  *bool             `json:"use_duration_polling"`
}

func (h *ConnectionHandler) kick() {
	if h.Scheduler != nil {
		h.Scheduler.Kick()
	}
}

// @Summary List connections
// @Tags connections
// @Success 200 {object} envelope
// @Router /api/connections [get]
func (h *ConnectionHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.ListConnections(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

// @Summary Create a connection
// @Tags connections
// @Param body body connectionRequest true "connection"
// @Success 200 {object} envelope
// @Router /api/connections [post]
func (h *ConnectionHandler) create(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	var req connectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}

	item := &models.Connection{ID: uuid.New(), PollIntervalSecs: 60}
	if err := h.applyRequest(c, &req, item); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := h.Repo.CreateConnection(c.Request.Context(), item); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	h.kick()
	Ok(c, item, nil)
}

// applyRequest validates the request and writes its fields onto item. Used by
// create and update; runtime status fields are never touched.
func (h *ConnectionHandler) applyRequest(c *gin.Context, req *connectionRequest, item *models.Connection) error {
	stationID, err := uuid.Parse(strings.TrimSpace(req.StationID))
	if err != nil {
		return errors.New("valid station_id required")
	}
	station, err := h.Repo.GetStation(c.Request.Context(), stationID)
	if err != nil {
		return err
	}
	if station == nil {
		return errors.New("station not found")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return errors.New("name required")
	}
	req.ConnectionType = strings.ToLower(strings.TrimSpace(req.ConnectionType))
	if !models.ValidType(req.ConnectionType) {
		return errors.New("unsupported connection_type")
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return errors.New("url required")
	}

	var mappingID *uuid.UUID
	if req.PayloadMappingID != nil && strings.TrimSpace(*req.PayloadMappingID) != "" {
		id, err := uuid.Parse(strings.TrimSpace(*req.PayloadMappingID))
		if err != nil {
			return errors.New("invalid payload_mapping_id")
		}
		rules, err := h.Repo.GetMapping(c.Request.Context(), id)
		if err != nil {
			return err
		}
		if rules == nil {
			return errors.New("payload mapping not found")
		}
		mappingID = &id
	}

	item.StationID = stationID
	item.PayloadMappingID = mappingID
	item.Name = req.Name
	item.ConnectionType = req.ConnectionType
	item.URL = req.URL
	if req.PollIntervalSeconds != nil {
		if *req.PollIntervalSeconds < 1 {
			return errors.New("poll_interval_seconds must be at least 1")
		}
		item.PollIntervalSecs = *req.PollIntervalSeconds
	}
	if req.Headers != nil {
		raw, err := json.Marshal(req.Headers)
		if err != nil {
			return errors.New("invalid headers")
		}
		item.Headers = datatypes.JSON(raw)
	}
	if req.Enabled != nil {
		item.Enabled = *req.Enabled
	}
	if req.UseDurationPolling != nil {
		item.UseDurationPolling = *req.UseDurationPolling
	}
	return nil
}

// @Summary Get a connection
// @Tags connections
// @Param id path string true "connection id"
// @Success 200 {object} envelope
// @Router /api/connections/{id} [get]
func (h *ConnectionHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid connection id", nil)
		return
	}
	item, err := h.Repo.GetConnection(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "connection not found", nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary Update a connection
// @Tags connections
// @Param id path string true "connection id"
// @Param body body connectionRequest true "connection"
// @Success 200 {object} envelope
// @Router /api/connections/{id} [put]
func (h *ConnectionHandler) update(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid connection id", nil)
		return
	}
	item, err := h.Repo.GetConnection(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "connection not found", nil)
		return
	}
	var req connectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if err := h.applyRequest(c, &req, item); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := h.Repo.UpdateConnection(c.Request.Context(), item); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	h.kick()
	Ok(c, item, nil)
}

// @Summary Delete a connection and its events
// @Tags connections
// @Param id path string true "connection id"
// @Success 200 {object} envelope
// @Router /api/connections/{id} [delete]
func (h *ConnectionHandler) delete(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid connection id", nil)
		return
	}
	affected, err := h.Repo.DeleteConnection(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if affected == 0 {
		Error(c, http.StatusNotFound, "connection not found", nil)
		return
	}
	h.kick()
	Ok(c, map[string]any{"deleted": affected}, nil)
}

// @Summary Enable polling for a connection
// @Tags connections
// @Param id path string true "connection id"
// @Success 200 {object} envelope
// @Router /api/connections/{id}/enable [post]
func (h *ConnectionHandler) enable(c *gin.Context) {
	h.setEnabled(c, true)
}

// @Summary Disable polling for a connection
// @Tags connections
// @Param id path string true "connection id"
// @Success 200 {object} envelope
// @Router /api/connections/{id}/disable [post]
func (h *ConnectionHandler) disable(c *gin.Context) {
	h.setEnabled(c, false)
}

func (h *ConnectionHandler) setEnabled(c *gin.Context, enabled bool) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid connection id", nil)
		return
	}
	affected, err := h.Repo.SetConnectionEnabled(c.Request.Context(), id, enabled)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if affected == 0 {
		Error(c, http.StatusNotFound, "connection not found", nil)
		return
	}
	h.kick()
	Ok(c, map[string]any{"id": id, "enabled": enabled}, nil)
}

// @Summary Run a one-shot test poll against a connection
// @Tags connections
// @Param id path string true "connection id"
// @Success 200 {object} envelope
// @Router /api/connections/{id}/test [post]
func (h *ConnectionHandler) test(c *gin.Context) {
	if h.Tester == nil {
		Error(c, http.StatusServiceUnavailable, "tester disabled", nil)
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid connection id", nil)
		return
	}
	result, err := h.Tester.Run(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, poll.ErrConnectionNotFound) {
			Error(c, http.StatusNotFound, "connection not found", nil)
			return
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, result, nil)
}
