package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nowplaying/internal/repository"
)

type EventHandler struct {
	Repo repository.Repository
}

func (h *EventHandler) Register(r *gin.Engine) {
	group := r.Group("/api/events")
	group.GET("", h.list)
	group.GET("/:id", h.get)
	group.DELETE("", h.clear)
}

// @Summary List raw now-playing events
// @Tags events
// @Param limit query int false "page size"
// @Param offset query int false "offset"
// @Param station_id query string false "filter by station"
// @Param connection_id query string false "filter by connection"
// @Param before query string false "observed before (RFC3339)"
// @Success 200 {object} envelope
// @Router /api/events [get]
func (h *EventHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListEventsParams{
		Limit:        intQuery(c, "limit", 100),
		Offset:       intQuery(c, "offset", 0),
		StationID:    uuidQueryPtr(c, "station_id"),
		ConnectionID: uuidQueryPtr(c, "connection_id"),
		Before:       timeQueryPtr(c, "before"),
	}
	items, err := h.Repo.ListEvents(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountEvents(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(params.Limit, params.Offset, total))
}

// @Summary Get one raw event
// @Tags events
// @Param id path string true "event id"
// @Success 200 {object} envelope
// @Router /api/events/{id} [get]
func (h *EventHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid event id", nil)
		return
	}
	item, err := h.Repo.GetEvent(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "event not found", nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary Bulk-delete raw events
// @Tags events
// @Param station_id query string false "restrict to station"
// @Param connection_id query string false "restrict to connection"
// @Success 200 {object} envelope
// @Router /api/events [delete]
func (h *EventHandler) clear(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	affected, err := h.Repo.ClearEvents(c.Request.Context(), repository.ClearEventsParams{
		StationID:    uuidQueryPtr(c, "station_id"),
		ConnectionID: uuidQueryPtr(c, "connection_id"),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, map[string]any{"deleted": affected}, nil)
}
