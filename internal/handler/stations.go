package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"nowplaying/internal/models"
	"nowplaying/internal/repository"
)

type StationHandler struct {
	Repo repository.Repository
}

func (h *StationHandler) Register(r *gin.Engine) {
	group := r.Group("/api/stations")
	group.GET("", h.list)
	group.POST("", h.create)
	group.GET("/:id", h.get)
	group.PUT("/:id", h.update)
	group.DELETE("/:id", h.delete)
}

type stationRequest struct {
	Name       string  `json:"name"`
	Callsign   *string `json:"callsign"`
	WebsiteURL *string `json:"website_url"`
}

// @Summary List stations
// @Tags stations
// @Success 200 {object} envelope
// @Router /api/stations [get]
func (h *StationHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.ListStations(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

// @Summary Create a station
// @Tags stations
// @Param body body stationRequest true "station"
// @Success 200 {object} envelope
// @Router /api/stations [post]
func (h *StationHandler) create(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	var req stationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		Error(c, http.StatusBadRequest, "name required", nil)
		return
	}
	item := &models.Station{
		ID:         uuid.New(),
		Name:       req.Name,
		Callsign:   strPtrOrNil(req.Callsign),
		WebsiteURL: strPtrOrNil(req.WebsiteURL),
	}
	if err := h.Repo.CreateStation(c.Request.Context(), item); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary Get a station
// @Tags stations
// @Param id path string true "station id"
// @Success 200 {object} envelope
// @Router /api/stations/{id} [get]
func (h *StationHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid station id", nil)
		return
	}
	item, err := h.Repo.GetStation(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "station not found", nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary Update a station
// @Tags stations
// @Param id path string true "station id"
// @Param body body stationRequest true "station"
// @Success 200 {object} envelope
// @Router /api/stations/{id} [put]
func (h *StationHandler) update(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid station id", nil)
		return
	}
	item, err := h.Repo.GetStation(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "station not found", nil)
		return
	}
	var req stationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		Error(c, http.StatusBadRequest, "name required", nil)
		return
	}
	item.Name = req.Name
	item.Callsign = strPtrOrNil(req.Callsign)
	item.WebsiteURL = strPtrOrNil(req.WebsiteURL)
	if err := h.Repo.UpdateStation(c.Request.Context(), item); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary Delete a station and its connections and events
// @Tags stations
// @Param id path string true "station id"
// @Success 200 {object} envelope
// @Router /api/stations/{id} [delete]
func (h *StationHandler) delete(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid station id", nil)
		return
	}
	affected, err := h.Repo.DeleteStation(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if affected == 0 {
		Error(c, http.StatusNotFound, "station not found", nil)
		return
	}
	Ok(c, map[string]any{"deleted": affected}, nil)
}
