package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"nowplaying/internal/models"
	"nowplaying/internal/repository"
)

type MappingHandler struct {
	Repo repository.Repository
}

func (h *MappingHandler) Register(r *gin.Engine) {
	group := r.Group("/api/mappings")
	group.GET("", h.list)
	group.POST("", h.create)
	group.GET("/:id", h.get)
	group.PUT("/:id", h.update)
	group.DELETE("/:id", h.delete)
}

type mappingRequest struct {
	Name           string  `json:"name"`
	Description    *string `json:"description"`
	ListPath       string  `json:"list_path"`
	ArtistPath     string  `json:"artist_path"`
	TitlePath      string  `json:"title_path"`
	AlbumPath      string  `json:"album_path"`
	ReportedAtPath string  `json:"reported_at_path"`
	DurationPath   string  `json:"duration_path"`
}

func (req *mappingRequest) apply(item *models.PayloadMapping) {
	item.Name = strings.TrimSpace(req.Name)
	item.Description = strPtrOrNil(req.Description)
	item.ListPath = strings.TrimSpace(req.ListPath)
	item.ArtistPath = strings.TrimSpace(req.ArtistPath)
	item.TitlePath = strings.TrimSpace(req.TitlePath)
	item.AlbumPath = strings.TrimSpace(req.AlbumPath)
	item.ReportedAtPath = strings.TrimSpace(req.ReportedAtPath)
	item.DurationPath = strings.TrimSpace(req.DurationPath)
}

// @Summary List payload mappings
// @Tags mappings
// @Success 200 {object} envelope
// @Router /api/mappings [get]
func (h *MappingHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.ListMappings(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

// @Summary Create a payload mapping
// @Tags mappings
// @Param body body mappingRequest true "mapping"
// @Success 200 {object} envelope
// @Router /api/mappings [post]
func (h *MappingHandler) create(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	var req mappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		Error(c, http.StatusBadRequest, "name required", nil)
		return
	}
	item := &models.PayloadMapping{ID: uuid.New()}
	req.apply(item)
	if err := h.Repo.CreateMapping(c.Request.Context(), item); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary Get a payload mapping
// @Tags mappings
// @Param id path string true "mapping id"
// @Success 200 {object} envelope
// @Router /api/mappings/{id} [get]
func (h *MappingHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid mapping id", nil)
		return
	}
	item, err := h.Repo.GetMapping(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "mapping not found", nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary Update a payload mapping
// @Tags mappings
// @Param id path string true "mapping id"
// @Param body body mappingRequest true "mapping"
// @Success 200 {object} envelope
// @Router /api/mappings/{id} [put]
func (h *MappingHandler) update(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid mapping id", nil)
		return
	}
	item, err := h.Repo.GetMapping(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "mapping not found", nil)
		return
	}
	var req mappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		Error(c, http.StatusBadRequest, "name required", nil)
		return
	}
	req.apply(item)
	if err := h.Repo.UpdateMapping(c.Request.Context(), item); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary Delete a payload mapping
// @Tags mappings
// @Param id path string true "mapping id"
// @Success 200 {object} envelope
// @Router /api/mappings/{id} [delete]
func (h *MappingHandler) delete(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid mapping id", nil)
		return
	}
	affected, err := h.Repo.DeleteMapping(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if affected == 0 {
		Error(c, http.StatusNotFound, "mapping not found", nil)
		return
	}
	Ok(c, map[string]any{"deleted": affected}, nil)
}
