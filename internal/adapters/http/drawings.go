package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/Inkroom/internal/entitlement"
	"github.com/dkeye/Inkroom/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type drawingHandlers struct {
	store store.DrawingStore
	guard *entitlement.Guard
}

type saveRequest struct {
	ID       string   `json:"id"`
	UserID   string   `json:"userId"`
	Title    string   `json:"title"`
	Tags     []string `json:"tags"`
	IsPublic bool     `json:"isPublic"`
	Tier     string   `json:"tier"`
	// Image is the base64 PNG, as encoding/json encodes []byte.
	Image []byte `json:"image"`
}

func userOf(c *gin.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return c.GetString("client_token")
}

// POST /api/drawings
func (h *drawingHandlers) save(c *gin.Context) {
	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Image) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid drawing"})
		return
	}
	userID := userOf(c, req.UserID)
	tier := entitlement.Tier(req.Tier)
	if tier == "" {
		tier = entitlement.TierFree
	}

	if h.guard != nil {
		if err := h.guard.CheckSave(c.Request.Context(), userID, tier, req.ID != ""); err != nil {
			if errors.Is(err, entitlement.ErrLimitReached) {
				c.JSON(http.StatusForbidden, gin.H{"error": "limit_reached"})
				return
			}
			log.Error().Err(err).Str("module", "adapters.http").Msg("entitlement check")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
			return
		}
	}

	id, err := h.store.Save(c.Request.Context(), store.Drawing{
		ID:       req.ID,
		UserID:   userID,
		Title:    req.Title,
		Tags:     req.Tags,
		IsPublic: req.IsPublic,
		Image:    req.Image,
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "drawing not found"})
		return
	case err != nil:
		log.Warn().Err(err).Str("module", "adapters.http").Str("user", userID).Msg("save drawing")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log.Info().Str("module", "adapters.http").Str("user", userID).Str("id", id).Msg("drawing saved")
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// GET /api/drawings?user=
func (h *drawingHandlers) list(c *gin.Context) {
	infos, err := h.store.List(c.Request.Context(), userOf(c, c.Query("user")))
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("list drawings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"drawings": infos})
}

// GET /api/drawings/:id
func (h *drawingHandlers) load(c *gin.Context) {
	img, err := h.store.Load(c.Request.Context(), c.Param("id"))
	if !h.found(c, err) {
		return
	}
	c.Data(http.StatusOK, "image/png", img)
}

// GET /api/drawings/:id/thumbnail
func (h *drawingHandlers) thumbnail(c *gin.Context) {
	d, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if !h.found(c, err) {
		return
	}
	c.Data(http.StatusOK, "image/png", d.Thumbnail)
}

// DELETE /api/drawings/:id
func (h *drawingHandlers) delete(c *gin.Context) {
	if !h.found(c, h.store.Delete(c.Request.Context(), c.Param("id"))) {
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *drawingHandlers) found(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "drawing not found"})
	default:
		log.Error().Err(err).Str("module", "adapters.http").Msg("drawing store")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
	}
	return false
}
