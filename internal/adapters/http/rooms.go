package http

import (
	"net/http"

	"github.com/dkeye/Inkroom/internal/app/orch"
	"github.com/dkeye/Inkroom/internal/domain"
	"github.com/gin-gonic/gin"
)

type roomHandlers struct {
	orch *orch.Orchestrator
}

// GET /api/rooms
func (h *roomHandlers) list(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.orch.Rooms.List()})
}

// GET /api/rooms/:id
func (h *roomHandlers) get(c *gin.Context) {
	id, err := domain.ParseRoomID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	room, ok := h.orch.Rooms.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":       room.Room().ID,
		"count":    room.MemberCount(),
		"sequence": room.Sequence(),
		"created":  room.Room().CreatedAt,
	})
}

// GET /api/rooms/:id/members
func (h *roomHandlers) members(c *gin.Context) {
	id, err := domain.ParseRoomID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	room, ok := h.orch.Rooms.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, room.MembersSnapshot())
}

// DELETE /api/rooms/:id evicts every member, which destroys the room.
func (h *roomHandlers) evict(c *gin.Context) {
	id, err := domain.ParseRoomID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := h.orch.Rooms.Get(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	h.orch.EvictRoom(id)
	c.Status(http.StatusNoContent)
}
