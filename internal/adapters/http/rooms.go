package http

import (
	"context"
	"errors"
	stdhttp "net/http"

	"github.com/dkeye/voicegate/internal/adapters/signal"
	"github.com/dkeye/voicegate/internal/app/orch"
	"github.com/dkeye/voicegate/internal/core"
	"github.com/dkeye/voicegate/internal/domain"
	"github.com/dkeye/voicegate/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type roomHandlers struct {
	orch   *orch.Orchestrator
	signal *signal.SignalWSController
	guilds core.MembershipFinder
}

func (h *roomHandlers) list(c *gin.Context) {
	c.JSON(stdhttp.StatusOK, gin.H{"rooms": h.orch.Rooms()})
}

func (h *roomHandlers) users(c *gin.Context) {
	room := domain.RoomID(c.Param("roomId"))
	c.JSON(stdhttp.StatusOK, protocol.NewRoster(room, h.orch.Roster(room)))
}

// teardown releases every resource of a room and tells its members.
// With a guild service configured the caller must name a guild it belongs to.
func (h *roomHandlers) teardown(c *gin.Context) {
	room := domain.RoomID(c.Param("roomId"))
	ident := c.MustGet(identityKey).(domain.Identity)

	if h.guilds != nil {
		guild := c.Query("guildId")
		if guild == "" {
			c.AbortWithStatusJSON(stdhttp.StatusBadRequest, gin.H{"error": "guildId required"})
			return
		}
		_, err := h.guilds.FindMembership(c.Request.Context(), ident.ID, domain.GuildID(guild))
		switch {
		case errors.Is(err, core.ErrMembershipNotFound):
			c.AbortWithStatusJSON(stdhttp.StatusForbidden, gin.H{"error": "not a guild member"})
			return
		case err != nil:
			log.Error().Err(err).Str("module", "adapters.http").Str("guild", guild).Msg("membership lookup")
			c.AbortWithStatusJSON(stdhttp.StatusBadGateway, gin.H{"error": "membership lookup failed"})
			return
		}
	}

	evicted := h.orch.EvictRoom(context.WithoutCancel(c.Request.Context()), room)
	if h.signal != nil {
		h.signal.RoomEvicted(room, evicted)
	}
	log.Info().
		Str("module", "adapters.http").
		Str("room", string(room)).
		Str("by", string(ident.ID)).
		Int("evicted", len(evicted)).
		Msg("room torn down")
	c.JSON(stdhttp.StatusOK, gin.H{"roomId": room, "evicted": len(evicted)})
}
