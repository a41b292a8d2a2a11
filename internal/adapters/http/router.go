package http

import (
	"context"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/tablekeeper/internal/adapters/ws"
	"github.com/dkeye/tablekeeper/internal/app"
	"github.com/dkeye/tablekeeper/internal/config"
	"github.com/dkeye/tablekeeper/internal/core"
	"github.com/dkeye/tablekeeper/internal/domain"
)

type roomView struct {
	core.RoomSnapshot
	Labels []string `json:"labels"`
}

func viewOf(snap core.RoomSnapshot) roomView {
	labels := make([]string, 0, len(snap.Members))
	for _, m := range snap.Members {
		labels = append(labels, m.Hostname)
	}
	return roomView{RoomSnapshot: snap, Labels: labels}
}

// SetupRouter exposes read-only inspection endpoints and the WebSocket entry point.
// Room mutation only happens through the request protocol.
func SetupRouter(ctx context.Context, cfg *config.Config, rooms *core.RoomStore, reg *app.Registry, wsh *ws.Handler) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	api.GET("/rooms", func(c *gin.Context) {
		snaps := rooms.Rooms()
		sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID < snaps[j].ID })
		out := make([]roomView, 0, len(snaps))
		for _, s := range snaps {
			out = append(out, viewOf(s))
		}
		c.JSON(http.StatusOK, gin.H{"rooms": out})
	})

	api.GET("/rooms/:id", func(c *gin.Context) {
		snap, ok := rooms.Room(domain.RoomID(c.Param("id")))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": domain.Code(domain.ErrUnknownRoom), "message": domain.ErrUnknownRoom.Error()})
			return
		}
		c.JSON(http.StatusOK, viewOf(snap))
	})

	api.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": reg.Sessions()})
	})

	api.GET("/ws", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("remote", c.Request.RemoteAddr).Msg("ws endpoint hit")
		wsh.Serve(ctx, c.Writer, c.Request)
	})

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
