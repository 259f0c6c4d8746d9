package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Beam/internal/adapters/notify"
	"github.com/dkeye/Beam/internal/app"
	"github.com/dkeye/Beam/internal/config"
	"github.com/dkeye/Beam/internal/domain"
)

// ClientTokenMiddleware pins a participant identity to the client via a
// cookie. Real authentication lives outside this service; the token is
// only an identity handle for routing.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = string(domain.NewParticipantID())
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, coord *app.Coordinator, hub *notify.Hub) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("BeamSessions", store))
	r.Use(ClientTokenMiddleware())

	log.Info().Str("module", "adapters.http").Msg("router setup")

	ctl := &CallController{Coord: coord}

	api := r.Group("/api")
	api.POST("/calls", ctl.Allocate)
	api.GET("/calls/:id", ctl.Get)
	api.POST("/calls/:id/join", ctl.Join)
	api.POST("/calls/:id/end", ctl.End)

	api.GET("/ws/events", func(c *gin.Context) {
		hub.HandleEvents(ctx, c)
	})

	return r
}
