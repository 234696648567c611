package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Inkroom/internal/adapters/signal"
	"github.com/dkeye/Inkroom/internal/app/orch"
	"github.com/dkeye/Inkroom/internal/config"
	"github.com/dkeye/Inkroom/internal/entitlement"
	"github.com/dkeye/Inkroom/internal/store"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const sessionName = "InkroomSessions"

// Deps is everything the HTTP surface talks to.
type Deps struct {
	Orch     *orch.Orchestrator
	Signal   *signal.SignalWSController
	Store    store.DrawingStore
	Guard    *entitlement.Guard
	Gatherer prometheus.Gatherer
}

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every browser a stable token kept in the
// cookie session.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		token, _ := sess.Get("ct").(string)
		if token == "" {
			token = genClientToken()
			sess.Set("ct", token)
			if err := sess.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	cookieStore := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions(sessionName, cookieStore))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("client_token", c.GetString("client_token")).Msg("ws signal endpoint hit")
		deps.Signal.HandleSignal(ctx, c)
	})

	rooms := &roomHandlers{orch: deps.Orch}
	api.GET("/rooms", rooms.list)
	api.GET("/rooms/:id", rooms.get)
	api.GET("/rooms/:id/members", rooms.members)
	api.DELETE("/rooms/:id", rooms.evict)

	if deps.Store != nil {
		drawings := &drawingHandlers{store: deps.Store, guard: deps.Guard}
		api.POST("/drawings", drawings.save)
		api.GET("/drawings", drawings.list)
		api.GET("/drawings/:id", drawings.load)
		api.GET("/drawings/:id/thumbnail", drawings.thumbnail)
		api.DELETE("/drawings/:id", drawings.delete)
	}

	return r
}
