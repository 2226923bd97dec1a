package http

import (
	"github.com/dkeye/Signal/internal/adapters/rtc"
	"github.com/dkeye/Signal/internal/adapters/signal"
	"github.com/dkeye/Signal/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func SetupRouter(cfg *config.Config, srv *signal.Server, ice *rtc.ICEConfig) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("SignalSessions", store))

	r.GET("/healthz", handleHealth(srv))
	r.GET("/metrics", gin.WrapH(srv.Orch.Metrics.Handler()))

	api := r.Group("/api")
	api.GET("/ws/signal", handleSignal(srv))
	api.GET("/ice", handleICE(ice))
	api.PUT("/nick", handleNick)
	api.GET("/rooms", handleRooms(srv))

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
