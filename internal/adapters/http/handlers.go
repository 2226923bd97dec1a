package http

import (
	"fmt"
	"net/http"

	"github.com/dkeye/Signal/internal/adapters/rtc"
	"github.com/dkeye/Signal/internal/adapters/signal"
	"github.com/dkeye/Signal/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const nickKey = "nick"

type NickRequest struct {
	Name string `json:"name"`
}

type NickResponse struct {
	Message string `json:"message"`
}

func handleSignal(srv *signal.Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		nick, _ := sessions.Default(c).Get(nickKey).(string)
		srv.ServeWS(c, nick)
	}
}

// handleNick remembers a display name in the cookie session. New signaling
// connections start with it until the client sends Connect.
func handleNick(c *gin.Context) {
	var req NickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid name"})
		return
	}
	if err := domain.ValidateUsername(req.Name); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess := sessions.Default(c)
	sess.Set(nickKey, req.Name)
	if err := sess.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("save session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session"})
		return
	}
	c.JSON(http.StatusOK, NickResponse{Message: fmt.Sprintf("Hello %s!", req.Name)})
}

func handleICE(ice *rtc.ICEConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"iceServers": ice.Configuration().ICEServers})
	}
}

func handleRooms(srv *signal.Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": srv.Orch.Rooms.List()})
	}
}

func handleHealth(srv *signal.Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": srv.Orch.Registry.Len()})
	}
}
