package http

import (
	"context"
	"net/http"

	"github.com/dkeye/VoiceBridge/internal/adapters/signaling"
	"github.com/dkeye/VoiceBridge/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// SDPExchanger trades an offer SDP for the realtime peer's answer SDP.
type SDPExchanger interface {
	Exchange(ctx context.Context, offerSDP string) (string, error)
}

// WSHandler serves websocket upgrades.
type WSHandler interface {
	Handle(ctx context.Context, c *gin.Context)
}

type sdpRequest struct {
	OfferSDP string `json:"offer_sdp" binding:"required"`
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		origin := c.GetHeader("Origin")
		if origin == "" {
			origin = "*"
		}
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

const clientTokenKey = "client_token"

// ClientTokenMiddleware keeps a stable per-client token in the cookie session
// so log lines of one client can be correlated across requests.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		token, _ := sess.Get(clientTokenKey).(string)
		if token == "" {
			token = uuid.NewString()
			sess.Set(clientTokenKey, token)
			if err := sess.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save client session")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func newEngine(cfg *config.Config) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Server.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("VoiceBridgeSessions", store))
	r.Use(ClientTokenMiddleware())
	return r
}

// SetupRouter builds the API engine serving the create-session endpoint.
func SetupRouter(cfg *config.Config, sdp SDPExchanger, limiter *RateLimiter) *gin.Engine {
	r := newEngine(cfg)
	r.Use(CORSMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	log.Info().Str("module", "adapters.http").Str("path", signaling.SDPPath).Msg("router setup")

	r.POST(signaling.SDPPath, func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			log.Warn().Str("module", "adapters.http").Str("ip", c.ClientIP()).Str("client", c.GetString(clientTokenKey)).Msg("sdp rate limited")
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		var req sdpRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		answer, err := sdp.Exchange(c.Request.Context(), req.OfferSDP)
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Str("client", c.GetString(clientTokenKey)).Msg("sdp exchange failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, signaling.OfferResponse{
			Message: "SDP get successfully.",
			Content: webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer},
		})
	})

	return r
}

// SetupRelayRouter builds the relay engine; the websocket lives at "/".
func SetupRelayRouter(ctx context.Context, cfg *config.Config, ws WSHandler) *gin.Engine {
	r := newEngine(cfg)
	r.GET("/", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("ip", c.ClientIP()).Str("client", c.GetString(clientTokenKey)).Msg("relay endpoint hit")
		ws.Handle(ctx, c)
	})
	return r
}
