package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Playroom/internal/adapters/rtc"
	"github.com/dkeye/Playroom/internal/adapters/signal"
	"github.com/dkeye/Playroom/internal/app/orch"
	"github.com/dkeye/Playroom/internal/auth"
	"github.com/dkeye/Playroom/internal/config"
	"github.com/dkeye/Playroom/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const sessionIdentity = "identity"

// IdentityMiddleware resolves the caller from credentials on the request.
// In development mode the identity is also remembered in the cookie session;
// with JWT auth only the token counts.
func IdentityMiddleware(authn *auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok, err := authn.FromRequest(c.Request)
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		if authn.DevMode() {
			id = rememberIdentity(sessions.Default(c), id, ok)
		}
		if id != "" {
			c.Set(auth.ContextKey, id)
		}
		c.Next()
	}
}

func rememberIdentity(sess sessions.Session, id domain.Identity, ok bool) domain.Identity {
	if !ok {
		v, _ := sess.Get(sessionIdentity).(string)
		return domain.Identity(v)
	}
	if sess.Get(sessionIdentity) != string(id) {
		sess.Set(sessionIdentity, string(id))
		if err := sess.Save(); err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
		}
	}
	return id
}

func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if identityOf(c) == "" {
			writeError(c, domain.Errorf(domain.CodeUnauthenticated, "credentials required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func identityOf(c *gin.Context) domain.Identity {
	v, ok := c.Get(auth.ContextKey)
	if !ok {
		return ""
	}
	id, _ := v.(domain.Identity)
	return id
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, authn *auth.Authenticator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions("PlayroomSessions", store))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Bool("dev_auth", authn.DevMode()).Msg("router setup")

	h := &handlers{orch: o, ice: rtc.Configuration(cfg.WebRTC.ICEServers)}
	ctrl := signal.NewSignalWSController(o, signal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendBuffer: cfg.Room.SendBuffer,
	})

	api := r.Group("/api")
	api.Use(IdentityMiddleware(authn))

	api.GET("/ws", func(c *gin.Context) {
		id := identityOf(c)
		if id == "" && !authn.DevMode() {
			writeError(c, domain.Errorf(domain.CodeUnauthenticated, "credentials required"))
			return
		}
		ctrl.HandleSignal(ctx, c, id)
	})
	api.GET("/presence", h.presence)
	api.GET("/rooms", h.rooms)
	api.GET("/webrtc/config", h.webrtcConfig)

	invites := api.Group("/invite", RequireIdentity())
	invites.POST("", h.createInvite)
	invites.GET("", h.listInvites)
	invites.POST("/accept", h.acceptInvite)
	invites.POST("/decline", h.declineInvite)

	return r
}
