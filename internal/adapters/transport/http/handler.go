package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Miraines/MoonyAndStarry/identity-service/internal/adapters/transport/http/dto"
	httpmw "github.com/Miraines/MoonyAndStarry/identity-service/internal/adapters/transport/http/middleware"
	appsvc "github.com/Miraines/MoonyAndStarry/identity-service/internal/app/identity/service"
	authErrors "github.com/Miraines/MoonyAndStarry/identity-service/internal/domain/identity/errors"
	"github.com/Miraines/MoonyAndStarry/identity-service/internal/infra/config"
	lg "github.com/Miraines/MoonyAndStarry/identity-service/internal/infra/log"
	"github.com/Miraines/MoonyAndStarry/identity-service/internal/infra/metrics"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const healthTimeout = 2 * time.Second

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	svc     appsvc.Service
	store   Pinger
	log     *zap.Logger
	metrics *metrics.Identity
}

func NewHandler(svc appsvc.Service, store Pinger, log *zap.Logger, m *metrics.Identity) *Handler {
	return &Handler{svc: svc, store: store, log: log, metrics: m}
}

// NewRouter wires middleware and routes. gatherer backs /metrics; nil means
// the default prometheus registry.
func NewRouter(h *Handler, cfg *config.Config, gatherer prometheus.Gatherer) *gin.Engine {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpmw.RequestLogger(h.log))

	corsConfig := cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept",
			"Authorization",
			"X-Requested-With",
		},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	router.Use(cors.New(corsConfig))

	router.POST("/register", h.Register)
	router.POST("/login", h.Login)
	router.GET("/me", h.Me)
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return router
}

func (h *Handler) Register(c *gin.Context) {
	var body dto.RegisterDTO
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "malformed request body"})
		return
	}
	h.log.Info("/register",
		lg.Identity("user", body.Email),
	)

	user, err := h.svc.Register(c.Request.Context(), body)
	if err != nil {
		h.metrics.Registration(registrationResult(err))
		h.handleError(c, err)
		return
	}
	h.metrics.Registration(metrics.ResultOK)
	c.JSON(http.StatusCreated, dto.UserResponse(user.Public()))
}

func (h *Handler) Login(c *gin.Context) {
	var body dto.LoginDTO
	if err := c.ShouldBind(&body); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "malformed request body"})
		return
	}
	h.log.Info("/login",
		lg.Identity("user", body.Username),
	)

	tok, ok, err := h.svc.Authenticate(c.Request.Context(), body.Username, body.Password)
	if err != nil {
		h.metrics.Login(metrics.ResultError)
		h.handleError(c, err)
		return
	}
	if !ok {
		h.metrics.Login(metrics.ResultRejected)
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: authErrors.ErrInvalidCredentials.Error()})
		return
	}
	h.metrics.Login(metrics.ResultOK)
	c.JSON(http.StatusOK, dto.TokenResponse(tok))
}

func (h *Handler) Me(c *gin.Context) {
	raw, ok := bearerToken(c.GetHeader("Authorization"))
	if !ok {
		h.handleError(c, authErrors.ErrInvalidToken)
		return
	}

	user, err := h.svc.Profile(c.Request.Context(), raw)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.UserResponse(user))
}

func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().Unix()})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case authErrors.IsInvalidArgument(err):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:      err.Error(),
			Violations: authErrors.Violations(err),
		})
	case authErrors.IsInvalidToken(err):
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "invalid token"})
	case authErrors.IsAlreadyExists(err):
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: err.Error()})
	case authErrors.IsNotFound(err):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
	case authErrors.IsPersistence(err):
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "service unavailable"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}
}

func registrationResult(err error) string {
	switch {
	case authErrors.IsAlreadyExists(err):
		return metrics.ResultDuplicate
	case authErrors.IsInvalidArgument(err):
		return metrics.ResultRejected
	default:
		return metrics.ResultError
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
