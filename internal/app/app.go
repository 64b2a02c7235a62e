package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/blog-auth-service/internal/config"
	"github.com/prperemyshlev/blog-auth-service/internal/domain"
	"github.com/prperemyshlev/blog-auth-service/internal/handler"
	"github.com/prperemyshlev/blog-auth-service/internal/repository"
	"github.com/prperemyshlev/blog-auth-service/internal/service"
	"github.com/prperemyshlev/blog-auth-service/internal/token"
	"github.com/prperemyshlev/blog-auth-service/pkg/observability"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	infra       Infrastructure
	config      *config.Config
	router      *gin.Engine
	server      *http.Server
	authService service.AuthService
}

func NewApp(infra Infrastructure, cfg *config.Config) *App {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	repos := repository.NewRepositories(infra.Postgres())

	tokens := token.NewManager(
		cfg.JWT.Secret,
		cfg.JWT.Issuer,
		cfg.JWT.AccessTokenExpiry.Duration,
		cfg.JWT.RefreshTokenExpiry.Duration,
	)

	blacklist := service.NewRedisBlacklist(infra.Redis())
	rateLimiter := service.NewRateLimiter(infra.Redis())
	healthChecker := NewHealthChecker(infra)

	authService := service.NewAuthService(
		repos.User,
		repos.Token,
		tokens,
		blacklist,
		service.Options{
			BCryptCost:          cfg.Security.BCryptCost,
			RegisterAutoLogin:   cfg.Auth.RegisterAutoLogin,
			RotateRefreshTokens: cfg.Auth.RotateRefreshTokens,
		},
		infra.Logger(),
	)

	secureCookie := cfg.Env == "production"
	authHandler := handler.NewAuthHandler(authService, infra.Logger(), secureCookie)
	userHandler := handler.NewUserHandler(authService, infra.Logger())

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(observability.ServiceName))
	router.Use(handler.LoggerMiddleware(infra.Logger()))
	router.Use(handler.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders))

	limit := handler.RateLimitMiddleware(
		rateLimiter,
		cfg.Security.RateLimitRequests,
		cfg.Security.RateLimitWindow.Duration,
		handler.IPBasedKey,
		infra.Logger(),
	)

	setupRoutes(router, authHandler, userHandler, authService, limit, healthChecker, infra.MetricsHandler())

	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	return &App{
		infra:       infra,
		config:      cfg,
		router:      router,
		server:      srv,
		authService: authService,
	}
}

func (a *App) Router() *gin.Engine {
	return a.router
}

// AuthService exposes the wired service for bootstrap tasks and acceptance tests
func (a *App) AuthService() service.AuthService {
	return a.authService
}

func setupRoutes(
	router *gin.Engine,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	authService service.AuthService,
	rateLimit gin.HandlerFunc,
	healthChecker *HealthChecker,
	metricsHandler http.Handler,
) {
	router.GET("/metrics", observability.PrometheusHandler(metricsHandler))
	router.GET("/health", healthChecker.Handler)

	requireAuth := handler.AuthMiddleware(authService)

	api := router.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", rateLimit, authHandler.Register)
			auth.POST("/login", rateLimit, authHandler.Login)
			auth.POST("/refresh-token", authHandler.RefreshToken)
			auth.POST("/logout", requireAuth, authHandler.Logout)
			auth.GET("/me", requireAuth, authHandler.GetMe)
		}

		users := api.Group("/users", requireAuth, handler.RequireRole(domain.RoleAdmin))
		{
			users.PATCH("/:id/role", userHandler.ChangeRole)
		}
	}
}

func (a *App) Run(ctx context.Context) error {
	logger := a.infra.Logger()

	if err := a.authService.SeedAdmin(ctx, a.config.Seed); err != nil {
		return errors.Join(err, a.Shutdown())
	}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go runJanitor(janitorCtx, a.authService, a.config.Auth.CleanupInterval.Duration, logger)

	errChan := make(chan error, 1)

	go func() {
		logger.Info("Application starting",
			zap.String("host", a.config.Server.Host),
			zap.String("port", a.config.Server.Port),
		)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", zap.Error(err))
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case err := <-errChan:
		logger.Error("Application failed to start", zap.Error(err))
		serverErr = err
	case <-ctx.Done():
		logger.Info("Application stopped by context")
	}

	stopJanitor()

	if err := a.Shutdown(); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
		if serverErr != nil {
			return errors.Join(serverErr, err)
		}
		return err
	}

	return serverErr
}

func (a *App) Shutdown() error {
	a.infra.Logger().Info("Application shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	errs := make(chan error, 2)

	go func() {
		errs <- a.server.Shutdown(ctx)
	}()

	go func() {
		errs <- a.infra.Shutdown(ctx)
	}()

	err := errors.Join(<-errs, <-errs)
	if err != nil {
		a.infra.Logger().Error("Shutdown failed", zap.Error(err))
		return err
	}

	a.infra.Logger().Info("Application exited successfully")
	return nil
}
