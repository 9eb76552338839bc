// internal/app/server.go
package app

import (
	"context"
	"fmt"
	"net/http"

	"identity-service/internal/config"
	"identity-service/internal/db"
	accountHandler "identity-service/internal/handlers/account"
	authHandler "identity-service/internal/handlers/auth"
	serviceHandler "identity-service/internal/handlers/service"
	"identity-service/internal/middleware"
	"identity-service/internal/pkg/mfa"
	"identity-service/internal/pkg/token"
	"identity-service/internal/repository/postgres"
	authUsecase "identity-service/internal/service/auth"
	linkingUsecase "identity-service/internal/service/linking"

	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/avito-tech/go-transaction-manager/trm/v2/manager"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	http   *http.Server
}

func NewServer() *Server {
	cfg := config.Load()
	engine := gin.New()
	return &Server{cfg: cfg, engine: engine}
}

func (s *Server) Start() error {
	ctx := context.Background()

	// ----- Logger -----
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()
	s.logger = logger

	// ----- PostgreSQL -----
	pool, err := postgres.Connect(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pool.Close()

	// ----- Redis -----
	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
		DB:       0,
		PoolSize: 10,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	// ----- Token Manager -----
	tokenManager, err := token.NewManager(s.cfg.Token)
	if err != nil {
		return fmt.Errorf("failed to build token manager: %w", err)
	}

	// ----- Transaction Manager -----
	txManager, err := manager.New(trmpgx.NewDefaultFactory(pool))
	if err != nil {
		return fmt.Errorf("failed to create tx manager: %w", err)
	}
	ctxGetter := trmpgx.DefaultCtxGetter

	// ----- Repositories -----
	ownerRepo := postgres.NewOwnerRepository(pool, ctxGetter)
	sessionRepo := postgres.NewSessionRepository(pool, ctxGetter)
	linkRepo := postgres.NewLinkRepository(pool, ctxGetter)

	// ----- Challenge Store -----
	challengeStore := mfa.NewStore(redisClient, s.cfg.MFAChallengeTTL)

	// ----- Services (Usecases) -----
	authService := authUsecase.NewAuthService(
		ownerRepo, sessionRepo, linkRepo, challengeStore, tokenManager, txManager, logger,
	)
	linkingService := linkingUsecase.NewLinkingService(
		ownerRepo, linkRepo, authService, txManager, logger,
	)

	// ----- Middleware & Handlers -----
	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(),
	)

	handlers := &Handlers{
		AuthHandler:     authHandler.NewAuthHandler(authService, tokenManager.RefreshTTL, logger),
		LinkHandler:     accountHandler.NewLinkHandler(linkingService, logger),
		RecordsHandler:  serviceHandler.NewRecordsHandler(),
		AuthMiddleware:  middleware.NewAuthMiddleware(tokenManager),
		GuardMiddleware: middleware.NewGuardMiddleware(logger),
	}
	SetupRouter(s.engine, handlers)

	s.http = &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.engine,
	}

	logger.Info("server starting", zap.String("addr", s.cfg.HTTPAddr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
