package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"misha-catalog/internal/blobstore"
	"misha-catalog/internal/config"
	"misha-catalog/internal/database"
	custommiddleware "misha-catalog/internal/middleware"
	"misha-catalog/internal/repository"
	"misha-catalog/internal/service"
	"misha-catalog/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client
	authService service.AuthService
}

func NewServer(cfg *config.Config, logger *zap.Logger, dbService *database.Service, store blobstore.BlobStore) *Server {
	db := dbService.DB()

	// Create router
	router := chi.NewRouter()

	// Add basic middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.Server.Env == "development"))

	// Redis-backed rate limiting on the whole API surface
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	router.Use(custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimit.RequestsPerMinute,
		Window:            time.Minute,
		KeyPrefix:         "ratelimit",
	}, logger))

	// Health check endpoint
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := dbService.Health(r.Context())
		status := http.StatusOK
		if health["status"] != "up" {
			status = http.StatusServiceUnavailable
		}
		custommiddleware.RespondWithJSON(w, status, map[string]any{
			"status":   health["status"],
			"database": health,
		})
	})

	// Initialize repositories
	productRepo := repository.NewProductRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	colorRepo := repository.NewColorRepository(db)
	adminRepo := repository.NewAdminRepository(db)
	refreshTokenRepo := repository.NewRefreshTokenRepository(db)
	txManager := repository.NewTxManager(db)

	// Initialize services
	reconciler := service.NewImageReconciler(store, cfg.Cloudinary.UploadFolder, logger)
	productService := service.NewProductService(productRepo, categoryRepo, colorRepo, txManager, reconciler, store, logger)
	categoryService := service.NewCategoryService(categoryRepo, productRepo, store, cfg.Cloudinary.UploadFolder, logger)
	colorService := service.NewColorService(colorRepo, productRepo, logger)
	authService := service.NewAuthService(adminRepo, refreshTokenRepo, cfg.JWT.Secret, logger)

	// Initialize handlers
	productHandler := transport.NewProductHandler(productService, logger)
	categoryHandler := transport.NewCategoryHandler(categoryService, logger)
	colorHandler := transport.NewColorHandler(colorService, logger)
	authHandler := transport.NewAuthHandler(authService, logger)

	// Create auth middleware
	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)
	adminOnly := custommiddleware.RequireAdmin(logger)

	// Register routes
	authHandler.RegisterRoutes(router, authMiddleware)
	productHandler.RegisterRoutes(router, authMiddleware, adminOnly)
	categoryHandler.RegisterRoutes(router, authMiddleware, adminOnly)
	colorHandler.RegisterRoutes(router, authMiddleware, adminOnly)

	server := &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config:      cfg,
		logger:      logger,
		db:          db,
		redisClient: redisClient,
		authService: authService,
	}

	return server
}

// SeedAdmin ensures the bootstrap admin account exists.
func (s *Server) SeedAdmin(ctx context.Context) error {
	return s.authService.EnsureSeedAdmin(ctx, s.config.SeedAdmin.Email, s.config.SeedAdmin.Password)
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	// Close database connection
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
