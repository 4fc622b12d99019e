package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/lattis-io/lattis/internal/config"
	"github.com/lattis-io/lattis/internal/database"
	"github.com/lattis-io/lattis/internal/handlers"
	"github.com/lattis-io/lattis/internal/messaging"
	"github.com/lattis-io/lattis/internal/middleware"
	"github.com/lattis-io/lattis/internal/services"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	producer *messaging.InteractionProducer
	services *services.Services
	handlers *handlers.Handlers
	router   *gin.Engine
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	app.producer = messaging.NewInteractionProducer(cfg, app.logger)

	svc, err := services.New(db, cfg, app.producer, prometheus.DefaultRegisterer, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = svc

	app.handlers = handlers.New(svc, db, app.logger)

	app.setupRouter()

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	a.services.Stop()

	if err := a.producer.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing Kafka producer")
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config.Security.CORS))

	router.GET("/health", a.handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.Use(middleware.Auth(a.config.Auth, a.logger))

		api.GET("/recommendations/:userId", a.handlers.GetRecommendations)
		api.POST("/recommendations/feedback", a.handlers.SubmitFeedback)

		api.POST("/interactions", a.handlers.TrackInteraction)

		api.GET("/users/:userId/profile", a.handlers.GetProfile)
		api.PUT("/users/:userId/profile", a.handlers.UpdateProfile)

		api.GET("/metrics/recommendations", a.handlers.RecommendationMetrics)

		api.POST("/model/train", a.handlers.TrainModel)
		api.POST("/model/reload", a.handlers.ReloadModel)
	}

	a.router = router
}
