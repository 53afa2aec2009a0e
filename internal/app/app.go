package app

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"oral_exam_backend/internal/config"
	"oral_exam_backend/internal/controller"
	"oral_exam_backend/internal/dialogue"
	"oral_exam_backend/internal/repository"
	"oral_exam_backend/internal/retrieval"
	"oral_exam_backend/internal/service"
	"oral_exam_backend/pkg/configwatcher"
	"oral_exam_backend/pkg/database"
	"oral_exam_backend/pkg/logger"
	"oral_exam_backend/pkg/monitoring"
	"oral_exam_backend/pkg/security"
	"oral_exam_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tokenPruneInterval = time.Hour

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	repos           *repositories
	configCallbacks []func(*config.Config)
	closers         []io.Closer
	tracer          *sdktrace.TracerProvider
}

type repositories struct {
	user         *repository.UserRepository
	refreshToken *repository.RefreshTokenRepository
	material     *repository.MaterialRepository
	exam         *repository.ExamRepository
	study        *repository.StudyRepository
}

type services struct {
	storage   *service.StorageService
	engine    *dialogue.Engine
	retrieval *retrieval.Service
	auth      *service.AuthService
	user      *service.UserService
	material  *service.MaterialService
	exam      *service.ExamService
	study     *service.StudyService
}

type controllers struct {
	auth     *controller.AuthController
	user     *controller.UserController
	material *controller.MaterialController
	exam     *controller.ExamController
	study    *controller.StudyController
	health   *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:         repository.NewUserRepository(db),
		refreshToken: repository.NewRefreshTokenRepository(db),
		material:     repository.NewMaterialRepository(db),
		exam:         repository.NewExamRepository(db),
		study:        repository.NewStudyRepository(db),
	}
}

// newReasoner picks the oracle backend. The OpenAI-compatible client is
// always built because it also serves embeddings.
func (a *App) newReasoner(ctx context.Context, cfg *config.Config) (dialogue.Reasoner, *service.AIService, error) {
	openai := service.NewAIService(cfg.AI)
	a.closers = append(a.closers, openai)

	if cfg.AI.Provider != "gemini" {
		return openai, openai, nil
	}
	gemini, err := service.NewGeminiService(ctx, cfg.AI)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, gemini)
	return gemini, openai, nil
}

func (a *App) initRetrieval(ctx context.Context, cfg *config.Config, repos *repositories, embedder retrieval.Embedder, rdb *redis.Client) *retrieval.Service {
	opts := retrieval.Options{
		SearchLimit:  cfg.Vector.SearchLimit,
		ChunkSize:    cfg.Dialogue.ChunkSize,
		ChunkOverlap: cfg.Dialogue.ChunkOverlap,
		CacheTTL:     cfg.Dialogue.CacheTTL,
	}

	if !cfg.Vector.Enabled {
		logger.Log.Info("Vector store disabled, material served from the database")
		return retrieval.NewService(nil, nil, repos.material, rdb, opts)
	}

	qdrant := retrieval.NewQdrantStore(&cfg.Vector)
	a.closers = append(a.closers, qdrant)
	if err := qdrant.EnsureCollection(ctx); err != nil {
		logger.Log.Warn("Vector collection not ready", zap.String("collection", cfg.Vector.Collection), zap.Error(err))
	}
	return retrieval.NewService(embedder, qdrant, repos.material, rdb, opts)
}

func (a *App) initServices(ctx context.Context, repos *repositories, cfg *config.Config, rdb *redis.Client) (*services, error) {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(repos.user, repos.refreshToken, cfg)
	s.user = service.NewUserService(repos.user, s.storage, cfg.Media.ProbeEnabled)

	reasoner, embedder, err := a.newReasoner(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.engine, err = dialogue.NewEngine(reasoner, tuningFrom(cfg.Dialogue))
	if err != nil {
		return nil, err
	}
	a.RegisterConfigCallback(func(newCfg *config.Config) {
		s.engine.SetTuning(tuningFrom(newCfg.Dialogue))
	})

	s.retrieval = a.initRetrieval(ctx, cfg, repos, embedder, rdb)
	s.material = service.NewMaterialService(s.retrieval, repos.material)

	transcriber := service.NewDeepgramTranscriber(cfg.Speech)
	synthesizer := service.NewSpeechKitSynthesizer(cfg.Speech, s.storage)
	a.closers = append(a.closers, transcriber, synthesizer)

	locker := service.NewSessionLocker(rdb, cfg.Dialogue.LockTTL)

	s.exam = service.NewExamService(repos.exam, s.engine, s.retrieval, transcriber, synthesizer, locker, cfg.Dialogue.TurnTimeout)
	s.study = service.NewStudyService(repos.study, s.engine, s.retrieval, locker, cfg.Dialogue.TurnTimeout)

	return s, nil
}

func (a *App) initControllers(s *services, cfg *config.Config, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:     controller.NewAuthController(s.auth, cfg.JWT.CookieSecure),
		user:     controller.NewUserController(s.user, cfg.Media.MaxUploadMB),
		material: controller.NewMaterialController(s.material, cfg.Media.MaxUploadMB),
		exam:     controller.NewExamController(s.exam),
		study:    controller.NewStudyController(s.study),
		health:   controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func tuningFrom(cfg config.DialogueConfig) dialogue.Tuning {
	return dialogue.Tuning{
		GradingWindow:        cfg.GradingWindow,
		TutoringWindow:       cfg.TutoringWindow,
		OffTopicContextLimit: cfg.OffTopicContextLimit,
		TutoringContextLimit: cfg.TutoringContextLimit,
	}
}

func (a *App) applyConfig(newCfg *config.Config) {
	for _, callback := range a.configCallbacks {
		callback(newCfg)
	}
}

func (a *App) startBackgroundTasks(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(tokenPruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				n, err := a.repos.refreshToken.DeleteExpired(ctx, now)
				if err != nil {
					logger.Log.Error("refresh token prune error", zap.Error(err))
					continue
				}
				if n > 0 {
					logger.Log.Info("Pruned refresh tokens", zap.Int64("count", n))
				}
			}
		}
	}()

	if a.Config.Server.WatchConfig && a.Config.File != "" {
		go func() {
			if err := configwatcher.WatchConfig(ctx, a.Config.File, a.applyConfig); err != nil {
				logger.Log.Error("Config watcher stopped", zap.Error(err))
			}
		}()
	}
}

// Open connects the database and, when enabled, Redis. It is shared by the
// server and the maintenance commands.
func Open(cfg *config.Config) (*gorm.DB, *redis.Client, error) {
	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	if cfg.ForceMigrate || cfg.Server.Mode == "debug" {
		if err := database.Migrate(db); err != nil {
			return nil, nil, err
		}
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	return db, rdb, nil
}

func NewApp(cfg *config.Config) (*App, error) {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	db, rdb, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	app.repos = app.initRepositories(db)
	services, err := app.initServices(ctx, app.repos, cfg, rdb)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.services = services
	controllers := app.initControllers(services, cfg, db, rdb)

	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Error("Failed to initialize tracing", zap.Error(err))
		} else {
			app.tracer = tp
		}
	}

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, app.repos, cfg)

	if cfg.Storage.Type == "local" {
		if err := os.MkdirAll(cfg.Storage.LocalPath, os.ModePerm); err != nil {
			logger.Log.Warn("Cannot create upload directory", zap.String("path", cfg.Storage.LocalPath), zap.Error(err))
		}
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	return app, nil
}

// Close releases outbound clients and the database pool.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			logger.Log.Warn("Close failed", zap.Error(err))
		}
	}
	a.closers = nil

	if a.tracer != nil {
		if err := a.tracer.Shutdown(context.Background()); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = logger.Log.Sync()
}

func (a *App) Run() {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	a.startBackgroundTasks(ctx)

	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	stop()

	// turns in flight get up to the turn timeout to finish
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Dialogue.TurnTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Println("Server forced to shutdown:", err)
	}

	a.Close()
	log.Println("Server exiting")
}
