package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aegis-authz/aegis/audit"
	"github.com/aegis-authz/aegis/config"
	"github.com/aegis-authz/aegis/controller"
	"github.com/aegis-authz/aegis/db"
	logger "github.com/aegis-authz/aegis/logging"
	"github.com/aegis-authz/aegis/pdp/engine"
	"github.com/aegis-authz/aegis/router"
	"github.com/aegis-authz/aegis/service"
	"github.com/aegis-authz/aegis/store"
	"github.com/aegis-authz/aegis/util"
)

func main() {
	// Initialize configuration
	if err := config.InitConfig(); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	// Initialize logger
	logger.InitLogger(config.GetString("log.dir"))
	defer logger.Sync()

	// Initialize Redis
	if err := db.InitRedis(); err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer db.CloseRedis()

	// Initialize Neo4j when write-through persistence is enabled
	var persistence store.Persistence
	if config.GetBool("neo4j.enabled") {
		if err := db.InitNeo4j(); err != nil {
			logger.Fatal("Failed to initialize Neo4j", zap.Error(err))
		}
		defer db.CloseNeo4j()
		persistence = store.NewNeo4jPersistence(db.Neo4jDriver)
	}

	// Initialize EventBus
	eventBus := util.NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eventBus.Start(ctx)

	// Initialize the policy store and hydrate persisted state
	policyStore := store.New(eventBus, persistence)
	defer policyStore.Close()
	if err := policyStore.Hydrate(ctx); err != nil {
		logger.Fatal("Failed to hydrate policy store", zap.Error(err))
	}
	if err := store.EnsureBootstrapPolicy(ctx, policyStore, config.GetStringSlice("bootstrap.adminPrincipals")); err != nil {
		logger.Fatal("Failed to seed bootstrap policy", zap.Error(err))
	}

	// Initialize the audit sink
	var auditRepository audit.Repository
	if esURL := config.GetString("elasticsearch.url"); esURL != "" {
		esRepository, err := audit.NewElasticsearchRepository(esURL)
		if err != nil {
			logger.Fatal("Failed to initialize audit repository", zap.Error(err))
		}
		auditRepository = esRepository
	} else {
		logger.Warn("No Elasticsearch URL configured, keeping decision trail in memory")
		auditRepository = audit.NewMemoryRepository()
	}
	auditService := audit.NewService(auditRepository, audit.Options{
		QueueSize:      config.GetInt("audit.queueSize"),
		EnqueueTimeout: config.GetDuration("audit.enqueueTimeout"),
		Workers:        config.GetInt("audit.workers"),
	})
	defer auditService.Close()

	// Initialize utilities
	validationUtil := util.NewValidationUtil()
	notificationService := util.NewNotificationService()

	// Initialize the decision engine
	var decisionCache engine.DecisionCache
	if config.GetBool("decisionCache.enabled") {
		decisionCache = db.NewRedisDecisionCache()
	}
	provider := engine.ProviderFunc(func(ctx context.Context) (engine.PolicySnapshot, error) {
		return policyStore.Snapshot(ctx)
	})
	evaluator := engine.NewEvaluator(provider, decisionCache, auditService, notificationService)

	// Initialize services
	services, err := service.InitializeServices(
		policyStore,
		evaluator,
		auditService,
		validationUtil,
		notificationService,
		eventBus,
	)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}

	// Initialize controllers
	controllers := controller.InitializeControllers(services)

	// Set up Gin
	gin.SetMode(gin.ReleaseMode)
	engineRouter := router.SetupRouter(
		controllers,
		services.Access,
		config.GetString("auth.jwtSecret"),
		config.GetInt("rateLimit.requests"),
		config.GetDuration("rateLimit.window"),
	)

	// Set up the server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", config.GetString("server.port")),
		Handler: engineRouter,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("port", config.GetString("server.port")))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}
