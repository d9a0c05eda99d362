package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/estatio/docrender/handlers"
	"github.com/estatio/docrender/internal/config"
	"github.com/estatio/docrender/internal/database"
	"github.com/estatio/docrender/internal/datamodel"
	"github.com/estatio/docrender/internal/document/catalog"
	"github.com/estatio/docrender/internal/document/handler"
	"github.com/estatio/docrender/internal/document/repository"
	"github.com/estatio/docrender/internal/document/service"
	"github.com/estatio/docrender/internal/engine"
	"github.com/estatio/docrender/internal/fixture"
	"github.com/estatio/docrender/internal/oidc"
	"github.com/estatio/docrender/internal/rendering"
	"github.com/estatio/docrender/internal/rendering/pongo"
	"github.com/estatio/docrender/internal/sourcecache"
	"github.com/estatio/docrender/internal/storage"
	"github.com/estatio/docrender/pkg/logger"
	"github.com/estatio/docrender/pkg/metrics"
	"github.com/estatio/docrender/pkg/middleware"
	"github.com/estatio/docrender/pkg/tracing"
)

var (
	startTime = time.Now()
	version   = "dev"
)

// templateAdminRole is the Keycloak role required to change templates.
const templateAdminRole = "template-admin"

// stores is what the service persists to, plus the handles /ready probes.
type stores struct {
	templates repository.TemplateRepository
	documents repository.DocumentRepository
	mongo     *mongo.Client
	sqlite    *sql.DB
	backend   string
}

func (s *stores) Close(ctx context.Context) {
	if s.mongo != nil {
		_ = s.mongo.Disconnect(ctx)
	}
	if s.sqlite != nil {
		_ = s.sqlite.Close()
	}
}

// openStores prefers MongoDB, then SQLite for templates, then memory.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectWithRetry(ctx, cfg.MongoDB, 5, time.Second)
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.MongoDB.Database)
		templates, err := repository.NewMongoTemplateRepo(ctx, db.Collection(cfg.MongoDB.TemplatesCollection))
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		return &stores{
			templates: templates,
			documents: repository.NewMongoDocumentRepo(db.Collection(cfg.MongoDB.DocumentsCollection)),
			mongo:     client,
			backend:   "mongodb",
		}, nil
	}
	if cfg.SQLite.Path != "" {
		db, err := repository.OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		templates, err := repository.NewSQLiteTemplateRepo(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return &stores{
			templates: templates,
			documents: repository.NewMemoryDocumentRepo(),
			sqlite:    db,
			backend:   "sqlite",
		}, nil
	}
	return &stores{
		templates: repository.NewMemoryTemplateRepo(),
		documents: repository.NewMemoryDocumentRepo(),
		backend:   "memory",
	}, nil
}

// connectRedis returns nil when Redis is not configured or not reachable.
func connectRedis(ctx context.Context, cfg config.RedisConfig) redis.UniversalClient {
	if cfg.Addr() == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr(), Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warnf("failed to connect to Redis (%s): %v", cfg.Addr(), err)
		_ = client.Close()
		return nil
	}
	logger.Infof("connected to Redis at %s", cfg.Addr())
	return client
}

// previewStore is MinIO when configured, otherwise nil: URL previews are
// then not offered.
func previewStore(ctx context.Context, cfg config.MinIOConfig) storage.ObjectStore {
	if cfg.Endpoint == "" {
		return nil
	}
	s, err := storage.NewMinIOStorage(ctx, cfg)
	if err != nil {
		logger.Warnf("MinIO unavailable, URL previews disabled: %v", err)
		return nil
	}
	return s
}

func loadModels(cfg config.RenderConfig) (*datamodel.Registry, error) {
	models := datamodel.NewRegistry()
	if err := fixture.RegisterSchemas(models); err != nil {
		return nil, err
	}
	if cfg.SchemaDir != "" {
		loaded, err := models.LoadFS(os.DirFS(cfg.SchemaDir))
		if err != nil {
			return nil, fmt.Errorf("schemas from %s: %w", cfg.SchemaDir, err)
		}
		logger.Infof("loaded %d data model schemas from %s", len(loaded), cfg.SchemaDir)
	}
	return models, nil
}

// app holds everything the router serves.
type app struct {
	cfg        *config.Config
	stores     *stores
	redis      redis.UniversalClient
	verifier   middleware.Verifier
	models     *datamodel.Registry
	strategies *rendering.Registry
	engine     *engine.Engine
	sources    *sourcecache.Cache
	templates  service.Service
}

func newApp(ctx context.Context, cfg *config.Config, st *stores, rdb redis.UniversalClient, store storage.ObjectStore, verifier middleware.Verifier) (*app, error) {
	models, err := loadModels(cfg.Render)
	if err != nil {
		return nil, err
	}
	if cfg.Render.SeedFixtures {
		n, err := fixture.Seed(ctx, st.templates)
		if err != nil {
			return nil, err
		}
		logger.Infof("seeded %d fixture templates", n)
	}

	resolver := catalog.NewResolver(catalog.New(st.templates))
	sources := sourcecache.New(repository.NewMemoryTypeCatalog(fixture.DocumentTypes()...), resolver)

	strategies := rendering.NewRegistry()
	if err := fixture.RegisterStrategies(strategies, fixture.StrategyOptions{
		Engine:        pongo.NewEngine(pongo.WithLoader(sources)),
		Store:         store,
		PreviewExpiry: cfg.Render.PreviewURLExpiry,
		SanitizeHTML:  cfg.Render.SanitizeHTML,
	}); err != nil {
		return nil, err
	}

	return &app{
		cfg:        cfg,
		stores:     st,
		redis:      rdb,
		verifier:   verifier,
		models:     models,
		strategies: strategies,
		engine:     engine.New(resolver, models, strategies, st.documents),
		sources:    sources,
		templates:  service.New(st.templates, strategies, models),
	}, nil
}

// withTimeout bounds render and preview calls.
func withTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (a *app) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	deps := gin.H{"templates": a.stores.backend}
	ready := true

	if a.stores.mongo != nil {
		ok := a.stores.mongo.Ping(ctx, nil) == nil
		deps["mongodb"] = ok
		ready = ready && ok
	}
	if a.stores.sqlite != nil {
		ok := a.stores.sqlite.PingContext(ctx) == nil
		deps["sqlite"] = ok
		ready = ready && ok
	}
	if a.cfg.RateLimit.Enabled && a.cfg.RateLimit.UseRedis {
		ok := a.redis != nil && a.redis.Ping(ctx).Err() == nil
		deps["redis"] = ok
		ready = ready && ok
	}
	if a.cfg.Keycloak.Issuer() != "" {
		deps["oidc"] = a.verifier != nil
		ready = ready && a.verifier != nil
	}
	deps["strategies"] = len(a.strategies.List())

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(startTime).String()})
}

func (a *app) router() *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	})
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "healthy") })
	r.GET("/ready", a.ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterSwagger(r, version)

	api := r.Group("/")
	switch {
	case a.verifier != nil:
		api.Use(middleware.AuthMiddleware(a.verifier))
	case a.cfg.Keycloak.Issuer() != "":
		api.Use(authUnavailable)
	}
	if rl := a.cfg.RateLimit; rl.Enabled {
		if rl.UseRedis {
			api.Use(middleware.RedisRateLimitMiddleware(a.redis, "api", rl.RPS, rl.Burst, rl.Window))
		} else {
			api.Use(middleware.NewRateLimiter(rl.RPS, rl.Burst).Middleware("api"))
		}
	}
	api.Use(withTimeout(a.cfg.Render.Timeout))

	if a.verifier != nil {
		api.Use(requireAdminForWrites(a.cfg.Keycloak.ClientID))
	}
	handler.RegisterDocumentRoutes(api, handler.Deps{
		Templates: a.templates,
		Engine:    a.engine,
		Sources:   a.sources,
		Documents: a.stores.documents,
	})
	return r
}

// authUnavailable refuses API calls when authentication is configured but
// no verifier could be built.
func authUnavailable(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "authentication unavailable"})
}

// requireAdminForWrites guards template mutations with the admin role.
// Rendering, previews and reads stay open to any authenticated caller.
func requireAdminForWrites(clientID string) gin.HandlerFunc {
	guard := middleware.RequireRole(templateAdminRole, clientID)
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || !strings.HasPrefix(c.Request.URL.Path, "/api/templates") {
			c.Next()
			return
		}
		guard(c)
	}
}

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.LogLevel)
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	logger.Infof("config loaded: keycloak=%v mongo=%v sqlite=%v redis=%v minio=%v",
		cfg.Keycloak.Issuer() != "", cfg.MongoDB.URI != "", cfg.SQLite.Path != "", cfg.Redis.Addr() != "", cfg.MinIO.Endpoint != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, version, cfg.Server.Environment)
	if err != nil {
		logger.Warnf("tracing disabled: %v", err)
	} else {
		defer func() { _ = shutdownTracing(context.Background()) }()
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		logger.Fatalf("failed to open stores: %v", err)
	}
	defer st.Close(context.Background())
	logger.Infof("template store: %s", st.backend)

	verifier, err := oidc.FromConfig(ctx, cfg.Keycloak)
	if err != nil {
		logger.Errorf("failed to initialize OIDC verifier, API requests will be refused: %v", err)
	}

	a, err := newApp(ctx, cfg, st, connectRedis(ctx, cfg.Redis), previewStore(ctx, cfg.MinIO), verifier)
	if err != nil {
		logger.Fatalf("failed to build service: %v", err)
	}
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      a.router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("starting docrender on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}
