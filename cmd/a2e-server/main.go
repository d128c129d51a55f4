// Command a2e-server boots the A2E workflow execution service: it loads
// configuration, wires every component package together, and serves the
// agent-facing HTTP surface until an interrupt or SIGTERM asks it to shut
// down gracefully.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/a2e-systems/a2e-exec/internal/audit"
	"github.com/a2e-systems/a2e-exec/internal/authz"
	"github.com/a2e-systems/a2e-exec/internal/config"
	"github.com/a2e-systems/a2e-exec/internal/controls"
	"github.com/a2e-systems/a2e-exec/internal/engine"
	"github.com/a2e-systems/a2e-exec/internal/httpapi"
	"github.com/a2e-systems/a2e-exec/internal/logging"
	"github.com/a2e-systems/a2e-exec/internal/middleware"
	"github.com/a2e-systems/a2e-exec/internal/registry"
	"github.com/a2e-systems/a2e-exec/internal/respond"
	"github.com/a2e-systems/a2e-exec/internal/search"
	"github.com/a2e-systems/a2e-exec/internal/storage"
	"github.com/a2e-systems/a2e-exec/internal/validator"
	"github.com/a2e-systems/a2e-exec/internal/vault"
)

// vaultLookupAdapter bridges *vault.Vault's concrete Metadata return type to
// validator.VaultMetadataLookup's covariant any-typed signature. The vault
// itself is never made to know about the validator package.
type vaultLookupAdapter struct {
	v *vault.Vault
}

func (a vaultLookupAdapter) Metadata(id string) (any, bool) {
	return a.v.Metadata(id)
}

// auditSinkAdapter bridges the engine's minimal per-dispatch AuditEntry to
// the audit journal's richer, error-returning Record method.
type auditSinkAdapter struct {
	j *audit.Journal
}

func (a auditSinkAdapter) Record(entry engine.AuditEntry) {
	if err := a.j.Record(audit.Entry{
		Timestamp:   time.Now().UTC(),
		ExecutionID: entry.ExecutionID,
		AgentID:     entry.AgentID,
		OperationID: entry.OperationID,
		Kind:        entry.Kind,
		Status:      entry.Status,
		Error:       entry.Error,
		DurationMs:  entry.DurationMs,
	}); err != nil {
		logging.Component("audit").Error().Err(err).Str("executionId", entry.ExecutionID).Msg("failed to write audit entry")
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logging.Initialize(cfg.LogLevel, cfg.LogPretty)
	logger := logging.Component("main")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("could not create data directory")
	}

	v, err := vault.New(cfg.VaultKeyMaterial, filepath.Join(cfg.DataDir, "vault.json"))
	if err != nil {
		logger.Fatal().Err(err).Msg("could not open credential vault")
	}

	authzStore, err := authz.New(cfg.JWTSecret, filepath.Join(cfg.DataDir, "agents.json"), cfg.JWTTokenTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not open authorization store")
	}

	var searcher search.Client = search.NopClient{}
	if cfg.SemanticSearchURL != "" {
		logger.Warn().Str("url", cfg.SemanticSearchURL).Msg("semantic_search_url configured but no client implementation is wired; falling back to keyword search")
	}
	reg := registry.New(searcher)
	ctx := context.Background()
	if err := reg.LoadAPIs(ctx, filepath.Join(cfg.DataDir, "apis.json")); err != nil {
		logger.Warn().Err(err).Msg("no API catalog loaded")
	}
	if err := reg.LoadSQL(ctx, filepath.Join(cfg.DataDir, "sql_queries.json")); err != nil {
		logger.Warn().Err(err).Msg("no SQL catalog loaded")
	}

	storageRegistry := storage.NewRegistry()
	storageRegistry.Register("default", storage.NewMemoryBackend())
	if cfg.StorageS3Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.StorageS3Region))
		if err != nil {
			logger.Fatal().Err(err).Msg("could not load AWS config for S3 storage backend")
		}
		storageRegistry.Register("s3", storage.NewS3Backend(s3.NewFromConfig(awsCfg), cfg.StorageS3Bucket, "a2e"))
	}
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		storageRegistry.Register("redis", storage.NewRedisBackend(redisClient, cfg.StorageRedisKeyPrefix))
	}

	rateLimiter := controls.NewRateLimiter(controls.RateLimitConfig{
		RequestsPerMinute: cfg.RateLimitPerMinute,
		RequestsPerHour:   cfg.RateLimitPerHour,
		RequestsPerDay:    cfg.RateLimitPerDay,
		APICallsPerMinute: controls.DefaultRateLimitConfig().APICallsPerMinute,
		APICallsPerHour:   controls.DefaultRateLimitConfig().APICallsPerHour,
	})

	retrier := controls.NewRetrier(controls.RetryConfig{
		MaxRetries:  cfg.RetryMaxRetries,
		InitialWait: cfg.RetryInitialWait,
		MaxWait:     cfg.RetryMaxWait,
		Base:        cfg.RetryBase,
	})

	cacheConfig := controls.DefaultCacheConfig()
	cacheConfig.MaxEntries = cfg.CacheMaxEntries
	cacheConfig.DefaultTTL = cfg.CacheDefaultTTL
	cacheConfig.RedisAddr = cfg.RedisAddr
	cache, err := controls.NewResultCache(cacheConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not build result cache")
	}

	if err := os.MkdirAll(cfg.AuditDir, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("could not create audit directory")
	}
	journal, err := audit.Open(cfg.AuditDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not open audit journal")
	}
	defer journal.Close()

	eng := engine.New(rateLimiter, retrier, cache, v, storageRegistry, auditSinkAdapter{j: journal})
	eng.MaxExecutionTime = cfg.ExecutionTimeout

	shaper := respond.New(respond.FormatSummary)

	deps := httpapi.Dependencies{
		Registry:     reg,
		Vault:        v,
		VaultLookup:  vaultLookupAdapter{v: v},
		Authz:        authzStore,
		Engine:       eng,
		RateLimiter:  rateLimiter,
		Auditor:      journal,
		Shaper:       shaper,
		DefaultLevel: validator.LevelModerate,
	}

	router := httpapi.NewRouter(deps)
	installMiddleware(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info().Int("port", cfg.Port).Msg("a2e-exec listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	} else {
		logger.Info().Msg("server stopped gracefully")
	}
}

// installMiddleware wires the generic request pipeline ahead of routing:
// request id, structured logging, security headers, size limits, gzip,
// HTTP method restrictions, input validation, per-IP rate limiting, and
// CORS.
func installMiddleware(router *gin.Engine) {
	router.Use(middleware.RequestID())
	router.Use(middleware.StructuredLogger())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.DefaultSizeLimiter())
	router.Use(middleware.Gzip(middleware.DefaultCompression))
	router.Use(middleware.AllowedHTTPMethods())
	router.Use(middleware.DisallowedHTTPMethods())
	router.Use(middleware.NewInputValidator().Middleware())
	router.Use(middleware.NewRateLimiter(10, 30).Middleware())
	router.Use(corsMiddleware())
}

// corsMiddleware allows an explicitly configured set of origins (env
// A2E_CORS_ALLOWED_ORIGINS, comma-separated) to call the API with
// credentials; defaults to localhost for local development. A2E has no
// WebSocket surface, so only the plain REST header set is exposed.
func corsMiddleware() gin.HandlerFunc {
	allowedOrigins := []string{"http://localhost:3000", "http://localhost:8000"}
	if raw := os.Getenv("A2E_CORS_ALLOWED_ORIGINS"); raw != "" {
		allowedOrigins = allowedOrigins[:0]
		for _, origin := range strings.Split(raw, ",") {
			allowedOrigins = append(allowedOrigins, strings.TrimSpace(origin))
		}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		for _, allowed := range allowedOrigins {
			if origin == allowed {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Access-Control-Allow-Credentials", "true")
				break
			}
		}

		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Authorization, X-API-Key, Accept-Encoding, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
