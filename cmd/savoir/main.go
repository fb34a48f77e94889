// CLAUDE:SUMMARY Entry point: env/YAML config, slog, signal context, chi JSON API, optional MCP stdio transport, refresh schedule.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/savoir/fault"
	"github.com/hazyhaar/savoir/kb"
)

func main() {
	cfgPath := env("SAVOIR_CONFIG", "savoir.yaml")
	cfg, err := kb.LoadConfig(cfgPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	applyEnvOverrides(cfg)

	// Logging.
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc, err := kb.New(cfg, logger)
	if err != nil {
		if errors.Is(err, fault.ErrConfig) {
			logger.Error("startup configuration", "error", err)
		} else {
			logger.Error("startup", "error", err)
		}
		os.Exit(1)
	}
	defer svc.Close()

	if err := svc.Start(ctx); err != nil {
		logger.Error("refresh schedule", "error", err)
		os.Exit(1)
	}

	// MCP over stdio replaces the HTTP surface when requested.
	if env("MCP_TRANSPORT", "") == "stdio" {
		srv := mcp.NewServer(&mcp.Implementation{Name: "savoir", Version: "1.0.0"}, nil)
		svc.RegisterMCP(srv)
		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			logger.Error("mcp server", "error", err)
			os.Exit(1)
		}
		return
	}

	router := newRouter(ctx, svc, logger)
	addr := ":" + env("PORT", "8087")
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("savoir: listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server", "error", err)
		os.Exit(1)
	}
}

// newRouter exposes the operation shapes as JSON endpoints.
func newRouter(ctx context.Context, svc *kb.Service, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/sources", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Input string `json:"input"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		res, err := svc.AddSources(req.Context(), body.Input)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	r.Post("/process", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			MaxBatches int `json:"max_batches"`
		}
		if req.ContentLength > 0 {
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
		}
		// Long-running: bound by the process signal context, not the
		// request's.
		stats, err := svc.ProcessQueue(ctx, body.MaxBatches)
		if err != nil && ctx.Err() == nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})

	r.Post("/search", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Query   string            `json:"query"`
			K       int               `json:"k"`
			Filters map[string]string `json:"filters"`
			Flags   kb.SearchFlags    `json:"flags"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		results, warnings, err := svc.Search(req.Context(), body.Query, body.K, body.Filters, body.Flags)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"results":  results,
			"warnings": warnings,
		})
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		status, err := svc.GetStatus(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	})

	r.Post("/refresh", func(w http.ResponseWriter, req *http.Request) {
		stats, err := svc.RefreshOnce(ctx)
		if err != nil && ctx.Err() == nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})

	r.Delete("/queue", func(w http.ResponseWriter, req *http.Request) {
		n, err := svc.ClearQueue(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
	})

	r.Post("/retry-failed", func(w http.ResponseWriter, req *http.Request) {
		n, err := svc.RetryFailed(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"requeued": n})
	})

	r.Post("/reset", func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("X-Confirm-Reset") != "yes" {
			writeError(w, http.StatusBadRequest, errors.New("reset requires X-Confirm-Reset: yes"))
			return
		}
		if err := svc.Reset(req.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "wiped"})
	})

	return r
}

func statusFor(err error) int {
	if errors.Is(err, kb.ErrInvalidInput) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// env returns the variable's value or a default.
func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// applyEnvOverrides lets the environment win over the config file for the
// options operators most often set per deployment.
func applyEnvOverrides(cfg *kb.Config) {
	cfg.CatalogPath = env("CATALOG_PATH", cfg.CatalogPath)
	cfg.VectorDir = env("VECTOR_DIR", cfg.VectorDir)
	cfg.WorkspaceRoot = env("WORKSPACE_ROOT", cfg.WorkspaceRoot)
	cfg.LogLevel = env("LOG_LEVEL", cfg.LogLevel)
	cfg.UserAgent = env("USER_AGENT", cfg.UserAgent)
	cfg.BrowserURL = env("BROWSER_URL", cfg.BrowserURL)
	cfg.RenderFallback = envBool("RENDER_FALLBACK", cfg.RenderFallback)
	cfg.EnableCompetitors = envBool("ENABLE_COMPETITOR_QUERIES", cfg.EnableCompetitors)
	cfg.SimilarityThreshold = envFloat("SIMILARITY_THRESHOLD", cfg.SimilarityThreshold)

	cfg.Queue.BatchSize = envInt("BATCH_SIZE", cfg.Queue.BatchSize)
	cfg.Queue.Workers = envInt("CONCURRENT_WORKERS", cfg.Queue.Workers)
	cfg.Queue.MaxRetries = envInt("MAX_RETRIES", cfg.Queue.MaxRetries)
	cfg.Queue.RatePerHost = envFloat("RATE_PER_HOST", cfg.Queue.RatePerHost)

	cfg.Chunk.MinTokens = envInt("CHUNK_MIN_TOKENS", cfg.Chunk.MinTokens)
	cfg.Chunk.MaxTokens = envInt("CHUNK_MAX_TOKENS", cfg.Chunk.MaxTokens)
	cfg.Chunk.OverlapTokens = envInt("CHUNK_OVERLAP_TOKENS", cfg.Chunk.OverlapTokens)

	cfg.Crawl.MaxPages = envInt("CRAWL_MAX_PAGES", cfg.Crawl.MaxPages)
	if v := envInt("CRAWL_TIME_BOUND_SECONDS", 0); v > 0 {
		cfg.Crawl.TimeBound = time.Duration(v) * time.Second
	}

	cfg.Refresh.Cron = env("REFRESH_CRON", cfg.Refresh.Cron)
	cfg.Refresh.Enabled = envBool("ENABLE_AUTO_REFRESH", cfg.Refresh.Enabled)

	cfg.Embed.Endpoint = env("EMBEDDINGS_ENDPOINT", cfg.Embed.Endpoint)
	cfg.Embed.Model = env("EMBEDDINGS_MODEL", cfg.Embed.Model)
	cfg.Embed.Dimension = envInt("EMBEDDINGS_DIMENSION", cfg.Embed.Dimension)

	cfg.LLM.Host = env("LLM_HOST", cfg.LLM.Host)
	cfg.LLM.QueryModel = env("LLM_QUERY_MODEL", cfg.LLM.QueryModel)
	cfg.LLM.EnrichModel = env("LLM_ENRICH_MODEL", cfg.LLM.EnrichModel)

	cfg.Rerank.Endpoint = env("RERANK_ENDPOINT", cfg.Rerank.Endpoint)
	cfg.Rerank.Model = env("RERANK_MODEL", cfg.Rerank.Model)

	cfg.Search.Endpoint = env("SEARCH_ENDPOINT", cfg.Search.Endpoint)
	cfg.Search.APIKey = env("SEARCH_API_KEY", cfg.Search.APIKey)

	cfg.Transcript.Endpoint = env("TRANSCRIPT_ENDPOINT", cfg.Transcript.Endpoint)
	cfg.Channel.APIKey = env("CHANNEL_API_KEY", cfg.Channel.APIKey)
	cfg.Channel.Endpoint = env("CHANNEL_API_ENDPOINT", cfg.Channel.Endpoint)
}
