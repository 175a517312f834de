package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/spf13/pflag"

	"github.com/liamcoop/labparser/internal/config"
	"github.com/liamcoop/labparser/internal/logger"
	"github.com/liamcoop/labparser/labparser"
	"github.com/liamcoop/labparser/multilab"
	"github.com/liamcoop/labparser/rules"
)

// defaultLabName is the lab created when the server runs without a database.
const defaultLabName = "default"

const slowRequestThreshold = 2 * time.Second

type Server struct {
	db     *sql.DB
	labs   *multilab.Manager
	router *chi.Mux
}

// NewServer connects to the configured database, or starts an in-memory
// server with a single lab when no database is configured.
func NewServer(settings *config.Settings) (*Server, error) {
	engineOpts := engineOptions(settings)

	if settings.DatabaseURL == "" {
		return NewMemoryServer(settings.RulesPath, engineOpts...)
	}

	db, err := sql.Open("postgres", settings.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewServerWithDB(db, engineOpts...)
}

func engineOptions(settings *config.Settings) []rules.EngineOption {
	return []rules.EngineOption{
		rules.WithCompiler(labparser.NewCompiler(settings.CompilerOptions()...)),
		rules.WithBatchOptions(settings.BatchOptions()...),
	}
}

// NewServerWithDB creates a server backed by PostgreSQL and loads every lab.
func NewServerWithDB(db *sql.DB, engineOpts ...rules.EngineOption) (*Server, error) {
	labs := multilab.NewManager(db, multilab.WithEngineOptions(engineOpts...))

	logger.Info("loading labs from database")
	if err := labs.LoadAllLabs(); err != nil {
		return nil, fmt.Errorf("failed to load labs: %w", err)
	}

	return newServer(db, labs), nil
}

// NewMemoryServer creates a server without a database. A single lab is
// created and seeded from rulesPath when it is set.
func NewMemoryServer(rulesPath string, engineOpts ...rules.EngineOption) (*Server, error) {
	stores := multilab.InMemoryStores()
	labs := multilab.NewManager(nil,
		multilab.WithStoreFactory(stores),
		multilab.WithEngineOptions(engineOpts...))

	lab, err := labs.CreateLab(defaultLabName)
	if err != nil {
		return nil, err
	}

	if rulesPath != "" {
		rf, err := rules.LoadPath(rulesPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load rules: %w", err)
		}
		if err := rf.Seed(stores(lab.ID)); err != nil {
			return nil, fmt.Errorf("failed to seed rules: %w", err)
		}
		if err := labs.ReloadLab(lab.ID); err != nil {
			return nil, err
		}
	}

	logger.Info("running with in-memory storage", "lab_id", lab.ID, "rules_path", rulesPath)
	return newServer(nil, labs), nil
}

func newServer(db *sql.DB, labs *multilab.Manager) *Server {
	s := &Server{
		db:   db,
		labs: labs,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(requestMetrics)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Get("/api/v1/metrics", s.handleMetrics)

	r.Route("/api/v1/labs", func(r chi.Router) {
		r.Get("/", s.handleListLabs)
		r.Post("/", s.handleCreateLab)

		r.Route("/{labId}", func(r chi.Router) {
			r.Delete("/", s.handleDeleteLab)
			r.Post("/reload", s.handleReloadLab)
			r.Post("/parse", s.handleParse)

			r.Get("/definitions", s.handleListDefinitions)
			r.Post("/definitions", s.handleCreateDefinition)
			r.Get("/definitions/{definitionId}", s.handleGetDefinition)
			r.Put("/definitions/{definitionId}", s.handleUpdateDefinition)
			r.Delete("/definitions/{definitionId}", s.handleDeleteDefinition)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestMetrics feeds response statuses and slow requests into the logger
// counters.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		switch {
		case status >= 500:
			logger.ErrorHttp5xx()
		case status >= 400:
			logger.WarnHttp4xx(status)
		}
		if elapsed := time.Since(start); elapsed > slowRequestThreshold {
			logger.WarnSlowRequest()
			logger.Debug("slow request", "method", r.Method, "path", r.URL.Path, "elapsed", elapsed)
		}
	})
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	if status >= 500 {
		logger.Error(message, "error", err)
	}
	respondJSON(w, status, response)
}

// respondStoreError maps domain errors onto HTTP statuses.
func respondStoreError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, rules.ErrInvalidDefinition):
		respondError(w, http.StatusBadRequest, "validation failed", err)
	case errors.Is(err, rules.ErrNotFound), errors.Is(err, multilab.ErrLabNotFound):
		respondError(w, http.StatusNotFound, message, err)
	case errors.Is(err, rules.ErrAlreadyExists):
		respondError(w, http.StatusConflict, message, err)
	default:
		respondError(w, http.StatusInternalServerError, message, err)
	}
}

func definitionID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "definitionId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid definition id %q", raw)
	}
	return id, nil
}

func main() {
	fs := pflag.NewFlagSet("labparser-server", pflag.ExitOnError)
	config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	settings, err := config.LoadSettingsWithFlags(fs)
	if err != nil {
		logger.Fatal("failed to load settings", "error", err)
	}
	if err := config.ValidateSettings(settings); err != nil {
		logger.Fatal("invalid settings", "error", err)
	}
	logger.Info("settings", "settings", settings)

	server, err := NewServer(settings)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}
	if server.db != nil {
		defer server.db.Close()
	}

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(settings.Host, strconv.Itoa(settings.Port)),
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	_ = logger.Shutdown(ctx)

	logger.Info("server stopped")
}
