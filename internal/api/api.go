// Package api provides the HTTP server for Finivo.
//
// It exposes the nudge pipeline, nudge history, E.A.R.N. session inspection,
// plan updates and regret memory ingest and search over JSON endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/Moneymaker1996/finivo-backend/internal/cache"
	"github.com/Moneymaker1996/finivo-backend/internal/gate"
	"github.com/Moneymaker1996/finivo-backend/internal/genai"
	"github.com/Moneymaker1996/finivo-backend/internal/impulse"
	"github.com/Moneymaker1996/finivo-backend/internal/memory"
	"github.com/Moneymaker1996/finivo-backend/internal/models"
	"github.com/Moneymaker1996/finivo-backend/internal/nudge"
	"github.com/Moneymaker1996/finivo-backend/internal/plan"
	"github.com/Moneymaker1996/finivo-backend/internal/store"
	"github.com/Moneymaker1996/finivo-backend/internal/util"
)

const (
	// DefaultAddr is the listen address when none is configured.
	DefaultAddr = ":8080"
	// DefaultEARNLimit is the number of E.A.R.N. sessions returned by default.
	DefaultEARNLimit = 5
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 15 * time.Second
)

// Opts holds API server configuration.
type Opts struct {
	Addr           string
	RedisAddr      string
	ClassifierMode impulse.Mode
	GateOrder      gate.Order
	QuotaWindow    gate.Window
	MemoryMode     nudge.MemoryMode
	// AdminMode exposes the E.A.R.N. inspection and plan update endpoints.
	AdminMode bool
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithRedisAddr enables the Redis plan cache.
func WithRedisAddr(addr string) Option {
	return func(o *Opts) { o.RedisAddr = addr }
}

// WithClassifierMode selects strict or soft impulse scoring.
func WithClassifierMode(m impulse.Mode) Option {
	return func(o *Opts) { o.ClassifierMode = m }
}

// WithGateOrder selects whether the budget or quota check runs first.
func WithGateOrder(order gate.Order) Option {
	return func(o *Opts) { o.GateOrder = order }
}

// WithQuotaWindow selects the window nudges are counted over.
func WithQuotaWindow(w gate.Window) Option {
	return func(o *Opts) { o.QuotaWindow = w }
}

// WithMemoryMode selects how regret memories influence persuasion.
func WithMemoryMode(m nudge.MemoryMode) Option {
	return func(o *Opts) { o.MemoryMode = m }
}

// WithAdminMode exposes debugging endpoints.
func WithAdminMode(enabled bool) Option {
	return func(o *Opts) { o.AdminMode = enabled }
}

func defaultOpts() Opts {
	return Opts{
		Addr:           DefaultAddr,
		ClassifierMode: impulse.ModeStrict,
		GateOrder:      gate.OrderBudgetFirst,
		QuotaWindow:    gate.WindowMonthly,
		MemoryMode:     nudge.MemoryModeStrict,
	}
}

// PlanStore reads and changes user tiers.
type PlanStore interface {
	UserPlan(ctx context.Context, userID int64) (plan.Tier, error)
	SetUserPlan(ctx context.Context, userID int64, tier plan.Tier) error
}

// Server handles HTTP requests.
type Server struct {
	opts   Opts
	engine *nudge.Engine
	st     store.Store
	plans  PlanStore
	memory *memory.Service
}

// NewServer creates a server over the given engine, store and memory service.
// Plan changes go to st until WithPlanStore replaces it.
func NewServer(engine *nudge.Engine, st store.Store, mem *memory.Service, opts ...Option) *Server {
	cfg := defaultOpts()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{opts: cfg, engine: engine, st: st, plans: st, memory: mem}
}

// WithPlanStore routes plan changes through p, typically the plan cache the
// engine reads from.
func (s *Server) WithPlanStore(p PlanStore) *Server {
	if p != nil {
		s.plans = p
	}
	return s
}

// Routes returns the router with all endpoints registered.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware)

	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/nudge/history/{user_id}", s.nudgeHistoryHandler).Methods(http.MethodGet)
	r.HandleFunc("/nudge/earn/{user_id}", s.earnSessionsHandler).Methods(http.MethodGet)
	r.HandleFunc("/nudge/{user_id}", s.nudgeHandler).Methods(http.MethodPost)
	r.HandleFunc("/users/{user_id}/plan", s.planUpdateHandler).Methods(http.MethodPut)
	r.HandleFunc("/memory/store/{user_id}", s.memoryStoreHandler).Methods(http.MethodPost)
	r.HandleFunc("/memory/search/{user_id}", s.memorySearchHandler).Methods(http.MethodPost)
	return r
}

// requestIDMiddleware tags each request with a correlation ID.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = util.NewRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		slog.Debug("Server.request", "request_id", id, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// Run wires the store, memory service, engine and HTTP server, then serves
// until SIGINT or SIGTERM.
func Run(storeOpts []store.Option, genaiOpts []genai.Option, apiOpts []Option) error {
	cfg := defaultOpts()
	for _, opt := range apiOpts {
		opt(&cfg)
	}

	st, err := openStore(storeOpts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			slog.Warn("Run: failed to close store", "error", cerr)
		}
	}()

	var (
		factory  memory.EmbedderFactory
		rewriter nudge.Rewriter
	)
	ai, err := genai.NewClient(genaiOpts...)
	if err != nil {
		slog.Warn("Run: GenAI client unavailable, using hashing embedder and static nudges", "error", err)
	} else {
		factory = func() (memory.Embedder, error) { return ai, nil }
		rewriter = ai
	}
	mem := memory.NewService(st, factory, models.SystemClock{})

	var plans PlanStore = st
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		plans = cache.NewPlanCache(rdb, st, cache.DefaultPlanTTL)
		slog.Info("Run: plan cache enabled", "redis_addr", cfg.RedisAddr)
	}

	gateCfg := gate.DefaultConfig()
	gateCfg.Order = cfg.GateOrder
	gateCfg.Window = cfg.QuotaWindow

	engineOpts := []nudge.Option{
		nudge.WithClassifierOptions(impulse.OptionsForMode(cfg.ClassifierMode)),
		nudge.WithGateConfig(gateCfg),
		nudge.WithMemoryMode(cfg.MemoryMode),
		nudge.WithMemory(mem),
		nudge.WithPlanLookup(plans),
	}
	if rewriter != nil {
		engineOpts = append(engineOpts, nudge.WithRewriter(rewriter))
	}
	engine := nudge.NewEngine(st, st, engineOpts...)

	srv := NewServer(engine, st, mem, apiOpts...).WithPlanStore(plans)
	httpServer := &http.Server{
		Addr:              srv.opts.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Finivo API listening", "addr", httpServer.Addr,
			"classifier_mode", cfg.ClassifierMode, "gate_order", cfg.GateOrder,
			"quota_window", cfg.QuotaWindow, "memory_mode", cfg.MemoryMode, "admin_mode", cfg.AdminMode)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Run: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openStore opens the configured SQL store, or an in-memory store when no
// DSN is set.
func openStore(storeOpts []store.Option) (store.Store, error) {
	var so store.Opts
	for _, opt := range storeOpts {
		opt(&so)
	}
	if so.DSN == "" {
		slog.Warn("openStore: no DSN configured, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	st, err := store.Open(so.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	slog.Info("openStore: store ready", "type", store.DetectDSNType(so.DSN))
	return st, nil
}
