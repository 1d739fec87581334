package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finassist/internal/adapter/gateway"
	"finassist/internal/adapter/llm"
	"finassist/internal/adapter/store"
	"finassist/internal/adapter/tool"
	"finassist/internal/domain"
	"finassist/internal/infra/config"
	"finassist/internal/infra/logger"
	"finassist/internal/infra/tracer"
	"finassist/internal/usecase"
	"finassist/internal/usecase/eventbus"
	"finassist/internal/usecase/streammux"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Config
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerShutdown(shutdownCtx); err != nil {
			log.Error("tracer shutdown error", "error", err)
		}
	}()

	// 3. Expense store
	st, err := buildStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			log.Error("store close error", "error", err)
		}
	}()

	// 4. Tools
	cache := tool.NewResultCache(cfg.Tools.CacheTTL, nil)
	registry := tool.NewRegistry(log, cfg.Tools.SchemaValidation)

	tools := []domain.Tool{
		tool.NewRecentExpensesTool(st, cache, log, cfg.Tools.DefaultLimit, cfg.Tools.MaxLimit),
		tool.NewCategoryDistributionTool(st, cache, log),
		tool.NewRenderChartTool(log),
	}
	for _, t := range tools {
		if err := registry.Register(t); err != nil {
			return fmt.Errorf("register tool %s: %w", t.Name(), err)
		}
	}

	// 5. LLM provider
	var provider domain.LLMProvider = llm.NewProvider(cfg.LLM.Provider, log)
	if cfg.LLM.CircuitBreaker.Enabled {
		provider = llm.NewBreakerProvider(provider, cfg.LLM.CircuitBreaker, log)
	}

	// 6. Event bus
	bus := eventbus.New(log)
	defer bus.Close()

	// 7. Agent & multiplexer
	agent := usecase.NewAgent(usecase.AgentDeps{
		LLM:           provider,
		Tools:         registry,
		Logger:        log,
		Bus:           bus,
		SystemPrompt:  cfg.Agent.SystemPrompt,
		Model:         cfg.LLM.Provider.Model,
		MaxIterations: cfg.Agent.MaxIterations,
		Timeout:       cfg.Agent.Timeout,
	})
	mux := streammux.New(log, bus)

	// 8. Gateway
	srv := gateway.NewServer(cfg.Server, agent, mux, st, log)

	log.Info("finassist starting",
		"addr", cfg.Server.Addr,
		"provider", provider.Name(),
		"model", cfg.LLM.Provider.Model,
		"store", cfg.Store.Driver,
		"tools", len(registry.Schemas()),
	)

	return srv.Start(ctx)
}

// buildStore creates the expense store named by the config driver.
func buildStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (domain.ExpenseStore, error) {
	switch cfg.Store.Driver {
	case "mongo":
		connectCtx, cancel := context.WithTimeout(ctx, cfg.Store.Timeout)
		defer cancel()
		s, err := store.NewMongoStore(connectCtx, cfg.Store, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.Store.Driver)
	}
}
