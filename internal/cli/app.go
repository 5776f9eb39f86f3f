package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/claims"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fraud"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/policy"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/tables"
	"github.com/opensource-finance/kestrel/internal/underwriting"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// ruleWorkers bounds concurrent fraud factor evaluations per request.
const ruleWorkers = 8

// pipelines are the three evaluation pipelines sharing one set of tables.
type pipelines struct {
	tables       *tables.Tables
	claims       *claims.Pipeline
	fraud        *fraud.Detector
	underwriting *underwriting.Assessor
}

func newPipelines(t *tables.Tables, provider domain.PolicyDataProvider, recorder domain.OutcomeRecorder) (*pipelines, error) {
	engine, err := rules.NewEngineFromTables(t, ruleWorkers)
	if err != nil {
		return nil, fmt.Errorf("compile fraud factors: %w", err)
	}
	return &pipelines{
		tables:       t,
		claims:       claims.NewPipeline(t, provider, recorder),
		fraud:        fraud.NewDetector(t, engine, recorder),
		underwriting: underwriting.NewAssessor(t, recorder),
	}, nil
}

// app owns every long-lived collaborator of the server.
type app struct {
	cfg       *domain.Config
	pipelines *pipelines
	repo      *repository.SQLRepository
	store     *policy.StoreProvider
	cache     domain.Cache
	bus       domain.EventBus
	closers   []func() error
}

// newApp wires the collaborators selected by cfg. On error everything
// opened so far is closed.
func newApp(cfg *domain.Config, reg prometheus.Registerer) (*app, error) {
	a := &app{cfg: cfg}
	if err := a.open(reg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) open(reg prometheus.Registerer) error {
	cfg := a.cfg

	t, err := tables.Load(cfg.Tables.Path)
	if err != nil {
		return err
	}
	slog.Info("reference tables loaded", "version", t.Version, "path", cfg.Tables.Path)

	recorder := metrics.NewRecorder()
	if err := recorder.Register(reg); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	a.cache, err = cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	a.closers = append(a.closers, a.cache.Close)
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	a.bus, err = bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("initialize event bus: %w", err)
	}
	a.closers = append(a.closers, a.bus.Close)
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	ceiling := decimal.NewFromFloat(cfg.Policy.CoverageCeiling)

	var provider domain.PolicyDataProvider
	switch cfg.Policy.Provider {
	case "static", "":
		provider = policy.NewStaticProvider(ceiling)

	case "sql":
		a.repo, err = repository.New(cfg.Repository)
		if err != nil {
			return fmt.Errorf("initialize repository: %w", err)
		}
		a.closers = append(a.closers, a.repo.Close)
		slog.Info("repository initialized", "driver", cfg.Repository.Driver)

		a.store = policy.NewStoreProvider(a.repo, a.cache, cfg.Cache.PolicyTTL, ceiling)
		provider = a.store

	default:
		return fmt.Errorf("unsupported policy provider: %s", cfg.Policy.Provider)
	}
	slog.Info("policy provider initialized", "provider", cfg.Policy.Provider)

	a.pipelines, err = newPipelines(t, provider, recorder)
	if err != nil {
		return err
	}
	slog.Info("pipelines initialized", "fraud_factors", len(t.Fraud.Factors))

	return nil
}

// deps exposes the app to the HTTP layer.
func (a *app) deps(version string, gatherer prometheus.Gatherer) api.Deps {
	d := api.Deps{
		Tables:       a.pipelines.tables,
		Claims:       a.pipelines.claims,
		Fraud:        a.pipelines.fraud,
		Underwriting: a.pipelines.underwriting,
		Cache:        a.cache,
		Bus:          a.bus,
		Gatherer:     gatherer,
		Version:      version,
	}
	// Interface fields stay nil unless the SQL provider is in use.
	if a.store != nil {
		d.Policies = a.store
		d.Repository = a.repo
	}
	return d
}

// startWorker subscribes the async request worker when enabled. The
// worker is stopped by Close before the bus it reads from.
func (a *app) startWorker(ctx context.Context) (*worker.Worker, error) {
	if !a.cfg.Worker.Enabled {
		return nil, nil
	}
	w := worker.NewWorker(a.bus, worker.Pipelines{
		Claims:       a.pipelines.claims,
		Fraud:        a.pipelines.fraud,
		Underwriting: a.pipelines.underwriting,
	})
	if err := w.Start(ctx); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}
	a.closers = append(a.closers, w.Stop)
	return w, nil
}

// Close releases collaborators in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
