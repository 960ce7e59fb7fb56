package ratecache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallbiznis/nestbill/internal/clock"
	"github.com/smallbiznis/nestbill/internal/config"
	obsmetrics "github.com/smallbiznis/nestbill/internal/observability/metrics"
	taxdomain "github.com/smallbiznis/nestbill/internal/tax/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultRefreshInterval = 24 * time.Hour

// Loader fetches the persisted rate rows.
type Loader func(ctx context.Context) ([]taxdomain.TaxRate, error)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	DB        *gorm.DB
	Repo      taxdomain.Repository
	Config    config.Config
	Clock     clock.Clock
	Log       *zap.Logger
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

// Cache serves the current rate table without blocking readers. A refresh
// swaps the whole table in one pointer store.
type Cache struct {
	current  atomic.Pointer[taxdomain.RateTable]
	load     Loader
	interval time.Duration
	clock    clock.Clock
	log      *zap.Logger
	metrics  *obsmetrics.Metrics

	stop chan struct{}
	wg   sync.WaitGroup
}

// Provide wires the cache to the database and ties its refresh loop to the
// application lifecycle.
func Provide(p Params) taxdomain.RateProvider {
	load := func(ctx context.Context) ([]taxdomain.TaxRate, error) {
		return p.Repo.ListRates(ctx, p.DB)
	}
	c := New(load, p.Config.Tax.RefreshInterval, p.Clock, p.Log, p.Metrics)
	p.Lifecycle.Append(fx.Hook{
		OnStart: c.Start,
		OnStop: func(context.Context) error {
			c.Stop()
			return nil
		},
	})
	return c
}

// New builds a cache primed with the built-in table.
func New(load Loader, interval time.Duration, clk clock.Clock, log *zap.Logger, metrics *obsmetrics.Metrics) *Cache {
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	if clk == nil {
		clk = clock.System()
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Cache{
		load:     load,
		interval: interval,
		clock:    clk,
		log:      log.Named("tax.ratecache"),
		metrics:  metrics,
		stop:     make(chan struct{}),
	}
	c.current.Store(taxdomain.DefaultRateTable())
	return c
}

func (c *Cache) Table() *taxdomain.RateTable {
	return c.current.Load()
}

// Refresh reloads the table. On failure the previous table stays in place.
func (c *Cache) Refresh(ctx context.Context) error {
	if c.load == nil {
		return taxdomain.ErrRatesUnavailable
	}
	rows, err := c.load(ctx)
	if err == nil && len(rows) == 0 {
		err = taxdomain.ErrRatesUnavailable
	}
	var table *taxdomain.RateTable
	if err == nil {
		table, err = taxdomain.NewRateTable(rows, c.clock.Now())
	}
	if err != nil {
		c.metrics.RecordRateRefresh(ctx, "error")
		c.log.Warn("tax rate refresh failed, keeping previous table",
			zap.Time("table_loaded_at", c.Table().LoadedAt()),
			zap.Error(err),
		)
		return err
	}

	c.current.Store(table)
	c.metrics.RecordRateRefresh(ctx, "ok")
	c.log.Info("tax rates refreshed", zap.Int("jurisdictions", table.Len()))
	return nil
}

// Start performs the initial load and launches the periodic refresh. An
// unavailable source is not fatal; the built-in table keeps serving.
func (c *Cache) Start(ctx context.Context) error {
	if err := c.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.log.Warn("serving built-in tax rates", zap.Error(err))
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				refreshCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
				_ = c.Refresh(refreshCtx)
				cancel()
			}
		}
	}()
	return nil
}

func (c *Cache) Stop() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	c.wg.Wait()
}
