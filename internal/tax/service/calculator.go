package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/nestbill/internal/config"
	obsmetrics "github.com/smallbiznis/nestbill/internal/observability/metrics"
	taxdomain "github.com/smallbiznis/nestbill/internal/tax/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Rates   taxdomain.RateProvider
	Config  config.Config
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Calculator struct {
	rates               taxdomain.RateProvider
	defaultJurisdiction string
	log                 *zap.Logger
	metrics             *obsmetrics.Metrics
}

func NewService(p Params) taxdomain.Calculator {
	return New(p.Rates, p.Config.Tax.DefaultJurisdiction, p.Log, p.Metrics)
}

// New builds a calculator reading rates from rates. An empty default
// jurisdiction means CA.
func New(rates taxdomain.RateProvider, defaultJurisdiction string, log *zap.Logger, metrics *obsmetrics.Metrics) *Calculator {
	if log == nil {
		log = zap.NewNop()
	}
	def := taxdomain.NormalizeJurisdiction(defaultJurisdiction)
	if def == "" {
		def = "CA"
	}
	return &Calculator{
		rates:               rates,
		defaultJurisdiction: def,
		log:                 log.Named("tax.calculator"),
		metrics:             metrics,
	}
}

// Compute returns the per-component tax breakdown for subtotal, expressed in
// minor units. Each component is rounded half-up on its own and the total is
// the exact sum of the parts.
func (c *Calculator) Compute(subtotal int64, jurisdiction string) (taxdomain.Breakdown, error) {
	code := taxdomain.NormalizeJurisdiction(jurisdiction)
	if !taxdomain.ValidJurisdiction(code) {
		return taxdomain.Breakdown{}, taxdomain.ErrInvalidJurisdiction
	}
	if subtotal < 0 || subtotal > taxdomain.MaxAmount {
		return taxdomain.Breakdown{}, taxdomain.ErrInvalidAmount
	}

	table := c.rates.Table()
	if table == nil || table.Len() == 0 {
		return taxdomain.Breakdown{}, taxdomain.ErrRatesUnavailable
	}

	j, fallbackFrom, err := c.resolve(table, code)
	if err != nil {
		return taxdomain.Breakdown{}, err
	}

	base := decimal.NewFromInt(subtotal)
	breakdown := taxdomain.Breakdown{
		Jurisdiction: j.Code,
		FallbackFrom: fallbackFrom,
		Subtotal:     subtotal,
		Components:   make([]taxdomain.ComponentAmount, 0, len(j.Components)),
	}
	for _, component := range j.Components {
		amount := base.Mul(component.Rate).Round(0).IntPart()
		breakdown.Components = append(breakdown.Components, taxdomain.ComponentAmount{
			Name:   component.Name,
			Rate:   component.Rate.String(),
			Amount: amount,
		})
		breakdown.TaxTotal += amount
	}
	breakdown.Total = breakdown.Subtotal + breakdown.TaxTotal
	return breakdown, nil
}

// Quote backs the pricing preview. It never mutates state.
func (c *Calculator) Quote(ctx context.Context, req taxdomain.QuoteRequest) (taxdomain.Breakdown, error) {
	if err := ctx.Err(); err != nil {
		return taxdomain.Breakdown{}, err
	}
	return c.Compute(req.Amount, req.Jurisdiction)
}

func (c *Calculator) Location(jurisdiction string) *time.Location {
	table := c.rates.Table()
	code := taxdomain.NormalizeJurisdiction(jurisdiction)
	if _, ok := table.Lookup(code); ok {
		return table.Location(code)
	}
	return table.Location(c.defaultJurisdiction)
}

func (c *Calculator) resolve(table *taxdomain.RateTable, code string) (taxdomain.Jurisdiction, string, error) {
	if j, ok := table.Lookup(code); ok {
		return j, "", nil
	}

	j, ok := table.Lookup(c.defaultJurisdiction)
	if !ok {
		return taxdomain.Jurisdiction{}, "", taxdomain.ErrNoDefaultRates
	}
	c.log.Warn("unknown jurisdiction, using default",
		zap.String("requested", code),
		zap.String("default", c.defaultJurisdiction),
	)
	c.metrics.RecordTaxFallback(context.Background(), code)
	return j, code, nil
}
