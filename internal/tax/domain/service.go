package domain

import (
	"context"
	"time"
)

// Calculator computes tax breakdowns. Implementations must be free of side
// effects other than logging and metrics.
type Calculator interface {
	Compute(subtotal int64, jurisdiction string) (Breakdown, error)
	Quote(ctx context.Context, req QuoteRequest) (Breakdown, error)
	// Location returns the time zone anchoring local calendar days.
	Location(jurisdiction string) *time.Location
}

// RateProvider hands out the current immutable rate table.
type RateProvider interface {
	Table() *RateTable
}

// QuoteRequest backs the pricing preview surface.
type QuoteRequest struct {
	Amount       int64  `json:"amount"`
	Jurisdiction string `json:"jurisdiction"`
}
