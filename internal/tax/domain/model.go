package domain

import (
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
)

// Component codes used by the seeded Canadian table.
// Do NOT rename once used in billing records.
const (
	ComponentGST = "GST"
	ComponentHST = "HST"
	ComponentQST = "QST"
	ComponentPST = "PST"
)

// MaxAmount caps a taxable subtotal in minor units. Component rates are at
// most 1, so totals stay far below the int64 range.
const MaxAmount int64 = 1_000_000_000_000

// TaxRate is one persisted component row of the jurisdiction rate table.
type TaxRate struct {
	Jurisdiction string    `gorm:"primaryKey;type:text"`
	Component    string    `gorm:"primaryKey;type:text"`
	Rate         string    `gorm:"type:text;not null"` // decimal fraction, e.g. 0.09975
	Position     int       `gorm:"not null;default:0"`
	Timezone     string    `gorm:"type:text;not null;default:'UTC'"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (TaxRate) TableName() string { return "tax_rates" }

// Component is a named, independently rated portion of tax.
type Component struct {
	Name string
	Rate decimal.Decimal
}

// Jurisdiction groups the components applied for a code.
type Jurisdiction struct {
	Code       string
	Timezone   string
	Components []Component

	location *time.Location
}

// RateTable is an immutable snapshot. Callers must not mutate returned values.
type RateTable struct {
	jurisdictions map[string]Jurisdiction
	loadedAt      time.Time
}

// NewRateTable builds a snapshot from persisted rows. Rows for the same
// jurisdiction are ordered by Position.
func NewRateTable(rows []TaxRate, loadedAt time.Time) (*RateTable, error) {
	grouped := map[string][]TaxRate{}
	for _, row := range rows {
		code := NormalizeJurisdiction(row.Jurisdiction)
		if !ValidJurisdiction(code) {
			return nil, ErrInvalidJurisdiction
		}
		grouped[code] = append(grouped[code], row)
	}

	table := &RateTable{
		jurisdictions: make(map[string]Jurisdiction, len(grouped)),
		loadedAt:      loadedAt.UTC(),
	}
	for code, items := range grouped {
		sort.SliceStable(items, func(i, j int) bool { return items[i].Position < items[j].Position })

		j := Jurisdiction{Code: code, Timezone: strings.TrimSpace(items[0].Timezone)}
		for _, item := range items {
			rate, err := decimal.NewFromString(strings.TrimSpace(item.Rate))
			if err != nil || rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
				return nil, ErrInvalidTaxRate
			}
			j.Components = append(j.Components, Component{
				Name: strings.ToUpper(strings.TrimSpace(item.Component)),
				Rate: rate,
			})
		}
		if j.Timezone == "" {
			j.Timezone = "UTC"
		}
		loc, err := time.LoadLocation(j.Timezone)
		if err != nil {
			return nil, ErrInvalidTimezone
		}
		j.location = loc
		table.jurisdictions[code] = j
	}
	return table, nil
}

func (t *RateTable) Lookup(code string) (Jurisdiction, bool) {
	if t == nil {
		return Jurisdiction{}, false
	}
	j, ok := t.jurisdictions[NormalizeJurisdiction(code)]
	return j, ok
}

// Location returns the time zone anchoring local calendar days for code,
// or UTC when the code is unknown.
func (t *RateTable) Location(code string) *time.Location {
	j, ok := t.Lookup(code)
	if !ok || j.location == nil {
		return time.UTC
	}
	return j.location
}

func (t *RateTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.jurisdictions)
}

func (t *RateTable) LoadedAt() time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.loadedAt
}

// ComponentAmount is a computed tax line.
type ComponentAmount struct {
	Name   string `json:"name"`
	Rate   string `json:"rate"`
	Amount int64  `json:"amount"`
}

// Breakdown is the result of a tax computation. Total is always
// Subtotal + TaxTotal and TaxTotal is always the sum of component amounts.
type Breakdown struct {
	Jurisdiction string            `json:"jurisdiction"`
	FallbackFrom string            `json:"fallback_from,omitempty"`
	Subtotal     int64             `json:"subtotal"`
	Components   []ComponentAmount `json:"components"`
	TaxTotal     int64             `json:"tax_total"`
	Total        int64             `json:"total"`
}

// Balanced checks the sum invariant.
func (b Breakdown) Balanced() bool {
	var sum int64
	for _, c := range b.Components {
		sum += c.Amount
	}
	return sum == b.TaxTotal && b.Subtotal+sum == b.Total
}

// Negate returns the breakdown with every amount sign-flipped, used for refunds.
func (b Breakdown) Negate() Breakdown {
	out := b
	out.Components = make([]ComponentAmount, len(b.Components))
	for i, c := range b.Components {
		c.Amount = -c.Amount
		out.Components[i] = c
	}
	out.Subtotal = -b.Subtotal
	out.TaxTotal = -b.TaxTotal
	out.Total = -b.Total
	return out
}
