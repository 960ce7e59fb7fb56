package domain

import "time"

// DefaultRates is the built-in table served when the rate source has never
// loaded successfully.
func DefaultRates() []TaxRate {
	return []TaxRate{
		{Jurisdiction: "CA", Component: ComponentGST, Rate: "0.05", Position: 0, Timezone: "America/Toronto"},
		{Jurisdiction: "CA-AB", Component: ComponentGST, Rate: "0.05", Position: 0, Timezone: "America/Edmonton"},
		{Jurisdiction: "CA-QC", Component: ComponentGST, Rate: "0.05", Position: 0, Timezone: "America/Toronto"},
		{Jurisdiction: "CA-QC", Component: ComponentQST, Rate: "0.09975", Position: 1, Timezone: "America/Toronto"},
		{Jurisdiction: "CA-ON", Component: ComponentHST, Rate: "0.13", Position: 0, Timezone: "America/Toronto"},
		{Jurisdiction: "CA-BC", Component: ComponentGST, Rate: "0.05", Position: 0, Timezone: "America/Vancouver"},
		{Jurisdiction: "CA-BC", Component: ComponentPST, Rate: "0.07", Position: 1, Timezone: "America/Vancouver"},
		{Jurisdiction: "CA-NS", Component: ComponentHST, Rate: "0.14", Position: 0, Timezone: "America/Halifax"},
	}
}

// DefaultRateTable builds the built-in table. It panics only if the seed rows
// are malformed.
func DefaultRateTable() *RateTable {
	table, err := NewRateTable(DefaultRates(), time.Time{})
	if err != nil {
		panic(err)
	}
	return table
}
