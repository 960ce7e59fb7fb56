package domain

import "errors"

var (
	ErrInvalidJurisdiction = errors.New("invalid_jurisdiction")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidTaxRate      = errors.New("invalid_tax_rate")
	ErrInvalidTimezone     = errors.New("invalid_timezone")
	ErrNoDefaultRates      = errors.New("no_default_jurisdiction_rates")
	ErrRatesUnavailable    = errors.New("tax_rates_unavailable")
)
