package domain

import "errors"

var (
	ErrProviderNotFound = errors.New("payment_provider_not_found")
	ErrInvalidConfig    = errors.New("invalid_payment_config")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrEventIgnored     = errors.New("event_ignored")

	ErrPaymentDeclined    = errors.New("payment_declined")
	ErrGatewayUnavailable = errors.New("payment_gateway_unavailable")
)
