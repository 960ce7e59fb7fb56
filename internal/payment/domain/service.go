package domain

import (
	"context"
	"net/http"

	reconciliationdomain "github.com/smallbiznis/nestbill/internal/reconciliation/domain"
)

// IngestResult is the webhook acknowledgement. Result is nil when the event
// type was ignored.
type IngestResult struct {
	Provider string
	Ignored  bool
	Result   *reconciliationdomain.Result
}

type WebhookService interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (IngestResult, error)
}
