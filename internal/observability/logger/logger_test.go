package logger

import (
	"context"
	"testing"
	"time"

	obscontext "github.com/smallbiznis/nestbill/internal/observability/context"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSamplingNeverDropsWarnings(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := zap.New(sampleBelowWarn(core, Config{
		SamplingInitial:    1,
		SamplingThereafter: 1000,
		SamplingWindow:     time.Minute,
	}))

	for range 5 {
		log.Info("sweep tick")
		log.Error("reconcile failed")
	}

	require.Len(t, logs.FilterMessage("sweep tick").All(), 1)
	require.Len(t, logs.FilterMessage("reconcile failed").All(), 5)
}

func TestWithContextOmitsCustomerID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	WithContext(obscontext.WithActor(ctx, "customer", "cus_123"), base).Info("customer")
	WithContext(obscontext.WithActor(ctx, "system", "scheduler"), base).Info("system")

	customer := logs.FilterMessage("customer").All()[0].ContextMap()
	require.Equal(t, "req-1", customer["request_id"])
	require.Equal(t, "customer", customer["actor_type"])
	require.NotContains(t, customer, "actor_id")

	system := logs.FilterMessage("system").All()[0].ContextMap()
	require.Equal(t, "scheduler", system["actor_id"])
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(nil, Config{Level: "loud"})
	require.Error(t, err)
}

func TestNormalizeFormat(t *testing.T) {
	require.Equal(t, "console", normalizeFormat(" Console "))
	require.Equal(t, "json", normalizeFormat("logfmt"))
}
