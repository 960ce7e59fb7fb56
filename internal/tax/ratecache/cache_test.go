package ratecache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/nestbill/internal/clock"
	taxdomain "github.com/smallbiznis/nestbill/internal/tax/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, time.October, 1, 12, 0, 0, 0, time.UTC)

func TestNewServesBuiltInTable(t *testing.T) {
	c := New(nil, 0, clock.NewFakeClock(testNow), nil, nil)

	_, ok := c.Table().Lookup("CA-QC")
	assert.True(t, ok)
}

func TestRefreshSwapsTable(t *testing.T) {
	load := func(context.Context) ([]taxdomain.TaxRate, error) {
		return []taxdomain.TaxRate{
			{Jurisdiction: "CA", Component: "GST", Rate: "0.05", Timezone: "America/Toronto"},
			{Jurisdiction: "CA-ON", Component: "HST", Rate: "0.15", Timezone: "America/Toronto"},
		}, nil
	}
	c := New(load, time.Hour, clock.NewFakeClock(testNow), nil, nil)

	require.NoError(t, c.Refresh(context.Background()))

	j, ok := c.Table().Lookup("CA-ON")
	require.True(t, ok)
	assert.Equal(t, "0.15", j.Components[0].Rate.String())
	assert.Equal(t, testNow, c.Table().LoadedAt())
	_, ok = c.Table().Lookup("CA-QC")
	assert.False(t, ok)
}

func TestRefreshFailureKeepsPreviousTable(t *testing.T) {
	calls := 0
	load := func(context.Context) ([]taxdomain.TaxRate, error) {
		calls++
		if calls == 1 {
			return taxdomain.DefaultRates(), nil
		}
		return nil, errors.New("db down")
	}
	c := New(load, time.Hour, clock.NewFakeClock(testNow), nil, nil)
	require.NoError(t, c.Refresh(context.Background()))
	before := c.Table()

	require.Error(t, c.Refresh(context.Background()))
	assert.Same(t, before, c.Table())
}

func TestRefreshRejectsMalformedRows(t *testing.T) {
	load := func(context.Context) ([]taxdomain.TaxRate, error) {
		return []taxdomain.TaxRate{{Jurisdiction: "CA", Component: "GST", Rate: "five", Timezone: "UTC"}}, nil
	}
	c := New(load, time.Hour, clock.NewFakeClock(testNow), nil, nil)
	before := c.Table()

	err := c.Refresh(context.Background())
	assert.ErrorIs(t, err, taxdomain.ErrInvalidTaxRate)
	assert.Same(t, before, c.Table())
}

func TestStartWithUnavailableSourceKeepsBuiltIn(t *testing.T) {
	load := func(context.Context) ([]taxdomain.TaxRate, error) {
		return nil, errors.New("no such table")
	}
	c := New(load, time.Hour, clock.NewFakeClock(testNow), nil, nil)

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	_, ok := c.Table().Lookup("CA-BC")
	assert.True(t, ok)
}

func TestConcurrentReadsDuringRefresh(t *testing.T) {
	load := func(context.Context) ([]taxdomain.TaxRate, error) {
		return taxdomain.DefaultRates(), nil
	}
	c := New(load, time.Hour, clock.NewFakeClock(testNow), nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = c.Refresh(context.Background())
		}()
		go func() {
			defer wg.Done()
			_, ok := c.Table().Lookup("CA")
			assert.True(t, ok)
		}()
	}
	wg.Wait()
}
