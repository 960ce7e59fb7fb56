package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatInvoiceNumberDefaultTemplate(t *testing.T) {
	at := time.Date(2025, time.October, 15, 9, 30, 0, 0, time.UTC)

	got, err := FormatInvoiceNumber(DefaultInvoiceNumberTemplate, DefaultPrefix, at, 123)
	require.NoError(t, err)
	assert.Equal(t, "NS-2025-10-00123", got)
}

func TestFormatInvoiceNumberUsesUTCMonth(t *testing.T) {
	toronto, err := time.LoadLocation("America/Toronto")
	require.NoError(t, err)
	// 2025-10-31 21:00 in Toronto is already November in UTC.
	at := time.Date(2025, time.October, 31, 21, 0, 0, 0, toronto)

	got, err := FormatInvoiceNumber(DefaultInvoiceNumberTemplate, "NS", at, 1)
	require.NoError(t, err)
	assert.Equal(t, "NS-2025-11-00001", got)
	assert.Equal(t, "2025-11", YearMonth(at))
}

func TestFormatInvoiceNumberWideSequence(t *testing.T) {
	at := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	got, err := FormatInvoiceNumber(DefaultInvoiceNumberTemplate, "NS", at, 123456)
	require.NoError(t, err)
	assert.Equal(t, "NS-2025-01-123456", got)
}

func TestFormatInvoiceNumberRejectsBadInput(t *testing.T) {
	at := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	_, err := FormatInvoiceNumber("", "NS", at, 1)
	assert.Error(t, err)
	_, err = FormatInvoiceNumber(DefaultInvoiceNumberTemplate, "NS", at, 0)
	assert.Error(t, err)
	_, err = FormatInvoiceNumber(DefaultInvoiceNumberTemplate, "ns-x", at, 1)
	assert.Error(t, err)
	_, err = FormatInvoiceNumber("{PREFIX}-{DD}-{SEQ5}", "NS", at, 1)
	assert.Error(t, err)
}
