package receipt_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	invoicedomain "github.com/smallbiznis/nestbill/internal/invoice/domain"
	"github.com/smallbiznis/nestbill/internal/receipt"
	subscriptiondomain "github.com/smallbiznis/nestbill/internal/subscription/domain"
	"github.com/smallbiznis/nestbill/internal/testutil/stack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2025, 10, 3, 15, 0, 0, 0, time.UTC)

type capturingRenderer struct {
	data receipt.Data
	err  error
}

func (r *capturingRenderer) Render(ctx context.Context, data receipt.Data) ([]byte, error) {
	r.data = data
	if r.err != nil {
		return nil, r.err
	}
	return []byte("rendered"), nil
}

func newService(s *stack.Stack, renderer receipt.Renderer) *receipt.Service {
	return receipt.NewService(receipt.Params{
		DB:       s.DB,
		Log:      s.Log,
		Records:  s.InvoiceRepo,
		Subs:     s.Subs,
		Plans:    s.Plans,
		Tax:      s.Tax,
		Renderer: renderer,
	})
}

func convertedRecord(t *testing.T, s *stack.Stack) *invoicedomain.BillingRecord {
	t.Helper()
	ctx := context.Background()
	view, err := s.Subscriptions.StartTrial(ctx, subscriptiondomain.StartTrialRequest{
		CustomerRef:  "cust_1",
		PlanCode:     "premium-monthly",
		Jurisdiction: "CA-QC",
	})
	require.NoError(t, err)
	_, err = s.Subscriptions.ConvertToPaid(ctx, subscriptiondomain.ConvertRequest{
		SubscriptionID:   view.ID,
		PaymentMethodRef: "pm_card_visa",
	})
	require.NoError(t, err)

	record, err := s.InvoiceRepo.LatestPayment(ctx, s.DB, view.ID)
	require.NoError(t, err)
	require.NotNil(t, record)
	return record
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "CAD 11.49", receipt.FormatAmount(1149, "CAD"))
	assert.Equal(t, "CAD -114.96", receipt.FormatAmount(-11496, "CAD"))
	assert.Equal(t, "USD 0.05", receipt.FormatAmount(5, "USD"))
	assert.Equal(t, "CAD 0.00", receipt.FormatAmount(0, "CAD"))
}

func TestRenderBuildsPaymentReceipt(t *testing.T) {
	s := stack.New(t, start)
	record := convertedRecord(t, s)
	renderer := &capturingRenderer{}

	out, err := newService(s, renderer).Render(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, out.RecordID)
	assert.Equal(t, record.SubscriptionID, out.SubscriptionID)
	assert.Equal(t, "cust_1", out.CustomerRef)
	assert.Equal(t, "NS-2025-10-00001.pdf", out.Filename)
	assert.Equal(t, []byte("rendered"), out.Content)

	data := renderer.data
	assert.Equal(t, "Receipt", data.Title)
	assert.Equal(t, "NS-2025-10-00001", data.InvoiceNumber)
	assert.Equal(t, "2025-10-03", data.IssuedOn)
	assert.Equal(t, "Premium", data.PlanName)
	assert.Equal(t, "CA-QC", data.Jurisdiction)
	assert.Contains(t, data.ExternalRef, "ch_sandbox_")
	assert.Equal(t, []receipt.Line{
		{Description: "Premium", Amount: "CAD 9.99"},
		{Description: "GST (0.05)", Amount: "CAD 0.50"},
		{Description: "QST (0.09975)", Amount: "CAD 1.00"},
	}, data.Lines)
	assert.Equal(t, "CAD 9.99", data.Subtotal)
	assert.Equal(t, "CAD 1.50", data.TaxTotal)
	assert.Equal(t, "CAD 11.49", data.Total)
}

func TestRenderUnknownRecord(t *testing.T) {
	s := stack.New(t, start)
	svc := newService(s, &capturingRenderer{})

	_, err := svc.Render(context.Background(), 0)
	assert.ErrorIs(t, err, invoicedomain.ErrBillingRecordNotFound)

	_, err = svc.Render(context.Background(), s.Node.Generate())
	assert.ErrorIs(t, err, invoicedomain.ErrBillingRecordNotFound)
}

func TestRenderPropagatesRendererError(t *testing.T) {
	s := stack.New(t, start)
	record := convertedRecord(t, s)
	boom := errors.New("boom")

	_, err := newService(s, &capturingRenderer{err: boom}).Render(context.Background(), record.ID)
	assert.ErrorIs(t, err, boom)
}

func TestPDFRendererProducesPDF(t *testing.T) {
	content, err := receipt.NewPDFRenderer().Render(context.Background(), receipt.Data{
		Title:         "Receipt",
		InvoiceNumber: "NS-2025-10-00001",
		IssuedOn:      "2025-10-03",
		Lines:         []receipt.Line{{Description: "Premium", Amount: "CAD 9.99"}},
		Subtotal:      "CAD 9.99",
		TaxTotal:      "CAD 0.50",
		Total:         "CAD 10.49",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(content, []byte("%PDF")))
}

func TestPDFRendererHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := receipt.NewPDFRenderer().Render(ctx, receipt.Data{})
	assert.ErrorIs(t, err, context.Canceled)
}
