package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBillingPolicyDefaultsWithoutFile(t *testing.T) {
	holder, err := NewBillingPolicyHolder(t.TempDir())
	require.NoError(t, err)

	policy := holder.Get()
	assert.Equal(t, 7*24*time.Hour, policy.TrialPeriod)
	assert.Equal(t, 3*24*time.Hour, policy.GracePeriod)
	assert.Equal(t, 14, policy.CoolingOffDays)
	assert.Equal(t, "NS", policy.InvoicePrefix)
}

func TestBillingPolicyFromFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`billing:
  trialPeriod: 336h
  gracePeriod: 48h
  coolingOffDays: 14
  invoicePrefix: NB
  plans:
    - displayName: Premium Yearly
      tier: premium
      price: 7999
      currency: CAD
      interval: yearly
      features: [growth_charts, export]
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "billing.yml"), content, 0o600))

	holder, err := NewBillingPolicyHolder(dir)
	require.NoError(t, err)

	policy := holder.Get()
	assert.Equal(t, 14*24*time.Hour, policy.TrialPeriod)
	assert.Equal(t, 48*time.Hour, policy.GracePeriod)
	assert.Equal(t, "NB", policy.InvoicePrefix)
	require.Len(t, policy.Plans, 1)
	assert.Equal(t, []string{"growth_charts", "export"}, policy.Plans[0].Features)
}

func TestBillingPolicyRejectsInvalidInterval(t *testing.T) {
	err := validateBillingPolicy(BillingPolicy{
		TrialPeriod:    time.Hour,
		GracePeriod:    time.Hour,
		CoolingOffDays: 14,
		InvoicePrefix:  "NS",
		Plans:          []PlanSeed{{DisplayName: "Weekly", Interval: "weekly"}},
	})
	assert.Error(t, err)
}
