package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingPolicy carries the lifecycle durations and invoice settings that operators
// may change without a redeploy.
type BillingPolicy struct {
	TrialPeriod    time.Duration `mapstructure:"trialPeriod"`
	GracePeriod    time.Duration `mapstructure:"gracePeriod"`
	CoolingOffDays int           `mapstructure:"coolingOffDays"`
	InvoicePrefix  string        `mapstructure:"invoicePrefix"`
	Plans          []PlanSeed    `mapstructure:"plans"`
}

// PlanSeed describes a catalog entry to ensure on startup.
type PlanSeed struct {
	Code        string   `mapstructure:"code"`
	Tier        string   `mapstructure:"tier"`
	DisplayName string   `mapstructure:"displayName"`
	Price       int64    `mapstructure:"price"`
	Currency    string   `mapstructure:"currency"`
	Interval    string   `mapstructure:"interval"`
	Features    []string `mapstructure:"features"`
}

func DefaultBillingPolicy() BillingPolicy {
	return BillingPolicy{
		TrialPeriod:    7 * 24 * time.Hour,
		GracePeriod:    3 * 24 * time.Hour,
		CoolingOffDays: 14,
		InvoicePrefix:  "NS",
	}
}

type BillingPolicyHolder struct {
	current atomic.Value // holds BillingPolicy
}

// NewBillingPolicyHolder reads billing.yml from the usual config paths and keeps
// watching it. A missing file yields the defaults.
func NewBillingPolicyHolder(extraDir string) (*BillingPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	if dir := strings.TrimSpace(extraDir); dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath("/etc/nestbill")
	v.AddConfigPath(".")

	v.SetEnvPrefix("NESTBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingPolicy()
	v.SetDefault("billing.trialPeriod", defaults.TrialPeriod)
	v.SetDefault("billing.gracePeriod", defaults.GracePeriod)
	v.SetDefault("billing.coolingOffDays", defaults.CoolingOffDays)
	v.SetDefault("billing.invoicePrefix", defaults.InvoicePrefix)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var policy BillingPolicy
	if err := v.UnmarshalKey("billing", &policy); err != nil {
		return nil, err
	}
	if err := validateBillingPolicy(policy); err != nil {
		return nil, err
	}

	holder := &BillingPolicyHolder{}
	holder.current.Store(policy)

	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingPolicy
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			zap.L().Warn("billing policy reload failed", zap.String("file", e.Name), zap.Error(err))
			return
		}
		if err := validateBillingPolicy(updated); err != nil {
			zap.L().Warn("invalid billing policy ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		zap.L().Info("billing policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// NewStaticBillingPolicyHolder wraps a fixed policy.
func NewStaticBillingPolicyHolder(policy BillingPolicy) *BillingPolicyHolder {
	holder := &BillingPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func (h *BillingPolicyHolder) Get() BillingPolicy {
	if h == nil {
		return DefaultBillingPolicy()
	}
	return h.current.Load().(BillingPolicy)
}

func validateBillingPolicy(p BillingPolicy) error {
	if p.TrialPeriod <= 0 {
		return errors.New("billing.trialPeriod must be positive")
	}
	if p.GracePeriod <= 0 {
		return errors.New("billing.gracePeriod must be positive")
	}
	if p.CoolingOffDays <= 0 {
		return errors.New("billing.coolingOffDays must be positive")
	}
	if strings.TrimSpace(p.InvoicePrefix) == "" {
		return errors.New("billing.invoicePrefix cannot be empty")
	}
	for _, plan := range p.Plans {
		if plan.Price < 0 {
			return errors.New("billing.plans price cannot be negative")
		}
		switch strings.ToLower(strings.TrimSpace(plan.Interval)) {
		case "monthly", "yearly":
		default:
			return errors.New("billing.plans interval must be monthly or yearly")
		}
	}
	return nil
}
