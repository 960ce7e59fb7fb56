package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/nestbill/internal/config"
	subscriptiondomain "github.com/smallbiznis/nestbill/internal/subscription/domain"
	"gorm.io/datatypes"
)

var defaultPremiumFeatures = []string{
	"ad_free",
	"offline_downloads",
	"priority_support",
	"advanced_reports",
}

// DefaultPlanSeeds is the built-in premium catalog used when the billing
// policy file lists no plans.
func DefaultPlanSeeds() []config.PlanSeed {
	return []config.PlanSeed{
		{Tier: "premium", DisplayName: "Premium", Price: 999, Currency: "CAD", Interval: "monthly", Features: defaultPremiumFeatures},
		{Tier: "premium", DisplayName: "Premium", Price: 9999, Currency: "CAD", Interval: "yearly", Features: defaultPremiumFeatures},
	}
}

// PlanCode derives a stable code from a display name and interval, e.g.
// "Premium Plus" yearly becomes premium-plus-yearly.
func PlanCode(displayName string, interval subscriptiondomain.Interval) string {
	return slug.Make(fmt.Sprintf("%s %s", displayName, interval))
}

// PlansFromSeeds converts policy seeds into catalog rows.
func PlansFromSeeds(seeds []config.PlanSeed, now time.Time) ([]Plan, error) {
	if len(seeds) == 0 {
		seeds = DefaultPlanSeeds()
	}
	plans := make([]Plan, 0, len(seeds))
	for _, seed := range seeds {
		interval := subscriptiondomain.Interval(strings.ToLower(strings.TrimSpace(seed.Interval)))
		if !interval.Valid() {
			return nil, ErrInvalidPlan
		}
		code := strings.TrimSpace(seed.Code)
		if code == "" {
			code = PlanCode(seed.DisplayName, interval)
		} else {
			code = slug.Make(code)
		}
		if code == "" || seed.Price < 0 {
			return nil, ErrInvalidPlan
		}
		tier := strings.TrimSpace(seed.Tier)
		if tier == "" {
			tier = "premium"
		}
		currency := strings.ToUpper(strings.TrimSpace(seed.Currency))
		if currency == "" {
			currency = "CAD"
		}
		plans = append(plans, Plan{
			Code:            code,
			Tier:            tier,
			DisplayName:     strings.TrimSpace(seed.DisplayName),
			Price:           seed.Price,
			Currency:        currency,
			BillingInterval: interval,
			Features:        datatypes.NewJSONSlice(append([]string(nil), seed.Features...)),
			Active:          true,
			CreatedAt:       now.UTC(),
		})
	}
	return plans, nil
}
