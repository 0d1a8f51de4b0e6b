// Package installments turns provider installment plans into display-ready
// offers. Offers are computed fresh from intent data on every response and
// never cached.
package installments

import (
	"fmt"
	"math"
	"strings"

	"github.com/noah-isme/storefront-payments/internal/common"
	"github.com/noah-isme/storefront-payments/internal/stripe"
)

// Offer is one display-ready installment option.
type Offer struct {
	Count             int64  `json:"count"`
	Interval          string `json:"interval"`
	Type              string `json:"type"`
	InstallmentAmount int64  `json:"installment_amount"`
	Text              string `json:"text"`
}

// FromPlans derives offers from the available plans of an intent. Amount is
// in minor units; the per-installment amount rounds up so the displayed
// figure never understates what the buyer pays.
func FromPlans(plans []stripe.InstallmentPlan, amount int64, currency string) []Offer {
	offers := make([]Offer, 0, len(plans))
	for _, plan := range plans {
		if plan.Count <= 0 {
			continue
		}
		per := int64(math.Ceil(float64(amount) / float64(plan.Count)))
		offers = append(offers, Offer{
			Count:             plan.Count,
			Interval:          plan.Interval,
			Type:              plan.Type,
			InstallmentAmount: per,
			Text:              offerText(plan, per, currency),
		})
	}
	return offers
}

func offerText(plan stripe.InstallmentPlan, per int64, currency string) string {
	interval := plan.Interval
	if interval == "" {
		interval = "month"
	}
	return fmt.Sprintf("%d x %s per %s", plan.Count, FormatAmount(per, currency), interval)
}

// FormatAmount renders a minor-unit amount with the currency's exponent,
// e.g. 1667 usd becomes "16.67 USD".
func FormatAmount(minor int64, currency string) string {
	exp := common.CurrencyExponent(currency)
	code := strings.ToUpper(strings.TrimSpace(currency))
	if exp == 0 {
		return fmt.Sprintf("%d %s", minor, code)
	}
	factor := int64(math.Pow10(exp))
	whole := minor / factor
	frac := minor % factor
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%0*d %s", whole, exp, frac, code)
}
