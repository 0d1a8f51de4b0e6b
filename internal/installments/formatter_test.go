package installments

import (
	"testing"

	"github.com/noah-isme/storefront-payments/internal/stripe"
)

func TestFromPlansRoundsUp(t *testing.T) {
	plans := []stripe.InstallmentPlan{
		{Count: 3, Interval: "month", Type: "fixed_count"},
		{Count: 6, Interval: "month", Type: "fixed_count"},
	}
	offers := FromPlans(plans, 10000, "usd")
	if len(offers) != 2 {
		t.Fatalf("expected 2 offers, got %d", len(offers))
	}
	if offers[0].InstallmentAmount != 3334 {
		t.Fatalf("3-way split of 10000 rounds up to 3334, got %d", offers[0].InstallmentAmount)
	}
	if offers[1].InstallmentAmount != 1667 {
		t.Fatalf("6-way split of 10000 rounds up to 1667, got %d", offers[1].InstallmentAmount)
	}
	if offers[1].Text != "6 x 16.67 USD per month" {
		t.Fatalf("unexpected text: %q", offers[1].Text)
	}
}

func TestFromPlansSkipsInvalidCounts(t *testing.T) {
	plans := []stripe.InstallmentPlan{
		{Count: 0, Interval: "month"},
		{Count: -3, Interval: "month"},
		{Count: 12, Interval: "month"},
	}
	offers := FromPlans(plans, 12000, "usd")
	if len(offers) != 1 || offers[0].Count != 12 {
		t.Fatalf("only the valid plan should survive, got %+v", offers)
	}
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		minor    int64
		currency string
		want     string
	}{
		{4999, "usd", "49.99 USD"},
		{1667, "USD", "16.67 USD"},
		{500, "eur", "5.00 EUR"},
		{1200, "jpy", "1200 JPY"},
		{12345, "kwd", "12.345 KWD"},
		{7, "usd", "0.07 USD"},
	}
	for _, tc := range cases {
		if got := FormatAmount(tc.minor, tc.currency); got != tc.want {
			t.Fatalf("FormatAmount(%d, %q) = %q, want %q", tc.minor, tc.currency, got, tc.want)
		}
	}
}
