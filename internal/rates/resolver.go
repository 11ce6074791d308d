// Package rates implements the nightly price resolution pipeline: base rate,
// calendar override, ordered cumulative dynamic-pricing rules, bounds clamp,
// then a single promotion discount. Resolution is pure and deterministic for
// fixed inputs.
package rates

import (
	"errors"
	"fmt"
	"math"
	"time"

	"ratesync/internal/models"
)

// ErrInvalidBounds signals minRate > maxRate. Enforced when a configuration
// is written; Resolve re-checks so a corrupt row cannot produce a price
// outside its own bounds.
var ErrInvalidBounds = errors.New("rates: min rate exceeds max rate")

// RuleError reports one malformed rule. The rule is skipped, never fatal to
// the resolution.
type RuleError struct {
	Index  int
	Reason string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rates: rule %d skipped: %s", e.Index, e.Reason)
}

// Resolution is the outcome of one nightly price computation.
type Resolution struct {
	Price            float64
	CalendarOverride bool
	RulesApplied     int
	Promotion        string
	Issues           []error
}

// Resolve computes the sellable nightly price for one date and stay length.
func Resolve(cfg *models.RateConfiguration, date time.Time, nights int, rctx models.RuleContext) (Resolution, error) {
	var res Resolution

	price := cfg.BaseRate

	// An explicit calendar entry overrides the base rate as the starting
	// point; computed rules still apply on top of it.
	if entry := calendarEntry(cfg.RateCalendar, date); entry != nil && entry.Rate != nil {
		price = *entry.Rate
		res.CalendarOverride = true
	}

	dp := cfg.DynamicPricing
	if dp.Enabled {
		if dp.BoundsSet() && dp.MinRate > dp.MaxRate {
			return Resolution{}, ErrInvalidBounds
		}

		for i, rule := range dp.Rules {
			matched, err := evaluate(rule, date, nights, rctx)
			if err != nil {
				res.Issues = append(res.Issues, &RuleError{Index: i, Reason: err.Error()})
				continue
			}
			if !matched {
				continue
			}
			price = apply(price, rule.Adjustment)
			res.RulesApplied++
		}

		if dp.BoundsSet() {
			price = math.Min(math.Max(price, dp.MinRate), dp.MaxRate)
		}
	}

	// First matching promotion wins; applied after clamping, so a discount
	// may legally push the price below the configured minimum.
	for _, promo := range cfg.Promotions {
		if promo.Contains(date, nights) {
			price = apply(price, promo.Discount)
			res.Promotion = promo.Name
			break
		}
	}

	if price < 0 {
		price = 0
	}

	res.Price = roundCurrency(price)
	return res, nil
}

// Validate rejects a configuration that could not resolve cleanly. Called at
// write time so resolution never fails per request.
func Validate(cfg *models.RateConfiguration) error {
	if cfg.BaseRate < 0 {
		return fmt.Errorf("rates: negative base rate %v", cfg.BaseRate)
	}
	dp := cfg.DynamicPricing
	if dp.BoundsSet() && dp.MinRate > dp.MaxRate {
		return ErrInvalidBounds
	}
	for i, rule := range dp.Rules {
		if err := checkRule(rule); err != nil {
			return &RuleError{Index: i, Reason: err.Error()}
		}
	}
	for _, promo := range cfg.Promotions {
		if promo.EndDate.Before(promo.StartDate) {
			return fmt.Errorf("rates: promotion %q window ends before it starts", promo.Name)
		}
	}
	return nil
}

func apply(price float64, adj models.Adjustment) float64 {
	switch adj.Type {
	case models.AdjustPercentage:
		return price * (1 + adj.Value/100)
	case models.AdjustFixed:
		return price + adj.Value
	}
	return price
}

func calendarEntry(calendar []models.RateCalendarEntry, date time.Time) *models.RateCalendarEntry {
	d := date.Truncate(24 * time.Hour)
	for i := range calendar {
		if calendar[i].Date.Truncate(24 * time.Hour).Equal(d) {
			return &calendar[i]
		}
	}
	return nil
}

// evaluate resolves the rule's subject value and applies its operator.
func evaluate(rule models.PricingRule, date time.Time, nights int, rctx models.RuleContext) (bool, error) {
	if err := checkRule(rule); err != nil {
		return false, err
	}

	var subject float64
	membership := false

	switch rule.Condition {
	case models.ConditionOccupancy:
		subject = rctx.OccupancyPercent
	case models.ConditionAdvanceBooking:
		subject = rctx.AdvanceDays
	case models.ConditionLengthOfStay:
		subject = float64(nights)
	case models.ConditionSeason:
		subject = float64(date.Month())
		membership = true
	case models.ConditionDayOfWeek:
		subject = float64(date.Weekday()) // 0=Sunday
		membership = true
	}

	switch rule.Operator {
	case models.OperatorGreaterThan:
		return subject > rule.Value[0], nil
	case models.OperatorLessThan:
		return subject < rule.Value[0], nil
	case models.OperatorEqualTo:
		if membership {
			for _, v := range rule.Value {
				if subject == v {
					return true, nil
				}
			}
			return false, nil
		}
		return subject == rule.Value[0], nil
	case models.OperatorBetween:
		return subject >= rule.Value[0] && subject <= rule.Value[1], nil
	}
	return false, nil
}

func checkRule(rule models.PricingRule) error {
	switch rule.Condition {
	case models.ConditionOccupancy, models.ConditionSeason, models.ConditionDayOfWeek,
		models.ConditionAdvanceBooking, models.ConditionLengthOfStay:
	default:
		return fmt.Errorf("unknown condition %q", rule.Condition)
	}

	switch rule.Operator {
	case models.OperatorGreaterThan, models.OperatorLessThan, models.OperatorEqualTo:
		if len(rule.Value) < 1 {
			return fmt.Errorf("operator %s requires a value", rule.Operator)
		}
	case models.OperatorBetween:
		if len(rule.Value) < 2 {
			return errors.New("BETWEEN requires a [lo, hi] pair")
		}
		if rule.Value[0] > rule.Value[1] {
			return errors.New("BETWEEN pair out of order")
		}
	default:
		return fmt.Errorf("unknown operator %q", rule.Operator)
	}

	switch rule.Adjustment.Type {
	case models.AdjustPercentage, models.AdjustFixed:
	default:
		return fmt.Errorf("unknown adjustment type %q", rule.Adjustment.Type)
	}
	return nil
}

// roundCurrency rounds half-up to two decimal places.
func roundCurrency(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
