package sensor

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oejp/kraken-bridge/internal/domain"
	"github.com/oejp/kraken-bridge/internal/localtime"
)

func unavailable(sensor, reason string) error {
	return &domain.ErrValueUnavailable{Sensor: sensor, Reason: reason}
}

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// sumInPeriod totals interval readings whose local (Tokyo) start time
// satisfies the predicate. An interval belongs to the day and month its
// start instant falls in; local conversion happens here, exactly once.
func sumInPeriod(readings []domain.HalfHourlyReading, match func(time.Time) bool) decimal.Decimal {
	total := decimal.Zero
	for _, r := range readings {
		if match(r.StartAt.In(localtime.Location())) {
			total = total.Add(r.Value)
		}
	}
	return total
}

// sortedSteps returns the product's consumption steps ordered by lower bound.
func sortedSteps(steps []domain.ConsumptionStep) []domain.ConsumptionStep {
	out := make([]domain.ConsumptionStep, len(steps))
	copy(out, steps)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Start().LessThan(out[j].Start())
	})
	return out
}

// steppedCost walks usage through the tariff steps in ascending order,
// charging each slice at its step's rate. A nil StepEnd means the step
// is unbounded and absorbs all remaining usage.
func steppedCost(totalKWh decimal.Decimal, steps []domain.ConsumptionStep) decimal.Decimal {
	cost := decimal.Zero
	remaining := totalKWh
	for _, s := range sortedSteps(steps) {
		if !remaining.IsPositive() {
			break
		}
		take := remaining
		if s.StepEnd != nil {
			width := s.StepEnd.Sub(s.Start())
			if width.IsNegative() {
				width = decimal.Zero
			}
			if width.LessThan(take) {
				take = width
			}
		}
		cost = cost.Add(take.Mul(s.PricePerUnit))
		remaining = remaining.Sub(take)
	}
	return cost
}

// costForUsage prices a usage total under a tariff: the stepped consumption
// charge plus the fuel cost adjustment applied to every kWh. Standing
// charges are a per-day concern and deliberately excluded here.
func costForUsage(totalKWh decimal.Decimal, steps []domain.ConsumptionStep, fuelPerKWh decimal.Decimal) decimal.Decimal {
	return steppedCost(totalKWh, steps).Add(totalKWh.Mul(fuelPerKWh))
}

func readingsOrUnavailable(snap *domain.AccountSnapshot, key string) ([]domain.HalfHourlyReading, error) {
	rs, ok := snap.Readings()
	if !ok {
		return nil, unavailable(key, "no interval readings on account")
	}
	return rs, nil
}

func productOrUnavailable(snap *domain.AccountSnapshot, key string) (*domain.Product, error) {
	p, ok := snap.ActiveProduct()
	if !ok {
		return nil, unavailable(key, "no active product on supply point")
	}
	return p, nil
}

func consumptionValue(total decimal.Decimal, readings []domain.HalfHourlyReading) Value {
	attrs := map[string]any{}
	if n := len(readings); n > 0 {
		attrs["last_reading_at"] = readings[n-1].EndAt.In(localtime.Location()).Format(time.RFC3339)
	}
	return Value{State: round2(total), Attributes: attrs}
}

func computeTodayConsumption(snap *domain.AccountSnapshot, now time.Time) (Value, error) {
	rs, err := readingsOrUnavailable(snap, KeyTodayConsumption)
	if err != nil {
		return Value{}, err
	}
	total := sumInPeriod(rs, func(t time.Time) bool { return localtime.SameDay(t, now) })
	return consumptionValue(total, rs), nil
}

func computeYesterdayConsumption(snap *domain.AccountSnapshot, now time.Time) (Value, error) {
	rs, err := readingsOrUnavailable(snap, KeyYesterdayConsumption)
	if err != nil {
		return Value{}, err
	}
	yesterday := localtime.StartOfDay(now).AddDate(0, 0, -1)
	total := sumInPeriod(rs, func(t time.Time) bool { return localtime.SameDay(t, yesterday) })
	return consumptionValue(total, rs), nil
}

func computeCurrentMonthConsumption(snap *domain.AccountSnapshot, now time.Time) (Value, error) {
	rs, err := readingsOrUnavailable(snap, KeyCurrentMonthConsumption)
	if err != nil {
		return Value{}, err
	}
	total := sumInPeriod(rs, func(t time.Time) bool { return localtime.SameMonth(t, now) })
	return consumptionValue(total, rs), nil
}

func computeLastMonthConsumption(snap *domain.AccountSnapshot, now time.Time) (Value, error) {
	rs, err := readingsOrUnavailable(snap, KeyLastMonthConsumption)
	if err != nil {
		return Value{}, err
	}
	prev := localtime.StartOfPreviousMonth(now)
	total := sumInPeriod(rs, func(t time.Time) bool { return localtime.SameMonth(t, prev) })
	return consumptionValue(total, rs), nil
}

// tariffInputs gathers everything cost computations need from the product,
// converting each missing piece into a per-sensor unavailability.
func tariffInputs(snap *domain.AccountSnapshot, key string) (steps []domain.ConsumptionStep, standing, fuel decimal.Decimal, err error) {
	product, err := productOrUnavailable(snap, key)
	if err != nil {
		return nil, decimal.Zero, decimal.Zero, err
	}
	if len(product.ConsumptionCharges) == 0 {
		return nil, decimal.Zero, decimal.Zero, unavailable(key, "product has no consumption charges")
	}
	standing, ok := product.StandingChargePerDay()
	if !ok {
		return nil, decimal.Zero, decimal.Zero, unavailable(key, "product has no standing charge")
	}
	fuel, ok = product.FuelAdjustmentPerKWh()
	if !ok {
		return nil, decimal.Zero, decimal.Zero, unavailable(key, "product has no fuel cost adjustment")
	}
	return product.ConsumptionCharges, standing, fuel, nil
}

func computeCurrentMonthCost(snap *domain.AccountSnapshot, now time.Time) (Value, error) {
	rs, err := readingsOrUnavailable(snap, KeyCurrentMonthCost)
	if err != nil {
		return Value{}, err
	}
	steps, standing, fuel, err := tariffInputs(snap, KeyCurrentMonthCost)
	if err != nil {
		return Value{}, err
	}

	monthKWh := sumInPeriod(rs, func(t time.Time) bool { return localtime.SameMonth(t, now) })
	days := decimal.NewFromInt(int64(localtime.DaysElapsed(now)))

	consumptionCost := steppedCost(monthKWh, steps)
	fuelCost := monthKWh.Mul(fuel)
	standingCost := standing.Mul(days)
	total := consumptionCost.Add(fuelCost).Add(standingCost)

	return Value{
		State: round2(total),
		Attributes: map[string]any{
			"month_kwh":        round2(monthKWh),
			"consumption_cost": round2(consumptionCost),
			"fuel_cost":        round2(fuelCost),
			"standing_cost":    round2(standingCost),
			"days_so_far":      localtime.DaysElapsed(now),
		},
	}, nil
}

// computeMonthlyEstimate projects the month-end cost from the daily average
// of consumption so far: avg * days-in-month priced through the tariff, plus
// a full month of standing charges.
func computeMonthlyEstimate(snap *domain.AccountSnapshot, now time.Time) (Value, error) {
	rs, err := readingsOrUnavailable(snap, KeyMonthlyEstimate)
	if err != nil {
		return Value{}, err
	}
	steps, standing, fuel, err := tariffInputs(snap, KeyMonthlyEstimate)
	if err != nil {
		return Value{}, err
	}

	monthKWh := sumInPeriod(rs, func(t time.Time) bool { return localtime.SameMonth(t, now) })
	daysSoFar := decimal.NewFromInt(int64(localtime.DaysElapsed(now)))
	daysInMonth := decimal.NewFromInt(int64(localtime.DaysInMonth(now)))

	projectedKWh := monthKWh.Div(daysSoFar).Mul(daysInMonth)
	consumptionCost := steppedCost(projectedKWh, steps)
	fuelCost := projectedKWh.Mul(fuel)
	standingCost := standing.Mul(daysInMonth)
	total := consumptionCost.Add(fuelCost).Add(standingCost)

	return Value{
		State: round2(total),
		Attributes: map[string]any{
			"month_kwh_so_far": round2(monthKWh),
			"projected_kwh":    round2(projectedKWh),
			"consumption_cost": round2(consumptionCost),
			"fuel_cost":        round2(fuelCost),
			"standing_cost":    round2(standingCost),
			"days_so_far":      localtime.DaysElapsed(now),
			"days_in_month":    localtime.DaysInMonth(now),
		},
	}, nil
}

func computeBalance(snap *domain.AccountSnapshot, _ time.Time) (Value, error) {
	return Value{State: round2(snap.Balance)}, nil
}

func computeOverdueBalance(snap *domain.AccountSnapshot, _ time.Time) (Value, error) {
	return Value{State: round2(snap.OverdueBalance)}, nil
}

func computeLastBill(snap *domain.AccountSnapshot, _ time.Time) (Value, error) {
	bill, ok := snap.LatestBill()
	if !ok {
		return Value{}, unavailable(KeyLastBill, "no bills on account")
	}
	gross, ok := bill.GrossAmount()
	if !ok {
		return Value{}, unavailable(KeyLastBill, fmt.Sprintf("unrecognized bill type %q", bill.Kind))
	}

	attrs := map[string]any{"bill_type": string(bill.Kind)}
	if id := bill.ID; id != "" {
		attrs["bill_id"] = id
	}
	if d := bill.IssuedDate(); d != "" {
		attrs["issued_date"] = d
	}
	if d := bill.DueDate(); d != "" {
		attrs["due_date"] = d
	}
	return Value{State: round2(gross), Attributes: attrs}, nil
}

func computeTariffSummary(snap *domain.AccountSnapshot, _ time.Time) (Value, error) {
	product, err := productOrUnavailable(snap, KeyTariffSummary)
	if err != nil {
		return Value{}, err
	}

	attrs := map[string]any{}
	if standing, ok := product.StandingChargePerDay(); ok {
		attrs["standing_charge"] = standing.String()
	}
	if fuel, ok := product.FuelAdjustmentPerKWh(); ok {
		attrs["fuel_cost_adjustment"] = fuel.String()
	}

	steps := sortedSteps(product.ConsumptionCharges)
	if len(steps) == 1 && steps[0].StepEnd == nil {
		attrs["unit_rate"] = steps[0].PricePerUnit.String()
	} else {
		for i, s := range steps {
			end := ""
			if s.StepEnd != nil {
				end = s.StepEnd.String()
			}
			attrs[fmt.Sprintf("unit_rate_step_%d", i+1)] =
				fmt.Sprintf("(%s~%s): %s", s.Start().String(), end, s.PricePerUnit.String())
		}
	}

	name := product.DisplayName
	if name == "" {
		name = "Unknown"
	}
	return Value{State: name, Attributes: attrs}, nil
}
