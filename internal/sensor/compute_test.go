package sensor

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oejp/kraken-bridge/internal/domain"
	"github.com/oejp/kraken-bridge/internal/localtime"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func jst(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, localtime.Location())
}

func reading(start time.Time, kwh string) domain.HalfHourlyReading {
	return domain.HalfHourlyReading{
		StartAt: start.UTC(),
		EndAt:   start.Add(30 * time.Minute).UTC(),
		Value:   dec(kwh),
	}
}

func snapshotWith(product domain.Product, readings []domain.HalfHourlyReading) *domain.AccountSnapshot {
	return &domain.AccountSnapshot{
		Number: "A-0001",
		Properties: []domain.Property{{
			ElectricitySupplyPoints: []domain.ElectricitySupplyPoint{{
				Agreements:         []domain.Agreement{{Product: product}},
				HalfHourlyReadings: readings,
			}},
		}},
	}
}

// tieredProduct prices 0-120 kWh at 20, everything above at 25, with a
// daily standing charge of 30 and a fuel adjustment of 1.5 per kWh.
func tieredProduct() domain.Product {
	return domain.Product{
		DisplayName:        "Standard Plan",
		StandingCharges:    []domain.PriceComponent{{PricePerUnit: dec("30")}},
		FuelCostAdjustment: &domain.PriceComponent{PricePerUnit: dec("1.5")},
		ConsumptionCharges: []domain.ConsumptionStep{
			{PricePerUnit: dec("25"), StepStart: decPtr("120"), StepEnd: nil},
			{PricePerUnit: dec("20"), StepStart: nil, StepEnd: decPtr("120")},
		},
	}
}

// --- Pricing primitives ---

func TestSteppedCost_TieredWalk(t *testing.T) {
	steps := tieredProduct().ConsumptionCharges

	// 150 kWh: 120 at 20, the remaining 30 at 25.
	got := steppedCost(dec("150"), steps)
	if !got.Equal(dec("3150")) {
		t.Errorf("steppedCost(150) = %s, want 3150", got)
	}
}

func TestSteppedCost_UsageWithinFirstStep(t *testing.T) {
	steps := tieredProduct().ConsumptionCharges

	got := steppedCost(dec("100"), steps)
	if !got.Equal(dec("2000")) {
		t.Errorf("steppedCost(100) = %s, want 2000", got)
	}
}

func TestSteppedCost_ZeroUsage(t *testing.T) {
	if got := steppedCost(decimal.Zero, tieredProduct().ConsumptionCharges); !got.IsZero() {
		t.Errorf("steppedCost(0) = %s, want 0", got)
	}
}

func TestSteppedCost_SingleUnboundedStep(t *testing.T) {
	steps := []domain.ConsumptionStep{{PricePerUnit: dec("25")}}

	got := steppedCost(dec("100"), steps)
	if !got.Equal(dec("2500")) {
		t.Errorf("steppedCost(100) flat = %s, want 2500", got)
	}
}

func TestCostForUsage_AddsFuelAdjustment(t *testing.T) {
	p := tieredProduct()

	// 3150 stepped + 150 * 1.5 fuel = 3375.
	got := costForUsage(dec("150"), p.ConsumptionCharges, dec("1.5"))
	if !got.Equal(dec("3375")) {
		t.Errorf("costForUsage(150) = %s, want 3375", got)
	}
}

// --- Period bucketing ---

func TestSumInPeriod_TokyoDayBoundary(t *testing.T) {
	// 15:30 UTC on July 14 is 00:30 JST on July 15: it must count toward
	// July 15 even though its UTC date is the 14th.
	rs := []domain.HalfHourlyReading{
		reading(time.Date(2026, 7, 14, 15, 30, 0, 0, time.UTC), "1.0"),
		reading(jst(2026, 7, 15, 12, 0), "2.0"),
		reading(jst(2026, 7, 14, 12, 0), "4.0"),
	}
	ref := jst(2026, 7, 15, 18, 0)

	got := sumInPeriod(rs, func(t time.Time) bool { return localtime.SameDay(t, ref) })
	if !got.Equal(dec("3.0")) {
		t.Errorf("sum for July 15 = %s, want 3.0", got)
	}
}

// --- Sensor computations ---

func TestComputeTodayAndYesterday(t *testing.T) {
	snap := snapshotWith(tieredProduct(), []domain.HalfHourlyReading{
		reading(jst(2026, 7, 15, 0, 0), "1.2"),
		reading(jst(2026, 7, 15, 9, 30), "0.8"),
		reading(jst(2026, 7, 14, 20, 0), "3.5"),
	})
	now := jst(2026, 7, 15, 18, 0)

	today, err := computeTodayConsumption(snap, now)
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	if !today.State.(decimal.Decimal).Equal(dec("2")) {
		t.Errorf("today = %s, want 2", today.State)
	}

	yesterday, err := computeYesterdayConsumption(snap, now)
	if err != nil {
		t.Fatalf("yesterday: %v", err)
	}
	if !yesterday.State.(decimal.Decimal).Equal(dec("3.5")) {
		t.Errorf("yesterday = %s, want 3.5", yesterday.State)
	}
}

func TestComputeMonthConsumption(t *testing.T) {
	snap := snapshotWith(tieredProduct(), []domain.HalfHourlyReading{
		reading(jst(2026, 7, 1, 10, 0), "5"),
		reading(jst(2026, 7, 15, 10, 0), "7"),
		reading(jst(2026, 6, 30, 10, 0), "11"),
	})
	now := jst(2026, 7, 15, 18, 0)

	cur, err := computeCurrentMonthConsumption(snap, now)
	if err != nil {
		t.Fatalf("current month: %v", err)
	}
	if !cur.State.(decimal.Decimal).Equal(dec("12")) {
		t.Errorf("current month = %s, want 12", cur.State)
	}

	prev, err := computeLastMonthConsumption(snap, now)
	if err != nil {
		t.Fatalf("last month: %v", err)
	}
	if !prev.State.(decimal.Decimal).Equal(dec("11")) {
		t.Errorf("last month = %s, want 11", prev.State)
	}
}

func TestComputeCurrentMonthCost(t *testing.T) {
	// Flat 20/kWh, standing 30/day, fuel 1/kWh. 10 kWh by July 15:
	// 200 consumption + 10 fuel + 450 standing = 660.
	p := domain.Product{
		DisplayName:        "Flat Plan",
		StandingCharges:    []domain.PriceComponent{{PricePerUnit: dec("30")}},
		FuelCostAdjustment: &domain.PriceComponent{PricePerUnit: dec("1")},
		ConsumptionCharges: []domain.ConsumptionStep{{PricePerUnit: dec("20")}},
	}
	snap := snapshotWith(p, []domain.HalfHourlyReading{
		reading(jst(2026, 7, 10, 10, 0), "10"),
	})
	now := jst(2026, 7, 15, 18, 0)

	v, err := computeCurrentMonthCost(snap, now)
	if err != nil {
		t.Fatalf("current month cost: %v", err)
	}
	if !v.State.(decimal.Decimal).Equal(dec("660")) {
		t.Errorf("cost = %s, want 660", v.State)
	}
	if v.Attributes["days_so_far"] != 15 {
		t.Errorf("days_so_far = %v, want 15", v.Attributes["days_so_far"])
	}
}

func TestComputeMonthlyEstimate_FirstDayDegenerate(t *testing.T) {
	// On July 1 the projection is day-1 usage * 31. Flat 20/kWh, standing
	// 30/day, no fuel: 10 * 31 * 20 + 31 * 30 = 6200 + 930 = 7130.
	p := domain.Product{
		StandingCharges:    []domain.PriceComponent{{PricePerUnit: dec("30")}},
		FuelCostAdjustment: &domain.PriceComponent{PricePerUnit: dec("0")},
		ConsumptionCharges: []domain.ConsumptionStep{{PricePerUnit: dec("20")}},
	}
	snap := snapshotWith(p, []domain.HalfHourlyReading{
		reading(jst(2026, 7, 1, 10, 0), "10"),
	})
	now := jst(2026, 7, 1, 18, 0)

	v, err := computeMonthlyEstimate(snap, now)
	if err != nil {
		t.Fatalf("monthly estimate: %v", err)
	}
	if !v.State.(decimal.Decimal).Equal(dec("7130")) {
		t.Errorf("estimate = %s, want 7130", v.State)
	}
	if !v.Attributes["projected_kwh"].(decimal.Decimal).Equal(dec("310")) {
		t.Errorf("projected_kwh = %v, want 310", v.Attributes["projected_kwh"])
	}
}

func TestComputeMonthlyEstimate_LastDayEqualsMonthCost(t *testing.T) {
	// On the last day of the month the projection window is the month
	// itself, so the estimate must collapse to the current month cost.
	// 31 days of 4.1 kWh put the 127.1 kWh total across the 120-kWh step
	// boundary, so any division residue would surface in the stepped walk.
	rs := make([]domain.HalfHourlyReading, 0, 31)
	for day := 1; day <= 31; day++ {
		rs = append(rs, reading(jst(2026, 7, day, 10, 0), "4.1"))
	}
	snap := snapshotWith(tieredProduct(), rs)
	now := jst(2026, 7, 31, 23, 0)

	est, err := computeMonthlyEstimate(snap, now)
	if err != nil {
		t.Fatalf("monthly estimate: %v", err)
	}
	cur, err := computeCurrentMonthCost(snap, now)
	if err != nil {
		t.Fatalf("current month cost: %v", err)
	}

	estState := est.State.(decimal.Decimal)
	curState := cur.State.(decimal.Decimal)
	if !estState.Equal(curState) {
		t.Errorf("estimate = %s, month cost = %s; want equal on the last day", estState, curState)
	}
	if !est.Attributes["projected_kwh"].(decimal.Decimal).Equal(dec("127.1")) {
		t.Errorf("projected_kwh = %v, want 127.1", est.Attributes["projected_kwh"])
	}
}

func TestPerValueIsolation_MissingSupplyPoint(t *testing.T) {
	// An account with billing data but no supply point: monetary sensors
	// still work while consumption sensors report unavailable.
	snap := &domain.AccountSnapshot{
		Number:         "A-0002",
		Balance:        dec("1200"),
		OverdueBalance: dec("0"),
	}
	now := jst(2026, 7, 15, 12, 0)

	if _, err := computeTodayConsumption(snap, now); err == nil {
		t.Fatal("expected today consumption to be unavailable")
	} else {
		var unavailable *domain.ErrValueUnavailable
		if !errors.As(err, &unavailable) {
			t.Fatalf("expected ErrValueUnavailable, got %T", err)
		}
		if unavailable.Sensor != KeyTodayConsumption {
			t.Errorf("expected sensor %q, got %q", KeyTodayConsumption, unavailable.Sensor)
		}
	}

	balance, err := computeBalance(snap, now)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.State.(decimal.Decimal).Equal(dec("1200")) {
		t.Errorf("balance = %s, want 1200", balance.State)
	}
}

func TestComputeLastBill(t *testing.T) {
	snap := &domain.AccountSnapshot{
		Number: "A-0003",
		Bills: domain.BillConnection{Edges: []domain.BillEdge{{Node: domain.Bill{
			ID:   "bill-1",
			Kind: domain.BillPeriodBased,
			PeriodBased: &domain.PeriodBasedDocument{
				IssuedDate:   "2026-06-10",
				TotalCharges: domain.TotalCharges{GrossTotal: dec("5000")},
			},
		}}}},
	}

	v, err := computeLastBill(snap, jst(2026, 7, 15, 12, 0))
	if err != nil {
		t.Fatalf("last bill: %v", err)
	}
	if !v.State.(decimal.Decimal).Equal(dec("5000")) {
		t.Errorf("last bill = %s, want 5000", v.State)
	}
	if v.Attributes["issued_date"] != "2026-06-10" {
		t.Errorf("issued_date = %v, want 2026-06-10", v.Attributes["issued_date"])
	}
}

func TestComputeLastBill_UnknownVariant(t *testing.T) {
	snap := &domain.AccountSnapshot{
		Bills: domain.BillConnection{Edges: []domain.BillEdge{{Node: domain.Bill{
			ID:   "bill-2",
			Kind: "RefundType",
		}}}},
	}

	if _, err := computeLastBill(snap, jst(2026, 7, 15, 12, 0)); err == nil {
		t.Fatal("expected unknown bill variant to be unavailable")
	}
}

func TestComputeTariffSummary_Stepped(t *testing.T) {
	snap := snapshotWith(tieredProduct(), nil)

	v, err := computeTariffSummary(snap, jst(2026, 7, 15, 12, 0))
	if err != nil {
		t.Fatalf("tariff summary: %v", err)
	}
	if v.State != "Standard Plan" {
		t.Errorf("state = %v, want Standard Plan", v.State)
	}
	if v.Attributes["unit_rate_step_1"] != "(0~120): 20" {
		t.Errorf("step 1 = %v, want (0~120): 20", v.Attributes["unit_rate_step_1"])
	}
	if v.Attributes["unit_rate_step_2"] != "(120~): 25" {
		t.Errorf("step 2 = %v, want (120~): 25", v.Attributes["unit_rate_step_2"])
	}
}

func TestComputeTariffSummary_FlatRate(t *testing.T) {
	p := domain.Product{
		DisplayName:        "Flat Plan",
		ConsumptionCharges: []domain.ConsumptionStep{{PricePerUnit: dec("25")}},
	}
	snap := snapshotWith(p, nil)

	v, err := computeTariffSummary(snap, jst(2026, 7, 15, 12, 0))
	if err != nil {
		t.Fatalf("tariff summary: %v", err)
	}
	if v.Attributes["unit_rate"] != "25" {
		t.Errorf("unit_rate = %v, want 25", v.Attributes["unit_rate"])
	}
}

func TestLookup(t *testing.T) {
	if _, ok := Lookup(KeyMonthlyEstimate); !ok {
		t.Error("expected monthly_estimate in catalogue")
	}
	if _, ok := Lookup("nonexistent"); ok {
		t.Error("expected lookup miss for unknown key")
	}
}
