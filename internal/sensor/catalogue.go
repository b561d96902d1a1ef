// Package sensor computes the catalogue of derived values presented to the
// host platform. Every computation is a pure function of (snapshot, now);
// nothing is cached between reads and the snapshot is never mutated.
package sensor

import (
	"time"

	"github.com/oejp/kraken-bridge/internal/domain"
)

// Sensor keys.
const (
	KeyTodayConsumption        = "today_consumption"
	KeyYesterdayConsumption    = "yesterday_consumption"
	KeyCurrentMonthConsumption = "current_month_consumption"
	KeyLastMonthConsumption    = "last_month_consumption"
	KeyCurrentMonthCost        = "current_month_cost"
	KeyMonthlyEstimate         = "monthly_estimate"
	KeyBalance                 = "balance"
	KeyOverdueBalance          = "overdue_balance"
	KeyLastBill                = "last_bill"
	KeyTariffSummary           = "tariff_summary"
)

// Units and host-platform classifications.
const (
	UnitKilowattHour = "kWh"
	CurrencyYen      = "JPY"

	DeviceClassEnergy   = "energy"
	DeviceClassMonetary = "monetary"

	// StateClassTotal marks a point-in-time total; StateClassTotalIncreasing
	// marks a cumulative value that resets (at local midnight / month start).
	StateClassTotal           = "total"
	StateClassTotalIncreasing = "total_increasing"
)

// Value is one computed sensor reading: a state (decimal or string) plus
// optional descriptive attributes.
type Value struct {
	State      any            `json:"state"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Sensor describes one presented value: identity, host metadata, and the
// pure computation producing it.
type Sensor struct {
	Key         string
	Name        string
	Unit        string
	DeviceClass string
	StateClass  string
	Icon        string

	Compute func(snap *domain.AccountSnapshot, now time.Time) (Value, error)
}

// Catalogue returns the full sensor set, in presentation order.
func Catalogue() []Sensor {
	return []Sensor{
		{
			Key: KeyTodayConsumption, Name: "Today Consumption",
			Unit: UnitKilowattHour, DeviceClass: DeviceClassEnergy, StateClass: StateClassTotalIncreasing,
			Icon:    "mdi:lightning-bolt",
			Compute: computeTodayConsumption,
		},
		{
			Key: KeyYesterdayConsumption, Name: "Yesterday Consumption",
			Unit: UnitKilowattHour, DeviceClass: DeviceClassEnergy, StateClass: StateClassTotal,
			Icon:    "mdi:lightning-bolt-outline",
			Compute: computeYesterdayConsumption,
		},
		{
			Key: KeyCurrentMonthConsumption, Name: "Current Month Consumption",
			Unit: UnitKilowattHour, DeviceClass: DeviceClassEnergy, StateClass: StateClassTotalIncreasing,
			Icon:    "mdi:calendar-month",
			Compute: computeCurrentMonthConsumption,
		},
		{
			Key: KeyLastMonthConsumption, Name: "Last Month Consumption",
			Unit: UnitKilowattHour, DeviceClass: DeviceClassEnergy, StateClass: StateClassTotal,
			Icon:    "mdi:calendar-month-outline",
			Compute: computeLastMonthConsumption,
		},
		{
			Key: KeyCurrentMonthCost, Name: "Current Month Cost",
			Unit: CurrencyYen, DeviceClass: DeviceClassMonetary, StateClass: StateClassTotal,
			Icon:    "mdi:cash",
			Compute: computeCurrentMonthCost,
		},
		{
			Key: KeyMonthlyEstimate, Name: "Monthly Estimate",
			Unit: CurrencyYen, DeviceClass: DeviceClassMonetary, StateClass: StateClassTotal,
			Icon:    "mdi:cash-clock",
			Compute: computeMonthlyEstimate,
		},
		{
			Key: KeyBalance, Name: "Balance",
			Unit: CurrencyYen, DeviceClass: DeviceClassMonetary, StateClass: StateClassTotal,
			Icon:    "mdi:cash",
			Compute: computeBalance,
		},
		{
			Key: KeyOverdueBalance, Name: "Overdue Balance",
			Unit: CurrencyYen, DeviceClass: DeviceClassMonetary, StateClass: StateClassTotal,
			Icon:    "mdi:cash-remove",
			Compute: computeOverdueBalance,
		},
		{
			Key: KeyLastBill, Name: "Last Bill",
			Unit: CurrencyYen, DeviceClass: DeviceClassMonetary, StateClass: StateClassTotal,
			Icon:    "mdi:receipt-text",
			Compute: computeLastBill,
		},
		{
			Key: KeyTariffSummary, Name: "Tariff",
			Icon:    "mdi:file-document",
			Compute: computeTariffSummary,
		},
	}
}

// Lookup finds a sensor by key.
func Lookup(key string) (Sensor, bool) {
	for _, s := range Catalogue() {
		if s.Key == key {
			return s, true
		}
	}
	return Sensor{}, false
}
