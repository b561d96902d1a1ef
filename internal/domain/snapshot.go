// Package domain holds the data model shared by the Kraken client, the
// sensor calculators and the host-facing handlers, plus the error types
// used across the bridge.
package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// AccountSnapshot is the full account subtree returned by the comprehensive
// query. It is rebuilt wholesale on every refresh cycle and must be treated
// as read-only by everything downstream.
type AccountSnapshot struct {
	Number         string          `json:"number"`
	Balance        decimal.Decimal `json:"balance"`
	OverdueBalance decimal.Decimal `json:"overdueBalance"`
	Bills          BillConnection  `json:"bills"`
	Properties     []Property      `json:"properties"`
}

// LatestBill returns the most recent billing document, if the account has one.
func (s *AccountSnapshot) LatestBill() (*Bill, bool) {
	if len(s.Bills.Edges) == 0 {
		return nil, false
	}
	return &s.Bills.Edges[0].Node, true
}

// SupplyPoint returns the active electricity supply point on the first
// property, if present.
func (s *AccountSnapshot) SupplyPoint() (*ElectricitySupplyPoint, bool) {
	if len(s.Properties) == 0 || len(s.Properties[0].ElectricitySupplyPoints) == 0 {
		return nil, false
	}
	return &s.Properties[0].ElectricitySupplyPoints[0], true
}

// ActiveProduct returns the tariff on the supply point's active agreement.
func (s *AccountSnapshot) ActiveProduct() (*Product, bool) {
	sp, ok := s.SupplyPoint()
	if !ok || len(sp.Agreements) == 0 {
		return nil, false
	}
	return &sp.Agreements[0].Product, true
}

// Readings returns the half-hourly interval readings on the supply point.
func (s *AccountSnapshot) Readings() ([]HalfHourlyReading, bool) {
	sp, ok := s.SupplyPoint()
	if !ok {
		return nil, false
	}
	return sp.HalfHourlyReadings, true
}

// BillConnection mirrors the relay-style bills edge list (first: 1).
type BillConnection struct {
	Edges []BillEdge `json:"edges"`
}

// BillEdge wraps a single bill node.
type BillEdge struct {
	Node Bill `json:"node"`
}

// BillKind discriminates the bill variants by their GraphQL __typename.
type BillKind string

const (
	BillPeriodBased BillKind = "PeriodBasedDocumentType"
	BillInvoice     BillKind = "InvoiceType"
	BillStatement   BillKind = "StatementType"
)

// Bill is a tagged union over the three billing document variants the API
// returns. Exactly one of the variant pointers is set, selected by Kind.
type Bill struct {
	ID   string
	Kind BillKind

	PeriodBased *PeriodBasedDocument
	Invoice     *Invoice
	Statement   *Statement
}

// PeriodBasedDocument is the common bill variant.
type PeriodBasedDocument struct {
	IssuedDate   string       `json:"issuedDate"`
	TotalCharges TotalCharges `json:"totalCharges"`
}

// Invoice carries a gross amount directly, with no totalCharges wrapper.
type Invoice struct {
	IssuedDate  string          `json:"issuedDate"`
	ToDate      string          `json:"toDate"`
	GrossAmount decimal.Decimal `json:"grossAmount"`
}

// Statement is structurally like PeriodBasedDocument plus a payment due date.
type Statement struct {
	IssuedDate     string       `json:"issuedDate"`
	PaymentDueDate string       `json:"paymentDueDate"`
	TotalCharges   TotalCharges `json:"totalCharges"`
}

// TotalCharges wraps the gross total on period-based documents and statements.
type TotalCharges struct {
	GrossTotal decimal.Decimal `json:"grossTotal"`
}

// UnmarshalJSON dispatches on the __typename discriminant and decodes the
// matching variant. Unknown typenames decode the envelope only; GrossAmount
// reports such bills as unavailable.
func (b *Bill) UnmarshalJSON(data []byte) error {
	var head struct {
		ID       string   `json:"id"`
		TypeName BillKind `json:"__typename"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	b.ID = head.ID
	b.Kind = head.TypeName

	switch head.TypeName {
	case BillPeriodBased:
		b.PeriodBased = &PeriodBasedDocument{}
		return json.Unmarshal(data, b.PeriodBased)
	case BillInvoice:
		b.Invoice = &Invoice{}
		return json.Unmarshal(data, b.Invoice)
	case BillStatement:
		b.Statement = &Statement{}
		return json.Unmarshal(data, b.Statement)
	}
	return nil
}

// GrossAmount returns the bill's gross total, dispatching on the variant tag.
func (b *Bill) GrossAmount() (decimal.Decimal, bool) {
	switch b.Kind {
	case BillPeriodBased:
		if b.PeriodBased != nil {
			return b.PeriodBased.TotalCharges.GrossTotal, true
		}
	case BillInvoice:
		if b.Invoice != nil {
			return b.Invoice.GrossAmount, true
		}
	case BillStatement:
		if b.Statement != nil {
			return b.Statement.TotalCharges.GrossTotal, true
		}
	}
	return decimal.Decimal{}, false
}

// IssuedDate returns the variant's issue date, when known.
func (b *Bill) IssuedDate() string {
	switch {
	case b.PeriodBased != nil:
		return b.PeriodBased.IssuedDate
	case b.Invoice != nil:
		return b.Invoice.IssuedDate
	case b.Statement != nil:
		return b.Statement.IssuedDate
	}
	return ""
}

// DueDate returns the variant's due-style date: toDate for invoices,
// paymentDueDate for statements, empty otherwise.
func (b *Bill) DueDate() string {
	switch {
	case b.Invoice != nil:
		return b.Invoice.ToDate
	case b.Statement != nil:
		return b.Statement.PaymentDueDate
	}
	return ""
}

// Property holds the supply points registered against one property.
type Property struct {
	ElectricitySupplyPoints []ElectricitySupplyPoint `json:"electricitySupplyPoints"`
}

// ElectricitySupplyPoint is a metering point: active tariff agreements plus
// the interval readings fetched for the refresh window.
type ElectricitySupplyPoint struct {
	Agreements         []Agreement         `json:"agreements"`
	HalfHourlyReadings []HalfHourlyReading `json:"halfHourlyReadings"`
}

// Agreement binds a supply point to a product (tariff).
type Agreement struct {
	Product Product `json:"product"`
}

// Product is the priced plan: a daily standing charge, a per-kWh fuel cost
// adjustment, and consumption-based pricing that is either a single flat
// rate or a set of stepped ranges.
type Product struct {
	DisplayName        string            `json:"displayName"`
	StandingCharges    []PriceComponent  `json:"standingCharges"`
	FuelCostAdjustment *PriceComponent   `json:"fuelCostAdjustment"`
	ConsumptionCharges []ConsumptionStep `json:"consumptionCharges"`
}

// StandingChargePerDay returns the daily standing charge, if priced.
func (p *Product) StandingChargePerDay() (decimal.Decimal, bool) {
	if len(p.StandingCharges) == 0 {
		return decimal.Decimal{}, false
	}
	return p.StandingCharges[0].PricePerUnit, true
}

// FuelAdjustmentPerKWh returns the per-kWh fuel cost adjustment, if priced.
func (p *Product) FuelAdjustmentPerKWh() (decimal.Decimal, bool) {
	if p.FuelCostAdjustment == nil {
		return decimal.Decimal{}, false
	}
	return p.FuelCostAdjustment.PricePerUnit, true
}

// PriceComponent is a single pricePerUnit wrapper.
type PriceComponent struct {
	PricePerUnit decimal.Decimal `json:"pricePerUnit"`
}

// ConsumptionStep prices the [StepStart, StepEnd) kWh range. A nil StepEnd
// marks the unbounded final step; a single-rate product has one step with
// neither bound set.
type ConsumptionStep struct {
	PricePerUnit decimal.Decimal  `json:"pricePerUnit"`
	StepStart    *decimal.Decimal `json:"stepStart"`
	StepEnd      *decimal.Decimal `json:"stepEnd"`
}

// Start returns the step's lower bound, zero when unset.
func (s ConsumptionStep) Start() decimal.Decimal {
	if s.StepStart == nil {
		return decimal.Zero
	}
	return *s.StepStart
}

// HalfHourlyReading is one 30-minute interval's metered consumption.
// Timestamps are UTC; period bucketing converts to Tokyo local time.
type HalfHourlyReading struct {
	StartAt time.Time       `json:"startAt"`
	EndAt   time.Time       `json:"endAt"`
	Value   decimal.Decimal `json:"value"`
}
