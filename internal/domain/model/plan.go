package model

import (
	"strings"
	"time"

	"finkargo-billing/internal/domain"
)

// PlanType names a purchasable plan. The Wompi checkout sells period plans
// (TRIMESTRAL, SEMESTRAL, ANUAL) while the Stripe checkout sells tiers
// (BASIC, PROFESSIONAL, ENTERPRISE); both vocabularies are accepted.
type PlanType string

const (
	PlanTrimestral   PlanType = "TRIMESTRAL"
	PlanSemestral    PlanType = "SEMESTRAL"
	PlanAnual        PlanType = "ANUAL"
	PlanBasic        PlanType = "BASIC"
	PlanProfessional PlanType = "PROFESSIONAL"
	PlanEnterprise   PlanType = "ENTERPRISE"
)

type BillingCycle string

const (
	BillingMonthly BillingCycle = "MONTHLY"
	BillingYearly  BillingCycle = "YEARLY"
)

// PlanTerms is what a completed payment grants.
type PlanTerms struct {
	Plan         PlanType
	Months       int
	Years        int
	BillingCycle BillingCycle
	ReportsLimit int
}

var planTable = map[PlanType]PlanTerms{
	PlanTrimestral:   {Plan: PlanTrimestral, Months: 3, BillingCycle: BillingMonthly, ReportsLimit: 30},
	PlanSemestral:    {Plan: PlanSemestral, Months: 6, BillingCycle: BillingMonthly, ReportsLimit: 60},
	PlanAnual:        {Plan: PlanAnual, Years: 1, BillingCycle: BillingYearly, ReportsLimit: 150},
	PlanBasic:        {Plan: PlanBasic, Months: 1, BillingCycle: BillingMonthly, ReportsLimit: 10},
	PlanProfessional: {Plan: PlanProfessional, Months: 1, BillingCycle: BillingMonthly, ReportsLimit: 50},
	PlanEnterprise:   {Plan: PlanEnterprise, Months: 1, BillingCycle: BillingMonthly, ReportsLimit: 500},
}

// ParsePlanType accepts any casing and surrounding whitespace.
func ParsePlanType(s string) (PlanType, error) {
	p := PlanType(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := planTable[p]; !ok {
		return "", domain.ErrUnsupportedPlan
	}
	return p, nil
}

// IsTier reports whether the plan belongs to the tiered (Stripe) vocabulary.
func (p PlanType) IsTier() bool {
	return p == PlanBasic || p == PlanProfessional || p == PlanEnterprise
}

// TermsFor resolves the period granted by plan. Tier plans bought with a
// yearly cycle grant one year; period plans ignore the requested cycle.
func TermsFor(plan PlanType, cycle BillingCycle) (PlanTerms, error) {
	t, ok := planTable[plan]
	if !ok {
		return PlanTerms{}, domain.ErrUnsupportedPlan
	}
	if plan.IsTier() && cycle == BillingYearly {
		t.Months = 0
		t.Years = 1
		t.BillingCycle = BillingYearly
	}
	return t, nil
}

// PeriodEnd returns start advanced by the plan period.
func (t PlanTerms) PeriodEnd(start time.Time) time.Time {
	return start.AddDate(t.Years, t.Months, 0)
}

// PriceTable holds plan prices in the provider's minor unit.
type PriceTable map[PlanType]int64

// Price returns the price for plan and cycle. Yearly tier prices are ten
// monthly prices unless the table carries an explicit "<PLAN>_YEARLY" entry.
func (pt PriceTable) Price(plan PlanType, cycle BillingCycle) (int64, error) {
	if plan.IsTier() && cycle == BillingYearly {
		if v, ok := pt[plan+"_YEARLY"]; ok && v > 0 {
			return v, nil
		}
		if v, ok := pt[plan]; ok && v > 0 {
			return v * 10, nil
		}
		return 0, domain.ErrUnsupportedPlan
	}
	v, ok := pt[plan]
	if !ok || v <= 0 {
		return 0, domain.ErrUnsupportedPlan
	}
	return v, nil
}

// DefaultWompiPrices are COP amounts in cents.
var DefaultWompiPrices = PriceTable{
	PlanTrimestral: 45_000_000,
	PlanSemestral:  80_000_000,
	PlanAnual:      100_000_000,
}

// DefaultStripePrices are MXN amounts in cents.
var DefaultStripePrices = PriceTable{
	PlanBasic:        99_900,
	PlanProfessional: 249_900,
	PlanEnterprise:   599_900,
}
