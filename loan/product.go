/*
product.go - Loan product JSON config and validation

PURPOSE:
  Converts JSON product definitions into Product structs and back.
  This enables product configuration without code changes - credit
  committee staff define products in JSON, stored versioned in the
  database, and the parser creates the proper Go structs.

JSON SCHEMA:
  {
    "id": "biashara-boost",
    "name": "Biashara Boost",
    "interest_rate": 12,
    "interest_rate_period": "monthly",
    "interest_type": "flat",
    "repayment_frequency": "monthly",
    "min_amount": 5000, "max_amount": 300000,
    "min_term": 3, "max_term": 24,
    "fees": {"processing": 2, "insurance": 1},
    "guarantors": {"required": true, "min": 1, "max": 3},
    "shares": {"multiplier": 3, "min_required": 1000},
    "collateral": {"required": false, "min_ltv_coverage": 0}
  }

VALIDATION:
  ParseProduct validates structural coherence (min <= max bounds,
  non-negative rates, guarantor policy consistent with required flag).
  Products referenced by a disbursed loan are immutable except for
  administrative correction; the store enforces that via version bumps.

SEE ALSO:
  - types.go: Product definition
  - store/sqlite: versioned loan_products table
*/
package loan

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mkopo/sacco-engine/ledger"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ProductJSON is the JSON representation of a loan product.
type ProductJSON struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	InterestRate       float64 `json:"interest_rate"`
	InterestRatePeriod string  `json:"interest_rate_period"`
	InterestType       string  `json:"interest_type"`
	RepaymentFrequency string  `json:"repayment_frequency"`
	Currency           string  `json:"currency,omitempty"`

	MinAmount float64 `json:"min_amount"`
	MaxAmount float64 `json:"max_amount"`
	MinTerm   int     `json:"min_term"`
	MaxTerm   int     `json:"max_term"`

	Fees       *FeesJSON       `json:"fees,omitempty"`
	Guarantors *GuarantorsJSON `json:"guarantors,omitempty"`
	Shares     *SharesJSON     `json:"shares,omitempty"`
	Collateral *CollateralJSON `json:"collateral,omitempty"`

	LatePaymentPenalty    float64 `json:"late_payment_penalty,omitempty"`
	GracePeriodDays       int     `json:"grace_period_days,omitempty"`
	DeductInterestUpfront bool    `json:"deduct_interest_upfront,omitempty"`
	AllowMultipleLoans    bool    `json:"allow_multiple_loans,omitempty"`
	RequireGoodStanding   bool    `json:"require_good_standing,omitempty"`
	IsActive              *bool   `json:"is_active,omitempty"`
}

// FeesJSON holds fee rates as percent of principal.
type FeesJSON struct {
	Processing          float64 `json:"processing,omitempty"`
	Insurance           float64 `json:"insurance,omitempty"`
	Appraisal           float64 `json:"appraisal,omitempty"`
	ExciseDuty          float64 `json:"excise_duty,omitempty"`
	CreditLife          float64 `json:"credit_life,omitempty"`
	CreditLifeFrequency string  `json:"credit_life_frequency,omitempty"` // annual, per_period
}

type GuarantorsJSON struct {
	Required bool `json:"required"`
	Min      int  `json:"min,omitempty"`
	Max      int  `json:"max,omitempty"`
}

type SharesJSON struct {
	Multiplier  float64 `json:"multiplier,omitempty"`
	MinRequired float64 `json:"min_required,omitempty"`
}

type CollateralJSON struct {
	Required       bool    `json:"required"`
	MinLTVCoverage float64 `json:"min_ltv_coverage,omitempty"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParseProduct converts a JSON config into a validated Product.
func ParseProduct(configJSON string) (*Product, error) {
	var pj ProductJSON
	if err := json.Unmarshal([]byte(configJSON), &pj); err != nil {
		return nil, fmt.Errorf("invalid product JSON: %w", err)
	}
	return pj.ToProduct()
}

// ToProduct converts the JSON form to the domain form, applying defaults.
func (pj *ProductJSON) ToProduct() (*Product, error) {
	currency := ledger.Currency(pj.Currency)
	if currency == "" {
		currency = ledger.KES
	}

	p := &Product{
		ID:                 pj.ID,
		Name:               pj.Name,
		InterestRate:       decimal.NewFromFloat(pj.InterestRate),
		InterestRatePeriod: RatePeriod(pj.InterestRatePeriod),
		InterestType:       InterestType(pj.InterestType),
		RepaymentFrequency: Frequency(pj.RepaymentFrequency),
		MinAmount:          ledger.NewAmount(pj.MinAmount, currency),
		MaxAmount:          ledger.NewAmount(pj.MaxAmount, currency),
		MinTerm:            pj.MinTerm,
		MaxTerm:            pj.MaxTerm,
		LatePaymentPenalty: decimal.NewFromFloat(pj.LatePaymentPenalty),
		GracePeriodDays:    pj.GracePeriodDays,

		DeductInterestUpfront: pj.DeductInterestUpfront,
		AllowMultipleLoans:    pj.AllowMultipleLoans,
		RequireGoodStanding:   pj.RequireGoodStanding,

		IsActive: true,
		Version:  1,
	}
	if pj.IsActive != nil {
		p.IsActive = *pj.IsActive
	}

	if pj.Fees != nil {
		p.ProcessingFeeRate = decimal.NewFromFloat(pj.Fees.Processing)
		p.InsuranceFeeRate = decimal.NewFromFloat(pj.Fees.Insurance)
		p.AppraisalFeeRate = decimal.NewFromFloat(pj.Fees.Appraisal)
		p.ExciseDutyRate = decimal.NewFromFloat(pj.Fees.ExciseDuty)
		p.CreditLifeRate = decimal.NewFromFloat(pj.Fees.CreditLife)
		p.CreditLifeFrequency = FeeFrequency(pj.Fees.CreditLifeFrequency)
		if p.CreditLifeFrequency == "" {
			p.CreditLifeFrequency = FeeAnnual
		}
	}
	if pj.Guarantors != nil {
		p.RequiresGuarantor = pj.Guarantors.Required
		p.MinGuarantors = pj.Guarantors.Min
		p.MaxGuarantors = pj.Guarantors.Max
		if p.RequiresGuarantor && p.MinGuarantors == 0 {
			p.MinGuarantors = 1
		}
	}
	if pj.Shares != nil {
		p.SharesMultiplier = decimal.NewFromFloat(pj.Shares.Multiplier)
		p.MinSharesRequired = ledger.NewAmount(pj.Shares.MinRequired, currency)
	} else {
		p.MinSharesRequired = ledger.NewAmountFromInt(0, currency)
	}
	if pj.Collateral != nil {
		p.RequiresCollateral = pj.Collateral.Required
		p.MinLTVCoverage = decimal.NewFromFloat(pj.Collateral.MinLTVCoverage)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// ToJSON serializes a Product back to its JSON config form.
func (p *Product) ToJSON() (string, error) {
	b, err := json.Marshal(p.JSONForm())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// JSONForm returns the JSON config form of the product.
func (p *Product) JSONForm() ProductJSON {
	active := p.IsActive
	return ProductJSON{
		ID:                 p.ID,
		Name:               p.Name,
		InterestRate:       f64(p.InterestRate),
		InterestRatePeriod: string(p.InterestRatePeriod),
		InterestType:       string(p.InterestType),
		RepaymentFrequency: string(p.RepaymentFrequency),
		Currency:           string(p.MinAmount.Currency),
		MinAmount:          f64(p.MinAmount.Value),
		MaxAmount:          f64(p.MaxAmount.Value),
		MinTerm:            p.MinTerm,
		MaxTerm:            p.MaxTerm,
		Fees: &FeesJSON{
			Processing:          f64(p.ProcessingFeeRate),
			Insurance:           f64(p.InsuranceFeeRate),
			Appraisal:           f64(p.AppraisalFeeRate),
			ExciseDuty:          f64(p.ExciseDutyRate),
			CreditLife:          f64(p.CreditLifeRate),
			CreditLifeFrequency: string(p.CreditLifeFrequency),
		},
		Guarantors: &GuarantorsJSON{
			Required: p.RequiresGuarantor,
			Min:      p.MinGuarantors,
			Max:      p.MaxGuarantors,
		},
		Shares: &SharesJSON{
			Multiplier:  f64(p.SharesMultiplier),
			MinRequired: f64(p.MinSharesRequired.Value),
		},
		Collateral: &CollateralJSON{
			Required:       p.RequiresCollateral,
			MinLTVCoverage: f64(p.MinLTVCoverage),
		},
		LatePaymentPenalty:    f64(p.LatePaymentPenalty),
		GracePeriodDays:       p.GracePeriodDays,
		DeductInterestUpfront: p.DeductInterestUpfront,
		AllowMultipleLoans:    p.AllowMultipleLoans,
		RequireGoodStanding:   p.RequireGoodStanding,
		IsActive:              &active,
	}
}

func f64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks internal consistency of the product configuration.
func (p *Product) Validate() error {
	switch p.InterestType {
	case InterestFlat, InterestReducingBalance:
	default:
		return fmt.Errorf("product %s: unknown interest type %q", p.ID, p.InterestType)
	}
	switch p.InterestRatePeriod {
	case RateMonthly, RateAnnual, RateWeekly:
	default:
		return fmt.Errorf("product %s: unknown rate period %q", p.ID, p.InterestRatePeriod)
	}
	switch p.RepaymentFrequency {
	case FreqDaily, FreqWeekly, FreqBiWeekly, FreqMonthly:
	default:
		return fmt.Errorf("product %s: unknown repayment frequency %q", p.ID, p.RepaymentFrequency)
	}
	if p.InterestRate.IsNegative() {
		return fmt.Errorf("product %s: negative interest rate", p.ID)
	}
	if p.MinAmount.GreaterThan(p.MaxAmount) {
		return fmt.Errorf("product %s: min_amount exceeds max_amount", p.ID)
	}
	if p.MinTerm <= 0 || p.MaxTerm < p.MinTerm {
		return fmt.Errorf("product %s: invalid term bounds [%d, %d]", p.ID, p.MinTerm, p.MaxTerm)
	}
	for name, rate := range map[string]decimal.Decimal{
		"processing": p.ProcessingFeeRate, "insurance": p.InsuranceFeeRate,
		"appraisal": p.AppraisalFeeRate, "excise_duty": p.ExciseDutyRate,
		"credit_life": p.CreditLifeRate, "late_payment_penalty": p.LatePaymentPenalty,
	} {
		if rate.IsNegative() {
			return fmt.Errorf("product %s: negative %s rate", p.ID, name)
		}
	}
	if p.RequiresGuarantor {
		if p.MinGuarantors < 1 {
			return fmt.Errorf("product %s: requires guarantors but min is %d", p.ID, p.MinGuarantors)
		}
		if p.MaxGuarantors != 0 && p.MaxGuarantors < p.MinGuarantors {
			return fmt.Errorf("product %s: max_guarantors below min_guarantors", p.ID)
		}
	}
	if p.RequiresCollateral && p.MinLTVCoverage.IsNegative() {
		return fmt.Errorf("product %s: negative LTV coverage", p.ID)
	}
	if p.SharesMultiplier.IsNegative() {
		return fmt.Errorf("product %s: negative shares multiplier", p.ID)
	}
	return nil
}
