// Package underwriting implements the rule-based loan decision engine:
// credit score gating, risk bucketing, pre-approved limits and the
// EMI-to-salary affordability check.
package underwriting

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Credit score boundaries for risk bucketing. Scores at or above a
// boundary fall in the lower-risk bucket.
const (
	lowRiskScore    = 750
	mediumRiskScore = 700
)

// salaryMultiplier bounds how far above the pre-approved limit the
// salary check may stretch an application.
const salaryMultiplier = 2

// BucketRule sets the lending terms for one risk bucket.
type BucketRule struct {
	PreApprovedLimit float64 `yaml:"pre_approved_limit"`
	AnnualROI        float64 `yaml:"annual_roi"`
}

// Rules is the tunable policy for the decision engine. Zero values are
// not usable; start from DefaultRules or LoadRules.
type Rules struct {
	MinCreditScore int `yaml:"min_credit_score"`

	LowRisk    BucketRule `yaml:"low_risk"`
	MediumRisk BucketRule `yaml:"medium_risk"`
	HighRisk   BucketRule `yaml:"high_risk"`

	// MaxEMIToSalary is the fraction of monthly salary an EMI may
	// consume, e.g. 0.5 for half.
	MaxEMIToSalary float64 `yaml:"max_emi_to_salary"`

	TenureMonths int `yaml:"tenure_months"`
}

// DefaultRules returns the stock lending policy.
func DefaultRules() Rules {
	return Rules{
		MinCreditScore: 650,
		LowRisk:        BucketRule{PreApprovedLimit: 500000, AnnualROI: 10.5},
		MediumRisk:     BucketRule{PreApprovedLimit: 300000, AnnualROI: 12},
		HighRisk:       BucketRule{PreApprovedLimit: 100000, AnnualROI: 14},
		MaxEMIToSalary: 0.5,
		TenureMonths:   24,
	}
}

// Validate checks the rules for internal consistency.
func (r Rules) Validate() error {
	if r.MinCreditScore <= 0 || r.MinCreditScore > 900 {
		return fmt.Errorf("min_credit_score must be in (0, 900], got %d", r.MinCreditScore)
	}
	for _, b := range []struct {
		name string
		rule BucketRule
	}{
		{"low_risk", r.LowRisk},
		{"medium_risk", r.MediumRisk},
		{"high_risk", r.HighRisk},
	} {
		if b.rule.PreApprovedLimit <= 0 {
			return fmt.Errorf("%s.pre_approved_limit must be positive", b.name)
		}
		if b.rule.AnnualROI < 0 {
			return fmt.Errorf("%s.annual_roi must not be negative", b.name)
		}
	}
	if r.MaxEMIToSalary <= 0 || r.MaxEMIToSalary >= 1 {
		return fmt.Errorf("max_emi_to_salary must be in (0, 1), got %g", r.MaxEMIToSalary)
	}
	if r.TenureMonths <= 0 {
		return fmt.Errorf("tenure_months must be positive, got %d", r.TenureMonths)
	}
	return nil
}

// bucket maps a credit score to its risk bucket and lending terms.
func (r Rules) bucket(creditScore int) (string, BucketRule) {
	switch {
	case creditScore >= lowRiskScore:
		return "LOW", r.LowRisk
	case creditScore >= mediumRiskScore:
		return "MEDIUM", r.MediumRisk
	default:
		return "HIGH", r.HighRisk
	}
}

// LoadRules reads a YAML policy file. Fields absent from the file keep
// their DefaultRules values.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read rules: %w", err)
	}
	rules := DefaultRules()
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("parse rules: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, fmt.Errorf("invalid rules in %s: %w", path, err)
	}
	return rules, nil
}
