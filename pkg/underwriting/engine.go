package underwriting

import (
	"context"
	"fmt"
	"time"

	"github.com/sinifive/loanflow/pkg/api"
)

// Applicant is the input to one underwriting run.
type Applicant struct {
	Name            string
	CreditScore     int
	MonthlySalary   float64
	RequestedAmount float64
}

// validate rejects only missing inputs. An out-of-range score is not an
// input error; it falls through to the credit-threshold rule.
func (a Applicant) validate() string {
	switch {
	case a.CreditScore <= 0:
		return "credit score is required"
	case a.MonthlySalary <= 0:
		return "monthly salary must be positive"
	case a.RequestedAmount <= 0:
		return "requested amount must be positive"
	default:
		return ""
	}
}

// Decide runs the rule ladder for one applicant and returns the full
// decision record, including the per-rule evaluation trail.
//
// The ladder short-circuits on the first decisive rule: input
// validation, minimum credit score, pre-approved limit, then the
// EMI-to-salary affordability check for amounts up to twice the limit.
// Anything beyond that bound is rejected outright.
func Decide(a Applicant, rules Rules) *api.Decision {
	d := &api.Decision{
		ApplicantName:   a.Name,
		CreditScore:     a.CreditScore,
		MonthlySalary:   a.MonthlySalary,
		RequestedAmount: a.RequestedAmount,
		TenureMonths:    rules.TenureMonths,
		Timestamp:       time.Now(),
	}

	if reason := a.validate(); reason != "" {
		d.Status = api.DecisionError
		d.Reason = reason
		return d
	}

	scoreOK := a.CreditScore >= rules.MinCreditScore
	d.Checks = append(d.Checks, api.RuleCheck{
		Rule:        "min_credit_score",
		Description: "credit score meets the lending floor",
		Check:       fmt.Sprintf("%d >= %d", a.CreditScore, rules.MinCreditScore),
		Passed:      scoreOK,
	})
	if !scoreOK {
		d.Status = api.DecisionRejected
		d.Code = api.CodeCreditScoreLow
		d.Reason = fmt.Sprintf("credit score %d below minimum %d", a.CreditScore, rules.MinCreditScore)
		return d
	}

	bucketName, bucket := rules.bucket(a.CreditScore)
	d.RiskBucket = api.RiskBucket(bucketName)
	d.PreApprovedLimit = bucket.PreApprovedLimit
	d.AnnualROI = bucket.AnnualROI
	d.Checks = append(d.Checks, api.RuleCheck{
		Rule:        "risk_bucket",
		Description: "risk bucket assigned from credit score",
		Check:       fmt.Sprintf("score %d -> %s bucket, limit %.2f at %.2f%%", a.CreditScore, bucketName, bucket.PreApprovedLimit, bucket.AnnualROI),
		Passed:      true,
	})

	withinLimit := a.RequestedAmount <= bucket.PreApprovedLimit
	d.Checks = append(d.Checks, api.RuleCheck{
		Rule:        "pre_approved_limit",
		Description: "requested amount within the pre-approved limit",
		Check:       fmt.Sprintf("%.2f <= %.2f", a.RequestedAmount, bucket.PreApprovedLimit),
		Passed:      withinLimit,
	})
	if withinLimit {
		d.Status = api.DecisionApproved
		d.Code = api.CodeWithinPreApprovedLimit
		d.ApprovedAmount = a.RequestedAmount
		d.MonthlyEMI = EMI(a.RequestedAmount, bucket.AnnualROI, rules.TenureMonths)
		d.EMIToSalaryRatio = round2(d.MonthlyEMI / a.MonthlySalary)
		d.Reason = fmt.Sprintf("requested amount %.2f within %s-risk pre-approved limit %.2f", a.RequestedAmount, bucketName, bucket.PreApprovedLimit)
		return d
	}

	stretchBound := bucket.PreApprovedLimit * salaryMultiplier
	withinStretch := a.RequestedAmount <= stretchBound
	d.Checks = append(d.Checks, api.RuleCheck{
		Rule:        "stretch_bound",
		Description: "requested amount within the salary-check bound",
		Check:       fmt.Sprintf("%.2f <= %.2f", a.RequestedAmount, stretchBound),
		Passed:      withinStretch,
	})
	if !withinStretch {
		d.Status = api.DecisionRejected
		d.Code = api.CodeAmountTooHigh
		d.Reason = fmt.Sprintf("requested amount %.2f exceeds %dx pre-approved limit %.2f", a.RequestedAmount, salaryMultiplier, bucket.PreApprovedLimit)
		return d
	}

	emi := EMI(a.RequestedAmount, bucket.AnnualROI, rules.TenureMonths)
	maxEMI := round2(a.MonthlySalary * rules.MaxEMIToSalary)
	d.MonthlyEMI = emi
	d.MaxEMIAllowed = maxEMI
	d.EMIToSalaryRatio = round2(emi / a.MonthlySalary)

	affordable := emi <= maxEMI
	d.Checks = append(d.Checks, api.RuleCheck{
		Rule:        "emi_to_salary",
		Description: "monthly installment affordable against salary",
		Check:       fmt.Sprintf("EMI %.2f <= %.2f (%.0f%% of salary %.2f)", emi, maxEMI, rules.MaxEMIToSalary*100, a.MonthlySalary),
		Passed:      affordable,
	})
	if !affordable {
		d.Status = api.DecisionRejected
		d.Code = api.CodeEMITooHigh
		d.Reason = fmt.Sprintf("EMI %.2f exceeds %.0f%% of monthly salary %.2f", emi, rules.MaxEMIToSalary*100, a.MonthlySalary)
		return d
	}

	d.Status = api.DecisionApproved
	d.Code = api.CodeSalaryCheckPassed
	d.ApprovedAmount = a.RequestedAmount
	d.Reason = fmt.Sprintf("EMI %.2f affordable against monthly salary %.2f", emi, a.MonthlySalary)
	return d
}

// ApplicantFromStage extracts applicant fields from progression stage
// data. Recognized keys: "applicant_name", "credit_score",
// "monthly_salary", "requested_amount". Numeric values may arrive as
// int, int64 or float64 depending on the caller's decoder.
func ApplicantFromStage(stage api.StageData) Applicant {
	return Applicant{
		Name:            stringField(stage, "applicant_name"),
		CreditScore:     int(numField(stage, "credit_score")),
		MonthlySalary:   numField(stage, "monthly_salary"),
		RequestedAmount: numField(stage, "requested_amount"),
	}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func numField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// Handler adapts the decision engine to the orchestrator's underwriting
// handler slot, reading the applicant from the stage data.
func Handler(rules Rules) api.UnderwriteFunc {
	return func(ctx context.Context, sessionID string, stage api.StageData) (*api.Decision, error) {
		return Decide(ApplicantFromStage(stage), rules), nil
	}
}
