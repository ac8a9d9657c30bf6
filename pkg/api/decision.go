package api

import "time"

// DecisionStatus is the overall verdict of an underwriting run.
type DecisionStatus string

const (
	DecisionApproved DecisionStatus = "APPROVED"
	DecisionRejected DecisionStatus = "REJECTED"
	DecisionError    DecisionStatus = "ERROR"
)

// DecisionCode identifies which rule produced the verdict.
type DecisionCode string

const (
	CodeWithinPreApprovedLimit DecisionCode = "WITHIN_PRE_APPROVED_LIMIT"
	CodeSalaryCheckPassed      DecisionCode = "SALARY_CHECK_PASSED"
	CodeCreditScoreLow         DecisionCode = "CREDIT_SCORE_LOW"
	CodeEMITooHigh             DecisionCode = "EMI_TOO_HIGH"
	CodeAmountTooHigh          DecisionCode = "AMOUNT_TOO_HIGH"
)

// RiskBucket groups applicants by credit score.
type RiskBucket string

const (
	RiskLow    RiskBucket = "LOW"
	RiskMedium RiskBucket = "MEDIUM"
	RiskHigh   RiskBucket = "HIGH"
)

// RuleCheck records one rule evaluation in the decision trail.
type RuleCheck struct {
	Rule        string
	Description string
	Check       string
	Passed      bool
}

// Decision is the full outcome of an underwriting run, echoing the
// applicant inputs alongside the verdict so the record is
// self-contained.
type Decision struct {
	Status DecisionStatus
	Code   DecisionCode

	ApplicantName string
	CreditScore   int
	MonthlySalary float64

	RequestedAmount  float64
	ApprovedAmount   float64
	PreApprovedLimit float64
	RiskBucket       RiskBucket

	TenureMonths int
	AnnualROI    float64

	MonthlyEMI       float64
	EMIToSalaryRatio float64
	MaxEMIAllowed    float64

	Reason string
	Checks []RuleCheck

	Timestamp time.Time
}

// Approved reports whether the decision sanctions the requested amount.
func (d *Decision) Approved() bool {
	return d.Status == DecisionApproved
}
