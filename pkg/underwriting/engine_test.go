package underwriting

import (
	"context"
	"testing"

	"github.com/sinifive/loanflow/pkg/api"
)

func TestDecide_WithinPreApprovedLimit(t *testing.T) {
	d := Decide(Applicant{
		Name:            "Asha",
		CreditScore:     760,
		MonthlySalary:   90000,
		RequestedAmount: 400000,
	}, DefaultRules())

	if d.Status != api.DecisionApproved {
		t.Fatalf("expected APPROVED, got %s (%s)", d.Status, d.Reason)
	}
	if d.Code != api.CodeWithinPreApprovedLimit {
		t.Fatalf("expected WITHIN_PRE_APPROVED_LIMIT, got %s", d.Code)
	}
	if d.RiskBucket != api.RiskLow {
		t.Fatalf("expected LOW bucket, got %s", d.RiskBucket)
	}
	if d.ApprovedAmount != 400000 {
		t.Fatalf("expected approved amount 400000, got %v", d.ApprovedAmount)
	}
	if d.MonthlyEMI <= 0 {
		t.Fatalf("expected EMI computed, got %v", d.MonthlyEMI)
	}
	if want := round2(d.MonthlyEMI / 90000); d.EMIToSalaryRatio != want {
		t.Fatalf("expected ratio %v, got %v", want, d.EMIToSalaryRatio)
	}
}

func TestDecide_CreditScoreLow(t *testing.T) {
	d := Decide(Applicant{
		Name:            "Vikram",
		CreditScore:     580,
		MonthlySalary:   50000,
		RequestedAmount: 100000,
	}, DefaultRules())

	if d.Status != api.DecisionRejected {
		t.Fatalf("expected REJECTED, got %s", d.Status)
	}
	if d.Code != api.CodeCreditScoreLow {
		t.Fatalf("expected CREDIT_SCORE_LOW, got %s", d.Code)
	}
	// The ladder short-circuits: no bucket, no EMI.
	if d.RiskBucket != "" {
		t.Fatalf("expected no bucket on score rejection, got %s", d.RiskBucket)
	}
}

func TestDecide_DeepSubprimeScoreRejected(t *testing.T) {
	// A score far below any bucket is still a business rejection,
	// not an input error.
	d := Decide(Applicant{
		Name:            "Ravi",
		CreditScore:     250,
		MonthlySalary:   50000,
		RequestedAmount: 100000,
	}, DefaultRules())

	if d.Status != api.DecisionRejected {
		t.Fatalf("expected REJECTED, got %s (%s)", d.Status, d.Reason)
	}
	if d.Code != api.CodeCreditScoreLow {
		t.Fatalf("expected CREDIT_SCORE_LOW, got %s", d.Code)
	}
}

func TestDecide_RiskBuckets(t *testing.T) {
	rules := DefaultRules()
	cases := []struct {
		score int
		want  api.RiskBucket
		limit float64
	}{
		{750, api.RiskLow, rules.LowRisk.PreApprovedLimit},
		{800, api.RiskLow, rules.LowRisk.PreApprovedLimit},
		{700, api.RiskMedium, rules.MediumRisk.PreApprovedLimit},
		{749, api.RiskMedium, rules.MediumRisk.PreApprovedLimit},
		{650, api.RiskHigh, rules.HighRisk.PreApprovedLimit},
		{699, api.RiskHigh, rules.HighRisk.PreApprovedLimit},
	}

	for _, tc := range cases {
		d := Decide(Applicant{
			Name:            "B",
			CreditScore:     tc.score,
			MonthlySalary:   100000,
			RequestedAmount: 50000,
		}, rules)
		if d.RiskBucket != tc.want {
			t.Fatalf("score %d: expected bucket %s, got %s", tc.score, tc.want, d.RiskBucket)
		}
		if d.PreApprovedLimit != tc.limit {
			t.Fatalf("score %d: expected limit %v, got %v", tc.score, tc.limit, d.PreApprovedLimit)
		}
	}
}

func TestDecide_SalaryCheckPassed(t *testing.T) {
	// 700 lands in MEDIUM (limit 300000); 400000 is within the stretch
	// bound, and a high salary keeps the EMI affordable.
	d := Decide(Applicant{
		Name:            "C",
		CreditScore:     700,
		MonthlySalary:   100000,
		RequestedAmount: 400000,
	}, DefaultRules())

	if d.Status != api.DecisionApproved {
		t.Fatalf("expected APPROVED, got %s (%s)", d.Status, d.Reason)
	}
	if d.Code != api.CodeSalaryCheckPassed {
		t.Fatalf("expected SALARY_CHECK_PASSED, got %s", d.Code)
	}
	if d.MonthlyEMI > d.MaxEMIAllowed {
		t.Fatalf("EMI %v exceeds allowance %v", d.MonthlyEMI, d.MaxEMIAllowed)
	}
	if d.EMIToSalaryRatio <= 0 {
		t.Fatalf("expected ratio recorded, got %v", d.EMIToSalaryRatio)
	}
}

func TestDecide_EMITooHigh(t *testing.T) {
	// Same stretch amount, but a thin salary makes the EMI unaffordable.
	d := Decide(Applicant{
		Name:            "D",
		CreditScore:     700,
		MonthlySalary:   25000,
		RequestedAmount: 400000,
	}, DefaultRules())

	if d.Status != api.DecisionRejected {
		t.Fatalf("expected REJECTED, got %s", d.Status)
	}
	if d.Code != api.CodeEMITooHigh {
		t.Fatalf("expected EMI_TOO_HIGH, got %s", d.Code)
	}
	if d.MonthlyEMI <= d.MaxEMIAllowed {
		t.Fatalf("rejection inconsistent: EMI %v within allowance %v", d.MonthlyEMI, d.MaxEMIAllowed)
	}
}

func TestDecide_AmountTooHigh(t *testing.T) {
	// Beyond twice the pre-approved limit no salary saves the request.
	d := Decide(Applicant{
		Name:            "E",
		CreditScore:     660,
		MonthlySalary:   500000,
		RequestedAmount: 900000,
	}, DefaultRules())

	if d.Status != api.DecisionRejected {
		t.Fatalf("expected REJECTED, got %s", d.Status)
	}
	if d.Code != api.CodeAmountTooHigh {
		t.Fatalf("expected AMOUNT_TOO_HIGH, got %s", d.Code)
	}
}

func TestDecide_InvalidInput(t *testing.T) {
	cases := []struct {
		name string
		a    Applicant
	}{
		{"missing score", Applicant{MonthlySalary: 1000, RequestedAmount: 1000}},
		{"zero salary", Applicant{CreditScore: 700, RequestedAmount: 1000}},
		{"zero amount", Applicant{CreditScore: 700, MonthlySalary: 1000}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Decide(tc.a, DefaultRules())
			if d.Status != api.DecisionError {
				t.Fatalf("expected ERROR, got %s", d.Status)
			}
			if d.Reason == "" {
				t.Fatalf("expected a reason for the input error")
			}
		})
	}
}

func TestDecide_CheckTrail(t *testing.T) {
	d := Decide(Applicant{
		Name:            "F",
		CreditScore:     700,
		MonthlySalary:   100000,
		RequestedAmount: 400000,
	}, DefaultRules())

	wantRules := []string{"min_credit_score", "risk_bucket", "pre_approved_limit", "stretch_bound", "emi_to_salary"}
	if len(d.Checks) != len(wantRules) {
		t.Fatalf("expected %d checks, got %d: %+v", len(wantRules), len(d.Checks), d.Checks)
	}
	for i, want := range wantRules {
		if d.Checks[i].Rule != want {
			t.Fatalf("check %d: expected %s, got %s", i, want, d.Checks[i].Rule)
		}
	}
	// Only the limit check failed on the way to a stretch approval.
	if d.Checks[2].Passed {
		t.Fatalf("expected pre_approved_limit check to fail")
	}
	if !d.Checks[4].Passed {
		t.Fatalf("expected emi_to_salary check to pass")
	}
}

func TestApplicantFromStage(t *testing.T) {
	a := ApplicantFromStage(api.StageData{
		"applicant_name":   "G",
		"credit_score":     720,
		"monthly_salary":   55000.5,
		"requested_amount": int64(250000),
	})

	if a.Name != "G" || a.CreditScore != 720 {
		t.Fatalf("unexpected applicant: %+v", a)
	}
	if a.MonthlySalary != 55000.5 || a.RequestedAmount != 250000 {
		t.Fatalf("numeric coercion failed: %+v", a)
	}
}

func TestHandler(t *testing.T) {
	h := Handler(DefaultRules())

	d, err := h(context.Background(), "s1", api.StageData{
		"applicant_name":   "H",
		"credit_score":     760,
		"monthly_salary":   90000.0,
		"requested_amount": 400000.0,
	})
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	if d.Status != api.DecisionApproved {
		t.Fatalf("expected APPROVED, got %s (%s)", d.Status, d.Reason)
	}
}
