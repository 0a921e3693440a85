package approvals

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		action string
		want   RiskLevel
	}{
		{"web_search", RiskLow},
		{"file_read", RiskLow},
		{"market_data", RiskLow},
		{"email_draft", RiskMedium},
		{"file_write", RiskMedium},
		{"web_screenshot", RiskMedium},
		{"email_send", RiskHigh},
		{"calendar_events", RiskHigh},
		{"browser_automation", RiskHigh},
		{"payment", RiskCritical},
		{"trade", RiskCritical},
		{"delete", RiskCritical},
		{"email_unsubscribe", RiskCritical},
	}
	for _, tc := range cases {
		if got := Classify(tc.action); got != tc.want {
			t.Errorf("Classify(%q) = %v, want %v", tc.action, got, tc.want)
		}
	}
}

func TestClassify_UnknownDefaultsToMedium(t *testing.T) {
	if got := Classify("teleport"); got != RiskMedium {
		t.Errorf("unknown action should be medium, got %v", got)
	}
}

// Every (risk, autonomy) pair must be defined; no pair falls through.
func TestRequiresApproval_Exhaustive(t *testing.T) {
	want := map[int]map[RiskLevel]bool{
		1: {RiskLow: true, RiskMedium: true, RiskHigh: true, RiskCritical: true},
		2: {RiskLow: false, RiskMedium: true, RiskHigh: true, RiskCritical: true},
		3: {RiskLow: false, RiskMedium: false, RiskHigh: false, RiskCritical: true},
		4: {RiskLow: false, RiskMedium: false, RiskHigh: false, RiskCritical: false},
	}

	risks := []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}
	for level := 1; level <= 4; level++ {
		for _, risk := range risks {
			got := RequiresApproval(risk, level)
			if got != want[level][risk] {
				t.Errorf("RequiresApproval(%v, %d) = %v, want %v", risk, level, got, want[level][risk])
			}
		}
	}
}

func TestRequiresApproval_OutOfRangeLevel(t *testing.T) {
	// Unknown levels behave like level 2: ask for medium and above.
	if RequiresApproval(RiskLow, 0) {
		t.Error("low risk should not require approval at fallback level")
	}
	if !RequiresApproval(RiskMedium, 7) {
		t.Error("medium risk should require approval at fallback level")
	}
}

func TestRequest_Decide(t *testing.T) {
	req := NewRequest("agent-1", "task-1", "email_send", []byte(`{"to":"x@y.z"}`))
	if req.Status != StatusPending {
		t.Fatalf("new request should be pending, got %s", req.Status)
	}
	if req.RiskLevel != RiskHigh {
		t.Fatalf("email_send should classify high, got %s", req.RiskLevel)
	}

	if err := req.Decide(true, nil); err != nil {
		t.Fatalf("decide: %v", err)
	}
	if req.Status != StatusApproved {
		t.Errorf("expected approved, got %s", req.Status)
	}
	if req.DecidedAt == nil {
		t.Error("expected DecidedAt to be set")
	}

	// A decided request cannot be re-decided.
	if err := req.Decide(false, nil); err != ErrAlreadyDecided {
		t.Errorf("expected ErrAlreadyDecided, got %v", err)
	}
}

func TestRequest_Reject(t *testing.T) {
	req := NewRequest("agent-1", "", "payment", []byte(`{}`))
	if err := req.Decide(false, nil); err != nil {
		t.Fatalf("decide: %v", err)
	}
	if req.Status != StatusRejected {
		t.Errorf("expected rejected, got %s", req.Status)
	}
}
