// Package approvals implements the risk classification and approval policy
// that gates autonomous agent actions.
package approvals

// RiskLevel is a coarse classification of an action's reversibility and impact.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"      // read-only operations
	RiskMedium   RiskLevel = "medium"   // write operations with easy undo
	RiskHigh     RiskLevel = "high"     // external or communication effects
	RiskCritical RiskLevel = "critical" // irreversible or financial operations
)

// actionRisk maps known action types to their risk level. Unknown actions
// default to medium so new tools fail toward caution.
var actionRisk = map[string]RiskLevel{
	// Read-only.
	"web_search":     RiskLow,
	"web_scrape":     RiskLow,
	"email_read":     RiskLow,
	"csv_read":       RiskLow,
	"file_read":      RiskLow,
	"pdf_read":       RiskLow,
	"news_search":    RiskLow,
	"company_search": RiskLow,
	"market_data":    RiskLow,
	"calculator":     RiskLow,

	// Writes with easy undo.
	"email_draft":    RiskMedium,
	"file_write":     RiskMedium,
	"csv_write":      RiskMedium,
	"excel_write":    RiskMedium,
	"web_screenshot": RiskMedium,

	// External communication.
	"email_send":         RiskHigh,
	"email_categorize":   RiskHigh,
	"calendar_events":    RiskHigh,
	"browser_automation": RiskHigh,

	// Irreversible or financial.
	"email_unsubscribe": RiskCritical,
	"payment":           RiskCritical,
	"trade":             RiskCritical,
	"delete":            RiskCritical,
}

// Classify returns the risk level for an action type.
func Classify(actionType string) RiskLevel {
	if risk, ok := actionRisk[actionType]; ok {
		return risk
	}
	return RiskMedium
}

// approvalMatrix holds, per autonomy level, the set of risk levels that
// require human approval before dispatch.
var approvalMatrix = map[int]map[RiskLevel]bool{
	1: {RiskLow: true, RiskMedium: true, RiskHigh: true, RiskCritical: true},
	2: {RiskLow: false, RiskMedium: true, RiskHigh: true, RiskCritical: true},
	3: {RiskLow: false, RiskMedium: false, RiskHigh: false, RiskCritical: true},
	4: {RiskLow: false, RiskMedium: false, RiskHigh: false, RiskCritical: false},
}

// RequiresApproval reports whether an action of the given risk needs human
// approval for an agent at the given autonomy level. Out-of-range levels
// fall back to the level-2 row: ask for medium and above.
func RequiresApproval(risk RiskLevel, autonomyLevel int) bool {
	row, ok := approvalMatrix[autonomyLevel]
	if !ok {
		row = approvalMatrix[2]
	}
	return row[risk]
}
