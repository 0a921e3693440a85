package scheduler

import "encoding/json"

// Template is a ready-made schedule the shell offers as a starting point.
type Template struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	CronExpr     string          `json:"cron_expr"`
	TaskType     string          `json:"task_type"`
	DefaultInput json.RawMessage `json:"default_input"`
}

// Templates returns the built-in schedule catalog.
func Templates() []Template {
	return []Template{
		{
			ID:           "daily-digest",
			Name:         "Daily Digest",
			Description:  "Run every morning at 9am",
			CronExpr:     "0 9 * * *",
			TaskType:     "digest",
			DefaultInput: json.RawMessage(`{}`),
		},
		{
			ID:           "weekly-report",
			Name:         "Weekly Report",
			Description:  "Run every Monday at 9am",
			CronExpr:     "0 9 * * 1",
			TaskType:     "report",
			DefaultInput: json.RawMessage(`{"period":"weekly"}`),
		},
		{
			ID:           "hourly-check",
			Name:         "Hourly Check",
			Description:  "Run every hour",
			CronExpr:     "0 * * * *",
			TaskType:     "check",
			DefaultInput: json.RawMessage(`{}`),
		},
		{
			ID:           "end-of-day",
			Name:         "End of Day Summary",
			Description:  "Run every weekday at 5pm",
			CronExpr:     "0 17 * * 1-5",
			TaskType:     "summary",
			DefaultInput: json.RawMessage(`{}`),
		},
		{
			ID:           "monthly-review",
			Name:         "Monthly Review",
			Description:  "Run on the 1st of each month",
			CronExpr:     "0 9 1 * *",
			TaskType:     "review",
			DefaultInput: json.RawMessage(`{"period":"monthly"}`),
		},
	}
}
