package domain

// AdvisoryRule is an operator-defined CEL expression that raises a notice
// next to a recommendation when it evaluates to true.
type AdvisoryRule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`

	// CEL expression; must return bool.
	Expression string `json:"expression"`

	// Message is reported as a notice when triggered.
	Message string `json:"message"`

	Enabled bool `json:"enabled"`
}

// AdvisoryResult is the output of one advisory rule evaluation.
type AdvisoryResult struct {
	RuleID    string `json:"ruleId"`
	Triggered bool   `json:"triggered"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ProcessMs int64  `json:"processMs"`
}
