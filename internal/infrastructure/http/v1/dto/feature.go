package dto

import (
	"lotledger/internal/domain/guard"
)

// CheckRuleRequest evaluates a named feature rule against a context.
type CheckRuleRequest struct {
	Rule    string            `json:"rule" binding:"required"`
	Context guard.RuleContext `json:"context"`
}

// CheckRuleResponse reports a passing check. Violations are returned as
// structured errors, not as Allowed=false.
type CheckRuleResponse struct {
	Rule    string `json:"rule"`
	Allowed bool   `json:"allowed"`
}
