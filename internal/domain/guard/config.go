// Package guard provides the feature enforcement layer consulted before any
// ledger-mutating operation. Checks are pure: they evaluate an organization's
// feature configuration against the values at hand and never touch storage.
package guard

import (
	"fmt"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/types"
)

// Rule names (constants for type safety)
const (
	RuleExpiryMandatory = "expiry_mandatory"
	RuleNegativeStock   = "negative_stock"
	RuleDiscountLimit   = "discount_limit"
	RuleCreditLimit     = "credit_limit"
)

// Config is the typed feature configuration for one organization.
// Replaces the string-keyed flag dictionary with defaults merged at read
// time: defaults are enumerated once in DefaultConfig and the struct is
// validated at load time.
type Config struct {
	OrganizationID string `json:"organizationId"`

	// AllowNegativeStock permits batch balances to go negative on allocation.
	AllowNegativeStock bool `json:"allowNegativeStock"`

	// ExpiryMandatory rejects batch creation without an explicit expiry date.
	ExpiryMandatory bool `json:"expiryMandatory"`

	// MaxDiscountPercent is the discount ceiling (0..100).
	MaxDiscountPercent types.Money `json:"maxDiscountPercent"`

	// CreditLimit is the organization-wide default credit threshold.
	// A customer-specific limit overrides it. Zero means unlimited.
	CreditLimit types.Money `json:"creditLimit"`

	// CustomRules are organization-defined CEL predicates, compiled once
	// at guard construction.
	CustomRules []CustomRule `json:"customRules,omitempty"`
}

// CustomRule is a named CEL boolean expression over a `vars` map.
// Example: {Name: "max_line_qty", Expression: "vars.quantity <= 1000.0"}.
type CustomRule struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
	Message    string `json:"message,omitempty"`
}

// DefaultConfig returns the documented defaults for an organization.
func DefaultConfig(organizationID string) Config {
	return Config{
		OrganizationID:     organizationID,
		AllowNegativeStock: false,
		ExpiryMandatory:    false,
		MaxDiscountPercent: types.MustMoney("100"),
		CreditLimit:        types.ZeroMoney(),
	}
}

// Validate checks configuration invariants at load time.
func (c Config) Validate() error {
	if c.OrganizationID == "" {
		return apperror.NewValidation("organization is required").
			WithDetail("field", "organizationId")
	}

	if c.MaxDiscountPercent.IsNegative() || c.MaxDiscountPercent.GreaterThan(types.MustMoney("100")) {
		return apperror.NewValidation("maxDiscountPercent must be between 0 and 100").
			WithDetail("field", "maxDiscountPercent").
			WithDetail("value", c.MaxDiscountPercent.String())
	}

	if c.CreditLimit.IsNegative() {
		return apperror.NewValidation("creditLimit must not be negative").
			WithDetail("field", "creditLimit")
	}

	seen := make(map[string]struct{}, len(c.CustomRules))
	for i, r := range c.CustomRules {
		if r.Name == "" || r.Expression == "" {
			return apperror.NewValidation(fmt.Sprintf("custom rule %d: name and expression are required", i))
		}
		if _, dup := seen[r.Name]; dup {
			return apperror.NewValidation("duplicate custom rule name").
				WithDetail("rule", r.Name)
		}
		seen[r.Name] = struct{}{}
	}

	return nil
}
