package guard

import (
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/types"
)

// Guard evaluates feature rules for one organization.
// Stateless after construction; safe for concurrent use.
type Guard struct {
	cfg      Config
	programs map[string]compiledRule
}

type compiledRule struct {
	program cel.Program
	message string
}

// New validates the configuration and compiles custom CEL rules.
// Compilation errors surface here, at load time, never at check time.
func New(cfg Config) (*Guard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g := &Guard{
		cfg:      cfg,
		programs: make(map[string]compiledRule, len(cfg.CustomRules)),
	}

	if len(cfg.CustomRules) > 0 {
		env, err := cel.NewEnv(
			cel.Variable("vars", cel.MapType(cel.StringType, cel.DynType)),
		)
		if err != nil {
			return nil, fmt.Errorf("create cel environment: %w", err)
		}

		for _, r := range cfg.CustomRules {
			ast, issues := env.Compile(r.Expression)
			if issues != nil && issues.Err() != nil {
				return nil, apperror.NewValidation("invalid custom rule expression").
					WithDetail("rule", r.Name).
					WithDetail("error", issues.Err().Error())
			}
			if ast.OutputType() != cel.BoolType {
				return nil, apperror.NewValidation("custom rule must evaluate to bool").
					WithDetail("rule", r.Name)
			}

			prg, err := env.Program(ast)
			if err != nil {
				return nil, fmt.Errorf("compile rule %s: %w", r.Name, err)
			}
			g.programs[r.Name] = compiledRule{program: prg, message: r.Message}
		}
	}

	return g, nil
}

// Config returns the guard's configuration.
func (g *Guard) Config() Config {
	return g.cfg
}

// AllowsNegativeStock reports whether allocations may drive balances negative.
func (g *Guard) AllowsNegativeStock() bool {
	return g.cfg.AllowNegativeStock
}

// CheckExpiryMandatory fails if expiry is absent and policy requires it.
// Returns a validation error: the batch is malformed input under this policy,
// not a rejected business action.
func (g *Guard) CheckExpiryMandatory(expiry *time.Time) error {
	if !g.cfg.ExpiryMandatory {
		return nil
	}
	if expiry == nil || expiry.IsZero() {
		return apperror.NewValidation("expiry date is required by organization policy").
			WithDetail("rule", RuleExpiryMandatory)
	}
	return nil
}

// CheckNegativeStock fails if the request exceeds available quantity and
// negative stock is disallowed.
func (g *Guard) CheckNegativeStock(available, requested types.Quantity) error {
	if g.cfg.AllowNegativeStock {
		return nil
	}
	if requested > available {
		return apperror.NewFeatureViolation(RuleNegativeStock, "request would drive stock negative").
			WithDetail("available", available.Float64()).
			WithDetail("requested", requested.Float64())
	}
	return nil
}

// CheckDiscountLimit fails if discount exceeds the configured ceiling.
func (g *Guard) CheckDiscountLimit(discountPercent types.Money) error {
	if discountPercent.IsNegative() {
		return apperror.NewValidation("discount must not be negative").
			WithDetail("value", discountPercent.String())
	}
	if discountPercent.GreaterThan(g.cfg.MaxDiscountPercent) {
		return apperror.NewFeatureViolation(RuleDiscountLimit, "discount exceeds allowed maximum").
			WithDetail("discount", discountPercent.String()).
			WithDetail("max_allowed", g.cfg.MaxDiscountPercent.String())
	}
	return nil
}

// CheckCreditLimit fails if the order amount exceeds the effective limit.
// A positive customer-specific limit overrides the organization default;
// zero effective limit means unlimited credit.
func (g *Guard) CheckCreditLimit(orderAmount, customerLimit types.Money) error {
	effective := g.cfg.CreditLimit
	if customerLimit.IsPositive() {
		effective = customerLimit
	}
	if effective.IsZero() {
		return nil
	}
	if orderAmount.GreaterThan(effective) {
		return apperror.NewFeatureViolation(RuleCreditLimit, "order amount exceeds credit limit").
			WithDetail("order_amount", orderAmount.String()).
			WithDetail("credit_limit", effective.String())
	}
	return nil
}

// CheckRule evaluates a custom CEL rule against vars.
// Unknown rule names fail with NotFound so callers can distinguish a typo
// from a rejected check.
func (g *Guard) CheckRule(name string, vars map[string]any) error {
	rule, ok := g.programs[name]
	if !ok {
		return apperror.NewNotFound("feature rule", name)
	}

	out, _, err := rule.program.Eval(map[string]any{"vars": vars})
	if err != nil {
		return apperror.NewValidation("rule evaluation failed").
			WithDetail("rule", name).
			WithDetail("error", err.Error())
	}

	pass, ok := out.Value().(bool)
	if !ok || !pass {
		msg := rule.message
		if msg == "" {
			msg = "custom rule rejected the operation"
		}
		violation := apperror.NewFeatureViolation(name, msg)
		for k, v := range vars {
			violation = violation.WithDetail(k, v)
		}
		return violation
	}

	return nil
}

// RuleContext carries the values a named check evaluates.
// Only the fields relevant to the rule need to be set.
type RuleContext struct {
	Expiry          *time.Time     `json:"expiry,omitempty"`
	Available       types.Quantity `json:"available,omitempty"`
	Requested       types.Quantity `json:"requested,omitempty"`
	DiscountPercent types.Money    `json:"discountPercent,omitempty"`
	OrderAmount     types.Money    `json:"orderAmount,omitempty"`
	CustomerLimit   types.Money    `json:"customerLimit,omitempty"`
	Vars            map[string]any `json:"vars,omitempty"`
}

// Check dispatches a rule by name. Built-in rules use the typed context
// fields; anything else is looked up among custom CEL rules.
func (g *Guard) Check(name string, rc RuleContext) error {
	switch name {
	case RuleExpiryMandatory:
		return g.CheckExpiryMandatory(rc.Expiry)
	case RuleNegativeStock:
		return g.CheckNegativeStock(rc.Available, rc.Requested)
	case RuleDiscountLimit:
		return g.CheckDiscountLimit(rc.DiscountPercent)
	case RuleCreditLimit:
		return g.CheckCreditLimit(rc.OrderAmount, rc.CustomerLimit)
	default:
		return g.CheckRule(name, rc.Vars)
	}
}
