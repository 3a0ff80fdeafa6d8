package guard

import (
	"testing"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/types"
)

func mustGuard(t *testing.T, cfg Config) *Guard {
	t.Helper()
	g, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestExpiryMandatory(t *testing.T) {
	cfg := DefaultConfig("org-1")
	cfg.ExpiryMandatory = true
	g := mustGuard(t, cfg)

	err := g.CheckExpiryMandatory(nil)
	if !apperror.HasCode(err, apperror.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	expiry := time.Now().AddDate(1, 0, 0)
	if err := g.CheckExpiryMandatory(&expiry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Policy off: missing expiry is fine.
	relaxed := mustGuard(t, DefaultConfig("org-1"))
	if err := relaxed.CheckExpiryMandatory(nil); err != nil {
		t.Fatalf("unexpected error with policy disabled: %v", err)
	}
}

func TestNegativeStock(t *testing.T) {
	g := mustGuard(t, DefaultConfig("org-1"))

	err := g.CheckNegativeStock(types.NewQuantityFromInt(5), types.NewQuantityFromInt(8))
	if !apperror.HasCode(err, apperror.CodeFeatureViolation) {
		t.Fatalf("expected feature violation, got %v", err)
	}

	if err := g.CheckNegativeStock(types.NewQuantityFromInt(5), types.NewQuantityFromInt(5)); err != nil {
		t.Fatalf("exact match must pass: %v", err)
	}

	cfg := DefaultConfig("org-1")
	cfg.AllowNegativeStock = true
	permissive := mustGuard(t, cfg)
	if err := permissive.CheckNegativeStock(types.NewQuantityFromInt(0), types.NewQuantityFromInt(100)); err != nil {
		t.Fatalf("negative stock allowed, got %v", err)
	}
}

func TestDiscountLimit(t *testing.T) {
	cfg := DefaultConfig("org-1")
	cfg.MaxDiscountPercent = types.MustMoney("15")
	g := mustGuard(t, cfg)

	if err := g.CheckDiscountLimit(types.MustMoney("15")); err != nil {
		t.Fatalf("limit itself must pass: %v", err)
	}

	err := g.CheckDiscountLimit(types.MustMoney("15.01"))
	if !apperror.HasCode(err, apperror.CodeFeatureViolation) {
		t.Fatalf("expected feature violation, got %v", err)
	}

	err = g.CheckDiscountLimit(types.MustMoney("-1"))
	if !apperror.HasCode(err, apperror.CodeValidation) {
		t.Fatalf("negative discount must be a validation error, got %v", err)
	}
}

func TestCreditLimit(t *testing.T) {
	cfg := DefaultConfig("org-1")
	cfg.CreditLimit = types.MustMoney("1000")
	g := mustGuard(t, cfg)

	if err := g.CheckCreditLimit(types.MustMoney("1000"), types.ZeroMoney()); err != nil {
		t.Fatalf("at limit must pass: %v", err)
	}

	err := g.CheckCreditLimit(types.MustMoney("1000.50"), types.ZeroMoney())
	if !apperror.HasCode(err, apperror.CodeFeatureViolation) {
		t.Fatalf("expected feature violation, got %v", err)
	}

	// Customer-specific limit overrides org default.
	if err := g.CheckCreditLimit(types.MustMoney("5000"), types.MustMoney("10000")); err != nil {
		t.Fatalf("customer limit should override: %v", err)
	}

	// Zero effective limit means unlimited.
	unlimited := mustGuard(t, DefaultConfig("org-1"))
	if err := unlimited.CheckCreditLimit(types.MustMoney("999999"), types.ZeroMoney()); err != nil {
		t.Fatalf("zero limit must be unlimited: %v", err)
	}
}

func TestCustomRules(t *testing.T) {
	cfg := DefaultConfig("org-1")
	cfg.CustomRules = []CustomRule{
		{
			Name:       "max_line_qty",
			Expression: `double(vars.quantity) <= 1000.0`,
			Message:    "line quantity exceeds 1000",
		},
	}
	g := mustGuard(t, cfg)

	if err := g.CheckRule("max_line_qty", map[string]any{"quantity": 500.0}); err != nil {
		t.Fatalf("passing rule returned error: %v", err)
	}

	err := g.CheckRule("max_line_qty", map[string]any{"quantity": 1500.0})
	if !apperror.HasCode(err, apperror.CodeFeatureViolation) {
		t.Fatalf("expected feature violation, got %v", err)
	}
	if appErr, _ := apperror.AsAppError(err); appErr.Message != "line quantity exceeds 1000" {
		t.Errorf("expected configured message, got %q", appErr.Message)
	}

	if err := g.CheckRule("no_such_rule", nil); !apperror.IsNotFound(err) {
		t.Fatalf("unknown rule must be not found, got %v", err)
	}
}

func TestCustomRuleCompileErrors(t *testing.T) {
	cfg := DefaultConfig("org-1")
	cfg.CustomRules = []CustomRule{{Name: "broken", Expression: `vars.quantity <=`}}
	if _, err := New(cfg); !apperror.HasCode(err, apperror.CodeValidation) {
		t.Fatalf("expected validation error for broken expression, got %v", err)
	}

	cfg.CustomRules = []CustomRule{{Name: "not_bool", Expression: `"hello"`}}
	if _, err := New(cfg); !apperror.HasCode(err, apperror.CodeValidation) {
		t.Fatalf("expected validation error for non-bool expression, got %v", err)
	}
}

func TestCheckDispatch(t *testing.T) {
	cfg := DefaultConfig("org-1")
	cfg.ExpiryMandatory = true
	g := mustGuard(t, cfg)

	err := g.Check(RuleExpiryMandatory, RuleContext{})
	if !apperror.HasCode(err, apperror.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	err = g.Check(RuleNegativeStock, RuleContext{
		Available: types.NewQuantityFromInt(1),
		Requested: types.NewQuantityFromInt(2),
	})
	if !apperror.HasCode(err, apperror.CodeFeatureViolation) {
		t.Fatalf("expected feature violation, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig("")
	if err := cfg.Validate(); !apperror.HasCode(err, apperror.CodeValidation) {
		t.Fatalf("missing org must fail, got %v", err)
	}

	cfg = DefaultConfig("org-1")
	cfg.MaxDiscountPercent = types.MustMoney("120")
	if err := cfg.Validate(); !apperror.HasCode(err, apperror.CodeValidation) {
		t.Fatalf("discount above 100 must fail, got %v", err)
	}

	cfg = DefaultConfig("org-1")
	cfg.CustomRules = []CustomRule{
		{Name: "r", Expression: "true"},
		{Name: "r", Expression: "false"},
	}
	if err := cfg.Validate(); !apperror.HasCode(err, apperror.CodeValidation) {
		t.Fatalf("duplicate rule names must fail, got %v", err)
	}
}
