// Package validate applies field-level and cross-field validation rules to
// extracted items. Rules attach violations; fixable problems are repaired
// in place and kept as audit records, error-severity violations exclude the
// item from downstream processing.
package validate

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stacklens/catalog-ingest/internal/mapping"
	"github.com/stacklens/catalog-ingest/internal/model"
)

// Engine runs the rule table against items.
type Engine struct {
	MaxNameLength   int
	MaxMonthlyCost  float64
	AnnualTolerance float64 // allowed relative gap between annual and 12x monthly
}

// NewEngine returns an engine with the default limits.
func NewEngine() *Engine {
	return &Engine{
		MaxNameLength:   200,
		MaxMonthlyCost:  1_000_000,
		AnnualTolerance: 0.20,
	}
}

// placeholderValues are rejected wherever they appear as a field value.
var placeholderValues = map[string]bool{
	"test": true, "n/a": true, "na": true, "tbd": true, "todo": true,
	"xxx": true, "placeholder": true, "sample": true, "dummy": true,
	"-": true, "?": true, "none": true,
}

var validStatus = map[string]bool{"active": true, "inactive": true, "planned": true}
var validPriority = map[string]bool{"high": true, "medium": true, "low": true}

// Validate runs every rule against the item, mutating its fields and
// violation list. It returns the number of violations added.
func (e *Engine) Validate(item *model.Item) int {
	before := len(item.Violations)

	e.checkRequired(item)
	e.checkPlaceholders(item)
	e.checkName(item)
	e.checkCosts(item)
	e.checkLicenseCount(item)
	e.checkDates(item)
	e.checkURL(item)
	e.checkEnums(item)

	added := len(item.Violations) - before
	if added > 0 {
		zap.L().Debug("validate: violations recorded",
			zap.String("item", item.ID),
			zap.Int("count", added),
		)
	}
	return added
}

// ValidateAll validates a batch and partitions it into accepted items and
// items excluded by error-severity violations.
func (e *Engine) ValidateAll(items []model.Item) (accepted, excluded []model.Item) {
	for i := range items {
		e.Validate(&items[i])
		if items[i].HasErrors() {
			excluded = append(excluded, items[i])
			continue
		}
		accepted = append(accepted, items[i])
	}
	if len(excluded) > 0 {
		zap.L().Info("validate: items excluded",
			zap.Int("accepted", len(accepted)),
			zap.Int("excluded", len(excluded)),
		)
	}
	return accepted, excluded
}

func (e *Engine) checkRequired(item *model.Item) {
	for _, key := range []string{model.FieldName, model.FieldItemType} {
		f, ok := item.Fields[key]
		if !ok || fmt.Sprint(f.Value) == "" {
			addViolation(item, key, "required", model.SeverityError, key+" is missing")
		}
	}
}

func (e *Engine) checkPlaceholders(item *model.Item) {
	for key, f := range item.Fields {
		s, ok := f.Value.(string)
		if !ok {
			continue
		}
		if placeholderValues[strings.ToLower(strings.TrimSpace(s))] {
			sev := model.SeverityWarning
			if key == model.FieldName {
				sev = model.SeverityError
			}
			addViolation(item, key, "placeholder_value", sev,
				fmt.Sprintf("%s holds placeholder value %q", key, s))
			flagReview(item, key)
		}
	}
}

func (e *Engine) checkName(item *model.Item) {
	name := item.StringValue(model.FieldName)
	if name == "" {
		return
	}
	if len(name) < 2 {
		addViolation(item, model.FieldName, "min_length", model.SeverityError, "name is too short")
		return
	}
	if len(name) > e.MaxNameLength {
		f := item.Fields[model.FieldName]
		f.Value = strings.TrimSpace(name[:e.MaxNameLength])
		item.Fields[model.FieldName] = f
		v := violation(model.FieldName, "max_length", model.SeverityWarning, "name truncated")
		v.AutoFixed = true
		item.Violations = append(item.Violations, v)
	}
}

func (e *Engine) checkCosts(item *model.Item) {
	for _, key := range []string{model.FieldCostMonthly, model.FieldCostAnnual, model.FieldBudget} {
		v, ok := item.FloatValue(key)
		if !ok {
			continue
		}
		if v < 0 {
			addViolation(item, key, "negative_amount", model.SeverityError,
				fmt.Sprintf("%s is negative", key))
		}
	}

	if monthly, ok := item.FloatValue(model.FieldCostMonthly); ok && monthly > e.MaxMonthlyCost {
		addViolation(item, model.FieldCostMonthly, "implausible_amount", model.SeverityWarning,
			"monthly cost exceeds plausibility bound")
		flagReview(item, model.FieldCostMonthly)
	}

	monthly, hasMonthly := item.FloatValue(model.FieldCostMonthly)
	annual, hasAnnual := item.FloatValue(model.FieldCostAnnual)
	if hasMonthly && hasAnnual && monthly > 0 {
		expected := monthly * 12
		gap := (annual - expected) / expected
		if gap < 0 {
			gap = -gap
		}
		if gap > e.AnnualTolerance {
			addViolation(item, model.FieldCostAnnual, "annual_monthly_mismatch", model.SeverityWarning,
				fmt.Sprintf("annual cost %.2f deviates from 12x monthly %.2f", annual, expected))
			flagReview(item, model.FieldCostAnnual)
		}
	}
}

func (e *Engine) checkLicenseCount(item *model.Item) {
	n, ok := item.FloatValue(model.FieldLicenseCount)
	if !ok {
		return
	}
	if n < 0 {
		addViolation(item, model.FieldLicenseCount, "negative_count", model.SeverityError,
			"license count is negative")
	}
}

func (e *Engine) checkDates(item *model.Item) {
	start, hasStart := dateValue(item, model.FieldStartDate)
	end, hasEnd := dateValue(item, model.FieldEndDate)
	if hasStart && hasEnd && end.Before(start) {
		addViolation(item, model.FieldEndDate, "date_order", model.SeverityError,
			"end date precedes start date")
	}

	if renewal, ok := dateValue(item, model.FieldRenewalDate); ok {
		if renewal.Before(time.Now().AddDate(-2, 0, 0)) {
			addViolation(item, model.FieldRenewalDate, "stale_renewal", model.SeverityWarning,
				"renewal date is more than two years past")
			flagReview(item, model.FieldRenewalDate)
		}
	}
}

func (e *Engine) checkURL(item *model.Item) {
	raw := item.StringValue(model.FieldURL)
	if raw == "" {
		return
	}

	u, err := url.Parse(raw)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return
	}

	// Bare domains are repaired by assuming https.
	if !strings.Contains(raw, " ") && strings.Contains(raw, ".") {
		fixed := "https://" + raw
		if u, err := url.Parse(fixed); err == nil && u.Host != "" {
			f := item.Fields[model.FieldURL]
			f.Value = fixed
			item.Fields[model.FieldURL] = f
			v := violation(model.FieldURL, "url_scheme", model.SeverityWarning, "scheme added to bare url")
			v.AutoFixed = true
			item.Violations = append(item.Violations, v)
			return
		}
	}

	addViolation(item, model.FieldURL, "invalid_url", model.SeverityWarning,
		fmt.Sprintf("unparseable url %q", raw))
	flagReview(item, model.FieldURL)
}

func (e *Engine) checkEnums(item *model.Item) {
	e.checkEnum(item, model.FieldStatus, validStatus)
	e.checkEnum(item, model.FieldPriority, validPriority)
}

func (e *Engine) checkEnum(item *model.Item, key string, valid map[string]bool) {
	s := item.StringValue(key)
	if s == "" {
		return
	}
	if valid[s] {
		return
	}
	// Retry locale normalization before rejecting.
	if normalized := mapping.NormalizeEnum(s); valid[normalized] {
		f := item.Fields[key]
		f.Value = normalized
		item.Fields[key] = f
		v := violation(key, "enum_normalized", model.SeverityWarning, "enum value normalized")
		v.AutoFixed = true
		item.Violations = append(item.Violations, v)
		return
	}
	addViolation(item, key, "invalid_enum", model.SeverityWarning,
		fmt.Sprintf("%s has unknown value %q", key, s))
	flagReview(item, key)
}

func dateValue(item *model.Item, key string) (time.Time, bool) {
	f, ok := item.Fields[key]
	if !ok {
		return time.Time{}, false
	}
	t, ok := f.Value.(time.Time)
	return t, ok
}

func violation(key, rule string, sev model.Severity, msg string) model.Violation {
	return model.Violation{FieldKey: key, Rule: rule, Severity: sev, Message: msg}
}

func addViolation(item *model.Item, key, rule string, sev model.Severity, msg string) {
	item.Violations = append(item.Violations, violation(key, rule, sev, msg))
}

func flagReview(item *model.Item, key string) {
	f, ok := item.Fields[key]
	if !ok {
		return
	}
	f.NeedsReview = true
	item.Fields[key] = f
}
