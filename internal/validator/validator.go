// Package validator checks document form data before anything is drawn. A form
// either validates completely or the build stops with a VALIDATION_ERROR listing
// every problem found.
package validator

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"hrdocs/internal/assets"
	"hrdocs/internal/logger"
	"hrdocs/internal/types"
)

// FieldType selects how a raw form value is parsed.
type FieldType string

const (
	TypeText      FieldType = "text"
	TypeDate      FieldType = "date"
	TypeBool      FieldType = "bool"
	TypeImage     FieldType = "image"
	TypeAccount   FieldType = "account"
	TypeAmount    FieldType = "amount"
	TypeMatricule FieldType = "matricule"
	TypePhone     FieldType = "phone"
	TypeID        FieldType = "id"
)

// DateLayout is how dates are printed on documents.
const DateLayout = "02/01/2006"

var dateInputLayouts = []string{"2006-01-02", DateLayout, time.RFC3339}

// FieldSpec declares one form field.
type FieldSpec struct {
	Name     string
	Type     FieldType
	Required bool
}

// Value is a parsed form value.
type Value struct {
	Text  string
	Date  time.Time
	Bool  bool
	Image *assets.Image
}

// Values are the parsed fields of a valid form. Absent optional fields are not in the map.
type Values map[string]Value

// Has reports whether name was supplied.
func (v Values) Has(name string) bool {
	_, ok := v[name]
	return ok
}

// Text returns the printable text of name.
func (v Values) Text(name string) (string, bool) {
	val, ok := v[name]
	return val.Text, ok
}

// TextOr returns the text of name or fallback when absent.
func (v Values) TextOr(name, fallback string) string {
	if val, ok := v[name]; ok && val.Text != "" {
		return val.Text
	}
	return fallback
}

// Date returns the date value of name.
func (v Values) Date(name string) (time.Time, bool) {
	val, ok := v[name]
	return val.Date, ok && !val.Date.IsZero()
}

// Bool returns the boolean value of name.
func (v Values) Bool(name string) (bool, bool) {
	val, ok := v[name]
	return val.Bool, ok
}

// Image returns the decoded image of name.
func (v Values) Image(name string) (*assets.Image, bool) {
	val, ok := v[name]
	return val.Image, ok && val.Image != nil
}

// Rule is a check across several fields, run after every field parsed.
type Rule func(Values) *ValidationIssue

// ValidationIssue is one problem found in a form.
type ValidationIssue struct {
	Severity string // "error", "warning"
	Field    string
	Message  string
	Details  string
}

// ValidationResult contains the results of a form validation.
type ValidationResult struct {
	Valid   bool
	Issues  []ValidationIssue
	Summary string
}

// Err returns the result as a VALIDATION_ERROR, or nil when the form is valid.
func (r *ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	var (
		causes []error
		first  string
	)
	for _, issue := range r.Issues {
		if issue.Severity != "error" {
			continue
		}
		if first == "" {
			first = issue.Field
		}
		fe := types.NewFieldError(issue.Field, issue.Message)
		fe.Details = issue.Details
		causes = append(causes, fe)
	}
	return &types.DocError{
		Code:    types.ErrValidation,
		Message: "form validation failed",
		Details: r.Summary,
		Field:   first,
		Cause:   errors.Join(causes...),
	}
}

// FieldErrors returns the fields that failed, in declaration order.
func (r *ValidationResult) FieldErrors() []string {
	var fields []string
	for _, issue := range r.Issues {
		if issue.Severity == "error" {
			fields = append(fields, issue.Field)
		}
	}
	return fields
}

// FormValidator validates the form of one document kind.
type FormValidator struct {
	fields []FieldSpec
	rules  []Rule
}

// New creates a validator for the given fields and cross-field rules.
func New(fields []FieldSpec, rules ...Rule) *FormValidator {
	return &FormValidator{fields: fields, rules: rules}
}

// Fields returns the declared fields.
func (v *FormValidator) Fields() []FieldSpec {
	return v.fields
}

// Validate parses data against the declared fields. Values is nil unless the
// result is valid.
func (v *FormValidator) Validate(data map[string]any) (Values, *ValidationResult) {
	result := &ValidationResult{Valid: true}
	values := make(Values, len(v.fields))

	known := make(map[string]bool, len(v.fields))
	for _, spec := range v.fields {
		known[spec.Name] = true
		known[snakeCase(spec.Name)] = true

		raw, ok := lookup(data, spec.Name)
		if !ok || isBlank(raw) {
			if spec.Required {
				result.add("error", spec.Name, "required field is missing", "")
			}
			continue
		}

		val, issue := parse(spec, raw)
		if issue != nil {
			result.Issues = append(result.Issues, *issue)
			if issue.Severity == "error" {
				result.Valid = false
			}
			continue
		}
		values[spec.Name] = val
	}

	var unknown []string
	for name := range data {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		result.add("warning", name, "unknown field ignored", "")
	}

	if result.Valid {
		for _, rule := range v.rules {
			if issue := rule(values); issue != nil {
				result.Issues = append(result.Issues, *issue)
				if issue.Severity == "error" {
					result.Valid = false
				}
			}
		}
	}

	generateSummary(result)
	logger.Debug("form validated",
		logger.Bool("valid", result.Valid),
		logger.Int("fields", len(values)),
		logger.Int("issues", len(result.Issues)))

	if !result.Valid {
		return nil, result
	}
	return values, result
}

func (r *ValidationResult) add(severity, field, message, details string) {
	r.Issues = append(r.Issues, ValidationIssue{
		Severity: severity,
		Field:    field,
		Message:  message,
		Details:  details,
	})
	if severity == "error" {
		r.Valid = false
	}
}

// DateOrder rejects forms whose start date falls after their end date.
// Equal dates are allowed (single-day leave or mission).
func DateOrder(startField, endField string) Rule {
	return func(values Values) *ValidationIssue {
		start, ok1 := values.Date(startField)
		end, ok2 := values.Date(endField)
		if !ok1 || !ok2 || !start.After(end) {
			return nil
		}
		return &ValidationIssue{
			Severity: "error",
			Field:    startField,
			Message:  "start date is after end date",
			Details:  fmt.Sprintf("%s > %s", start.Format(DateLayout), end.Format(DateLayout)),
		}
	}
}

// NotAfter warns about a date later than the one returned by now. The date is
// dropped from values so the document prints the placeholder instead.
func NotAfter(field string, now func() time.Time) Rule {
	return func(values Values) *ValidationIssue {
		d, ok := values.Date(field)
		if !ok || now == nil || !d.After(now()) {
			return nil
		}
		delete(values, field)
		return &ValidationIssue{
			Severity: "warning",
			Field:    field,
			Message:  "date is in the future",
			Details:  d.Format(DateLayout),
		}
	}
}

func lookup(data map[string]any, name string) (any, bool) {
	if v, ok := data[name]; ok {
		return v, true
	}
	v, ok := data[snakeCase(name)]
	return v, ok
}

func snakeCase(name string) string {
	var sb strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func isBlank(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []byte:
		return len(v) == 0
	case time.Time:
		return v.IsZero()
	}
	return false
}

func parse(spec FieldSpec, raw any) (Value, *ValidationIssue) {
	fail := func(message string, details string) (Value, *ValidationIssue) {
		return Value{}, &ValidationIssue{Severity: "error", Field: spec.Name, Message: message, Details: details}
	}

	switch spec.Type {
	case TypeDate:
		d, err := parseDate(raw)
		if err != nil {
			return fail("malformed date", err.Error())
		}
		return Value{Text: d.Format(DateLayout), Date: d}, nil

	case TypeBool:
		b, err := parseBool(raw)
		if err != nil {
			return fail("expected a yes/no value", err.Error())
		}
		return Value{Bool: b}, nil

	case TypeImage:
		img, err := parseImage(spec.Name, raw)
		if err != nil {
			// Images degrade to the placeholder rather than blocking the document.
			logger.Warn("form image ignored", logger.String("field", spec.Name), logger.Err(err))
			return Value{}, &ValidationIssue{Severity: "warning", Field: spec.Name, Message: "image could not be decoded", Details: err.Error()}
		}
		return Value{Image: img}, nil
	}

	text, err := parseText(raw)
	if err != nil {
		return fail("expected text", err.Error())
	}

	switch spec.Type {
	case TypeAccount:
		account := strings.ToUpper(strings.Map(dropSeparators, text))
		if len(account) < 10 || len(account) > 34 || !isAlnum(account) {
			return fail("invalid account number", "expected 10 to 34 letters or digits")
		}
		return Value{Text: groupAccount(account)}, nil

	case TypeAmount:
		amount, err := parseAmount(text)
		if err != nil {
			return fail("invalid amount", err.Error())
		}
		return Value{Text: FormatAmount(amount)}, nil

	case TypeMatricule:
		m := strings.ToUpper(strings.ReplaceAll(text, " ", ""))
		if len(m) > 20 || !isAlnumOr(m, "-/") {
			return fail("invalid matricule", m)
		}
		return Value{Text: m}, nil

	case TypeID:
		id := strings.ToUpper(strings.ReplaceAll(text, " ", ""))
		if len(id) > 12 || !isAlnum(id) {
			return fail("invalid identity card number", id)
		}
		return Value{Text: id}, nil

	case TypePhone:
		digits := 0
		for _, r := range text {
			switch {
			case unicode.IsDigit(r):
				digits++
			case strings.ContainsRune(" +-.()", r):
			default:
				return fail("invalid phone number", text)
			}
		}
		if digits < 6 {
			return fail("invalid phone number", "too few digits")
		}
		return Value{Text: text}, nil
	}

	return Value{Text: text}, nil
}

func parseText(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return strings.Join(strings.Fields(v), " "), nil
	case fmt.Stringer:
		return strings.Join(strings.Fields(v.String()), " "), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10), nil
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("unsupported value of type %T", raw)
}

func parseDate(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC), nil
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range dateInputLayouts {
			if d, err := time.Parse(layout, s); err == nil {
				return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), nil
			}
		}
		return time.Time{}, fmt.Errorf("%q is not a date (expected YYYY-MM-DD)", s)
	}
	return time.Time{}, fmt.Errorf("unsupported value of type %T", raw)
}

func parseBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "oui", "1", "on":
			return true, nil
		case "false", "no", "non", "0", "off":
			return false, nil
		}
		return false, fmt.Errorf("%q is not a yes/no value", v)
	}
	return false, fmt.Errorf("unsupported value of type %T", raw)
}

func parseImage(name string, raw any) (*assets.Image, error) {
	switch v := raw.(type) {
	case []byte:
		return assets.Decode(name, v)
	case *assets.Image:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if i := strings.Index(s, ";base64,"); strings.HasPrefix(s, "data:") && i > 0 {
			s = s[i+len(";base64,"):]
		}
		data, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("image is not valid base64: %w", err)
		}
		return assets.Decode(name, data)
	}
	return nil, fmt.Errorf("unsupported value of type %T", raw)
}

func parseAmount(text string) (float64, error) {
	s := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' || r == '\u202f' {
			return -1
		}
		return r
	}, text)
	s = strings.TrimSuffix(strings.TrimSuffix(strings.ToUpper(s), "DH"), "MAD")
	s = strings.ReplaceAll(s, ",", ".")
	amount, err := strconv.ParseFloat(s, 64)
	if err != nil || amount < 0 || math.IsInf(amount, 0) || math.IsNaN(amount) {
		return 0, fmt.Errorf("%q is not a positive amount", text)
	}
	return amount, nil
}

// FormatAmount prints an amount the French way: "12 345,50".
func FormatAmount(amount float64) string {
	cents := int64(math.Round(amount * 100))
	whole, frac := cents/100, cents%100
	digits := strconv.FormatInt(whole, 10)

	var sb strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			sb.WriteByte(' ')
		}
		sb.WriteRune(r)
	}
	return fmt.Sprintf("%s,%02d", sb.String(), frac)
}

func dropSeparators(r rune) rune {
	if r == ' ' || r == '-' || r == '.' {
		return -1
	}
	return r
}

// groupAccount splits an account number in blocks of four for printing.
func groupAccount(account string) string {
	var sb strings.Builder
	for i, r := range account {
		if i > 0 && i%4 == 0 {
			sb.WriteByte(' ')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func isAlnum(s string) bool {
	return isAlnumOr(s, "")
}

func isAlnumOr(s, extra string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'A' || r > 'Z') && !strings.ContainsRune(extra, r) {
			return false
		}
	}
	return true
}

// generateSummary creates a human-readable summary of validation results
func generateSummary(result *ValidationResult) {
	if result.Valid && len(result.Issues) == 0 {
		result.Summary = "form validation passed with no issues"
		return
	}

	errorCount, warningCount := 0, 0
	for _, issue := range result.Issues {
		if issue.Severity == "error" {
			errorCount++
		} else {
			warningCount++
		}
	}

	if errorCount > 0 {
		result.Summary = fmt.Sprintf("validation failed: %d error(s), %d warning(s): %s",
			errorCount, warningCount, strings.Join(result.FieldErrors(), ", "))
	} else {
		result.Summary = fmt.Sprintf("validation passed with %d warning(s)", warningCount)
	}
}

// FormatIssues formats validation issues for display
func FormatIssues(issues []ValidationIssue) string {
	if len(issues) == 0 {
		return "No issues found"
	}

	var sb strings.Builder
	for i, issue := range issues {
		sb.WriteString(fmt.Sprintf("[%s] %s: %s", strings.ToUpper(issue.Severity), issue.Field, issue.Message))
		if issue.Details != "" {
			sb.WriteString(fmt.Sprintf("\n  Details: %s", issue.Details))
		}
		if i < len(issues)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
