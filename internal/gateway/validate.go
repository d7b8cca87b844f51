package gateway

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const defaultMaxFieldLen = 1024

// validateFields applies the field rules to payload. Unknown fields are
// flagged as warnings, not hard errors. Validated string fields are
// sanitized only when no validation error occurred for that field.
func validateFields(payload map[string]any, rules []FieldRule) (errs, warnings []string, sanitized map[string]any) {
	sanitized = make(map[string]any, len(payload))
	known := make(map[string]FieldRule, len(rules))
	for _, r := range rules {
		known[r.Name] = r
	}

	for _, rule := range rules {
		value, present := payload[rule.Name]
		if !present {
			if rule.Required {
				errs = append(errs, fmt.Sprintf("field %q is required", rule.Name))
			}
			continue
		}
		fieldErrs := checkField(rule, value)
		errs = append(errs, fieldErrs...)

		if str, ok := value.(string); ok && len(fieldErrs) == 0 {
			sanitized[rule.Name] = sanitizeString(str, rule.MaxLen)
		} else {
			sanitized[rule.Name] = value
		}
	}

	for name, value := range payload {
		if _, ok := known[name]; !ok {
			warnings = append(warnings, fmt.Sprintf("unknown field %q", name))
			sanitized[name] = value
		}
	}
	return errs, warnings, sanitized
}

func checkField(rule FieldRule, value any) []string {
	var errs []string

	switch rule.Type {
	case "string", "":
		str, ok := value.(string)
		if !ok {
			return []string{fmt.Sprintf("field %q must be a string", rule.Name)}
		}
		if rule.MinLen > 0 && len(str) < rule.MinLen {
			errs = append(errs, fmt.Sprintf("field %q shorter than %d", rule.Name, rule.MinLen))
		}
		if rule.MaxLen > 0 && len(str) > rule.MaxLen {
			errs = append(errs, fmt.Sprintf("field %q longer than %d", rule.Name, rule.MaxLen))
		}
		if rule.Pattern != "" {
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				errs = append(errs, fmt.Sprintf("field %q has an invalid pattern rule", rule.Name))
			} else if !re.MatchString(str) {
				errs = append(errs, fmt.Sprintf("field %q does not match required pattern", rule.Name))
			}
		}
		if len(rule.AllowedValues) > 0 {
			allowed := false
			for _, v := range rule.AllowedValues {
				if str == v {
					allowed = true
					break
				}
			}
			if !allowed {
				errs = append(errs, fmt.Sprintf("field %q has a value outside the allow-list", rule.Name))
			}
		}
	case "int":
		switch value.(type) {
		case int, int32, int64, float64:
			// JSON numbers arrive as float64; accept whole numbers.
			if f, ok := value.(float64); ok && f != float64(int64(f)) {
				errs = append(errs, fmt.Sprintf("field %q must be an integer", rule.Name))
			}
		default:
			errs = append(errs, fmt.Sprintf("field %q must be an integer", rule.Name))
		}
	case "float":
		switch value.(type) {
		case float32, float64, int, int64:
		default:
			errs = append(errs, fmt.Sprintf("field %q must be a number", rule.Name))
		}
	case "bool":
		if _, ok := value.(bool); !ok {
			errs = append(errs, fmt.Sprintf("field %q must be a boolean", rule.Name))
		}
	default:
		errs = append(errs, fmt.Sprintf("field %q has unknown type rule %q", rule.Name, rule.Type))
	}
	return errs
}

// sanitizeString neutralizes a validated string: one URL decode to defeat
// double encoding, control characters stripped, NFKC normalization,
// capped in runes, then HTML-escaped. The cap runs before escaping so the
// cut cannot land inside a multi-byte rune or split an escape entity.
func sanitizeString(s string, maxLen int) string {
	if decoded, err := url.QueryUnescape(s); err == nil {
		s = decoded
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	s = norm.NFKC.String(b.String())

	if maxLen <= 0 {
		maxLen = defaultMaxFieldLen
	}
	if utf8.RuneCountInString(s) > maxLen {
		runes := []rune(s)
		s = string(runes[:maxLen])
	}
	return html.EscapeString(s)
}
