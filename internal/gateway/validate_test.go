package gateway

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestValidateRequiredAndTypes(t *testing.T) {
	rules := []FieldRule{
		{Name: "name", Required: true, Type: "string", MinLen: 2, MaxLen: 32},
		{Name: "count", Type: "int"},
		{Name: "enabled", Type: "bool"},
	}

	errs, warnings, _ := validateFields(map[string]any{
		"count":   float64(3),
		"enabled": true,
	}, rules)
	require.Len(t, errs, 1)
	require.Contains(t, errs[0], `"name" is required`)
	require.Empty(t, warnings)

	errs, _, _ = validateFields(map[string]any{
		"name":    "ok",
		"count":   "three",
		"enabled": "yes",
	}, rules)
	require.Len(t, errs, 2)
}

func TestValidateLengthPatternAllowList(t *testing.T) {
	rules := []FieldRule{
		{Name: "code", Type: "string", Pattern: `^[A-Z]{3}-\d+$`},
		{Name: "mode", Type: "string", AllowedValues: []string{"fast", "full"}},
		{Name: "note", Type: "string", MaxLen: 5},
	}

	errs, _, _ := validateFields(map[string]any{
		"code": "ABC-123",
		"mode": "fast",
		"note": "ok",
	}, rules)
	require.Empty(t, errs)

	errs, _, _ = validateFields(map[string]any{
		"code": "abc123",
		"mode": "turbo",
		"note": "much too long",
	}, rules)
	require.Len(t, errs, 3)
}

func TestUnknownFieldsAreWarnings(t *testing.T) {
	rules := []FieldRule{{Name: "known", Type: "string"}}

	errs, warnings, sanitized := validateFields(map[string]any{
		"known":   "v",
		"mystery": 42,
	}, rules)
	require.Empty(t, errs)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0], `unknown field "mystery"`)
	require.Equal(t, 42, sanitized["mystery"])
}

func TestSanitizationOnlyOnValidFields(t *testing.T) {
	rules := []FieldRule{
		{Name: "comment", Type: "string", MaxLen: 100},
		{Name: "short", Type: "string", MaxLen: 3},
	}

	errs, _, sanitized := validateFields(map[string]any{
		"comment": "<b>hi</b>",
		"short":   "way too long",
	}, rules)
	require.Len(t, errs, 1)

	// The valid field is escaped; the invalid one is passed through raw
	// because its validation already failed.
	require.Equal(t, "&lt;b&gt;hi&lt;/b&gt;", sanitized["comment"])
	require.Equal(t, "way too long", sanitized["short"])
}

func TestSanitizeStringDefeatsDoubleEncoding(t *testing.T) {
	// %253C double-encodes "<": one decode pass leaves %3C visible to the
	// escaper instead of silently resolving to a live angle bracket.
	out := sanitizeString("%3Cscript%3E", 0)
	require.NotContains(t, out, "<script>")
	require.Contains(t, out, "&lt;script&gt;")
}

func TestSanitizeStringStripsControlChars(t *testing.T) {
	out := sanitizeString("ab\x00cd\x07ef", 0)
	require.Equal(t, "abcdef", out)

	// Newlines and tabs survive.
	out = sanitizeString("a\nb\tc", 0)
	require.Equal(t, "a\nb\tc", out)
}

func TestSanitizeStringCapsLength(t *testing.T) {
	out := sanitizeString(strings.Repeat("x", 5000), 0)
	require.Len(t, out, defaultMaxFieldLen)

	out = sanitizeString(strings.Repeat("x", 50), 10)
	require.Len(t, out, 10)
}

func TestSanitizeStringCapKeepsRunesAndEntitiesWhole(t *testing.T) {
	// A byte-level cut could land inside a multi-byte rune.
	out := sanitizeString(strings.Repeat("é", 20), 10)
	require.True(t, utf8.ValidString(out))
	require.Equal(t, strings.Repeat("é", 10), out)

	// An angle bracket at the cap boundary escapes in full instead of
	// surviving as a truncated entity.
	out = sanitizeString(strings.Repeat("a", 9)+"<script>", 10)
	require.Equal(t, strings.Repeat("a", 9)+"&lt;", out)
}
