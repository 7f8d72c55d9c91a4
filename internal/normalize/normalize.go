// Package normalize holds the pure field-coercion helpers shared by the
// extraction pipelines. Every function is total: bad input degrades to an
// absent field, never to an error that would abort the record.
package normalize

import (
	"strconv"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// TakeFirst returns the first non-empty candidate after trimming. Later
// candidates are discarded, matching the default coercion rule for
// unannotated fields.
func TakeFirst(candidates []string) (string, bool) {
	for _, c := range candidates {
		if s := strings.TrimSpace(c); s != "" {
			return s, true
		}
	}
	return "", false
}

// Join concatenates all non-empty candidates with a single space, preserving
// encounter order. Used for multi-fragment fields such as street.
func Join(candidates []string) string {
	parts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if s := strings.TrimSpace(c); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// Inline flattens embedded whitespace in free-text fields: tabs become single
// spaces and newlines become sentence breaks.
func Inline(s string) string {
	s = strings.ReplaceAll(s, "\t", " ")
	return strings.ReplaceAll(s, "\n", ". ")
}

// InlineJoin applies Inline to each candidate and joins the results with a
// single space. Used for service_cost.
func InlineJoin(candidates []string) string {
	inlined := make([]string, 0, len(candidates))
	for _, c := range candidates {
		inlined = append(inlined, Inline(c))
	}
	return Join(inlined)
}

// ToInt coerces the first candidate to an integer. A non-numeric candidate
// fails the field, not the record: the caller gets nil and omits the field.
func ToInt(candidates []string) *int {
	first, ok := TakeFirst(candidates)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(first)
	if err != nil {
		return nil
	}
	return &n
}

// ToFloat coerces the first candidate to a float, with the same field-level
// failure semantics as ToInt.
func ToFloat(candidates []string) *float64 {
	first, ok := TakeFirst(candidates)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(first, 64)
	if err != nil {
		return nil
	}
	return &f
}

// FormatPhone parses raw against the ISO country code and re-emits it in
// E.164 form. When parsing fails the raw string is returned unmodified so the
// field is retained rather than dropped. Formatting an already-canonical
// number with its own country code is a no-op.
func FormatPhone(raw, countryCode string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	num, err := phonenumbers.Parse(raw, strings.ToUpper(countryCode))
	if err != nil {
		return raw
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}
