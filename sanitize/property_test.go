package sanitize_test

import (
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/xraph/beacon/catalog"
	"github.com/xraph/beacon/event"
	"github.com/xraph/beacon/sanitize"
)

func TestProperty_TextIsBoundedPlainText(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("Text never exceeds its bound", prop.ForAll(
		func(s string, max int) bool {
			return utf8.RuneCountInString(sanitize.Text(s, max)) <= max
		},
		gen.AnyString(),
		gen.IntRange(1, 120),
	))

	properties.Property("Text output has no markup or control characters", prop.ForAll(
		func(s string) bool {
			out := sanitize.Text(s, 0)
			if strings.ContainsAny(out, "<>") {
				return false
			}
			for _, r := range out {
				if unicode.IsControl(r) {
					return false
				}
			}
			return out == strings.TrimSpace(out) && utf8.ValidString(out)
		},
		gen.AnyString(),
	))

	properties.Property("Text is idempotent", prop.ForAll(
		func(s string) bool {
			once := sanitize.Text(s, 80)
			return sanitize.Text(once, 80) == once
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestProperty_PayloadKeysAndValues(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	v := sanitize.NewValidator(catalog.NewDefault(), sanitize.Limits{})

	properties.Property("cleaned keys use the safe charset and values are strings", prop.ForAll(
		func(raw map[string]string) bool {
			in := make(map[string]any, len(raw))
			for k, s := range raw {
				in[k] = s
			}
			for k, val := range v.Payload(in) {
				if !event.ValidField(k) {
					return false
				}
				s, ok := val.(string)
				if !ok || utf8.RuneCountInString(s) > 500 {
					return false
				}
			}
			return true
		},
		gen.MapOf(gen.AnyString(), gen.AnyString()),
	))

	properties.TestingRun(t)
}
