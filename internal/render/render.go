// Package render substitutes $${name} placeholders in notification templates.
package render

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"
)

// MaxSMSLength is the character limit applied to every SMS body.
const MaxSMSLength = 160

const (
	openMarker  = "$${"
	closeMarker = "}"
)

// ErrUnterminated is returned when a placeholder has no closing brace.
var ErrUnterminated = errors.New("unterminated placeholder")

// Rich renders a markup body. Values are HTML-escaped, nil and missing keys render as "".
func Rich(body string, vars map[string]any) (string, error) {
	if !strings.Contains(body, openMarker) {
		return body, nil
	}

	var b strings.Builder
	b.Grow(len(body))

	rest := body
	for {
		i := strings.Index(rest, openMarker)
		if i < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		b.WriteString(rest[:i])

		after := rest[i+len(openMarker):]
		j := strings.Index(after, closeMarker)
		if j < 0 {
			return "", fmt.Errorf("%w at offset %d", ErrUnterminated, len(body)-len(rest)+i)
		}
		name := after[:j]
		if name == "" {
			// "$${}" is not a placeholder
			b.WriteString(openMarker + closeMarker)
		} else {
			b.WriteString(html.EscapeString(stringify(vars[name])))
		}
		rest = after[j+len(closeMarker):]
	}
}

// Plain replaces $${key} literally for every key in vars. Placeholders of absent keys stay as they are.
func Plain(body string, vars map[string]any) string {
	if len(vars) == 0 || !strings.Contains(body, openMarker) {
		return body
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, openMarker+k+closeMarker, stringify(v))
	}
	return strings.NewReplacer(pairs...).Replace(body)
}

// TruncateSMS keeps at most max characters, ending with "..." when cut.
func TruncateSMS(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= 3 {
		return string([]rune(s)[:max])
	}
	return string([]rune(s)[:max-3]) + "..."
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(v)
	}
}
