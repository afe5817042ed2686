package keys

import (
	"fmt"
	"strings"
)

// Delimiter separates the literal and natural-key segments of a composite key.
const Delimiter = "#"

// Template is a key pattern with {field} placeholders, e.g. "LOG#{timestamp}#{log_id}".
type Template string

// Fields returns the placeholder names in order of appearance.
func (t Template) Fields() []string {
	var fields []string
	s := string(t)
	for {
		start := strings.IndexByte(s, '{')
		if start < 0 {
			return fields
		}
		end := strings.IndexByte(s[start:], '}')
		if end < 0 {
			return fields
		}
		fields = append(fields, s[start+1:start+end])
		s = s[start+end+1:]
	}
}

// Prefix returns the literal text before the first placeholder. A template without placeholders
// is its own prefix.
func (t Template) Prefix() string {
	s := string(t)
	if i := strings.IndexByte(s, '{'); i >= 0 {
		return s[:i]
	}
	return s
}

// Literal reports whether the template has no placeholders.
func (t Template) Literal() bool {
	return !strings.ContainsRune(string(t), '{')
}

// Validate checks the template is well formed: balanced braces, non-empty field names, and
// every placeholder separated from the next by the delimiter.
func (t Template) Validate() error {
	s := string(t)
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("empty key template")
	}
	open := false
	afterField := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			if open {
				return fmt.Errorf("template %q: nested placeholder", s)
			}
			if afterField {
				return fmt.Errorf("template %q: placeholders must be separated by %q", s, Delimiter)
			}
			if i+1 < len(s) && s[i+1] == '}' {
				return fmt.Errorf("template %q: empty placeholder", s)
			}
			open = true
		case '}':
			if !open {
				return fmt.Errorf("template %q: unbalanced braces", s)
			}
			open = false
			afterField = true
		default:
			if !open && afterField && string(s[i]) != Delimiter {
				return fmt.Errorf("template %q: placeholders must be followed by %q", s, Delimiter)
			}
			if !open {
				afterField = false
			}
		}
	}
	if open {
		return fmt.Errorf("template %q: unbalanced braces", s)
	}
	return nil
}

// Render substitutes values into the template. Every value must be non-empty and must not
// contain the delimiter, so that distinct inputs always render distinct keys.
func (t Template) Render(values map[string]string) (string, error) {
	var b strings.Builder
	s := string(t)
	for {
		start := strings.IndexByte(s, '{')
		if start < 0 {
			b.WriteString(s)
			return b.String(), nil
		}
		end := strings.IndexByte(s[start:], '}')
		if end < 0 {
			return "", fmt.Errorf("template %q: unbalanced braces", string(t))
		}
		b.WriteString(s[:start])
		name := s[start+1 : start+end]
		value, ok := values[name]
		if !ok {
			return "", fmt.Errorf("missing value for %s", name)
		}
		if err := checkSegment(name, value); err != nil {
			return "", err
		}
		b.WriteString(value)
		s = s[start+end+1:]
	}
}

func checkSegment(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is empty", name)
	}
	if strings.Contains(value, Delimiter) {
		return fmt.Errorf("%s must not contain %q", name, Delimiter)
	}
	return nil
}
