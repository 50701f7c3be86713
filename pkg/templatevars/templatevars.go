// Package templatevars finds {UPPER_CASE} placeholders in template text and
// checks them against the columns of a contact file.
package templatevars

import (
	"regexp"
	"slices"
	"strings"
)

// Placeholders are a brace-wrapped identifier of upper-case letters, digits and
// underscores that does not start with a digit. Lower-case names are plain text.
var placeholderRe = regexp.MustCompile(`\{([A-Z_][A-Z0-9_]*)\}`)

// Extract returns the distinct placeholder names in text, sorted.
func Extract(text string) []string {
	matches := placeholderRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	slices.Sort(out)
	return out
}

// Result is the outcome of checking a template against file columns.
type Result struct {
	Valid        bool     `json:"is_valid"`
	Placeholders []string `json:"template_variables"`
	// Missing and Available partition Placeholders by whether a column matches.
	Missing   []string `json:"missing_variables"`
	Available []string `json:"available_variables"`
}

// Validate reports which placeholders in text have no matching column.
// Columns are compared case-insensitively by upper-casing them.
func Validate(text string, columns []string) Result {
	cols := NormalizeColumns(columns)
	have := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		have[c] = struct{}{}
	}

	placeholders := Extract(text)
	missing, available := []string{}, []string{}
	for _, p := range placeholders {
		if _, ok := have[p]; ok {
			available = append(available, p)
		} else {
			missing = append(missing, p)
		}
	}
	return Result{
		Valid:        len(missing) == 0,
		Placeholders: placeholders,
		Missing:      missing,
		Available:    available,
	}
}

// NormalizeColumns upper-cases column names, dropping empty and duplicate
// entries while keeping first-seen order. Whitespace is kept: " name" does not
// match {NAME}.
func NormalizeColumns(columns []string) []string {
	out := make([]string, 0, len(columns))
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		c = strings.ToUpper(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Render substitutes placeholders with values keyed by column name (any case).
// Placeholders without a value are left untouched.
func Render(text string, values map[string]string) string {
	upper := make(map[string]string, len(values))
	for k, v := range values {
		upper[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		if v, ok := upper[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}
