package describe

import "strings"

// Variants returns the normalized casing/spacing forms of a display name,
// in the fixed precedence order the mapping is probed with: plain
// lowercase, whitespace to underscore, whitespace to hyphen, then every
// non-alphanumeric run to underscore. The first mapping hit wins, so the
// order is part of the contract.
func Variants(name string) []string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return nil
	}

	variants := []string{
		lower,
		collapseWhitespace(lower, '_'),
		collapseWhitespace(lower, '-'),
		collapseNonAlnum(lower),
	}

	// Preserve precedence while dropping duplicates.
	out := variants[:0]
	seen := make(map[string]bool, len(variants))
	for _, v := range variants {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// collapseWhitespace replaces each whitespace run with a single separator.
func collapseWhitespace(s string, sep rune) string {
	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			inSpace = true
			continue
		}
		if inSpace {
			b.WriteRune(sep)
			inSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// collapseNonAlnum replaces each run of non-alphanumeric characters with a
// single underscore.
func collapseNonAlnum(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inRun := false
	for _, r := range s {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !alnum {
			inRun = true
			continue
		}
		if inRun && b.Len() > 0 {
			b.WriteRune('_')
		}
		inRun = false
		b.WriteRune(r)
	}
	return b.String()
}
