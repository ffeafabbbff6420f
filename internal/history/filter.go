package history

import "strings"

// Filter is an extension allowlist. The zero value admits every path.
type Filter struct {
	exts []string
}

// NewFilter builds a filter from entries like ".go", "go" or ".d.ts".
// Matching is case-insensitive.
func NewFilter(exts []string) Filter {
	var f Filter
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		f.exts = append(f.exts, e)
	}
	return f
}

// Allows reports whether path ends with one of the allowed extensions.
func (f Filter) Allows(path string) bool {
	if len(f.exts) == 0 {
		return true
	}
	lower := strings.ToLower(path)
	for _, e := range f.exts {
		if strings.HasSuffix(lower, e) && len(lower) > len(e) {
			return true
		}
	}
	return false
}

// Apply returns the allowed subset of files, in order.
func (f Filter) Apply(files []string) []string {
	if len(f.exts) == 0 {
		return files
	}
	kept := make([]string, 0, len(files))
	for _, p := range files {
		if f.Allows(p) {
			kept = append(kept, p)
		}
	}
	return kept
}
