package repo

import (
	"strings"
	"unicode"
)

// Namer maps logical entity names to tenant-scoped collection names.
func NewNamer(tenant string) Namer {
	return Namer{tenant: wash(tenant)}
}

type Namer struct {
	tenant string
}

func (n Namer) Collection(entity string) string {
	washed := wash(entity)
	if n.tenant == "" {
		return washed
	}
	return n.tenant + "_" + washed
}

// wash turns an arbitrary name into a legal mongo collection name:
// lowercase, no namespace separators, no '$', no control characters.
func wash(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == '$' || r == '.' || r == '/' || r == '\\' || r <= ' ':
			b.WriteByte('_')
		default:
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
