package radiusconf

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SafeName folds a display name into an identifier the daemon accepts as a
// section or client name: ASCII letters, digits, '_' and '-'.
func SafeName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(folded)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "unnamed"
	}
	return out
}

// nameSet hands out unique safe names, suffixing the record id on collision.
type nameSet map[string]struct{}

func (s nameSet) claim(display string, id int64) string {
	name := SafeName(display)
	if _, taken := s[name]; taken {
		name = name + "_" + strconv.FormatInt(id, 10)
	}
	s[name] = struct{}{}
	return name
}
