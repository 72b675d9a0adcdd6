// Package attrs turns policy records into ordered check and reply attribute
// lines in the daemon's users-file grammar.
package attrs

import (
	"strconv"
	"strings"

	"github.com/portcullis-nac/portcullis/internal/policy"
)

// Line is one attribute item. Comment, when set, is rendered on its own line
// directly before the attribute.
type Line struct {
	Attribute string
	Operator  policy.Operator
	Value     string
	Comment   string
}

// String renders the attribute item without its comment.
func (l Line) String() string {
	return l.Attribute + " " + string(l.Operator) + " " + l.Value
}

// Result is the builder output for one policy.
type Result struct {
	Check       []Line
	Reply       []Line
	Annotations []string
}

// Quote renders a string value in double quotes, escaping backslashes and quotes.
func Quote(v string) string {
	var b strings.Builder
	b.Grow(len(v) + 2)
	b.WriteByte('"')
	for _, r := range v {
		switch r {
		case '\\', '"':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n', '\r':
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// Value renders a raw value: bare when it is an integer, quoted otherwise.
func Value(v string) string {
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return v
	}
	return Quote(v)
}

func str(attr string, op policy.Operator, v string) Line {
	return Line{Attribute: attr, Operator: op, Value: Quote(v)}
}

func num(attr string, op policy.Operator, v int) Line {
	return Line{Attribute: attr, Operator: op, Value: strconv.Itoa(v)}
}

func bare(attr string, op policy.Operator, v string) Line {
	return Line{Attribute: attr, Operator: op, Value: v}
}
