package radiusconf

import (
	"strings"

	"github.com/portcullis-nac/portcullis/internal/policy"
	"github.com/portcullis-nac/portcullis/internal/radiusconf/attrs"
)

const defaultKey = "DEFAULT"

// usersEntry is one users-file entry: a key line with check items followed by
// indented, comma separated reply items.
type usersEntry struct {
	Key   string
	Check []attrs.Line
	Reply []attrs.Line
}

func (e usersEntry) writeTo(b *strings.Builder) {
	for _, l := range e.Check {
		if l.Comment != "" {
			b.WriteString("# " + l.Comment + "\n")
		}
	}
	if e.Key == defaultKey {
		b.WriteString(defaultKey)
	} else {
		b.WriteString(attrs.Quote(e.Key))
	}
	for i, l := range e.Check {
		if i == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteString(", ")
		}
		b.WriteString(l.String())
	}
	b.WriteByte('\n')
	for i, l := range e.Reply {
		if l.Comment != "" {
			b.WriteString("\t# " + l.Comment + "\n")
		}
		b.WriteString("\t" + l.String())
		if i < len(e.Reply)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
}

func header(b *strings.Builder, title string, notes ...string) {
	b.WriteString("# " + title + " compiled by portcullis. Do not edit by hand.\n")
	for _, n := range notes {
		b.WriteString("# " + n + "\n")
	}
}

func callingStation(mac string) attrs.Line {
	return attrs.Line{
		Attribute: "Calling-Station-Id",
		Operator:  policy.OpEqual,
		Value:     attrs.Quote(policy.FormatMAC(mac, "-")),
	}
}

// bypassBlock renders one MAC bypass list as a named block. Invalid and
// repeated addresses are skipped.
func bypassBlock(b *strings.Builder, cfg policy.MacBypassConfig, name string) []string {
	var warnings []string
	if cfg.Mode != "" && cfg.Mode != policy.BypassWhitelist {
		return []string{"mac bypass " + cfg.Name + ": unsupported mode " + string(cfg.Mode) + ", list skipped"}
	}
	b.WriteString("# BEGIN mac-bypass " + name + " (" + string(policy.BypassWhitelist) + ")\n")
	seen := make(map[string]struct{}, len(cfg.MACs))
	for _, raw := range cfg.MACs {
		mac := policy.NormalizeMAC(raw)
		if !policy.IsValidMAC(mac) {
			warnings = append(warnings, "mac bypass "+cfg.Name+": invalid mac "+raw+" skipped")
			continue
		}
		if _, dup := seen[mac]; dup {
			continue
		}
		seen[mac] = struct{}{}
		usersEntry{
			Key:   defaultKey,
			Check: []attrs.Line{callingStation(mac), {Attribute: "Auth-Type", Operator: policy.OpSet, Value: "Accept"}},
		}.writeTo(b)
	}
	b.WriteString("# END mac-bypass " + name + "\n")
	return warnings
}
