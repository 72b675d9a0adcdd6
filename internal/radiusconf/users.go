package radiusconf

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/portcullis-nac/portcullis/internal/policy"
	"github.com/portcullis-nac/portcullis/internal/radiusconf/attrs"
)

// udnKey picks the users-file key for an assignment: the iPSK identifier,
// then the MAC, then the username, then a synthetic user-<id>.
func udnKey(a policy.UdnAssignment, mac string) string {
	switch {
	case strings.TrimSpace(a.IPSKIdentifier) != "":
		return strings.TrimSpace(a.IPSKIdentifier)
	case mac != "":
		return mac
	case strings.TrimSpace(a.Username) != "":
		return strings.TrimSpace(a.Username)
	default:
		return "user-" + strconv.FormatInt(a.UserID, 10)
	}
}

// IPSK renders the iPSK/UDN users file with one entry per active assignment.
func (g *Generator) IPSK(snap policy.Snapshot) ([]Artifact, error) {
	active := policy.ActiveUDN(snap.UDN)
	var (
		b        strings.Builder
		entries  strings.Builder
		warnings []string
		keys     = map[string]int{}
		count    int
	)
	for _, a := range active {
		if a.UDNID < policy.MinUDNID || a.UDNID > policy.MaxUDNID {
			warnings = append(warnings, fmt.Sprintf("udn assignment %d skipped: udn id %d out of range", a.ID, a.UDNID))
			continue
		}
		mac := ""
		if a.MAC != "" {
			mac = policy.NormalizeMAC(a.MAC)
			if !policy.IsValidMAC(mac) {
				warnings = append(warnings, fmt.Sprintf("udn assignment %d: invalid mac ignored", a.ID))
				mac = ""
			}
		}
		key := udnKey(a, mac)
		if prev, dup := keys[key]; dup {
			warnings = append(warnings, fmt.Sprintf("udn assignment %d shadowed by udn %d on key %s", a.ID, prev, key))
		} else {
			keys[key] = a.UDNID
		}

		entry := usersEntry{Key: key}
		if mac != "" && key != mac {
			entry.Check = append(entry.Check, callingStation(mac))
		}
		if a.Passphrase != "" {
			entry.Reply = append(entry.Reply, attrs.Line{Attribute: "Tunnel-Password", Operator: policy.OpSet, Value: attrs.Quote(a.Passphrase)})
		}
		entry.Reply = append(entry.Reply, attrs.Line{
			Attribute: "Cisco-AVPair",
			Operator:  policy.OpAdd,
			Value:     attrs.Quote("udn:private-group-id=" + strconv.Itoa(a.UDNID)),
		})
		entries.WriteString(fmt.Sprintf("\n# udn %d user %d\n", a.UDNID, a.UserID))
		entry.writeTo(&entries)
		count++
	}
	header(&b, "iPSK and UDN assignments", fmt.Sprintf("assignments: %d", count))
	b.WriteString(entries.String())
	return []Artifact{{
		Name:     NameIPSK,
		Path:     g.layout.path(g.layout.IPSK),
		Content:  []byte(b.String()),
		Warnings: warnings,
	}}, nil
}

// MacBypass renders the standalone MAC bypass users file, one named block per
// active, non-empty list.
func (g *Generator) MacBypass(snap policy.Snapshot) ([]Artifact, error) {
	bypass := policy.ActiveMacBypass(snap.MacBypass)
	var (
		b        strings.Builder
		warnings []string
		names    = nameSet{}
	)
	header(&b, "MAC bypass lists", fmt.Sprintf("lists: %d", len(bypass)))
	for _, cfg := range bypass {
		b.WriteByte('\n')
		warnings = append(warnings, bypassBlock(&b, cfg, names.claim(cfg.Name, cfg.ID))...)
	}
	return []Artifact{{
		Name:     NameMacBypass,
		Path:     g.layout.path(g.layout.MacBypass),
		Content:  []byte(b.String()),
		Warnings: warnings,
	}}, nil
}
