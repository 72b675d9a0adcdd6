package radiusconf

import (
	"fmt"
	"strings"

	"github.com/portcullis-nac/portcullis/internal/policy"
	"github.com/portcullis-nac/portcullis/internal/radiusconf/attrs"
)

// nasType maps a device tag to a nas_type the daemon's checkrad understands.
func nasType(vendor string) string {
	v := strings.ToLower(strings.TrimSpace(vendor))
	switch {
	case strings.HasPrefix(v, "cisco"):
		return "cisco"
	default:
		return "other"
	}
}

func isIPv6(c policy.Client) bool {
	return c.IPv6 || strings.Contains(c.Address, ":")
}

// Clients renders clients.conf with one stanza per active client. Inactive
// clients are left out entirely.
func (g *Generator) Clients(snap policy.Snapshot) ([]Artifact, error) {
	active := policy.ActiveClients(snap.Clients)
	var (
		b        strings.Builder
		warnings []string
		names    = nameSet{}
	)
	header(&b, "Clients", fmt.Sprintf("clients: %d", len(active)))
	for _, c := range active {
		address := strings.TrimSpace(c.Address)
		if address == "" || c.Secret == "" {
			warnings = append(warnings, fmt.Sprintf("client %q skipped: address and secret are required", c.Name))
			continue
		}
		name := names.claim(c.Name, c.ID)
		b.WriteString("\nclient " + name + " {\n")
		if isIPv6(c) {
			b.WriteString("\tipv6addr = " + address + "\n")
		} else {
			b.WriteString("\tipaddr = " + address + "\n")
		}
		b.WriteString("\tsecret = " + attrs.Quote(c.Secret) + "\n")
		b.WriteString("\tshortname = " + name + "\n")
		b.WriteString("\tnas_type = " + nasType(c.Vendor) + "\n")
		b.WriteString("\trequire_message_authenticator = yes\n")
		b.WriteString("}\n")
	}
	return []Artifact{{
		Name:     NameClients,
		Path:     g.layout.path(g.layout.Clients),
		Content:  []byte(b.String()),
		Warnings: warnings,
	}}, nil
}
