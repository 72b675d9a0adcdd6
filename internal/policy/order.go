package policy

import (
	"sort"
	"strings"
)

// ActiveClients returns the active clients ordered by name.
func ActiveClients(clients []Client) []Client {
	out := make([]Client, 0, len(clients))
	for _, c := range clients {
		if c.IsActive {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ActivePolicies returns active policies by priority ascending, then creation
// order. ID breaks ties between rows created in the same instant.
func ActivePolicies(policies []AuthorizationPolicy) []AuthorizationPolicy {
	out := make([]AuthorizationPolicy, 0, len(policies))
	for _, p := range policies {
		if p.IsActive {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

// ActiveMacBypass returns active, non-empty bypass lists ordered by name.
func ActiveMacBypass(configs []MacBypassConfig) []MacBypassConfig {
	out := make([]MacBypassConfig, 0, len(configs))
	for _, c := range configs {
		if !c.IsActive || len(c.MACs) == 0 {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ActiveUDN returns active assignments ordered by UDN id.
func ActiveUDN(assignments []UdnAssignment) []UdnAssignment {
	out := make([]UdnAssignment, 0, len(assignments))
	for _, a := range assignments {
		if a.IsActive {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UDNID != out[j].UDNID {
			return out[i].UDNID < out[j].UDNID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// IsCIDR reports whether a client address names a range rather than a host.
func IsCIDR(address string) bool {
	return strings.Contains(address, "/")
}
