package radiusconf

import (
	"fmt"
	"sort"
	"strings"

	"github.com/portcullis-nac/portcullis/internal/policy"
)

const (
	// TLSProfileName is the single shared tls-config section every TLS based
	// method references.
	TLSProfileName = "tls-common"
	// InnerTunnelServer is the virtual server tunnelled methods hand off to.
	InnerTunnelServer = "inner-tunnel"

	fallbackEAPType = policy.EAPMD5
	defaultInnerEAP = policy.EAPMSCHAPv2
)

// EapPlan is the effective method set after invariant repair.
type EapPlan struct {
	Default  policy.EAPType
	Methods  []EapMethodPlan
	Warnings []string
}

// EapMethodPlan is one method stanza. Inner is set for tunnelled methods only.
type EapMethodPlan struct {
	Type      policy.EAPType
	UsesTLS   bool
	Tunnelled bool
	Inner     policy.EAPType
}

// NeedsTLS reports whether any planned method references the TLS profile.
func (p EapPlan) NeedsTLS() bool {
	for _, m := range p.Methods {
		if m.UsesTLS {
			return true
		}
	}
	return false
}

// NeedsInnerTunnel reports whether ttls or peap is planned.
func (p EapPlan) NeedsInnerTunnel() bool {
	for _, m := range p.Methods {
		if m.Tunnelled {
			return true
		}
	}
	return false
}

// Types lists the planned method types in emission order.
func (p EapPlan) Types() []string {
	out := make([]string, 0, len(p.Methods))
	for _, m := range p.Methods {
		out = append(out, string(m.Type))
	}
	return out
}

// PlanEAP derives the stanza set for cfg. It repairs the stored config instead
// of failing: the default type is always emitted, an empty method list falls
// back to the default type, and unknown names are dropped with a warning.
func PlanEAP(cfg policy.EapConfig) EapPlan {
	var plan EapPlan

	def, err := policy.ParseEAPType(string(cfg.DefaultEAPType))
	if err != nil {
		def = ""
		if cfg.DefaultEAPType != "" {
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("eap: ignoring unknown default type %q", cfg.DefaultEAPType))
		}
	}

	enabled := make(map[policy.EAPType]struct{}, len(cfg.EnabledMethods)+1)
	for _, raw := range cfg.EnabledMethods {
		t, err := policy.ParseEAPType(string(raw))
		if err != nil {
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("eap: ignoring unknown method %q", raw))
			continue
		}
		enabled[t] = struct{}{}
	}

	if def == "" {
		def = fallbackEAPType
		for _, t := range policy.EAPTypes() {
			if _, ok := enabled[t]; ok {
				def = t
				break
			}
		}
	}
	enabled[def] = struct{}{}
	plan.Default = def

	order := make(map[policy.EAPType]int, len(policy.EAPTypes()))
	for i, t := range policy.EAPTypes() {
		order[t] = i
	}
	types := make([]policy.EAPType, 0, len(enabled))
	for t := range enabled {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return order[types[i]] < order[types[j]] })

	for _, t := range types {
		m := EapMethodPlan{Type: t, UsesTLS: t.UsesTLS(), Tunnelled: t.Tunnelled()}
		if m.Tunnelled {
			m.Inner = defaultInnerEAP
			if stored, ok := cfg.Method(t); ok && stored.InnerEAPType != "" {
				inner, err := policy.ParseEAPType(string(stored.InnerEAPType))
				switch {
				case err != nil:
					plan.Warnings = append(plan.Warnings, fmt.Sprintf("eap: %s inner type %q unknown, using %s", t, stored.InnerEAPType, defaultInnerEAP))
				case inner.UsesTLS():
					plan.Warnings = append(plan.Warnings, fmt.Sprintf("eap: %s cannot tunnel %s, using %s", t, inner, defaultInnerEAP))
				default:
					m.Inner = inner
				}
			}
		}
		plan.Methods = append(plan.Methods, m)
	}
	return plan
}

type eapView struct {
	Default     policy.EAPType
	NeedsTLS    bool
	TLSName     string
	TLS         policy.TLSProfile
	Methods     []EapMethodPlan
	InnerServer string
	ServerID    string
}

// eapFallback renders a minimal module from plan when the template fails.
// The default type and every planned method are still emitted.
func eapFallback(plan EapPlan, tls policy.TLSProfile) []byte {
	var b strings.Builder
	b.WriteString("# EAP module compiled by portcullis. Do not edit by hand.\n")
	b.WriteString("# fallback rendering: template failed\n")
	b.WriteString("eap {\n")
	fmt.Fprintf(&b, "\tdefault_eap_type = %s\n", plan.Default)
	b.WriteString("\ttimer_expire = 60\n")
	b.WriteString("\tignore_unknown_eap_types = no\n")
	if plan.NeedsTLS() {
		fmt.Fprintf(&b, "\n\ttls-config %s {\n", TLSProfileName)
		fmt.Fprintf(&b, "\t\tprivate_key_file = %s\n", orDefault("${certdir}/server.pem", tls.PrivateKeyFile))
		fmt.Fprintf(&b, "\t\tcertificate_file = %s\n", orDefault("${certdir}/server.pem", tls.CertificateFile))
		fmt.Fprintf(&b, "\t\tca_file = %s\n", orDefault("${cadir}/ca.pem", tls.CAFile))
		b.WriteString("\t}\n")
	}
	for _, m := range plan.Methods {
		fmt.Fprintf(&b, "\n\t%s {\n", m.Type)
		if m.UsesTLS {
			fmt.Fprintf(&b, "\t\ttls = %s\n", TLSProfileName)
		}
		if m.Tunnelled {
			fmt.Fprintf(&b, "\t\tdefault_eap_type = %s\n", m.Inner)
			fmt.Fprintf(&b, "\t\tvirtual_server = %q\n", InnerTunnelServer)
		}
		b.WriteString("\t}\n")
	}
	b.WriteString("}\n")
	return []byte(b.String())
}

// EAP renders mods-available/eap. It returns no artifact when the snapshot
// has no active EAP config.
func (g *Generator) EAP(snap policy.Snapshot) ([]Artifact, error) {
	if snap.EAP == nil || !snap.EAP.IsActive {
		return nil, nil
	}
	plan := PlanEAP(*snap.EAP)
	view := eapView{
		Default:     plan.Default,
		NeedsTLS:    plan.NeedsTLS(),
		TLSName:     TLSProfileName,
		TLS:         snap.EAP.TLS,
		Methods:     plan.Methods,
		InnerServer: InnerTunnelServer,
		ServerID:    g.serverID,
	}
	content, warnings := g.renderer.renderOr("eap.tmpl", view, eapFallback(plan, snap.EAP.TLS))
	return []Artifact{{
		Name:     NameEAP,
		Path:     g.layout.path(g.layout.EAP),
		Content:  content,
		Warnings: append(plan.Warnings, warnings...),
	}}, nil
}

type innerTunnelView struct {
	Name string
	SQL  bool
}

var innerTunnelFallback = []byte(`# Inner tunnel virtual server compiled by portcullis. Do not edit by hand.
# fallback rendering: template failed
server inner-tunnel {
	authorize {
		mschap
		eap {
			ok = return
		}
		files
		pap
	}
	authenticate {
		Auth-Type PAP {
			pap
		}
		Auth-Type MS-CHAP {
			mschap
		}
		eap
	}
}
`)

// InnerTunnel renders the inner-tunnel virtual server, only when a tunnelled
// method is planned.
func (g *Generator) InnerTunnel(snap policy.Snapshot) ([]Artifact, error) {
	if snap.EAP == nil || !snap.EAP.IsActive {
		return nil, nil
	}
	if !PlanEAP(*snap.EAP).NeedsInnerTunnel() {
		return nil, nil
	}
	view := innerTunnelView{Name: InnerTunnelServer, SQL: snap.SQL != nil && strings.TrimSpace(snap.SQL.URL) != ""}
	content, warnings := g.renderer.renderOr("inner_tunnel.tmpl", view, innerTunnelFallback)
	return []Artifact{{
		Name:     NameInnerTunnel,
		Path:     g.layout.path(g.layout.InnerTunnel),
		Content:  content,
		Warnings: warnings,
	}}, nil
}
