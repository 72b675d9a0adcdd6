package radiusconf

import (
	"fmt"
	"strings"

	"github.com/portcullis-nac/portcullis/internal/policy"
	"github.com/portcullis-nac/portcullis/internal/radiusconf/attrs"
)

var fallThrough = attrs.Line{Attribute: "Fall-Through", Operator: policy.OpAssign, Value: "Yes"}

// Policy renders the authorize users file: header with annotations, MAC
// bypass blocks, EAP summary, then one block per active policy in priority
// order. A policy that fails validation is skipped with a warning.
func (g *Generator) Policy(snap policy.Snapshot) ([]Artifact, error) {
	policies := policy.ActivePolicies(snap.Policies)
	bypass := policy.ActiveMacBypass(snap.MacBypass)

	var (
		warnings    []string
		annotations []string
		blocks      strings.Builder
		compiled    int
	)
	for _, p := range policies {
		if err := p.Validate(); err != nil {
			warnings = append(warnings, fmt.Sprintf("policy %d %q skipped: %v", p.ID, p.Name, err))
			continue
		}
		res, err := attrs.Build(p)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("policy %d %q skipped: %v", p.ID, p.Name, err))
			continue
		}
		annotations = append(annotations, res.Annotations...)
		reply := res.Reply
		if p.Decision == policy.DecisionContinue {
			reply = append(reply[:len(reply):len(reply)], fallThrough)
		}
		blocks.WriteString(fmt.Sprintf("\n# policy %d %s (priority %d)\n", p.ID, SafeName(p.Name), p.Priority))
		usersEntry{Key: defaultKey, Check: res.Check, Reply: reply}.writeTo(&blocks)
		compiled++
	}

	var b strings.Builder
	header(&b, "Authorization policies",
		fmt.Sprintf("policies: %d", compiled),
		fmt.Sprintf("mac bypass lists: %d", len(bypass)),
	)
	for _, note := range annotations {
		b.WriteString("# " + note + "\n")
	}

	b.WriteString("\n# ---- mac bypass ----\n")
	names := nameSet{}
	for _, cfg := range bypass {
		warnings = append(warnings, bypassBlock(&b, cfg, names.claim(cfg.Name, cfg.ID))...)
	}

	b.WriteString("\n# ---- eap methods ----\n")
	if snap.EAP != nil && snap.EAP.IsActive {
		plan := PlanEAP(*snap.EAP)
		b.WriteString("# default_eap_type: " + string(plan.Default) + "\n")
		b.WriteString("# enabled: " + strings.Join(plan.Types(), ", ") + "\n")
	} else {
		b.WriteString("# eap: not configured\n")
	}

	b.WriteString("\n# ---- authorization policies ----\n")
	b.WriteString(blocks.String())

	return []Artifact{{
		Name:     NamePolicy,
		Path:     g.layout.path(g.layout.Policy),
		Content:  []byte(b.String()),
		Warnings: warnings,
	}}, nil
}
