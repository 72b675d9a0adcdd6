package radiusconf

import (
	"github.com/portcullis-nac/portcullis/internal/policy"
)

const defaultServerID = "radius.portcullis.local"

// Generator renders every artifact for a Layout.
type Generator struct {
	layout   Layout
	renderer *Renderer
	serverID string
}

// Option customises a Generator.
type Option func(*Generator)

// WithServerID sets the EAP-pwd server identity.
func WithServerID(id string) Option {
	return func(g *Generator) {
		if id != "" {
			g.serverID = id
		}
	}
}

// NewGenerator wires a generator. A nil renderer makes every templated
// artifact use its fallback rendering.
func NewGenerator(layout Layout, renderer *Renderer, opts ...Option) *Generator {
	g := &Generator{layout: layout, renderer: renderer, serverID: defaultServerID}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Layout returns the layout artifacts are placed in.
func (g *Generator) Layout() Layout {
	return g.layout
}

// ServerID returns the EAP-pwd server identity.
func (g *Generator) ServerID() string {
	return g.serverID
}

// TemplateDigest identifies the templates in use, or is empty when every
// artifact falls back.
func (g *Generator) TemplateDigest() string {
	return g.renderer.Digest()
}

// Section is one emitter. Emit returns zero artifacts when the section does
// not apply to the snapshot.
type Section struct {
	Name string
	Emit func(policy.Snapshot) ([]Artifact, error)
}

// Sections lists the emitters in a fixed order.
func (g *Generator) Sections() []Section {
	return []Section{
		{Name: NameClients, Emit: g.Clients},
		{Name: NamePolicy, Emit: g.Policy},
		{Name: NameEAP, Emit: g.EAP},
		{Name: NameInnerTunnel, Emit: g.InnerTunnel},
		{Name: NameSQL, Emit: g.SQL},
		{Name: NameIPSK, Emit: g.IPSK},
		{Name: NameMacBypass, Emit: g.MacBypass},
		{Name: NameRadSec, Emit: g.RadSec},
	}
}
