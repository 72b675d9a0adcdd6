package radiusconf

import (
	"strings"

	"github.com/portcullis-nac/portcullis/internal/policy"
)

const (
	defaultRadSecPort  = 2083
	defaultVerifyDepth = 2
)

type radSecClient struct {
	Name    string
	Address string
}

type radSecView struct {
	Config      policy.RadSecConfig
	Port        int
	VerifyDepth int
	Clients     []radSecClient
}

var radSecFallback = []byte(`# RadSec listener compiled by portcullis. Do not edit by hand.
# fallback rendering: template failed, listener disabled
`)

// RadSec renders the RADIUS-over-TLS listener and its client list. Nothing is
// emitted unless RadSec is enabled.
func (g *Generator) RadSec(snap policy.Snapshot) ([]Artifact, error) {
	if snap.RadSec == nil || !snap.RadSec.Enabled {
		return nil, nil
	}
	view := radSecView{
		Config:      *snap.RadSec,
		Port:        snap.RadSec.Port,
		VerifyDepth: snap.RadSec.VerifyDepth,
	}
	if view.Port <= 0 {
		view.Port = defaultRadSecPort
	}
	if view.VerifyDepth <= 0 {
		view.VerifyDepth = defaultVerifyDepth
	}
	names := nameSet{}
	for _, c := range policy.ActiveClients(snap.Clients) {
		if !c.RadSec || strings.TrimSpace(c.Address) == "" {
			continue
		}
		view.Clients = append(view.Clients, radSecClient{Name: names.claim(c.Name, c.ID), Address: strings.TrimSpace(c.Address)})
	}
	content, warnings := g.renderer.renderOr("radsec.tmpl", view, radSecFallback)
	return []Artifact{{
		Name:     NameRadSec,
		Path:     g.layout.path(g.layout.RadSec),
		Content:  content,
		Warnings: warnings,
	}}, nil
}
