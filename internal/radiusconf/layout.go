// Package radiusconf renders FreeRADIUS configuration artifacts from a policy
// snapshot. Emitters are pure: they return artifact contents and never touch
// the filesystem.
package radiusconf

import (
	"path/filepath"
)

// Artifact names. They double as metric labels and result keys.
const (
	NameClients     = "clients"
	NamePolicy      = "policy"
	NameEAP         = "eap"
	NameInnerTunnel = "inner_tunnel"
	NameSQL         = "sql"
	NameSQLSchema   = "sql_schema"
	NameIPSK        = "ipsk_users"
	NameMacBypass   = "mac_bypass"
	NameRadSec      = "radsec"
)

// Layout maps artifacts to paths under the daemon's configuration root.
type Layout struct {
	Root         string
	Clients      string
	Policy       string
	EAP          string
	InnerTunnel  string
	SQL          string
	SQLSchemaDir string
	IPSK         string
	MacBypass    string
	RadSec       string
}

// DefaultLayout returns the stock FreeRADIUS 3 layout rooted at root.
func DefaultLayout(root string) Layout {
	return Layout{
		Root:         root,
		Clients:      "clients.conf",
		Policy:       "mods-config/files/authorize",
		EAP:          "mods-available/eap",
		InnerTunnel:  "sites-available/inner-tunnel",
		SQL:          "mods-available/sql",
		SQLSchemaDir: "mods-config/sql/main",
		IPSK:         "mods-config/files/ipsk",
		MacBypass:    "mods-config/files/mac_bypass",
		RadSec:       "sites-available/tls",
	}
}

func (l Layout) path(rel string) string {
	return filepath.Join(l.Root, filepath.FromSlash(rel))
}

// SQLSchema returns the schema script path for a SQL dialect.
func (l Layout) SQLSchema(dialect string) string {
	return l.path(l.SQLSchemaDir + "/" + dialect + "/schema.sql")
}

// Artifact is one rendered configuration file.
type Artifact struct {
	Name     string
	Path     string
	Content  []byte
	Warnings []string
}
