package radiusconf

import (
	"embed"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/portcullis-nac/portcullis/internal/policy"
)

// SchemaVersion is bumped whenever a schema script changes.
const SchemaVersion = 1

//go:embed schema/*.sql
var schemaFS embed.FS

// ErrUnsupportedSQLDriver reports a connection URL whose scheme is not one of
// mysql, postgresql or sqlite.
var ErrUnsupportedSQLDriver = errors.New("radiusconf: unsupported sql driver")

// SQLTables are the tables every schema script creates.
var SQLTables = []string{
	"radcheck",
	"radreply",
	"radgroupcheck",
	"radgroupreply",
	"radusergroup",
	"radacct",
	"radpostauth",
}

// SQLTarget is the parsed form of a backend connection URL.
type SQLTarget struct {
	Dialect  string
	Server   string
	Port     int
	Login    string
	Password string
	Database string
	Filename string
}

// ParseSQLURL infers the dialect and parameter layout from a connection URL.
// Networked backends carry server and port; sqlite carries a filename.
func ParseSQLURL(raw string) (SQLTarget, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return SQLTarget{}, fmt.Errorf("radiusconf: parse sql url: %w", err)
	}
	var t SQLTarget
	switch strings.ToLower(u.Scheme) {
	case "mysql", "mariadb":
		t.Dialect, t.Port = "mysql", 3306
	case "postgres", "postgresql":
		t.Dialect, t.Port = "postgresql", 5432
	case "sqlite", "sqlite3":
		t.Dialect = "sqlite"
		t.Filename = u.Host + u.Path
		if u.Opaque != "" {
			t.Filename = u.Opaque
		}
		if t.Filename == "" {
			return SQLTarget{}, fmt.Errorf("radiusconf: sqlite url %q has no file path", raw)
		}
		return t, nil
	default:
		return SQLTarget{}, fmt.Errorf("%w: %q", ErrUnsupportedSQLDriver, u.Scheme)
	}
	t.Server = u.Hostname()
	if t.Server == "" {
		t.Server = "localhost"
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return SQLTarget{}, fmt.Errorf("radiusconf: sql url port %q: %w", p, err)
		}
		t.Port = port
	}
	if u.User != nil {
		t.Login = u.User.Username()
		t.Password, _ = u.User.Password()
	}
	t.Database = strings.TrimPrefix(u.Path, "/")
	if t.Database == "" {
		t.Database = "radius"
	}
	return t, nil
}

type sqlView struct {
	SQLTarget
	ReadClients bool
	PoolMin     int
	PoolMax     int
}

func sqlFallback(dialect string) []byte {
	return []byte(fmt.Sprintf(`# SQL module compiled by portcullis. Do not edit by hand.
# fallback rendering: template failed, connection parameters omitted
sql {
	dialect = "%s"
	driver = "rlm_sql_null"
	read_clients = no
	$INCLUDE ${modconfdir}/${.:name}/main/${dialect}/queries.conf
}
`, dialect))
}

// SQL renders mods-available/sql and the matching schema script. It returns
// no artifacts when no backend is configured.
func (g *Generator) SQL(snap policy.Snapshot) ([]Artifact, error) {
	if snap.SQL == nil || strings.TrimSpace(snap.SQL.URL) == "" {
		return nil, nil
	}
	target, err := ParseSQLURL(snap.SQL.URL)
	if err != nil {
		return nil, err
	}
	view := sqlView{
		SQLTarget:   target,
		ReadClients: snap.SQL.ReadClients,
		PoolMin:     snap.SQL.PoolMin,
		PoolMax:     snap.SQL.PoolMax,
	}
	if view.PoolMin <= 0 {
		view.PoolMin = 1
	}
	if view.PoolMax < view.PoolMin {
		view.PoolMax = view.PoolMin * 2
		if view.PoolMax < 4 {
			view.PoolMax = 4
		}
	}

	content, warnings := g.renderer.renderOr("sql.tmpl", view, sqlFallback(target.Dialect))
	if view.ReadClients {
		warnings = append(warnings, "sql: read_clients needs a nas table, which the bundled schema does not create")
	}
	schema, err := Schema(target.Dialect)
	if err != nil {
		return nil, err
	}
	return []Artifact{
		{Name: NameSQL, Path: g.layout.path(g.layout.SQL), Content: content, Warnings: warnings},
		{Name: NameSQLSchema, Path: g.layout.SQLSchema(target.Dialect), Content: schema},
	}, nil
}

// Schema returns the fixed DDL script for dialect.
func Schema(dialect string) ([]byte, error) {
	raw, err := schemaFS.ReadFile("schema/" + dialect + ".sql")
	if err != nil {
		return nil, fmt.Errorf("%w: no schema for %q", ErrUnsupportedSQLDriver, dialect)
	}
	return raw, nil
}
