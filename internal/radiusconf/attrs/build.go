package attrs

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/portcullis-nac/portcullis/internal/policy"
)

var (
	// ErrConflictingMatch reports a policy that asks for both MAC matching and
	// PSK-only matching. The two modes are mutually exclusive.
	ErrConflictingMatch = errors.New("attrs: mac matching conflicts with psk-only matching")
	// ErrMissingPSK reports PSK validation without a PSK.
	ErrMissingPSK = errors.New("attrs: psk validation required but psk is empty")
	// ErrMissingMACPattern reports MAC matching without a pattern.
	ErrMissingMACPattern = errors.New("attrs: mac matching enabled but mac pattern is empty")
	// ErrInvalidAttribute reports a malformed custom attribute triple.
	ErrInvalidAttribute = errors.New("attrs: invalid attribute")
)

var attributeName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9:_-]*$`)

const regexMeta = `*?[]()|^$+{}\`

// Build renders one policy into check and reply lines. It never mutates p and
// is deterministic: the same record always yields the same lines.
//
// Check lines, in order: identity predicates, PSK, MAC, Login-Time,
// Simultaneous-Use, custom checks, Auth-Type. Reply lines, in order: VLAN,
// bandwidth, session limits, redirect, group policy, SGT, custom replies.
func Build(p policy.AuthorizationPolicy) (Result, error) {
	if p.MatchOnPSKOnly && p.MACMatchingEnabled {
		return Result{}, fmt.Errorf("%w: policy %q", ErrConflictingMatch, p.Name)
	}
	if p.PSKValidationRequired && p.PSK == "" {
		return Result{}, fmt.Errorf("%w: policy %q", ErrMissingPSK, p.Name)
	}
	if p.MACMatchingEnabled && strings.TrimSpace(p.MACPattern) == "" {
		return Result{}, fmt.Errorf("%w: policy %q", ErrMissingMACPattern, p.Name)
	}
	vendor, err := policy.ParseVendor(p.GroupPolicyVendor)
	if err != nil {
		return Result{}, err
	}
	dialect, err := DialectFor(vendor)
	if err != nil {
		return Result{}, err
	}

	check, err := checkLines(p)
	if err != nil {
		return Result{}, err
	}
	reply, err := replyLines(p, dialect)
	if err != nil {
		return Result{}, err
	}

	var notes []string
	if p.IncludeUDN {
		notes = append(notes, fmt.Sprintf("udn: dynamic private-group-id (policy %s)", p.Name))
	}
	return Result{Check: check, Reply: reply, Annotations: notes}, nil
}

func checkLines(p policy.AuthorizationPolicy) ([]Line, error) {
	var out []Line
	if line, ok := match("User-Name", p.UsernamePattern); ok {
		out = append(out, line)
	}
	if line, ok := match("NAS-Identifier", p.NASIdentifierPattern); ok {
		out = append(out, line)
	}
	if line, ok := match("NAS-IP-Address", p.NASIPPattern); ok {
		out = append(out, line)
	}
	if p.PSKValidationRequired {
		out = append(out, str("Cleartext-Password", policy.OpSet, p.PSK))
	}
	if p.MACMatchingEnabled && !p.MatchOnPSKOnly {
		out = append(out, macLine(p.MACPattern))
	}
	if tr := strings.TrimSpace(p.TimeRestriction); tr != "" {
		out = append(out, str("Login-Time", policy.OpSet, tr))
	}
	if p.SimultaneousUse != nil {
		out = append(out, num("Simultaneous-Use", policy.OpSet, *p.SimultaneousUse))
	}
	custom, err := triples(p.CheckAttributes)
	if err != nil {
		return nil, fmt.Errorf("policy %q check attributes: %w", p.Name, err)
	}
	out = append(out, custom...)
	switch p.Decision {
	case policy.DecisionAccept:
		out = append(out, bare("Auth-Type", policy.OpSet, "Accept"))
	case policy.DecisionReject:
		out = append(out, bare("Auth-Type", policy.OpSet, "Reject"))
	}
	return out, nil
}

func replyLines(p policy.AuthorizationPolicy, d Dialect) ([]Line, error) {
	var out []Line
	if p.VLANID != nil {
		out = append(out,
			bare("Tunnel-Type", policy.OpSet, "VLAN"),
			bare("Tunnel-Medium-Type", policy.OpSet, "IEEE-802"),
			str("Tunnel-Private-Group-Id", policy.OpSet, strconv.Itoa(*p.VLANID)),
		)
	}
	if p.BandwidthUpKbps != nil {
		out = append(out, num("WISPr-Bandwidth-Max-Up", policy.OpSet, *p.BandwidthUpKbps*1000))
	}
	if p.BandwidthDownKbps != nil {
		out = append(out, num("WISPr-Bandwidth-Max-Down", policy.OpSet, *p.BandwidthDownKbps*1000))
	}
	if p.SessionTimeout != nil {
		out = append(out, num("Session-Timeout", policy.OpSet, *p.SessionTimeout))
	}
	if p.IdleTimeout != nil {
		out = append(out, num("Idle-Timeout", policy.OpSet, *p.IdleTimeout))
	}
	if url := strings.TrimSpace(p.SplashURL); url != "" {
		out = append(out, d.Redirect(url, strings.TrimSpace(p.RedirectACL))...)
	}
	if gp := strings.TrimSpace(p.GroupPolicy); gp != "" {
		out = append(out, d.GroupPolicy(gp)...)
	}
	if p.SGT != nil {
		if *p.SGT < policy.MinSGT || *p.SGT > policy.MaxSGT {
			return nil, fmt.Errorf("%w: %d", policy.ErrInvalidSGT, *p.SGT)
		}
		line := str("Cisco-AVPair", policy.OpAdd, fmt.Sprintf("cts:security-group-tag=%04x-00", *p.SGT))
		if name := strings.TrimSpace(p.SGTName); name != "" {
			line.Comment = "SGT " + name
		}
		out = append(out, line)
	}
	custom, err := triples(p.ReplyAttributes)
	if err != nil {
		return nil, fmt.Errorf("policy %q reply attributes: %w", p.Name, err)
	}
	return append(out, custom...), nil
}

// match renders an identity predicate. Plain values compare exactly; values
// carrying regex metacharacters are emitted as a regex match.
func match(attr, pattern string) (Line, bool) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return Line{}, false
	}
	if strings.ContainsAny(pattern, regexMeta) {
		return str(attr, policy.OpRegex, pattern), true
	}
	return str(attr, policy.OpEqual, pattern), true
}

func macLine(pattern string) Line {
	pattern = strings.TrimSpace(pattern)
	if formatted := policy.FormatMAC(policy.NormalizeMAC(pattern), "-"); formatted != "" {
		return str("Calling-Station-Id", policy.OpEqual, formatted)
	}
	return str("Calling-Station-Id", policy.OpRegex, pattern)
}

func triples(in []policy.AttributeTriple) ([]Line, error) {
	out := make([]Line, 0, len(in))
	for _, t := range in {
		attr := strings.TrimSpace(t.Attribute)
		if !attributeName.MatchString(attr) {
			return nil, fmt.Errorf("%w: name %q", ErrInvalidAttribute, t.Attribute)
		}
		if !t.Operator.Valid() {
			return nil, fmt.Errorf("%w: operator %q on %s", ErrInvalidAttribute, t.Operator, attr)
		}
		out = append(out, Line{Attribute: attr, Operator: t.Operator, Value: Value(t.Value)})
	}
	return out, nil
}
