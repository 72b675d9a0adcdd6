package attrs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/portcullis-nac/portcullis/internal/policy"
)

func intp(v int) *int { return &v }

func render(lines []Line) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.String())
	}
	return out
}

func TestBuildOrdersCheckAndReplyGroups(t *testing.T) {
	p := policy.AuthorizationPolicy{
		Name:                  "staff",
		UsernamePattern:       "alice",
		PSKValidationRequired: true,
		PSK:                   "s3cret",
		MACMatchingEnabled:    true,
		MACPattern:            "aa:bb:cc:dd:ee:ff",
		TimeRestriction:       "Wk0800-1800",
		SimultaneousUse:       intp(2),
		VLANID:                intp(42),
		BandwidthUpKbps:       intp(512),
		BandwidthDownKbps:     intp(2048),
		SessionTimeout:        intp(3600),
		IdleTimeout:           intp(600),
		SplashURL:             "https://portal/s",
		GroupPolicyVendor:     "meraki",
		GroupPolicy:           "staff-gp",
		SGT:                   intp(10),
		SGTName:               "Employees",
		Decision:              policy.DecisionAccept,
	}

	res, err := Build(p)
	require.NoError(t, err)
	require.Equal(t, []string{
		`User-Name == "alice"`,
		`Cleartext-Password := "s3cret"`,
		`Calling-Station-Id == "AA-BB-CC-DD-EE-FF"`,
		`Login-Time := "Wk0800-1800"`,
		`Simultaneous-Use := 2`,
		`Auth-Type := Accept`,
	}, render(res.Check))
	require.Equal(t, []string{
		`Tunnel-Type := VLAN`,
		`Tunnel-Medium-Type := IEEE-802`,
		`Tunnel-Private-Group-Id := "42"`,
		`WISPr-Bandwidth-Max-Up := 512000`,
		`WISPr-Bandwidth-Max-Down := 2048000`,
		`Session-Timeout := 3600`,
		`Idle-Timeout := 600`,
		`Cisco-AVPair += "url-redirect=https://portal/s"`,
		`Filter-Id := "staff-gp"`,
		`Cisco-AVPair += "cts:security-group-tag=000a-00"`,
	}, render(res.Reply))
	require.Equal(t, "SGT Employees", res.Reply[len(res.Reply)-1].Comment)
	require.Empty(t, res.Annotations)
}

func TestBuildRejectsMACWithPSKOnly(t *testing.T) {
	_, err := Build(policy.AuthorizationPolicy{
		Name:               "conflict",
		MACMatchingEnabled: true,
		MACPattern:         "aabbccddeeff",
		MatchOnPSKOnly:     true,
	})
	require.ErrorIs(t, err, ErrConflictingMatch)
}

func TestBuildPSKOnlyHasNoMACLine(t *testing.T) {
	res, err := Build(policy.AuthorizationPolicy{
		Name:                  "psk",
		MACPattern:            "aabbccddeeff",
		MatchOnPSKOnly:        true,
		PSKValidationRequired: true,
		PSK:                   "pw",
	})
	require.NoError(t, err)
	for _, l := range res.Check {
		require.NotEqual(t, "Calling-Station-Id", l.Attribute)
	}
}

func TestBuildValidatesInputs(t *testing.T) {
	_, err := Build(policy.AuthorizationPolicy{Name: "nopsk", PSKValidationRequired: true})
	require.ErrorIs(t, err, ErrMissingPSK)

	_, err = Build(policy.AuthorizationPolicy{Name: "nomac", MACMatchingEnabled: true})
	require.ErrorIs(t, err, ErrMissingMACPattern)

	_, err = Build(policy.AuthorizationPolicy{Name: "vendor", GroupPolicyVendor: "juniper"})
	require.ErrorIs(t, err, policy.ErrUnknownVendor)

	_, err = Build(policy.AuthorizationPolicy{
		Name:            "custom",
		ReplyAttributes: []policy.AttributeTriple{{Attribute: "Reply-Message", Operator: "~~", Value: "x"}},
	})
	require.ErrorIs(t, err, ErrInvalidAttribute)

	_, err = Build(policy.AuthorizationPolicy{Name: "negative-sgt", SGT: intp(-5)})
	require.ErrorIs(t, err, policy.ErrInvalidSGT)

	_, err = Build(policy.AuthorizationPolicy{Name: "wide-sgt", SGT: intp(70000)})
	require.ErrorIs(t, err, policy.ErrInvalidSGT)
}

func TestBuildRegexPatterns(t *testing.T) {
	res, err := Build(policy.AuthorizationPolicy{
		Name:               "regex",
		UsernamePattern:    `^guest-.*$`,
		MACMatchingEnabled: true,
		MACPattern:         `^AA-BB-.*`,
	})
	require.NoError(t, err)
	require.Equal(t, []string{
		`User-Name =~ "^guest-.*$"`,
		`Calling-Station-Id =~ "^AA-BB-.*"`,
	}, render(res.Check))
}

func TestBuildCustomTriplesAndUDNAnnotation(t *testing.T) {
	res, err := Build(policy.AuthorizationPolicy{
		Name:            "custom",
		IncludeUDN:      true,
		CheckAttributes: []policy.AttributeTriple{{Attribute: "NAS-Port-Type", Operator: policy.OpEqual, Value: "Wireless-802.11"}},
		ReplyAttributes: []policy.AttributeTriple{{Attribute: "Class", Operator: policy.OpAssign, Value: "7"}},
		Decision:        policy.DecisionReject,
	})
	require.NoError(t, err)
	require.Equal(t, []string{`NAS-Port-Type == "Wireless-802.11"`, `Auth-Type := Reject`}, render(res.Check))
	require.Equal(t, []string{`Class = 7`}, render(res.Reply))
	require.Equal(t, []string{"udn: dynamic private-group-id (policy custom)"}, res.Annotations)
	for _, l := range res.Reply {
		require.NotContains(t, l.String(), "private-group-id")
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	p := policy.AuthorizationPolicy{
		Name:              "det",
		UsernamePattern:   "bob",
		VLANID:            intp(7),
		GroupPolicyVendor: "aruba",
		GroupPolicy:       "role",
		SplashURL:         "https://x/s",
		ReplyAttributes: []policy.AttributeTriple{
			{Attribute: "Reply-Message", Operator: policy.OpSet, Value: "hi"},
			{Attribute: "Class", Operator: policy.OpSet, Value: "a"},
		},
	}
	first, err := Build(p)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Build(p)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestQuoteEscapes(t *testing.T) {
	require.Equal(t, `"a\"b\\c d"`, Quote("a\"b\\c\nd"))
	require.Equal(t, "12", Value("12"))
	require.Equal(t, `"12a"`, Value("12a"))
}

func TestDialectForCoversEveryVendor(t *testing.T) {
	for _, v := range policy.Vendors() {
		d, err := DialectFor(v)
		require.NoError(t, err, "vendor %s", v)
		require.Equal(t, v, d.Vendor())
		require.NotEmpty(t, d.GroupPolicy("gp"))
		require.NotEmpty(t, d.Redirect("https://x", "acl"))
	}
	_, err := DialectFor("netgear")
	require.ErrorIs(t, err, policy.ErrUnknownVendor)
}

func TestDialectGroupPolicyEncodings(t *testing.T) {
	cases := map[policy.Vendor]string{
		policy.VendorMeraki:      `Filter-Id := "gp"`,
		policy.VendorCiscoAireOS: `Cisco-AVPair += "air-group-policy=gp"`,
		policy.VendorCiscoISE:    `Cisco-AVPair += "ACS:CiscoSecure-Defined-ACL=gp"`,
		policy.VendorAruba:       `Aruba-User-Role := "gp"`,
	}
	for vendor, want := range cases {
		d, err := DialectFor(vendor)
		require.NoError(t, err)
		lines := d.GroupPolicy("gp")
		require.Len(t, lines, 1)
		require.Equal(t, want, lines[0].String())
	}
}

func TestDialectRedirects(t *testing.T) {
	d, _ := DialectFor(policy.VendorCiscoISE)
	got := strings.Join(render(d.Redirect("https://p", "PORTAL")), "\n")
	require.Equal(t, "Cisco-AVPair += \"url-redirect=https://p\"\nCisco-AVPair += \"url-redirect-acl=PORTAL\"", got)

	d, _ = DialectFor(policy.VendorAruba)
	require.Equal(t, []string{`WISPr-Redirection-URL := "https://p"`}, render(d.Redirect("https://p", "PORTAL")))
}
