package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseVendor(t *testing.T) {
	v, err := ParseVendor(" Cisco_ISE ")
	require.NoError(t, err)
	require.Equal(t, VendorCiscoISE, v)

	v, err = ParseVendor("")
	require.NoError(t, err)
	require.Equal(t, VendorMeraki, v)

	_, err = ParseVendor("juniper")
	require.ErrorIs(t, err, ErrUnknownVendor)
}

func TestPolicyValidatePriorityRange(t *testing.T) {
	require.NoError(t, AuthorizationPolicy{Priority: 0}.Validate())
	require.NoError(t, AuthorizationPolicy{Priority: 1000}.Validate())
	require.ErrorIs(t, AuthorizationPolicy{Priority: 1001}.Validate(), ErrInvalidPriority)
	require.ErrorIs(t, AuthorizationPolicy{Priority: -1}.Validate(), ErrInvalidPriority)
	require.Error(t, AuthorizationPolicy{Decision: "maybe"}.Validate())
}

func TestPolicyValidateSGTRange(t *testing.T) {
	sgt := func(v int) *int { return &v }
	require.NoError(t, AuthorizationPolicy{SGT: sgt(0)}.Validate())
	require.NoError(t, AuthorizationPolicy{SGT: sgt(65535)}.Validate())
	require.ErrorIs(t, AuthorizationPolicy{SGT: sgt(-5)}.Validate(), ErrInvalidSGT)
	require.ErrorIs(t, AuthorizationPolicy{SGT: sgt(70000)}.Validate(), ErrInvalidSGT)
}

func TestUdnAssignmentValidate(t *testing.T) {
	require.NoError(t, UdnAssignment{UDNID: 2, UserID: 1}.Validate())
	require.NoError(t, UdnAssignment{UDNID: 16777200, UserID: 1, MAC: "aa:bb:cc:dd:ee:ff"}.Validate())
	require.ErrorIs(t, UdnAssignment{UDNID: 1, UserID: 1}.Validate(), ErrUDNOutOfRange)
	require.ErrorIs(t, UdnAssignment{UDNID: 16777201, UserID: 1}.Validate(), ErrUDNOutOfRange)
	require.ErrorIs(t, UdnAssignment{UDNID: 10, UserID: 1, MAC: "zz"}.Validate(), ErrInvalidMAC)
}

func TestMACHelpers(t *testing.T) {
	mac := NormalizeMAC("AA-BB-CC-DD-EE-FF")
	require.Equal(t, "aabbccddeeff", mac)
	require.True(t, IsValidMAC(mac))
	require.Equal(t, "AA-BB-CC-DD-EE-FF", FormatMAC(mac, "-"))
	require.Equal(t, "", FormatMAC("nope", "-"))
}

func TestActivePoliciesOrdering(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	policies := []AuthorizationPolicy{
		{ID: 1, Name: "late-tie", Priority: 50, IsActive: true, CreatedAt: base.Add(time.Hour)},
		{ID: 2, Name: "default", Priority: 1000, IsActive: true, CreatedAt: base},
		{ID: 3, Name: "early-tie", Priority: 50, IsActive: true, CreatedAt: base},
		{ID: 4, Name: "inactive", Priority: 1, IsActive: false, CreatedAt: base},
	}
	got := ActivePolicies(policies)
	require.Len(t, got, 3)
	require.Equal(t, "early-tie", got[0].Name)
	require.Equal(t, "late-tie", got[1].Name)
	require.Equal(t, "default", got[2].Name)
}

func TestActiveFilters(t *testing.T) {
	clients := ActiveClients([]Client{
		{Name: "b", IsActive: true},
		{Name: "a", IsActive: true},
		{Name: "c", IsActive: false},
	})
	require.Len(t, clients, 2)
	require.Equal(t, "a", clients[0].Name)

	bypass := ActiveMacBypass([]MacBypassConfig{
		{Name: "empty", IsActive: true},
		{Name: "printers", IsActive: true, MACs: []string{"aabbccddeeff"}},
		{Name: "off", IsActive: false, MACs: []string{"aabbccddeeff"}},
	})
	require.Len(t, bypass, 1)
	require.Equal(t, "printers", bypass[0].Name)

	udn := ActiveUDN([]UdnAssignment{
		{UDNID: 300, IsActive: true},
		{UDNID: 100, IsActive: true},
		{UDNID: 200, IsActive: false},
	})
	require.Len(t, udn, 2)
	require.Equal(t, 100, udn[0].UDNID)
}
