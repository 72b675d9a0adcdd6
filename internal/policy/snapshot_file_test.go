package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const fixture = `
clients:
  - id: 1
    name: lobby-ap
    address: 10.0.0.5
    secret: s3cret
    vendor: meraki
    is_active: true
policies:
  - id: 7
    name: guests
    priority: 50
    is_active: true
    splash_url: https://portal.example/s
    group_policy_vendor: meraki
    group_policy: reg
    vlan_id: 30
eap:
  name: default
  default_eap_type: peap
  enabled_methods: [peap, tls]
  is_active: true
udn:
  - udn_id: 100
    user_id: 1
    is_active: true
`

func TestFileSourceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))

	snap, err := FileSource{Path: path}.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Clients, 1)
	require.Equal(t, "lobby-ap", snap.Clients[0].Name)
	require.Len(t, snap.Policies, 1)
	require.NotNil(t, snap.Policies[0].VLANID)
	require.Equal(t, 30, *snap.Policies[0].VLANID)
	require.NotNil(t, snap.EAP)
	require.Equal(t, []EAPType{EAPPEAP, EAPTLS}, snap.EAP.EnabledMethods)

	raw, err := EncodeSnapshot(snap)
	require.NoError(t, err)
	again, err := DecodeSnapshot(raw)
	require.NoError(t, err)
	require.Equal(t, snap.Policies[0].GroupPolicy, again.Policies[0].GroupPolicy)
	require.Equal(t, snap.UDN[0].UDNID, again.UDN[0].UDNID)
}

func TestDecodeSnapshotRejectsUnknownKeys(t *testing.T) {
	_, err := DecodeSnapshot([]byte("clientz: []\n"))
	require.Error(t, err)
}
