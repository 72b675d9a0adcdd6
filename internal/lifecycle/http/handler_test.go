package lifecyclehttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/portcullis-nac/portcullis/internal/lifecycle"
	"github.com/portcullis-nac/portcullis/internal/policy"
)

type stubLifecycle struct {
	cred     policy.Credential
	err      error
	gotID    int64
	gotUntil time.Time
	health   []policy.NadHealth
}

func (s *stubLifecycle) Extend(_ context.Context, id int64, until time.Time) (policy.Credential, error) {
	s.gotID, s.gotUntil = id, until
	if s.err != nil {
		return policy.Credential{}, s.err
	}
	c := s.cred
	c.ExpiresAt = &until
	return c, nil
}

func (s *stubLifecycle) Credential(_ context.Context, id int64) (policy.Credential, error) {
	s.gotID = id
	return s.cred, s.err
}

func (s *stubLifecycle) NadHealth(context.Context) ([]policy.NadHealth, error) {
	return s.health, s.err
}

func serve(svc Lifecycle, method, target, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(r)
	rec := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	r.ServeHTTP(rec, req)
	return rec
}

func TestExtendEndpoint(t *testing.T) {
	stub := &stubLifecycle{cred: policy.Credential{ID: 7, Status: policy.CredentialActive}}
	rec := serve(stub, http.MethodPost, "/credentials/7/extend", `{"expires_at":"2026-12-31T00:00:00Z"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(7), stub.gotID)
	require.True(t, stub.gotUntil.Equal(time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "active", body["status"])
	require.NotContains(t, body, "passphrase")
}

func TestExtendEndpointErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		target string
		want   int
	}{
		{"revoked", lifecycle.ErrCredentialRevoked, "/credentials/1/extend", http.StatusConflict},
		{"past", lifecycle.ErrInvalidExpiry, "/credentials/1/extend", http.StatusBadRequest},
		{"missing", policy.ErrNotFound, "/credentials/1/extend", http.StatusNotFound},
		{"bad id", nil, "/credentials/abc/extend", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(&stubLifecycle{err: tc.err}, http.MethodPost, tc.target, `{"expires_at":"2026-12-31T00:00:00Z"}`)
			require.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestProfileEndpoint(t *testing.T) {
	stub := &stubLifecycle{cred: policy.Credential{ID: 3, Identifier: "alice-phone", Passphrase: "correct horse", Status: policy.CredentialActive}}
	rec := serve(stub, http.MethodGet, "/credentials/3/profile?ssid=corp", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "WIFI:T:WPA;S:corp;P:correct horse;;", body["wifi_uri"])
	require.Len(t, body["pmk"], 64)

	rec = serve(stub, http.MethodGet, "/credentials/3/profile", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	stub.cred.Status = policy.CredentialExpired
	rec = serve(stub, http.MethodGet, "/credentials/3/profile?ssid=corp", "")
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestNadHealthEndpoint(t *testing.T) {
	stub := &stubLifecycle{health: []policy.NadHealth{{ClientID: 1, ClientName: "core", Reachable: true, AvgLatencyMs: 1.5}}}
	rec := serve(stub, http.MethodGet, "/nad-health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Devices []policy.NadHealth `json:"devices"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Devices, 1)
	require.Equal(t, "core", body.Devices[0].ClientName)
}
