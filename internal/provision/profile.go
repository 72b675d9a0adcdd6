// Package provision builds client onboarding material for iPSK credentials.
package provision

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

var (
	// ErrInvalidSSID is returned for an SSID outside 1..32 bytes.
	ErrInvalidSSID = errors.New("provision: ssid must be 1-32 bytes")
	// ErrInvalidPassphrase is returned for a WPA passphrase outside 8..63 characters.
	ErrInvalidPassphrase = errors.New("provision: passphrase must be 8-63 characters")
)

// Profile is what a device needs to join the SSID with its own key.
type Profile struct {
	SSID       string `json:"ssid"`
	Identifier string `json:"identifier"`
	WiFiURI    string `json:"wifi_uri"`
	PMK        string `json:"pmk"`
}

// NewProfile validates inputs and derives the URI and PMK.
func NewProfile(ssid, identifier, passphrase string) (Profile, error) {
	if len(ssid) == 0 || len(ssid) > 32 {
		return Profile{}, ErrInvalidSSID
	}
	if n := len(passphrase); n < 8 || n > 63 {
		return Profile{}, ErrInvalidPassphrase
	}
	return Profile{
		SSID:       ssid,
		Identifier: identifier,
		WiFiURI:    WiFiURI(ssid, passphrase),
		PMK:        hex.EncodeToString(PMK(ssid, passphrase)),
	}, nil
}

// WiFiURI renders the WIFI: URI scanned from QR codes.
func WiFiURI(ssid, passphrase string) string {
	var b strings.Builder
	b.WriteString("WIFI:T:WPA;S:")
	b.WriteString(escape(ssid))
	b.WriteString(";P:")
	b.WriteString(escape(passphrase))
	b.WriteString(";;")
	return b.String()
}

// PMK derives the 256-bit WPA pairwise master key.
func PMK(ssid, passphrase string) []byte {
	return pbkdf2.Key([]byte(passphrase), []byte(ssid), 4096, 32, sha1.New)
}

var uriEscaper = strings.NewReplacer(`\`, `\\`, `;`, `\;`, `,`, `\,`, `"`, `\"`, `:`, `\:`)

func escape(s string) string {
	return uriEscaper.Replace(s)
}
