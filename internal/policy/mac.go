package policy

import (
	"regexp"
	"strings"
)

var (
	stripMACDelimiters = strings.NewReplacer(":", "", "-", "", ".", "")
	normalizedMAC      = regexp.MustCompile(`^[0-9a-f]{12}$`)
)

// NormalizeMAC lowercases a MAC address and strips delimiters.
func NormalizeMAC(mac string) string {
	return stripMACDelimiters.Replace(strings.ToLower(strings.TrimSpace(mac)))
}

// IsValidMAC validates a normalised MAC address.
func IsValidMAC(mac string) bool {
	return normalizedMAC.MatchString(mac)
}

// FormatMAC renders a normalised MAC as upper-case octets joined by sep, the
// shape the daemon's Calling-Station-Id rewrite produces when sep is "-".
func FormatMAC(mac, sep string) string {
	if !IsValidMAC(mac) {
		return ""
	}
	mac = strings.ToUpper(mac)
	octets := make([]string, 0, 6)
	for i := 0; i < 12; i += 2 {
		octets = append(octets, mac[i:i+2])
	}
	return strings.Join(octets, sep)
}
