package attrs

import (
	"fmt"

	"github.com/portcullis-nac/portcullis/internal/policy"
)

// Dialect encodes vendor-specific reply attributes. There is one
// implementation per policy.Vendor; DialectFor is the only constructor.
type Dialect interface {
	Vendor() policy.Vendor
	Redirect(url, acl string) []Line
	GroupPolicy(name string) []Line
}

// DialectFor returns the dialect for v. Adding a vendor means adding a case
// here and to policy.Vendors; the dialect test walks policy.Vendors to catch
// a missing case.
func DialectFor(v policy.Vendor) (Dialect, error) {
	switch v {
	case policy.VendorMeraki:
		return merakiDialect{}, nil
	case policy.VendorCiscoAireOS:
		return aireOSDialect{}, nil
	case policy.VendorCiscoISE:
		return iseDialect{}, nil
	case policy.VendorAruba:
		return arubaDialect{}, nil
	}
	return nil, fmt.Errorf("%w: %q", policy.ErrUnknownVendor, v)
}

func ciscoRedirect(url, acl string) []Line {
	lines := []Line{str("Cisco-AVPair", policy.OpAdd, "url-redirect="+url)}
	if acl != "" {
		lines = append(lines, str("Cisco-AVPair", policy.OpAdd, "url-redirect-acl="+acl))
	}
	return lines
}

type merakiDialect struct{}

func (merakiDialect) Vendor() policy.Vendor { return policy.VendorMeraki }

func (merakiDialect) Redirect(url, acl string) []Line { return ciscoRedirect(url, acl) }

func (merakiDialect) GroupPolicy(name string) []Line {
	return []Line{str("Filter-Id", policy.OpSet, name)}
}

type aireOSDialect struct{}

func (aireOSDialect) Vendor() policy.Vendor { return policy.VendorCiscoAireOS }

func (aireOSDialect) Redirect(url, acl string) []Line { return ciscoRedirect(url, acl) }

func (aireOSDialect) GroupPolicy(name string) []Line {
	return []Line{str("Cisco-AVPair", policy.OpAdd, "air-group-policy="+name)}
}

type iseDialect struct{}

func (iseDialect) Vendor() policy.Vendor { return policy.VendorCiscoISE }

func (iseDialect) Redirect(url, acl string) []Line { return ciscoRedirect(url, acl) }

func (iseDialect) GroupPolicy(name string) []Line {
	return []Line{str("Cisco-AVPair", policy.OpAdd, "ACS:CiscoSecure-Defined-ACL="+name)}
}

type arubaDialect struct{}

func (arubaDialect) Vendor() policy.Vendor { return policy.VendorAruba }

func (arubaDialect) Redirect(url, _ string) []Line {
	return []Line{str("WISPr-Redirection-URL", policy.OpSet, url)}
}

func (arubaDialect) GroupPolicy(name string) []Line {
	return []Line{str("Aruba-User-Role", policy.OpSet, name)}
}
