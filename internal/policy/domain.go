package policy

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Vendor identifies the reply-attribute dialect a network-access device expects.
type Vendor string

const (
	VendorMeraki      Vendor = "meraki"
	VendorCiscoAireOS Vendor = "cisco_aireos"
	VendorCiscoISE    Vendor = "cisco_ise"
	VendorAruba       Vendor = "aruba"
)

// Vendors lists every supported dialect in a stable order.
func Vendors() []Vendor {
	return []Vendor{VendorMeraki, VendorCiscoAireOS, VendorCiscoISE, VendorAruba}
}

// ParseVendor normalises a vendor tag. An empty tag resolves to Meraki, the
// column default in the store.
func ParseVendor(v string) (Vendor, error) {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return VendorMeraki, nil
	}
	for _, known := range Vendors() {
		if Vendor(v) == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVendor, v)
}

// Operator is a FreeRADIUS attribute operator token.
type Operator string

const (
	OpSet       Operator = ":="
	OpAssign    Operator = "="
	OpEqual     Operator = "=="
	OpAdd       Operator = "+="
	OpNotEqual  Operator = "!="
	OpGreater   Operator = ">"
	OpGreaterEq Operator = ">="
	OpLess      Operator = "<"
	OpLessEq    Operator = "<="
	OpRegex     Operator = "=~"
	OpNotRegex  Operator = "!~"
)

// Valid reports whether the operator belongs to the daemon grammar.
func (o Operator) Valid() bool {
	switch o {
	case OpSet, OpAssign, OpEqual, OpAdd, OpNotEqual, OpGreater, OpGreaterEq, OpLess, OpLessEq, OpRegex, OpNotRegex:
		return true
	}
	return false
}

// AttributeTriple is a raw (attribute, operator, value) item attached to a policy.
type AttributeTriple struct {
	Attribute string   `json:"attribute" yaml:"attribute"`
	Operator  Operator `json:"op" yaml:"op"`
	Value     string   `json:"value" yaml:"value"`
}

// Client is a network-access device allowed to talk to the daemon.
type Client struct {
	ID        int64     `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Address   string    `json:"address" yaml:"address"`
	Secret    string    `json:"secret" yaml:"secret"`
	Vendor    string    `json:"vendor" yaml:"vendor"`
	RadSec    bool      `json:"radsec" yaml:"radsec"`
	CoA       bool      `json:"coa" yaml:"coa"`
	IPv6      bool      `json:"ipv6" yaml:"ipv6"`
	IsActive  bool      `json:"is_active" yaml:"is_active"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Decision is the terminal Auth-Type a policy forces, if any.
type Decision string

const (
	DecisionContinue Decision = ""
	DecisionAccept   Decision = "accept"
	DecisionReject   Decision = "reject"
)

const (
	MinPriority = 0
	MaxPriority = 1000
)

// Security group tags are 16 bit.
const (
	MinSGT = 0
	MaxSGT = 0xffff
)

// AuthorizationPolicy is a prioritised authorisation rule. Lower priority
// numbers are evaluated first.
type AuthorizationPolicy struct {
	ID          int64     `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	Priority    int       `json:"priority" yaml:"priority"`
	IsActive    bool      `json:"is_active" yaml:"is_active"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`

	UsernamePattern      string `json:"username_pattern" yaml:"username_pattern"`
	MACPattern           string `json:"mac_pattern" yaml:"mac_pattern"`
	NASIdentifierPattern string `json:"nas_identifier_pattern" yaml:"nas_identifier_pattern"`
	NASIPPattern         string `json:"nas_ip_pattern" yaml:"nas_ip_pattern"`

	CheckAttributes []AttributeTriple `json:"check_attributes" yaml:"check_attributes"`
	ReplyAttributes []AttributeTriple `json:"reply_attributes" yaml:"reply_attributes"`

	TimeRestriction   string   `json:"time_restriction" yaml:"time_restriction"`
	VLANID            *int     `json:"vlan_id" yaml:"vlan_id"`
	BandwidthUpKbps   *int     `json:"bandwidth_up_kbps" yaml:"bandwidth_up_kbps"`
	BandwidthDownKbps *int     `json:"bandwidth_down_kbps" yaml:"bandwidth_down_kbps"`
	SessionTimeout    *int     `json:"session_timeout" yaml:"session_timeout"`
	IdleTimeout       *int     `json:"idle_timeout" yaml:"idle_timeout"`
	SimultaneousUse   *int     `json:"simultaneous_use" yaml:"simultaneous_use"`
	Decision          Decision `json:"decision" yaml:"decision"`

	PSKValidationRequired bool   `json:"psk_validation_required" yaml:"psk_validation_required"`
	PSK                   string `json:"psk" yaml:"psk"`
	MACMatchingEnabled    bool   `json:"mac_matching_enabled" yaml:"mac_matching_enabled"`
	MatchOnPSKOnly        bool   `json:"match_on_psk_only" yaml:"match_on_psk_only"`

	GroupPolicyVendor string `json:"group_policy_vendor" yaml:"group_policy_vendor"`
	GroupPolicy       string `json:"group_policy" yaml:"group_policy"`
	SplashURL         string `json:"splash_url" yaml:"splash_url"`
	RedirectACL       string `json:"redirect_acl" yaml:"redirect_acl"`
	SGT               *int   `json:"sgt" yaml:"sgt"`
	SGTName           string `json:"sgt_name" yaml:"sgt_name"`
	IncludeUDN        bool   `json:"include_udn" yaml:"include_udn"`
}

// Validate checks the invariants the compiler relies on.
func (p AuthorizationPolicy) Validate() error {
	if p.Priority < MinPriority || p.Priority > MaxPriority {
		return fmt.Errorf("%w: %d", ErrInvalidPriority, p.Priority)
	}
	if p.SGT != nil && (*p.SGT < MinSGT || *p.SGT > MaxSGT) {
		return fmt.Errorf("%w: %d", ErrInvalidSGT, *p.SGT)
	}
	if _, err := ParseVendor(p.GroupPolicyVendor); err != nil {
		return err
	}
	switch p.Decision {
	case DecisionContinue, DecisionAccept, DecisionReject:
	default:
		return fmt.Errorf("policy: unknown decision %q", p.Decision)
	}
	return nil
}

// EAPType is an EAP method understood by the daemon's eap module.
type EAPType string

const (
	EAPMD5      EAPType = "md5"
	EAPGTC      EAPType = "gtc"
	EAPTLS      EAPType = "tls"
	EAPTTLS     EAPType = "ttls"
	EAPPEAP     EAPType = "peap"
	EAPMSCHAPv2 EAPType = "mschapv2"
	EAPPWD      EAPType = "pwd"
)

// EAPTypes lists every supported method in emission order.
func EAPTypes() []EAPType {
	return []EAPType{EAPMD5, EAPGTC, EAPTLS, EAPTTLS, EAPPEAP, EAPMSCHAPv2, EAPPWD}
}

// ParseEAPType normalises a method name.
func ParseEAPType(v string) (EAPType, error) {
	v = strings.TrimSpace(strings.ToLower(v))
	for _, known := range EAPTypes() {
		if EAPType(v) == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEAPType, v)
}

// UsesTLS reports whether the method needs the shared TLS profile.
func (t EAPType) UsesTLS() bool {
	return t == EAPTLS || t == EAPTTLS || t == EAPPEAP
}

// Tunnelled reports whether the method runs an inner authentication.
func (t EAPType) Tunnelled() bool {
	return t == EAPTTLS || t == EAPPEAP
}

// TLSProfile holds certificate material shared by the TLS based EAP methods.
type TLSProfile struct {
	CertificateFile    string `json:"certificate_file" yaml:"certificate_file"`
	PrivateKeyFile     string `json:"private_key_file" yaml:"private_key_file"`
	PrivateKeyPassword string `json:"private_key_password" yaml:"private_key_password"`
	CAFile             string `json:"ca_file" yaml:"ca_file"`
	DHFile             string `json:"dh_file" yaml:"dh_file"`
	CipherList         string `json:"cipher_list" yaml:"cipher_list"`
	MinVersion         string `json:"min_version" yaml:"min_version"`
	MaxVersion         string `json:"max_version" yaml:"max_version"`
}

// EapMethod carries per-method settings.
type EapMethod struct {
	Type         EAPType `json:"type" yaml:"type"`
	InnerEAPType EAPType `json:"inner_eap_type" yaml:"inner_eap_type"`
}

// EapConfig is the single active EAP configuration.
type EapConfig struct {
	ID             int64       `json:"id" yaml:"id"`
	Name           string      `json:"name" yaml:"name"`
	DefaultEAPType EAPType     `json:"default_eap_type" yaml:"default_eap_type"`
	EnabledMethods []EAPType   `json:"enabled_methods" yaml:"enabled_methods"`
	Methods        []EapMethod `json:"methods" yaml:"methods"`
	TLS            TLSProfile  `json:"tls" yaml:"tls"`
	IsActive       bool        `json:"is_active" yaml:"is_active"`
}

// Method returns the per-method settings for t, if any were stored.
func (c EapConfig) Method(t EAPType) (EapMethod, bool) {
	for _, m := range c.Methods {
		if m.Type == t {
			return m, true
		}
	}
	return EapMethod{}, false
}

// BypassMode is how a MAC bypass list is applied.
type BypassMode string

const BypassWhitelist BypassMode = "whitelist"

// MacBypassConfig is a named list of MAC addresses allowed without credentials.
type MacBypassConfig struct {
	ID       int64      `json:"id" yaml:"id"`
	Name     string     `json:"name" yaml:"name"`
	MACs     []string   `json:"macs" yaml:"macs"`
	Mode     BypassMode `json:"mode" yaml:"mode"`
	IsActive bool       `json:"is_active" yaml:"is_active"`
}

// SqlBackendConfig describes the SQL backend the daemon connects to.
type SqlBackendConfig struct {
	URL         string `json:"url" yaml:"url"`
	ReadClients bool   `json:"read_clients" yaml:"read_clients"`
	PoolMin     int    `json:"pool_min" yaml:"pool_min"`
	PoolMax     int    `json:"pool_max" yaml:"pool_max"`
}

const (
	MinUDNID = 2
	MaxUDNID = 16777200
)

// UdnAssignment binds a user (optionally a single device) to a private group.
type UdnAssignment struct {
	ID             int64     `json:"id" yaml:"id"`
	UDNID          int       `json:"udn_id" yaml:"udn_id"`
	UserID         int64     `json:"user_id" yaml:"user_id"`
	Username       string    `json:"username" yaml:"username"`
	MAC            string    `json:"mac" yaml:"mac"`
	IPSKIdentifier string    `json:"ipsk_identifier" yaml:"ipsk_identifier"`
	Passphrase     string    `json:"passphrase" yaml:"passphrase"`
	IsActive       bool      `json:"is_active" yaml:"is_active"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at"`
}

// Validate checks range and MAC format.
func (a UdnAssignment) Validate() error {
	if a.UDNID < MinUDNID || a.UDNID > MaxUDNID {
		return fmt.Errorf("%w: %d", ErrUDNOutOfRange, a.UDNID)
	}
	if a.UserID <= 0 {
		return errors.New("policy: udn assignment requires a user")
	}
	if a.MAC != "" && !IsValidMAC(NormalizeMAC(a.MAC)) {
		return fmt.Errorf("%w: %q", ErrInvalidMAC, a.MAC)
	}
	return nil
}

// CredentialStatus is the stored iPSK lifecycle state.
type CredentialStatus string

const (
	CredentialActive  CredentialStatus = "active"
	CredentialExpired CredentialStatus = "expired"
	CredentialRevoked CredentialStatus = "revoked"
)

// Credential is an iPSK record with an optional expiry.
type Credential struct {
	ID             int64            `json:"id"`
	UserID         int64            `json:"user_id"`
	Email          string           `json:"email"`
	Identifier     string           `json:"identifier"`
	Passphrase     string           `json:"-"`
	ExpiresAt      *time.Time       `json:"expires_at"`
	Status         CredentialStatus `json:"status"`
	ExpiredAt      *time.Time       `json:"expired_at"`
	LastNotifiedAt *time.Time       `json:"last_notified_at"`
}

// RadSecConfig holds the RADIUS-over-TLS listener parameters.
type RadSecConfig struct {
	Enabled           bool   `json:"enabled" yaml:"enabled"`
	Port              int    `json:"port" yaml:"port"`
	MinTLSVersion     string `json:"min_tls_version" yaml:"min_tls_version"`
	MaxTLSVersion     string `json:"max_tls_version" yaml:"max_tls_version"`
	CipherList        string `json:"cipher_list" yaml:"cipher_list"`
	CertificateFile   string `json:"certificate_file" yaml:"certificate_file"`
	PrivateKeyFile    string `json:"private_key_file" yaml:"private_key_file"`
	CAFile            string `json:"ca_file" yaml:"ca_file"`
	VerifyDepth       int    `json:"verify_depth" yaml:"verify_depth"`
	RequireClientCert bool   `json:"require_client_cert" yaml:"require_client_cert"`
	CheckCRL          bool   `json:"check_crl" yaml:"check_crl"`
	OCSP              bool   `json:"ocsp" yaml:"ocsp"`
}

// NadHealth is the last known reachability of a client.
type NadHealth struct {
	ClientID            int64     `json:"client_id"`
	ClientName          string    `json:"client_name"`
	Reachable           bool      `json:"reachable"`
	LatencyMs           float64   `json:"latency_ms"`
	AvgLatencyMs        float64   `json:"avg_latency_ms"`
	CheckedAt           time.Time `json:"checked_at"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
}

// Snapshot is one consistent read of everything the compiler consumes.
type Snapshot struct {
	Clients   []Client              `json:"clients" yaml:"clients"`
	Policies  []AuthorizationPolicy `json:"policies" yaml:"policies"`
	EAP       *EapConfig            `json:"eap" yaml:"eap"`
	MacBypass []MacBypassConfig     `json:"mac_bypass" yaml:"mac_bypass"`
	SQL       *SqlBackendConfig     `json:"sql" yaml:"sql"`
	UDN       []UdnAssignment       `json:"udn" yaml:"udn"`
	RadSec    *RadSecConfig         `json:"radsec" yaml:"radsec"`
}

var (
	ErrNotFound          = errors.New("policy: not found")
	ErrUnknownVendor     = errors.New("policy: unknown vendor")
	ErrUnknownEAPType    = errors.New("policy: unknown eap type")
	ErrInvalidPriority   = errors.New("policy: priority out of range")
	ErrInvalidSGT        = errors.New("policy: sgt out of range")
	ErrUDNOutOfRange     = errors.New("policy: udn id out of range")
	ErrUDNInUse          = errors.New("policy: udn id already assigned")
	ErrInvalidMAC        = errors.New("policy: invalid mac address")
	ErrRepositoryNotInit = errors.New("policy: repository not initialised")
)
