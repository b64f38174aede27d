package fcm

import (
	"regexp"
	"strings"
)

// DeviceIdentity holds the GCM device credentials issued at check-in.
//
// Both values are kept as exact digit strings: they are 64-bit identifiers
// whose magnitude exceeds the safe integer range of JSON consumers, so they
// must never round-trip through a float.
type DeviceIdentity struct {
	AndroidID     string `json:"androidId"`
	SecurityToken string `json:"securityToken"`
}

// Key-anchored patterns: the value is a contiguous digit run, optionally
// quoted. Key order in the record does not matter.
var (
	androidIDPattern     = regexp.MustCompile(`androidId["']?\s*:\s*["']?([0-9]+)["']?`)
	securityTokenPattern = regexp.MustCompile(`securityToken["']?\s*:\s*["']?([0-9]+)["']?`)
	digitsOnly           = regexp.MustCompile(`^[0-9]+$`)
)

// ParseDeviceIdentity extracts a DeviceIdentity from a loosely formatted
// brace-delimited record such as
//
//	{"androidId":5152407997, "securityToken":"5427954117"}
//	{securityToken: 5427954117, androidId: 5152407997}
//
// It accepts JSON as well as the unquoted form pasted from other tools.
// Digit sequences are returned verbatim, with no numeric parsing.
func ParseDeviceIdentity(s string) (DeviceIdentity, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return DeviceIdentity{}, &FormatError{Reason: "expected a brace-delimited record"}
	}

	var missing []string
	androidID := captureDigits(androidIDPattern, trimmed)
	if androidID == "" {
		missing = append(missing, "androidId")
	}
	securityToken := captureDigits(securityTokenPattern, trimmed)
	if securityToken == "" {
		missing = append(missing, "securityToken")
	}
	if len(missing) > 0 {
		return DeviceIdentity{}, &FormatError{MissingKeys: missing}
	}

	// The patterns only capture digit runs, but verify anyway so a future
	// pattern change cannot silently hand out a value that would lose
	// precision downstream.
	if !digitsOnly.MatchString(androidID) || !digitsOnly.MatchString(securityToken) {
		return DeviceIdentity{}, &FormatError{Reason: "captured value is not a digit string"}
	}

	return DeviceIdentity{AndroidID: androidID, SecurityToken: securityToken}, nil
}

func captureDigits(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}
