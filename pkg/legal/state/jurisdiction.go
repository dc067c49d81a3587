package state

import "strings"

const Federal = "FEDERAL"

// AllJurisdictions lists every state and territory plus the federal level.
var AllJurisdictions = []string{"NSW", "VIC", "QLD", "SA", "WA", "TAS", "NT", "ACT", Federal}

func ValidJurisdiction(code string) bool {
	for _, j := range AllJurisdictions {
		if j == code {
			return true
		}
	}
	return false
}

// NormalizeJurisdiction finds a known code inside free text such as
// "I'm in NSW" or "state: qld". Federal is only returned on an exact match.
func NormalizeJurisdiction(raw string) string {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	if upper == "" {
		return ""
	}
	if ValidJurisdiction(upper) {
		return upper
	}
	fields := strings.FieldsFunc(upper, func(r rune) bool {
		return !(r >= 'A' && r <= 'Z')
	})
	for _, f := range fields {
		if f != Federal && ValidJurisdiction(f) {
			return f
		}
	}
	return ""
}
