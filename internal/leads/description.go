package leads

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// BuildDescription renders the narrative shown to contractors.
func BuildDescription(room string, hazards, recommendations, mobilityNeeds []string, userUrgency string) string {
	var b strings.Builder
	b.WriteString(capitalize(room))
	b.WriteString(" safety modification needed. ")

	if len(hazards) > 0 {
		b.WriteString("Issues identified: ")
		b.WriteString(strings.Join(hazards[:min(len(hazards), 3)], ", "))
		b.WriteString(". ")
	}
	if len(recommendations) > 0 {
		b.WriteString("Recommended solutions: ")
		b.WriteString(strings.Join(recommendations[:min(len(recommendations), 2)], ", "))
		b.WriteString(". ")
	}
	if len(mobilityNeeds) > 0 {
		b.WriteString("Special considerations: ")
		b.WriteString(strings.Join(mobilityNeeds, ", "))
		b.WriteString(". ")
	}
	b.WriteString("Urgency level: ")
	b.WriteString(userUrgency)
	b.WriteString(".")
	return b.String()
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// ExtractLocation keeps the last two comma-separated parts of an address
// ("City, State"). Addresses with fewer parts are returned unchanged.
func ExtractLocation(address string) string {
	parts := strings.Split(address, ",")
	if len(parts) < 2 {
		return address
	}
	return strings.TrimSpace(parts[len(parts)-2]) + ", " + strings.TrimSpace(parts[len(parts)-1])
}

// City returns the first comma-delimited token of a location, trimmed.
func City(location string) string {
	city, _, _ := strings.Cut(location, ",")
	return strings.TrimSpace(city)
}
