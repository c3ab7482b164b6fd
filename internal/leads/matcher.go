package leads

import (
	"strings"

	"github.com/accessmod/lead-marketplace/internal/contractors"
)

// MatchContractors filters the directory to contractors serving the lead's
// city with a specialization that appears in the lead type. Directory order is kept.
func MatchContractors(lead *Lead, directory []contractors.Contractor) []contractors.Contractor {
	out := []contractors.Contractor{}
	if lead == nil {
		return out
	}
	city := strings.ToLower(City(lead.Location))
	leadType := strings.ToLower(lead.LeadType)

	for _, c := range directory {
		if servesCity(c.ServiceAreas, city) && hasSpecialization(c.Specializations, leadType) {
			out = append(out, c)
		}
	}
	return out
}

func servesCity(areas []string, city string) bool {
	for _, area := range areas {
		if strings.Contains(strings.ToLower(area), city) {
			return true
		}
	}
	return false
}

func hasSpecialization(tags []string, leadType string) bool {
	for _, tag := range tags {
		phrase := strings.ToLower(strings.ReplaceAll(tag, "_", " "))
		if strings.Contains(leadType, phrase) {
			return true
		}
	}
	return false
}
