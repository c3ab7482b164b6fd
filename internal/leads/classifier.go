package leads

import "strings"

var roomLeadTypes = map[string]string{
	"bathroom":    "bathroom_modification",
	"bedroom":     "bedroom_safety",
	"kitchen":     "kitchen_modification",
	"living-room": "living_room_safety",
	"hallway":     "hallway_safety",
	"entryway":    "entrance_modification",
	"stairs":      "stair_safety",
}

// ClassifyLeadType derives the lead type from hazards first, then the room.
func ClassifyLeadType(room string, hazards []string) string {
	switch {
	case anyHazardContains(hazards, "grab bar"):
		return "grab_bar_installation"
	case anyHazardContains(hazards, "ramp", "step"):
		return "ramp_installation"
	case anyHazardContains(hazards, "stair", "lift"):
		return "stair_lift_installation"
	}
	if t, ok := roomLeadTypes[room]; ok {
		return t
	}
	return "general_modification"
}

func anyHazardContains(hazards []string, needles ...string) bool {
	for _, h := range hazards {
		lower := strings.ToLower(h)
		for _, n := range needles {
			if strings.Contains(lower, n) {
				return true
			}
		}
	}
	return false
}
