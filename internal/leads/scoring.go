package leads

import "math"

var scoreUrgencyMultiplier = map[string]float64{
	UrgencyLow:    0.8,
	UrgencyMedium: 1.0,
	UrgencyHigh:   1.2,
	UrgencyUrgent: 1.4,
}

var priceUrgencyMultiplier = map[string]float64{
	UrgencyLow:    1.0,
	UrgencyMedium: 1.2,
	UrgencyHigh:   1.5,
	UrgencyUrgent: 2.0,
}

var urgencyOrdinal = map[string]int{
	UrgencyLow:    1,
	UrgencyMedium: 2,
	UrgencyHigh:   3,
	UrgencyUrgent: 4,
}

// ScoreInput holds the signals the scorer reads. Missing values count as zero.
type ScoreInput struct {
	UserUrgency       string
	BudgetMax         float64
	HazardCount       int
	MobilityNeedCount int
}

// ScoreLead computes the 0-100 quality score. Accumulation order matters for
// floating point and must not change.
func ScoreLead(in ScoreInput) int {
	score := 50.0

	mult, ok := scoreUrgencyMultiplier[in.UserUrgency]
	if !ok {
		mult = 1.0
	}
	score *= mult

	switch {
	case in.BudgetMax > 5000:
		score += 20
	case in.BudgetMax > 2000:
		score += 10
	case in.BudgetMax > 1000:
		score += 5
	}

	score += float64(min(in.HazardCount*5, 20))

	if in.MobilityNeedCount > 0 {
		score += float64(in.MobilityNeedCount * 3)
	}

	return min(int(jsRound(score)), 100)
}

// ResolveUrgency blends the AI urgency score with the homeowner's level. The
// result is never lower than the homeowner's level.
func ResolveUrgency(aiScore float64, userLevel string) string {
	user, ok := urgencyOrdinal[userLevel]
	if !ok {
		user = 2
	}
	ai := int(math.Ceil(aiScore / 25))
	ai = max(1, min(ai, 4))

	switch combined := max(user, ai); {
	case combined >= 4:
		return UrgencyUrgent
	case combined >= 3:
		return UrgencyHigh
	case combined >= 2:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// UrgencyOrdinal returns 1-4 for a known level and 0 otherwise.
func UrgencyOrdinal(level string) int {
	return urgencyOrdinal[level]
}

// PriceLead computes the contractor price in whole dollars, rounding once.
func PriceLead(score int, urgency string, budgetMax float64) int {
	price := 40.0

	switch {
	case score >= 90:
		price *= 2.5
	case score >= 80:
		price *= 2.0
	case score >= 70:
		price *= 1.5
	case score >= 60:
		price *= 1.2
	}

	mult, ok := priceUrgencyMultiplier[urgency]
	if !ok {
		mult = 1.0
	}
	price *= mult

	switch {
	case budgetMax > 5000:
		price *= 1.3
	case budgetMax > 2000:
		price *= 1.1
	}

	return int(jsRound(price))
}

// jsRound rounds half toward positive infinity.
func jsRound(v float64) float64 {
	return math.Floor(v + 0.5)
}
