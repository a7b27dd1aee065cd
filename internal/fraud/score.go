package fraud

import (
	"strings"
	"time"
)

// Amount bands in minor units.
const (
	largeAmountCents     = 100_00
	veryLargeAmountCents = 250_00

	largeAmountPoints     = 20
	veryLargeAmountPoints = 30
	oddHourPoints         = 10
	foreignPayerPoints    = 15

	maxScore = 100
)

// Scorer computes an advisory risk score for a payment transition. It never
// blocks a transition; scores above the threshold only flag the payment for
// manual review.
type Scorer struct {
	Threshold   int
	Location    *time.Location
	HomeCountry string
}

// Score is a deterministic additive heuristic over transaction shape and
// context, clamped to [0,100]. Side-effect free so new signals can be added
// and unit-tested without touching the transaction engine.
func (s Scorer) Score(amountCents int64, payerCountry string, at time.Time) int {
	score := 0
	if amountCents > largeAmountCents {
		score += largeAmountPoints
	}
	if amountCents > veryLargeAmountCents {
		score += veryLargeAmountPoints
	}

	hour := at.In(s.location()).Hour()
	if hour < 6 || hour >= 23 {
		score += oddHourPoints
	}

	country := strings.ToUpper(strings.TrimSpace(payerCountry))
	if country != "" && country != s.homeCountry() {
		score += foreignPayerPoints
	}

	if score > maxScore {
		score = maxScore
	}
	return score
}

// Exceeds reports whether the score crosses the review threshold. The
// threshold itself does not trigger an alert; only strictly greater scores do.
func (s Scorer) Exceeds(score int) bool {
	threshold := s.Threshold
	if threshold <= 0 {
		threshold = 50
	}
	return score > threshold
}

func (s Scorer) location() *time.Location {
	if s.Location != nil {
		return s.Location
	}
	return time.Local
}

func (s Scorer) homeCountry() string {
	if trimmed := strings.TrimSpace(s.HomeCountry); trimmed != "" {
		return strings.ToUpper(trimmed)
	}
	return "US"
}
