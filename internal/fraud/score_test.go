package fraud_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pocketpay/internal/fraud"
)

var noon = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func scorer() fraud.Scorer {
	return fraud.Scorer{Threshold: 50, Location: time.UTC, HomeCountry: "US"}
}

func TestScoreSmallDaytimeDomesticPayment(t *testing.T) {
	require.Equal(t, 0, scorer().Score(99_00, "US", noon))
}

func TestScoreAmountBandsAreCumulative(t *testing.T) {
	s := scorer()
	require.Equal(t, 20, s.Score(150_00, "US", noon))
	require.Equal(t, 50, s.Score(300_00, "US", noon))
}

func TestScoreOddHourAndForeignPayer(t *testing.T) {
	s := scorer()
	threeAM := time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC)
	require.Equal(t, 75, s.Score(300_00, "DE", threeAM))
}

func TestScoreHourBoundaries(t *testing.T) {
	s := scorer()
	fiveAM := time.Date(2025, 6, 2, 5, 59, 0, 0, time.UTC)
	sixAM := time.Date(2025, 6, 2, 6, 0, 0, 0, time.UTC)
	elevenPM := time.Date(2025, 6, 2, 23, 0, 0, 0, time.UTC)
	require.Equal(t, 10, s.Score(50_00, "US", fiveAM))
	require.Equal(t, 0, s.Score(50_00, "US", sixAM))
	require.Equal(t, 10, s.Score(50_00, "US", elevenPM))
}

func TestScoreClampedToHundred(t *testing.T) {
	s := scorer()
	threeAM := time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC)
	score := s.Score(10_000_00, "BR", threeAM)
	require.LessOrEqual(t, score, 100)
	require.Equal(t, 75, score)
}

func TestExceedsIsStrict(t *testing.T) {
	s := scorer()
	require.False(t, s.Exceeds(50))
	require.True(t, s.Exceeds(51))
}

func TestUnknownCountryDoesNotScore(t *testing.T) {
	require.Equal(t, 0, scorer().Score(50_00, "", noon))
}
