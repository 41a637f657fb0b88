package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeverityForScore_Tiers(t *testing.T) {
	cases := []struct {
		score float64
		level string
		color string
	}{
		{0, "Mild", "#27ae60"},
		{7.99, "Mild", "#27ae60"},
		{8, "Moderate", "#f39c12"},
		{15.99, "Moderate", "#f39c12"},
		{16, "Severe", "#e74c3c"},
		{23.99, "Severe", "#e74c3c"},
		{24, "Very Severe", "#c0392b"},
		{32, "Very Severe", "#c0392b"},
		{100, "Very Severe", "#c0392b"},
	}

	for _, tc := range cases {
		sev := SeverityForScore(tc.score)
		require.Equal(t, tc.level, sev.Level, "score %.2f", tc.score)
		require.Equal(t, tc.color, sev.Color, "score %.2f", tc.score)
		require.NotEmpty(t, sev.Description)
	}
}

// 等级在评分上必须单调，阈值8/16/24处不重叠、不留空隙
func TestSeverityForScore_Monotonic(t *testing.T) {
	order := map[string]int{"Mild": 0, "Moderate": 1, "Severe": 2, "Very Severe": 3}

	prev := -1
	for score := 0.0; score <= 40; score += 0.25 {
		rank, ok := order[SeverityForScore(score).Level]
		require.True(t, ok)
		require.GreaterOrEqual(t, rank, prev)
		prev = rank
	}
}
