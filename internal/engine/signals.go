package engine

import (
	"strings"

	"github.com/lumenworks/saleschat/internal/domain"
)

var positiveWords = []string{
	"great", "thanks", "thank you", "perfect", "sounds good", "love",
	"interested", "helpful", "awesome", "excellent",
}

var negativeWords = []string{
	"frustrated", "annoyed", "terrible", "useless", "waste", "angry",
	"disappointed", "too expensive", "not working", "broken",
}

var engagementMarkers = []string{
	"?", "how much", "quote", "price", "spec", "lead time", "install",
	"warranty", "rebate", "ship",
}

// deriveSignals scores visitor text for display in the operator console.
// The scores are heuristic and carry no pipeline weight.
func deriveSignals(text string) *domain.TurnSignals {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)

	pos, neg := 0, 0
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			pos++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			neg++
		}
	}

	sentiment := "neutral"
	switch {
	case pos > neg:
		sentiment = "positive"
	case neg > pos:
		sentiment = "negative"
	}

	hits := 0
	for _, m := range engagementMarkers {
		if strings.Contains(lower, m) {
			hits++
		}
	}
	engagement := float64(hits) / float64(len(engagementMarkers))
	if engagement > 1 {
		engagement = 1
	}

	return &domain.TurnSignals{
		Sentiment:  sentiment,
		Engagement: engagement,
	}
}
