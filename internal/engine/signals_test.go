package engine

import "testing"

func TestDeriveSignals(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		sentiment string
	}{
		{"positive", "Thanks, that sounds good!", "positive"},
		{"negative", "This is useless, I'm frustrated.", "negative"},
		{"neutral", "We have a 20,000 sq ft facility.", "neutral"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := deriveSignals(tt.text)
			if sig == nil {
				t.Fatal("expected signals")
			}
			if sig.Sentiment != tt.sentiment {
				t.Errorf("sentiment = %q, want %q", sig.Sentiment, tt.sentiment)
			}
		})
	}

	if deriveSignals("") != nil {
		t.Error("empty text must yield no signals")
	}

	engaged := deriveSignals("How much is a quote for 40 fixtures? What's the lead time?")
	if engaged.Engagement <= deriveSignals("ok").Engagement {
		t.Error("question-dense text must score higher engagement")
	}
}
