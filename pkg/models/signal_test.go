package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignalFingerprint(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		a := SignalFingerprint([]string{"item-1", "item-2"}, "Fed raises rates")
		b := SignalFingerprint([]string{"item-1", "item-2"}, "Fed raises rates")
		assert.Equal(t, a, b)
		assert.Len(t, a, 64)
	})

	t.Run("source id order does not matter", func(t *testing.T) {
		a := SignalFingerprint([]string{"item-2", "item-1"}, "Fed raises rates")
		b := SignalFingerprint([]string{"item-1", "item-2"}, "Fed raises rates")
		assert.Equal(t, a, b)
	})

	t.Run("summary is case and whitespace insensitive", func(t *testing.T) {
		a := SignalFingerprint([]string{"item-1"}, "  Fed Raises Rates ")
		b := SignalFingerprint([]string{"item-1"}, "fed raises rates")
		assert.Equal(t, a, b)
	})

	t.Run("different summary changes fingerprint", func(t *testing.T) {
		a := SignalFingerprint([]string{"item-1"}, "Fed raises rates")
		b := SignalFingerprint([]string{"item-1"}, "Fed cuts rates")
		assert.NotEqual(t, a, b)
	})

	t.Run("different sources change fingerprint", func(t *testing.T) {
		a := SignalFingerprint([]string{"item-1"}, "Fed raises rates")
		b := SignalFingerprint([]string{"item-2"}, "Fed raises rates")
		assert.NotEqual(t, a, b)
	})

	t.Run("id separator prevents concatenation collisions", func(t *testing.T) {
		a := SignalFingerprint([]string{"ab", "c"}, "s")
		b := SignalFingerprint([]string{"a", "bc"}, "s")
		assert.NotEqual(t, a, b)
	})

	t.Run("does not mutate the caller's slice", func(t *testing.T) {
		ids := []string{"z", "a"}
		SignalFingerprint(ids, "s")
		assert.Equal(t, []string{"z", "a"}, ids)
	})
}

func TestParseSentiment(t *testing.T) {
	tests := []struct {
		input    string
		expected Sentiment
	}{
		{"bullish", SentimentBullish},
		{"Bullish", SentimentBullish},
		{" BEARISH ", SentimentBearish},
		{"neutral", SentimentNeutral},
		{"mixed", SentimentNeutral},
		{"", SentimentNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseSentiment(tt.input))
		})
	}
}
