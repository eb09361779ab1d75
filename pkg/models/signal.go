package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Sentiment classifies the market direction of a signal.
type Sentiment string

// Sentiment values.
const (
	SentimentBullish Sentiment = "bullish"
	SentimentBearish Sentiment = "bearish"
	SentimentNeutral Sentiment = "neutral"
)

// ParseSentiment normalizes a free-form sentiment string from the LLM.
// Unknown values map to neutral.
func ParseSentiment(s string) Sentiment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bullish":
		return SentimentBullish
	case "bearish":
		return SentimentBearish
	default:
		return SentimentNeutral
	}
}

// Signal is a synthesized, high-relevance artifact derived from one or more
// content items. Signals are created by the analyzer and never mutated.
type Signal struct {
	ID             string    `json:"id"`
	SourceItemIDs  []string  `json:"source_item_ids"`
	SourceName     string    `json:"source_name,omitempty"`
	Summary        string    `json:"summary"`
	Analysis       string    `json:"analysis,omitempty"`
	FactCheck      string    `json:"fact_check,omitempty"`
	Sentiment      Sentiment `json:"sentiment"`
	RelevanceScore int       `json:"relevance_score"`
	Urgent         bool      `json:"urgent"`
	Tickers        []string  `json:"tickers,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	Fingerprint    string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// SignalFingerprint derives the duplicate-suppression key for a signal:
// SHA-256 over the sorted source item ids and the summary. Two signals with
// the same fingerprint inside the suppression window are treated as one.
func SignalFingerprint(sourceItemIDs []string, summary string) string {
	ids := make([]string, len(sourceItemIDs))
	copy(ids, sourceItemIDs)
	sort.Strings(ids)
	h := sha256.New()
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	h.Write([]byte(strings.TrimSpace(strings.ToLower(summary))))
	return hex.EncodeToString(h.Sum(nil))
}

// SignalFilters contains filtering options for listing signals.
type SignalFilters struct {
	Source    string     `json:"source,omitempty"`
	Sentiment string     `json:"sentiment,omitempty"`
	Urgent    *bool      `json:"urgent,omitempty"`
	From      *time.Time `json:"from,omitempty"`
	To        *time.Time `json:"to,omitempty"`
	Query     string     `json:"q,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	Offset    int        `json:"offset,omitempty"`
}

// AnalysisEntry is one element of the JSON array the LLM returns for a batch.
// Optional fields tolerate the model omitting them.
type AnalysisEntry struct {
	Summary        string   `json:"summary"`
	Analysis       string   `json:"analysis"`
	FactCheck      string   `json:"fact_check,omitempty"`
	RelevanceScore int      `json:"relevance_score"`
	Sentiment      string   `json:"sentiment,omitempty"`
	Tickers        []string `json:"tickers,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	SourceIDs      []string `json:"source_ids,omitempty"`
	IsUrgent       bool     `json:"is_urgent,omitempty"`
	Triples        []Triple `json:"triples,omitempty"`
}

// Triple is a (subject, predicate, object) relationship the LLM may attach
// to an analysis entry. Consumed by the knowledge-graph side-output only.
type Triple struct {
	Subject     string `json:"subject"`
	Predicate   string `json:"predicate"`
	Object      string `json:"object"`
	Description string `json:"description,omitempty"`
}
