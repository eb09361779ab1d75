// Package models defines the domain types shared across the refinery:
// content items, signals, channels, ingest records, and LLM analysis entries.
package models

import "time"

// SignalState is the tri-valued promotion state of a ContentItem.
type SignalState int

// Signal state constants.
const (
	// SignalStatePending means the item has not been promoted yet.
	SignalStatePending SignalState = 0
	// SignalStatePromoted means at least one Signal was derived from the item.
	SignalStatePromoted SignalState = 1
	// SignalStateFailed means analysis failed permanently (retry cap reached).
	SignalStateFailed SignalState = -1
)

// ContentItem is one ingested unit of raw text. Items are created by the
// ingest pipeline, mutated only by the analyzer (processed_json, retry_count,
// is_signal) and pruned by retention policy.
type ContentItem struct {
	ID              string      `json:"id"`
	SourceID        string      `json:"source_id"`
	SourceName      string      `json:"source_name"`
	RawText         string      `json:"raw_text"`
	ContentHash     string      `json:"content_hash"`
	CreatedAt       time.Time   `json:"created_at"`
	ProcessedJSON   []byte      `json:"processed_json,omitempty"`
	IsSignal        SignalState `json:"is_signal"`
	LastAnalyzedAt  *time.Time  `json:"last_analyzed_at,omitempty"`
	RetryCount      int         `json:"retry_count"`
	LastError       string      `json:"last_error,omitempty"`
	KnowledgeSynced bool        `json:"knowledge_synced"`
}

// Analyzed reports whether the item has an attached LLM result.
func (c *ContentItem) Analyzed() bool {
	return len(c.ProcessedJSON) > 0
}

// IngestRecord is the normalized input to the ingest pipeline. Collectors
// (webhook normalizers, the feed poller) produce these.
type IngestRecord struct {
	ChatID    string     `json:"chat_id"`
	MessageID string     `json:"message_id,omitempty"`
	Title     string     `json:"title"`
	Text      string     `json:"text"`
	Media     *MediaRef  `json:"media,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// MediaRef points at an attachment referenced by an ingest record.
type MediaRef struct {
	FileID   string `json:"file_id"`
	MimeType string `json:"mime_type,omitempty"`
	FileName string `json:"file_name,omitempty"`
}

// IsPDF reports whether the media reference looks like a PDF document.
func (m *MediaRef) IsPDF() bool {
	if m == nil {
		return false
	}
	if m.MimeType == "application/pdf" {
		return true
	}
	n := len(m.FileName)
	return n > 4 && m.FileName[n-4:] == ".pdf"
}
