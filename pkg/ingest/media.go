package ingest

import (
	"context"

	"github.com/moecapital/refinery/pkg/models"
)

// PDFSentinel marks text that references a PDF attachment pending a forced
// multimodal re-analysis.
const PDFSentinel = "[PDF DOCUMENT]"

// MediaEnricher converts a media reference into text appended to the record:
// OCR for images, transcription for audio, the PDF sentinel for documents.
type MediaEnricher interface {
	Enrich(ctx context.Context, media *models.MediaRef) (string, error)
}

// NoopEnricher is the default enricher: it tags PDFs with the sentinel and
// ignores everything else. Deployments with OCR or transcription backends
// substitute their own implementation.
type NoopEnricher struct{}

// Enrich implements MediaEnricher.
func (NoopEnricher) Enrich(_ context.Context, media *models.MediaRef) (string, error) {
	if media.IsPDF() {
		return PDFSentinel, nil
	}
	return "", nil
}
