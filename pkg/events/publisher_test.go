package events_test

import (
	"context"
	"testing"

	"github.com/moecapital/refinery/pkg/events"
	"github.com/moecapital/refinery/test/util"
)

func TestNilPublisherIsSafe(t *testing.T) {
	var p *events.Publisher
	ctx := context.Background()
	p.SignalCreated(ctx, events.SignalCreatedPayload{SignalID: "s1"})
	p.ItemIngested(ctx, events.ItemIngestedPayload{ItemID: "i1"})

	empty := events.NewPublisher(nil)
	empty.SignalCreated(ctx, events.SignalCreatedPayload{SignalID: "s1"})
}

func TestPublisherNotifies(t *testing.T) {
	db := util.SetupTestDatabase(t)
	p := events.NewPublisher(db)
	ctx := context.Background()

	// NOTIFY has no durable trace; this verifies the statements execute
	// cleanly against a real database.
	p.SignalCreated(ctx, events.SignalCreatedPayload{
		SignalID: "sig-1", Summary: "test", RelevanceScore: 80, Urgent: true,
	})
	p.ItemIngested(ctx, events.ItemIngestedPayload{ItemID: "item-1", SourceID: "src"})
}
