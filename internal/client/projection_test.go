// README: Projection tests: event idempotence, forward-only status, and
// coordinate preservation across fetches.
package client

import (
	"testing"
	"time"

	"bento/internal/geo"
	"bento/internal/modules/order"
	"bento/internal/types"
	"bento/internal/ws"
)

func statusEvent(id types.ID, st order.Status, pay order.PaymentStatus) ws.Envelope {
	return ws.Envelope{
		Event:         ws.EventOrderStatusUpdate,
		OrderID:       id,
		Status:        st,
		PaymentStatus: pay,
		Ts:            time.Now(),
	}
}

func TestApplyEventIsIdempotent(t *testing.T) {
	p := NewProjection()
	p.put(order.Order{ID: "o1", Status: order.StatusConfirmed})

	var notified int
	p.SubscribeOrder("o1", func(order.Order) { notified++ })

	env := statusEvent("o1", order.StatusPreparing, order.PaymentPaid)
	if !p.ApplyEvent(env) {
		t.Fatal("first delivery must apply")
	}
	if p.ApplyEvent(env) {
		t.Fatal("duplicate delivery must be a no-op")
	}
	if p.ApplyEvent(env) {
		t.Fatal("triplicate delivery must be a no-op")
	}

	if notified != 1 {
		t.Fatalf("subscriber notified %d times, want 1", notified)
	}
	o, _ := p.Order("o1")
	if o.Status != order.StatusPreparing || o.PaymentStatus != order.PaymentPaid {
		t.Fatalf("order = %+v", o)
	}
}

func TestApplyEventNeverMovesBackwards(t *testing.T) {
	p := NewProjection()
	p.put(order.Order{ID: "o1", Status: order.StatusConfirmed})

	if !p.ApplyEvent(statusEvent("o1", order.StatusOutForDelivery, "")) {
		t.Fatal("forward event must apply")
	}
	// A late "preparing" arrives after "out_for_delivery".
	if p.ApplyEvent(statusEvent("o1", order.StatusPreparing, "")) {
		t.Fatal("stale event must be discarded")
	}
	o, _ := p.Order("o1")
	if o.Status != order.StatusOutForDelivery {
		t.Fatalf("status regressed to %s", o.Status)
	}
}

func TestApplyEventForUnknownOrderCreatesEntry(t *testing.T) {
	p := NewProjection()
	if !p.ApplyEvent(statusEvent("o9", order.StatusConfirmed, "")) {
		t.Fatal("event for unseen order must apply")
	}
	if _, ok := p.Order("o9"); !ok {
		t.Fatal("order entry missing")
	}
}

func TestReplaceFromFetchKeepsValidCoordinates(t *testing.T) {
	p := NewProjection()
	held := geo.Coordinate{Lng: 72.8777, Lat: 19.0760, Provenance: geo.ProvenanceGeocoded}
	p.put(order.Order{ID: "o1", Status: order.StatusConfirmed, PickupLocation: held})

	// Fetch carries an unset (0,0) coordinate; the held one must survive.
	p.ReplaceFromFetch(&order.Order{
		ID:             "o1",
		Status:         order.StatusPreparing,
		PickupLocation: geo.Coordinate{Lng: 0, Lat: 0},
	}, time.Now())

	o, _ := p.Order("o1")
	if o.PickupLocation.Lng != held.Lng || o.PickupLocation.Lat != held.Lat {
		t.Fatalf("held coordinate replaced: %+v", o.PickupLocation)
	}
	if o.PickupLocation.Provenance != geo.ProvenancePreserved {
		t.Fatalf("provenance = %s, want preserved", o.PickupLocation.Provenance)
	}
	if o.Status != order.StatusPreparing {
		t.Fatalf("status = %s, want preparing", o.Status)
	}
}

func TestReplaceFromFetchAcceptsValidIncoming(t *testing.T) {
	p := NewProjection()
	p.put(order.Order{ID: "o1", Status: order.StatusConfirmed})

	incoming := geo.Coordinate{Lng: 72.8777, Lat: 19.0760, Provenance: geo.ProvenanceOrderField}
	p.ReplaceFromFetch(&order.Order{ID: "o1", Status: order.StatusConfirmed, PickupLocation: incoming}, time.Now())

	o, _ := p.Order("o1")
	if o.PickupLocation.Lng != incoming.Lng || o.PickupLocation.Lat != incoming.Lat {
		t.Fatalf("valid incoming coordinate not accepted: %+v", o.PickupLocation)
	}
}

func TestReplaceFromFetchMostRecentWins(t *testing.T) {
	p := NewProjection()
	now := time.Now()

	p.ReplaceFromFetch(&order.Order{ID: "o1", Status: order.StatusPreparing, PickupAddress: "new"}, now)
	// An older fetch completes late; it must not overwrite the newer one.
	p.ReplaceFromFetch(&order.Order{ID: "o1", Status: order.StatusConfirmed, PickupAddress: "old"}, now.Add(-time.Minute))

	o, _ := p.Order("o1")
	if o.PickupAddress != "new" {
		t.Fatalf("older fetch overwrote newer: %+v", o)
	}
}

func TestReplaceFromFetchStatusNeverRegresses(t *testing.T) {
	p := NewProjection()
	p.put(order.Order{ID: "o1", Status: order.StatusDelivered, PaymentStatus: order.PaymentPaid})

	p.ReplaceFromFetch(&order.Order{ID: "o1", Status: order.StatusOutForDelivery}, time.Now())

	o, _ := p.Order("o1")
	if o.Status != order.StatusDelivered || o.PaymentStatus != order.PaymentPaid {
		t.Fatalf("fetch regressed status: %+v", o)
	}
}

func TestPickupCountdown(t *testing.T) {
	p := NewProjection()
	now := time.Now()
	exp := now.Add(5 * time.Minute)
	p.put(order.Order{ID: "o1", PickupCodeExpiry: &exp})

	left, ok := p.PickupCountdown("o1", now)
	if !ok || left != 5*time.Minute {
		t.Fatalf("countdown = (%v, %v)", left, ok)
	}
	if _, ok := p.PickupCountdown("o2", now); ok {
		t.Fatal("countdown for unknown order must report false")
	}
}

func TestAgentDistance(t *testing.T) {
	p := NewProjection()
	p.put(order.Order{
		ID:               "o1",
		DeliveryLocation: geo.Coordinate{Lng: 121.5654, Lat: 25.0330},
	})

	d, ok := p.AgentDistance("o1", geo.Coordinate{Lng: 121.5654, Lat: 25.0330})
	if !ok || d != 0 {
		t.Fatalf("distance = (%v, %v), want (0, true)", d, ok)
	}
	if _, ok := p.AgentDistance("o1", geo.Coordinate{}); ok {
		t.Fatal("invalid agent position must report false")
	}
}
