// README: Hub routing tests.
package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"bento/internal/modules/order"
	"bento/internal/types"
)

func newTestClient(h *Hub, userID types.ID) *Client {
	return &Client{hub: h, send: make(chan []byte, 8), userID: userID}
}

func recv(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case msg := <-c.send:
		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Envelope{}
	}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("unexpected message: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishOrderStatusRoutesToParties(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	buyer := newTestClient(hub, "buyer")
	seller := newTestClient(hub, "seller")
	courier := newTestClient(hub, "courier")
	stranger := newTestClient(hub, "stranger")
	for _, c := range []*Client{buyer, seller, courier, stranger} {
		hub.register <- c
	}

	cid := types.ID("courier")
	o := &order.Order{ID: "o1", BuyerID: "buyer", SellerID: "seller", CourierID: &cid}
	e := &order.StatusEvent{
		OrderID:       "o1",
		Status:        order.StatusPreparing,
		PaymentStatus: order.PaymentPaid,
		Source:        "seller",
		CreatedAt:     time.Now(),
	}
	if err := hub.PublishOrderStatus(ctx, o, e); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for _, c := range []*Client{buyer, seller, courier} {
		env := recv(t, c)
		if env.Event != EventOrderStatusUpdate || env.OrderID != "o1" || env.Status != order.StatusPreparing {
			t.Fatalf("envelope = %+v", env)
		}
		if env.Seq == 0 {
			t.Fatal("seq must be assigned")
		}
	}
	expectNothing(t, stranger)
}

func TestNotifyNewOrderOnlyReachesListedCouriers(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	c1 := newTestClient(hub, "c1")
	c2 := newTestClient(hub, "c2")
	hub.register <- c1
	hub.register <- c2

	hub.NotifyNewOrder(&order.Order{ID: "o1", Status: order.StatusConfirmed}, []types.ID{"c1"})

	env := recv(t, c1)
	if env.Event != EventNewOrderAvailable || env.OrderID != "o1" {
		t.Fatalf("envelope = %+v", env)
	}
	expectNothing(t, c2)
}

func TestDispatchPreservesSendOrderUnderBackpressure(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	// Enough messages to overflow the hub's outbound buffer; the client
	// buffer absorbs them all so nothing is dropped.
	const n = 200
	c := &Client{hub: hub, send: make(chan []byte, n), userID: "buyer"}
	hub.register <- c

	o := &order.Order{ID: "o1", BuyerID: "buyer", SellerID: "seller"}
	for i := 0; i < n; i++ {
		_ = hub.PublishOrderStatus(ctx, o, &order.StatusEvent{
			OrderID:   "o1",
			Status:    order.StatusPreparing,
			CreatedAt: time.Now(),
		})
	}

	var last uint64
	for i := 0; i < n; i++ {
		env := recv(t, c)
		if env.Seq <= last {
			t.Fatalf("message %d out of order: seq %d after %d", i, env.Seq, last)
		}
		last = env.Seq
	}
}

func TestSeqIsMonotonic(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	c := newTestClient(hub, "buyer")
	hub.register <- c

	o := &order.Order{ID: "o1", BuyerID: "buyer", SellerID: "seller"}
	for _, st := range []order.Status{order.StatusConfirmed, order.StatusPreparing} {
		_ = hub.PublishOrderStatus(ctx, o, &order.StatusEvent{OrderID: "o1", Status: st, CreatedAt: time.Now()})
	}

	first := recv(t, c)
	second := recv(t, c)
	if second.Seq <= first.Seq {
		t.Fatalf("seq not increasing: %d then %d", first.Seq, second.Seq)
	}
}
