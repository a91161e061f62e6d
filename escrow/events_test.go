package escrow

import (
	"encoding/hex"
	"math/big"
	"testing"
)

func TestCreatedEventAttributes(t *testing.T) {
	trade := baseTrade()
	trade.Description = "steel coils"
	evt := NewCreatedEvent(trade, testBuyer, 1700000000)
	if evt.Type != EventTypeTradeCreated {
		t.Fatalf("unexpected type %q", evt.Type)
	}
	attrs := evt.Attributes
	want := map[string]string{
		"operation":   "create",
		"timestamp":   "1700000000",
		"tradeId":     hex.EncodeToString(trade.ID[:]),
		"state":       "created",
		"actor":       hex.EncodeToString(testBuyer[:]),
		"buyer":       hex.EncodeToString(testBuyer[:]),
		"seller":      hex.EncodeToString(testSeller[:]),
		"price":       "1000",
		"description": "steel coils",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Fatalf("attribute %q: expected %q, got %q", k, v, attrs[k])
		}
	}
}

func TestResolvedEventAttributes(t *testing.T) {
	trade := baseTrade()
	trade.Status = StatusCompleted
	trade.Resolution = &Resolution{SellerAmount: big.NewInt(600), Note: "split per inspection"}
	evt := NewResolvedEvent(trade, testArbitrator, 1700000000, "600", "400")
	attrs := evt.Attributes
	if attrs["sellerAmount"] != "600" || attrs["buyerRefund"] != "400" {
		t.Fatalf("unexpected split attributes: %v", attrs)
	}
	if attrs["note"] != "split per inspection" {
		t.Fatalf("expected resolution note, got %q", attrs["note"])
	}
	if attrs["state"] != "completed" {
		t.Fatalf("expected completed state, got %q", attrs["state"])
	}
}

func TestEmptyPayloadValuesDropped(t *testing.T) {
	trade := baseTrade()
	trade.Status = StatusCancelled
	evt := NewCancelledEvent(trade, testBuyer, 1700000000)
	if _, ok := evt.Attributes["reason"]; ok {
		t.Fatalf("empty reason should be omitted")
	}
	trade.CancelReason = "changed supplier"
	evt = NewCancelledEvent(trade, testBuyer, 1700000000)
	if evt.Attributes["reason"] != "changed supplier" {
		t.Fatalf("expected reason attribute")
	}
}
