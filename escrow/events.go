package escrow

import (
	"encoding/hex"
	"strconv"
	"strings"

	"tradescrow/core/types"
)

const (
	EventTypeTradeCreated           = "escrow.trade.created"
	EventTypeTradeFunded            = "escrow.trade.funded"
	EventTypeTradeDocumentsVerified = "escrow.trade.documents_verified"
	EventTypeTradeShipped           = "escrow.trade.shipped"
	EventTypeTradeDelivered         = "escrow.trade.delivered"
	EventTypeTradeReleased          = "escrow.trade.released"
	EventTypeTradeDisputed          = "escrow.trade.disputed"
	EventTypeTradeResolved          = "escrow.trade.resolved"
	EventTypeTradeCancelled         = "escrow.trade.cancelled"
)

type tradeEvent struct {
	evt *types.Event
}

func (e tradeEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e tradeEvent) Event() *types.Event { return e.evt }

// newTradeEvent builds the canonical payload for a successful operation. The
// attributes carry everything the audit trail needs to reconstruct the
// transition sequence: trade ID, operation, actor, timestamp, resulting state
// and the operation-specific payload.
func newTradeEvent(eventType, operation string, t *Trade, actor [20]byte, ts int64, payload map[string]string) *types.Event {
	attrs := map[string]string{
		"operation": operation,
		"timestamp": strconv.FormatInt(ts, 10),
	}
	if t != nil {
		attrs["tradeId"] = hex.EncodeToString(t.ID[:])
		attrs["state"] = t.Status.String()
	}
	if actor != ([20]byte{}) {
		attrs["actor"] = hex.EncodeToString(actor[:])
	}
	for k, v := range payload {
		if strings.TrimSpace(v) == "" {
			continue
		}
		attrs[k] = v
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

// NewCreatedEvent returns the canonical event payload for a newly created
// trade, including the full party bindings and the agreed price.
func NewCreatedEvent(t *Trade, actor [20]byte, ts int64) *types.Event {
	payload := map[string]string{}
	if t != nil {
		payload["buyer"] = hex.EncodeToString(t.Buyer[:])
		payload["seller"] = hex.EncodeToString(t.Seller[:])
		payload["verifier"] = hex.EncodeToString(t.Verifier[:])
		payload["arbitrator"] = hex.EncodeToString(t.Arbitrator[:])
		if t.Price != nil {
			payload["price"] = t.Price.String()
		}
		payload["description"] = t.Description
	}
	return newTradeEvent(EventTypeTradeCreated, "create", t, actor, ts, payload)
}

// NewFundedEvent returns the payload emitted when the buyer funds the trade.
func NewFundedEvent(t *Trade, actor [20]byte, ts int64) *types.Event {
	payload := map[string]string{}
	if t != nil && t.HeldBalance != nil {
		payload["amount"] = t.HeldBalance.String()
	}
	return newTradeEvent(EventTypeTradeFunded, "fund", t, actor, ts, payload)
}

// NewDocumentsVerifiedEvent returns the payload emitted when the verifier
// records the document fingerprint.
func NewDocumentsVerifiedEvent(t *Trade, actor [20]byte, ts int64) *types.Event {
	payload := map[string]string{}
	if t != nil {
		payload["documentHash"] = hex.EncodeToString(t.DocumentHash[:])
	}
	return newTradeEvent(EventTypeTradeDocumentsVerified, "set_document_hash", t, actor, ts, payload)
}

// NewShippedEvent returns the payload emitted when the seller marks shipment.
func NewShippedEvent(t *Trade, actor [20]byte, ts int64) *types.Event {
	return newTradeEvent(EventTypeTradeShipped, "mark_shipped", t, actor, ts, nil)
}

// NewDeliveredEvent returns the payload emitted when the buyer confirms
// delivery.
func NewDeliveredEvent(t *Trade, actor [20]byte, ts int64) *types.Event {
	return newTradeEvent(EventTypeTradeDelivered, "confirm_delivery", t, actor, ts, nil)
}

// NewReleasedEvent returns the payload emitted when escrowed funds are paid
// out to the seller.
func NewReleasedEvent(t *Trade, actor [20]byte, ts int64, amount string) *types.Event {
	return newTradeEvent(EventTypeTradeReleased, "release_payment", t, actor, ts, map[string]string{
		"sellerAmount": amount,
	})
}

// NewDisputedEvent returns the payload emitted when a party raises a dispute.
func NewDisputedEvent(t *Trade, actor [20]byte, ts int64) *types.Event {
	payload := map[string]string{}
	if t != nil {
		payload["reason"] = t.DisputeReason
	}
	return newTradeEvent(EventTypeTradeDisputed, "raise_dispute", t, actor, ts, payload)
}

// NewResolvedEvent returns the payload emitted when the arbitrator's split
// completes, covering both the seller payout and the buyer refund.
func NewResolvedEvent(t *Trade, actor [20]byte, ts int64, sellerAmount, buyerRefund string) *types.Event {
	payload := map[string]string{
		"sellerAmount": sellerAmount,
		"buyerRefund":  buyerRefund,
	}
	if t != nil && t.Resolution != nil {
		payload["note"] = t.Resolution.Note
	}
	return newTradeEvent(EventTypeTradeResolved, "resolve_dispute", t, actor, ts, payload)
}

// NewCancelledEvent returns the payload emitted when the buyer cancels an
// unfunded trade.
func NewCancelledEvent(t *Trade, actor [20]byte, ts int64) *types.Event {
	payload := map[string]string{}
	if t != nil {
		payload["reason"] = t.CancelReason
	}
	return newTradeEvent(EventTypeTradeCancelled, "cancel", t, actor, ts, payload)
}
