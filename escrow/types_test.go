package escrow

import (
	"errors"
	"math/big"
	"testing"
)

func baseTrade() *Trade {
	return &Trade{
		ID:          [32]byte{0x01},
		Buyer:       testBuyer,
		Seller:      testSeller,
		Verifier:    testVerifier,
		Arbitrator:  testArbitrator,
		Price:       big.NewInt(1000),
		HeldBalance: big.NewInt(0),
		Status:      StatusCreated,
	}
}

func TestStatusTags(t *testing.T) {
	cases := []struct {
		status   Status
		tag      string
		label    string
		terminal bool
	}{
		{StatusCreated, "created", "Created", false},
		{StatusFunded, "funded", "Funded", false},
		{StatusDocumentsVerified, "documents_verified", "Documents Verified", false},
		{StatusShipped, "shipped", "Shipped", false},
		{StatusDelivered, "delivered", "Delivered", false},
		{StatusCompleted, "completed", "Completed", true},
		{StatusDisputed, "disputed", "Disputed", false},
		{StatusCancelled, "cancelled", "Cancelled", true},
	}
	for _, tc := range cases {
		if !tc.status.Valid() {
			t.Fatalf("%s should be valid", tc.tag)
		}
		if got := tc.status.String(); got != tc.tag {
			t.Fatalf("expected tag %q, got %q", tc.tag, got)
		}
		if got := tc.status.Label(); got != tc.label {
			t.Fatalf("expected label %q, got %q", tc.label, got)
		}
		if tc.status.Terminal() != tc.terminal {
			t.Fatalf("%s terminal mismatch", tc.tag)
		}
	}
	if Status(200).Valid() {
		t.Fatalf("out-of-range status should be invalid")
	}
}

func TestTradeCloneIsDeep(t *testing.T) {
	trade := baseTrade()
	trade.HeldBalance = big.NewInt(500)
	trade.Resolution = &Resolution{SellerAmount: big.NewInt(300), Note: "split"}

	clone := trade.Clone()
	clone.HeldBalance.SetInt64(1)
	clone.Price.SetInt64(1)
	clone.Resolution.SellerAmount.SetInt64(1)
	clone.Resolution.Note = "changed"

	if trade.HeldBalance.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("clone shares held balance")
	}
	if trade.Price.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("clone shares price")
	}
	if trade.Resolution.SellerAmount.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("clone shares resolution amount")
	}
	if trade.Resolution.Note != "split" {
		t.Fatalf("clone shares resolution note")
	}
}

func TestSanitizeTrade(t *testing.T) {
	if _, err := SanitizeTrade(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for nil trade, got %v", err)
	}

	t.Run("valid", func(t *testing.T) {
		sanitized, err := SanitizeTrade(baseTrade())
		if err != nil {
			t.Fatalf("SanitizeTrade error: %v", err)
		}
		if sanitized.HeldBalance == nil || sanitized.Price == nil {
			t.Fatalf("sanitized amounts must be non-nil")
		}
	})

	t.Run("nil held balance normalised", func(t *testing.T) {
		trade := baseTrade()
		trade.HeldBalance = nil
		sanitized, err := SanitizeTrade(trade)
		if err != nil {
			t.Fatalf("SanitizeTrade error: %v", err)
		}
		if sanitized.HeldBalance.Sign() != 0 {
			t.Fatalf("expected zero held balance, got %s", sanitized.HeldBalance)
		}
	})

	bad := []struct {
		name   string
		mutate func(*Trade)
	}{
		{"zero price", func(tr *Trade) { tr.Price = big.NewInt(0) }},
		{"negative held balance", func(tr *Trade) { tr.HeldBalance = big.NewInt(-1) }},
		{"invalid status", func(tr *Trade) { tr.Status = Status(99) }},
		{"zero buyer", func(tr *Trade) { tr.Buyer = [20]byte{} }},
		{"buyer equals seller", func(tr *Trade) { tr.Seller = tr.Buyer }},
	}
	for _, tc := range bad {
		t.Run(tc.name, func(t *testing.T) {
			trade := baseTrade()
			tc.mutate(trade)
			if _, err := SanitizeTrade(trade); !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func TestShipmentAndDocumentFlags(t *testing.T) {
	trade := baseTrade()
	if trade.Shipped() || trade.DocumentsSet() {
		t.Fatalf("fresh trade should have no shipment or documents")
	}
	trade.ShippedAt = 1234
	trade.DocumentHash = [32]byte{0x01}
	if !trade.Shipped() || !trade.DocumentsSet() {
		t.Fatalf("expected flags set")
	}
}
