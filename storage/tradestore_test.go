package storage

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"tradescrow/escrow"
)

func sampleTrade() *escrow.Trade {
	return &escrow.Trade{
		ID:            [32]byte{0x01, 0x02},
		Buyer:         [20]byte{0x0A},
		Seller:        [20]byte{0x0B},
		Verifier:      [20]byte{0x0C},
		Arbitrator:    [20]byte{0x0D},
		Price:         big.NewInt(1000),
		Description:   "steel coils",
		DocumentHash:  [32]byte{0xEE},
		HeldBalance:   big.NewInt(400),
		CreatedAt:     1700000000,
		FundedAt:      1700000100,
		ShippedAt:     1700000200,
		DisputeReason: "damaged goods",
		Resolution:    &escrow.Resolution{SellerAmount: big.NewInt(600), Note: "split", SellerPaid: true},
		Status:        escrow.StatusDisputed,
	}
}

func TestTradeStoreRoundTrip(t *testing.T) {
	store := NewTradeStore(NewMemDB())
	trade := sampleTrade()
	require.NoError(t, store.TradePut(trade))

	got, ok := store.TradeGet(trade.ID)
	require.True(t, ok)
	require.Equal(t, trade.ID, got.ID)
	require.Equal(t, trade.Buyer, got.Buyer)
	require.Equal(t, trade.Seller, got.Seller)
	require.Equal(t, trade.Verifier, got.Verifier)
	require.Equal(t, trade.Arbitrator, got.Arbitrator)
	require.Zero(t, trade.Price.Cmp(got.Price))
	require.Equal(t, trade.Description, got.Description)
	require.Equal(t, trade.DocumentHash, got.DocumentHash)
	require.Zero(t, trade.HeldBalance.Cmp(got.HeldBalance))
	require.Equal(t, trade.CreatedAt, got.CreatedAt)
	require.Equal(t, trade.FundedAt, got.FundedAt)
	require.Equal(t, trade.ShippedAt, got.ShippedAt)
	require.Equal(t, trade.DisputeReason, got.DisputeReason)
	require.Equal(t, trade.Status, got.Status)
	require.NotNil(t, got.Resolution)
	require.Zero(t, trade.Resolution.SellerAmount.Cmp(got.Resolution.SellerAmount))
	require.Equal(t, "split", got.Resolution.Note)
	require.True(t, got.Resolution.SellerPaid)
}

func TestTradeStoreMinimalTrade(t *testing.T) {
	store := NewTradeStore(NewMemDB())
	trade := sampleTrade()
	trade.DocumentHash = [32]byte{}
	trade.Resolution = nil
	trade.HeldBalance = big.NewInt(0)
	trade.Status = escrow.StatusCreated
	require.NoError(t, store.TradePut(trade))

	got, ok := store.TradeGet(trade.ID)
	require.True(t, ok)
	require.Equal(t, [32]byte{}, got.DocumentHash)
	require.Nil(t, got.Resolution)
	require.Zero(t, got.HeldBalance.Sign())
}

func TestTradeStoreRejectsInvalid(t *testing.T) {
	store := NewTradeStore(NewMemDB())
	trade := sampleTrade()
	trade.Price = big.NewInt(0)
	require.Error(t, store.TradePut(trade))
}

func TestTradeStoreMissing(t *testing.T) {
	store := NewTradeStore(NewMemDB())
	_, ok := store.TradeGet([32]byte{0xFF})
	require.False(t, ok)
}

func TestTradeStoreReturnsIndependentCopies(t *testing.T) {
	store := NewTradeStore(NewMemDB())
	trade := sampleTrade()
	require.NoError(t, store.TradePut(trade))

	first, ok := store.TradeGet(trade.ID)
	require.True(t, ok)
	first.HeldBalance.SetInt64(1)
	first.Status = escrow.StatusCompleted

	second, ok := store.TradeGet(trade.ID)
	require.True(t, ok)
	require.Zero(t, second.HeldBalance.Cmp(big.NewInt(400)))
	require.Equal(t, escrow.StatusDisputed, second.Status)
}

func TestMemDBSemantics(t *testing.T) {
	db := NewMemDB()
	require.NoError(t, db.Put([]byte("k"), []byte("v")))

	ok, err := db.Has([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)

	value, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), value)

	value[0] = 'x'
	fresh, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), fresh)

	_, err = db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrKeyNotFound)
}
