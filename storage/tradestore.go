package storage

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"tradescrow/escrow"
)

const tradeKeyPrefix = "trade/"

// TradeStore persists trades as JSON documents in a Database. It implements
// escrow.EngineState; every Get decodes a fresh copy so the engine never
// shares mutable state with the store.
type TradeStore struct {
	db Database
}

// NewTradeStore wraps the given database.
func NewTradeStore(db Database) *TradeStore {
	return &TradeStore{db: db}
}

type storedResolution struct {
	SellerAmount string `json:"sellerAmount"`
	Note         string `json:"note,omitempty"`
	SellerPaid   bool   `json:"sellerPaid"`
}

type storedTrade struct {
	ID            string            `json:"id"`
	Buyer         string            `json:"buyer"`
	Seller        string            `json:"seller"`
	Verifier      string            `json:"verifier"`
	Arbitrator    string            `json:"arbitrator"`
	Price         string            `json:"price"`
	Description   string            `json:"description,omitempty"`
	DocumentHash  string            `json:"documentHash,omitempty"`
	HeldBalance   string            `json:"heldBalance"`
	CreatedAt     int64             `json:"createdAt"`
	FundedAt      int64             `json:"fundedAt,omitempty"`
	ShippedAt     int64             `json:"shippedAt,omitempty"`
	DisputeReason string            `json:"disputeReason,omitempty"`
	CancelReason  string            `json:"cancelReason,omitempty"`
	Resolution    *storedResolution `json:"resolution,omitempty"`
	Status        uint8             `json:"status"`
}

func tradeKey(id [32]byte) []byte {
	return []byte(tradeKeyPrefix + hex.EncodeToString(id[:]))
}

// TradePut encodes and stores the trade.
func (s *TradeStore) TradePut(t *escrow.Trade) error {
	sanitized, err := escrow.SanitizeTrade(t)
	if err != nil {
		return err
	}
	doc := storedTrade{
		ID:            hex.EncodeToString(sanitized.ID[:]),
		Buyer:         hex.EncodeToString(sanitized.Buyer[:]),
		Seller:        hex.EncodeToString(sanitized.Seller[:]),
		Verifier:      hex.EncodeToString(sanitized.Verifier[:]),
		Arbitrator:    hex.EncodeToString(sanitized.Arbitrator[:]),
		Price:         sanitized.Price.String(),
		Description:   sanitized.Description,
		HeldBalance:   sanitized.HeldBalance.String(),
		CreatedAt:     sanitized.CreatedAt,
		FundedAt:      sanitized.FundedAt,
		ShippedAt:     sanitized.ShippedAt,
		DisputeReason: sanitized.DisputeReason,
		CancelReason:  sanitized.CancelReason,
		Status:        uint8(sanitized.Status),
	}
	if sanitized.DocumentHash != ([32]byte{}) {
		doc.DocumentHash = hex.EncodeToString(sanitized.DocumentHash[:])
	}
	if sanitized.Resolution != nil {
		doc.Resolution = &storedResolution{
			SellerAmount: sanitized.Resolution.SellerAmount.String(),
			Note:         sanitized.Resolution.Note,
			SellerPaid:   sanitized.Resolution.SellerPaid,
		}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return s.db.Put(tradeKey(sanitized.ID), raw)
}

// TradeGet decodes the stored trade, reporting false when absent.
func (s *TradeStore) TradeGet(id [32]byte) (*escrow.Trade, bool) {
	raw, err := s.db.Get(tradeKey(id))
	if err != nil {
		return nil, false
	}
	trade, err := decodeTrade(raw)
	if err != nil {
		return nil, false
	}
	return trade, true
}

func decodeTrade(raw []byte) (*escrow.Trade, error) {
	var doc storedTrade
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	trade := &escrow.Trade{
		Description:   doc.Description,
		CreatedAt:     doc.CreatedAt,
		FundedAt:      doc.FundedAt,
		ShippedAt:     doc.ShippedAt,
		DisputeReason: doc.DisputeReason,
		CancelReason:  doc.CancelReason,
		Status:        escrow.Status(doc.Status),
	}
	if err := decodeHash(doc.ID, &trade.ID); err != nil {
		return nil, fmt.Errorf("storage: trade id: %w", err)
	}
	if err := decodeAddr(doc.Buyer, &trade.Buyer); err != nil {
		return nil, fmt.Errorf("storage: buyer: %w", err)
	}
	if err := decodeAddr(doc.Seller, &trade.Seller); err != nil {
		return nil, fmt.Errorf("storage: seller: %w", err)
	}
	if err := decodeAddr(doc.Verifier, &trade.Verifier); err != nil {
		return nil, fmt.Errorf("storage: verifier: %w", err)
	}
	if err := decodeAddr(doc.Arbitrator, &trade.Arbitrator); err != nil {
		return nil, fmt.Errorf("storage: arbitrator: %w", err)
	}
	if doc.DocumentHash != "" {
		if err := decodeHash(doc.DocumentHash, &trade.DocumentHash); err != nil {
			return nil, fmt.Errorf("storage: document hash: %w", err)
		}
	}
	var err error
	if trade.Price, err = decodeAmount(doc.Price); err != nil {
		return nil, fmt.Errorf("storage: price: %w", err)
	}
	if trade.HeldBalance, err = decodeAmount(doc.HeldBalance); err != nil {
		return nil, fmt.Errorf("storage: held balance: %w", err)
	}
	if doc.Resolution != nil {
		res := &escrow.Resolution{Note: doc.Resolution.Note, SellerPaid: doc.Resolution.SellerPaid}
		if res.SellerAmount, err = decodeAmount(doc.Resolution.SellerAmount); err != nil {
			return nil, fmt.Errorf("storage: resolution amount: %w", err)
		}
		trade.Resolution = res
	}
	return trade, nil
}

func decodeAddr(v string, out *[20]byte) error {
	raw, err := hex.DecodeString(v)
	if err != nil {
		return err
	}
	if len(raw) != 20 {
		return errors.New("unexpected address length")
	}
	copy(out[:], raw)
	return nil
}

func decodeHash(v string, out *[32]byte) error {
	raw, err := hex.DecodeString(v)
	if err != nil {
		return err
	}
	if len(raw) != 32 {
		return errors.New("unexpected hash length")
	}
	copy(out[:], raw)
	return nil
}

func decodeAmount(v string) (*big.Int, error) {
	if v == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(v, 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", v)
	}
	return amount, nil
}
