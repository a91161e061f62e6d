package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"tradescrow/observability"
)

type escrowCreateParams struct {
	Buyer       string `json:"buyer"`
	Seller      string `json:"seller"`
	Verifier    string `json:"verifier"`
	Arbitrator  string `json:"arbitrator"`
	Price       string `json:"price"`
	Description string `json:"description,omitempty"`
	Nonce       string `json:"nonce,omitempty"`
}

type escrowFundParams struct {
	ID     string `json:"id"`
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type escrowHashParams struct {
	ID     string `json:"id"`
	Caller string `json:"caller"`
	Hash   string `json:"hash"`
}

type escrowActorParams struct {
	ID     string `json:"id"`
	Caller string `json:"caller"`
}

type escrowReasonParams struct {
	ID     string `json:"id"`
	Caller string `json:"caller"`
	Reason string `json:"reason,omitempty"`
}

type escrowResolveParams struct {
	ID           string `json:"id"`
	Caller       string `json:"caller"`
	SellerAmount string `json:"sellerAmount"`
	Note         string `json:"note,omitempty"`
}

type escrowIDParams struct {
	ID string `json:"id"`
}

type ledgerMintParams struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type ledgerAccountParams struct {
	Account string `json:"account"`
}

type tradeJSON struct {
	ID            string `json:"id"`
	Buyer         string `json:"buyer"`
	Seller        string `json:"seller"`
	Verifier      string `json:"verifier"`
	Arbitrator    string `json:"arbitrator"`
	Price         string `json:"price"`
	Description   string `json:"description,omitempty"`
	DocumentHash  string `json:"documentHash,omitempty"`
	HeldBalance   string `json:"heldBalance"`
	CreatedAt     int64  `json:"createdAt"`
	FundedAt      int64  `json:"fundedAt,omitempty"`
	ShippedAt     int64  `json:"shippedAt,omitempty"`
	DisputeReason string `json:"disputeReason,omitempty"`
	CancelReason  string `json:"cancelReason,omitempty"`
	State         string `json:"state"`
	StateLabel    string `json:"stateLabel"`
}

func decodeParams(req *RPCRequest, out any) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAddress(v string) ([20]byte, error) {
	var addr [20]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(v), "0x"))
	if err != nil {
		return addr, fmt.Errorf("malformed address %q", v)
	}
	if len(raw) != 20 {
		return addr, fmt.Errorf("address must be 20 bytes, got %d", len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}

func parseHash(v string) ([32]byte, error) {
	var hash [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(v), "0x"))
	if err != nil {
		return hash, fmt.Errorf("malformed hash %q", v)
	}
	if len(raw) != 32 {
		return hash, fmt.Errorf("hash must be 32 bytes, got %d", len(raw))
	}
	copy(hash[:], raw)
	return hash, nil
}

func parseAmount(v string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(v), 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", v)
	}
	return amount, nil
}

// parseNonce accepts an optional hex nonce, padding short values. An empty
// nonce is valid and yields the zero nonce.
func parseNonce(v string) ([32]byte, error) {
	var nonce [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(v), "0x")
	if trimmed == "" {
		return nonce, nil
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return nonce, fmt.Errorf("malformed nonce %q", v)
	}
	if len(raw) > 32 {
		return nonce, fmt.Errorf("nonce must be at most 32 bytes, got %d", len(raw))
	}
	copy(nonce[32-len(raw):], raw)
	return nonce, nil
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "error"
	}
	var params escrowCreateParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	seller, err := parseAddress(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	verifier, err := parseAddress(params.Verifier)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	arbitrator, err := parseAddress(params.Arbitrator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	price, err := parseAmount(params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	nonce, err := parseNonce(params.Nonce)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	trade, err := s.engine.CreateTrade(buyer, seller, verifier, arbitrator, price, params.Description, nonce)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return "error"
	}
	writeResult(w, req.ID, map[string]string{"id": hex.EncodeToString(trade.ID[:])})
	return "ok"
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "error"
	}
	var params escrowFundParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	id, caller, err := parseActor(params.ID, params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	if err := s.engine.Fund(id, caller, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return "error"
	}
	writeResult(w, req.ID, map[string]bool{"funded": true})
	return "ok"
}

func (s *Server) handleSetDocumentHash(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "error"
	}
	var params escrowHashParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	id, caller, err := parseActor(params.ID, params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	hash, err := parseHash(params.Hash)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	if err := s.engine.SetDocumentHash(id, caller, hash); err != nil {
		writeEngineError(w, req.ID, err)
		return "error"
	}
	writeResult(w, req.ID, map[string]bool{"verified": true})
	return "ok"
}

func (s *Server) handleMarkShipped(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	return s.handleSimpleTransition(w, r, req, "shipped", s.engine.MarkShipped)
}

func (s *Server) handleConfirmDelivery(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	return s.handleSimpleTransition(w, r, req, "delivered", s.engine.ConfirmDelivery)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	return s.handleSimpleTransition(w, r, req, "released", func(id [32]byte, caller [20]byte) error {
		if err := s.engine.ReleasePayment(id, caller); err != nil {
			return err
		}
		observability.Escrow().PayoutIssued()
		return nil
	})
}

func (s *Server) handleSimpleTransition(w http.ResponseWriter, r *http.Request, req *RPCRequest, resultKey string, op func([32]byte, [20]byte) error) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "error"
	}
	var params escrowActorParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	id, caller, err := parseActor(params.ID, params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	if err := op(id, caller); err != nil {
		writeEngineError(w, req.ID, err)
		return "error"
	}
	writeResult(w, req.ID, map[string]bool{resultKey: true})
	return "ok"
}

func (s *Server) handleDispute(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "error"
	}
	var params escrowReasonParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	id, caller, err := parseActor(params.ID, params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	if err := s.engine.RaiseDispute(id, caller, params.Reason); err != nil {
		writeEngineError(w, req.ID, err)
		return "error"
	}
	writeResult(w, req.ID, map[string]bool{"disputed": true})
	return "ok"
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "error"
	}
	var params escrowResolveParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	id, caller, err := parseActor(params.ID, params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	sellerAmount, err := parseAmount(params.SellerAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	if err := s.engine.ResolveDispute(id, caller, sellerAmount, params.Note); err != nil {
		writeEngineError(w, req.ID, err)
		return "error"
	}
	observability.Escrow().PayoutIssued()
	writeResult(w, req.ID, map[string]bool{"resolved": true})
	return "ok"
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "error"
	}
	var params escrowReasonParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	id, caller, err := parseActor(params.ID, params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	if err := s.engine.CancelBeforeFunding(id, caller, params.Reason); err != nil {
		writeEngineError(w, req.ID, err)
		return "error"
	}
	writeResult(w, req.ID, map[string]bool{"cancelled": true})
	return "ok"
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	var params escrowIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	id, err := parseHash(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	trade, err := s.engine.GetTrade(id)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return "error"
	}
	out := tradeJSON{
		ID:            hex.EncodeToString(trade.ID[:]),
		Buyer:         hex.EncodeToString(trade.Buyer[:]),
		Seller:        hex.EncodeToString(trade.Seller[:]),
		Verifier:      hex.EncodeToString(trade.Verifier[:]),
		Arbitrator:    hex.EncodeToString(trade.Arbitrator[:]),
		Price:         trade.Price.String(),
		Description:   trade.Description,
		HeldBalance:   trade.HeldBalance.String(),
		CreatedAt:     trade.CreatedAt,
		FundedAt:      trade.FundedAt,
		ShippedAt:     trade.ShippedAt,
		DisputeReason: trade.DisputeReason,
		CancelReason:  trade.CancelReason,
		State:         trade.Status.String(),
		StateLabel:    trade.Status.Label(),
	}
	if trade.DocumentsSet() {
		out.DocumentHash = hex.EncodeToString(trade.DocumentHash[:])
	}
	writeResult(w, req.ID, out)
	return "ok"
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	var params escrowIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	if s.audit == nil {
		writeError(w, http.StatusNotFound, req.ID, codeEscrowNotFound, "not_found", "audit log not configured")
		return "error"
	}
	tradeID := strings.TrimPrefix(strings.TrimSpace(params.ID), "0x")
	writeResult(w, req.ID, s.audit.ForTrade(tradeID))
	return "ok"
}

func (s *Server) handleLedgerMint(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "error"
	}
	var params ledgerMintParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	account, err := parseAddress(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	if s.ledger == nil {
		writeError(w, http.StatusNotFound, req.ID, codeEscrowNotFound, "not_found", "ledger not configured")
		return "error"
	}
	if err := s.ledger.Mint(account, amount); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	writeResult(w, req.ID, map[string]bool{"minted": true})
	return "ok"
}

func (s *Server) handleLedgerBalance(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	var params ledgerAccountParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	account, err := parseAddress(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return "error"
	}
	if s.ledger == nil {
		writeError(w, http.StatusNotFound, req.ID, codeEscrowNotFound, "not_found", "ledger not configured")
		return "error"
	}
	writeResult(w, req.ID, map[string]string{"balance": s.ledger.Balance(account).String()})
	return "ok"
}

func parseActor(id, caller string) ([32]byte, [20]byte, error) {
	tradeID, err := parseHash(id)
	if err != nil {
		return [32]byte{}, [20]byte{}, err
	}
	actor, err := parseAddress(caller)
	if err != nil {
		return [32]byte{}, [20]byte{}, err
	}
	return tradeID, actor, nil
}
