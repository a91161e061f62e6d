package rpc

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradescrow/audit"
	"tradescrow/escrow"
	"tradescrow/observability"
	"tradescrow/settlement"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000

	codeEscrowInvalidParams = -32021
	codeEscrowNotFound      = -32022
	codeEscrowForbidden     = -32023
	codeEscrowConflict      = -32024
	codeEscrowInternal      = -32025
	codeEscrowPayment       = -32026
	codeEscrowPartialPayout = -32027
)

// RPCRequest is a JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// RPCResponse is a JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Server exposes the escrow engine, settlement ledger and audit trail over
// JSON-RPC. Mutating methods require the bearer token configured through
// ESCROWD_RPC_TOKEN; queries are open.
type Server struct {
	engine    *escrow.Engine
	ledger    *settlement.Ledger
	audit     *audit.Log
	authToken string
	log       *slog.Logger
}

// NewServer wires the RPC surface around the supplied components.
func NewServer(engine *escrow.Engine, ledger *settlement.Ledger, auditLog *audit.Log, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:    engine,
		ledger:    ledger,
		audit:     auditLog,
		authToken: strings.TrimSpace(os.Getenv("ESCROWD_RPC_TOKEN")),
		log:       logger,
	}
}

// Router assembles the HTTP routes: health, metrics and the JSON-RPC endpoint.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	return r
}

// Start serves the RPC surface on the given address.
func (s *Server) Start(addr string) error {
	s.log.Info("starting JSON-RPC server", slog.String("addr", addr))
	return http.ListenAndServe(addr, s.Router())
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid_request", "unsupported jsonrpc version")
		return
	}
	start := time.Now()
	outcome := s.dispatch(w, r, &req)
	observability.Escrow().Observe(req.Method, outcome, start)
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	switch req.Method {
	case "escrow_create":
		return s.handleCreate(w, r, req)
	case "escrow_fund":
		return s.handleFund(w, r, req)
	case "escrow_setDocumentHash":
		return s.handleSetDocumentHash(w, r, req)
	case "escrow_markShipped":
		return s.handleMarkShipped(w, r, req)
	case "escrow_confirmDelivery":
		return s.handleConfirmDelivery(w, r, req)
	case "escrow_release":
		return s.handleRelease(w, r, req)
	case "escrow_dispute":
		return s.handleDispute(w, r, req)
	case "escrow_resolve":
		return s.handleResolve(w, r, req)
	case "escrow_cancel":
		return s.handleCancel(w, r, req)
	case "escrow_get":
		return s.handleGet(w, r, req)
	case "escrow_audit":
		return s.handleAudit(w, r, req)
	case "ledger_mint":
		return s.handleLedgerMint(w, r, req)
	case "ledger_balance":
		return s.handleLedgerBalance(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method_not_found", req.Method)
		return "error"
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "Bearer "+s.authToken {
		return nil
	}
	return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "missing or invalid bearer token"}
}

// writeEngineError maps the escrow error taxonomy onto JSON-RPC error codes.
func writeEngineError(w http.ResponseWriter, id json.RawMessage, err error) {
	switch {
	case errors.Is(err, escrow.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeEscrowForbidden, "forbidden", err.Error())
	case errors.Is(err, escrow.ErrPartialPayout):
		writeError(w, http.StatusConflict, id, codeEscrowPartialPayout, "partial_payout", err.Error())
	case errors.Is(err, escrow.ErrInvalidState):
		writeError(w, http.StatusConflict, id, codeEscrowConflict, "invalid_state", err.Error())
	case errors.Is(err, escrow.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, id, codeEscrowInvalidParams, "invalid_params", err.Error())
	case errors.Is(err, escrow.ErrTransferFailed):
		writeError(w, http.StatusBadGateway, id, codeEscrowPayment, "transfer_failed", err.Error())
	case strings.Contains(err.Error(), "not found"):
		writeError(w, http.StatusNotFound, id, codeEscrowNotFound, "not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeEscrowInternal, "internal_error", err.Error())
	}
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func writeError(w http.ResponseWriter, status int, id json.RawMessage, code int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(RPCResponse{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message, Data: data},
	})
}
