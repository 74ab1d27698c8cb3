package rpc

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"collateralvault/native/collateral"
	"collateralvault/observability/metrics"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB

	requestsPerSecond = 20
	requestBurst      = 40
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeRateLimited    = -32020

	codeAmountZero           = -32030
	codeInsufficientAmount   = -32031
	codeReclaimTooLarge      = -32032
	codeReclaimTooSmall      = -32033
	codeNotTrustee           = -32034
	codeReclaimNotFound      = -32035
	codeBeforeDenyTimeout    = -32036
	codePastDenyTimeout      = -32037
	codeTransferFailed       = -32038
	codeInvalidDepositMethod = -32039
)

// Server exposes the vault over JSON-RPC 2.0. Mutating methods are
// serialised by the server mutex so each operation observes a fully
// committed state, matching the single-writer substrate the engine is
// written for.
type Server struct {
	engine      *collateral.Engine
	networkName string
	logger      *slog.Logger
	metrics     *metrics.CollateralMetrics

	mu sync.Mutex

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
}

// NewServer wires the RPC surface to an engine. The network name is echoed
// by collateral_getConfig for off-chain discovery tooling.
func NewServer(engine *collateral.Engine, networkName string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:      engine,
		networkName: networkName,
		logger:      logger,
		metrics:     metrics.Collateral(),
		limiters:    make(map[string]*rate.Limiter),
	}
}

// Handler builds the HTTP routing surface: the JSON-RPC endpoint plus
// health and Prometheus endpoints.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	return r
}

// Start serves the RPC surface on addr and blocks.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) allow(r *http.Request) bool {
	id := clientID(r)
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	limiter, ok := s.limiters[id]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst)
		s.limiters[id] = limiter
	}
	return limiter.Allow()
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !s.allow(r) {
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate_limited", nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	var req RPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid_request", "unsupported jsonrpc version")
		return
	}

	// The public operation set is closed: anything outside this switch is
	// rejected outright, there is no implicit path into the vault.
	switch req.Method {
	case "collateral_deposit":
		s.handleDeposit(w, &req)
	case "collateral_reclaim":
		s.handleReclaim(w, &req)
	case "collateral_finalizeReclaim":
		s.handleFinalizeReclaim(w, &req)
	case "collateral_denyReclaim":
		s.handleDenyReclaim(w, &req)
	case "collateral_slash":
		s.handleSlash(w, &req)
	case "collateral_getCollateral":
		s.handleGetCollateral(w, &req)
	case "collateral_getReclaim":
		s.handleGetReclaim(w, &req)
	case "collateral_getConfig":
		s.handleGetConfig(w, &req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method_not_found", fmt.Sprintf("unknown method %q", req.Method))
	}
}
