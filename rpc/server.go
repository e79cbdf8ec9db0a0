package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"zlend/core"
	"zlend/native/common"
	"zlend/native/credit"
	"zlend/native/lending"
	"zlend/native/liquidity"
	"zlend/native/oracle"
	"zlend/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	rateLimitWindow = time.Minute
	maxTxPerWindow  = 60
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
	codeModuleError    = -32050
)

type rateLimiter struct {
	count       int
	windowStart time.Time
}

// Server exposes the node's operations over JSON-RPC 2.0. Mutating methods
// require the bearer token; views are open.
type Server struct {
	node      *core.Node
	authToken string
	metrics   *observability.Metrics

	mu           sync.Mutex
	rateLimiters map[string]*rateLimiter
}

// NewServer wraps the node. An empty authToken disables every mutating
// method rather than leaving them open.
func NewServer(node *core.Node, authToken string, metrics *observability.Metrics) *Server {
	return &Server{
		node:         node,
		authToken:    strings.TrimSpace(authToken),
		metrics:      metrics,
		rateLimiters: make(map[string]*rateLimiter),
	}
}

// Handler builds the HTTP mux: JSON-RPC at /, liveness at /healthz and
// Prometheus metrics at /metrics when configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

// Start serves JSON-RPC on addr until the listener fails.
func (s *Server) Start(addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server.ListenAndServe()
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
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
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

// writeModuleError maps domain rejections onto stable RPC codes so clients
// can distinguish a refused operation from a broken server.
func writeModuleError(w http.ResponseWriter, id interface{}, err error) {
	code := codeServerError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrUnauthorized), errors.Is(err, lending.ErrUnauthorized):
		code = codeUnauthorized
		status = http.StatusForbidden
	case isDomainRejection(err):
		code = codeModuleError
		status = http.StatusOK
	}
	writeError(w, status, id, code, err.Error(), nil)
}

func isDomainRejection(err error) bool {
	for _, sentinel := range []error{
		lending.ErrInsufficientCollateral,
		lending.ErrExceedsMaxLoan,
		lending.ErrInsufficientLiquidity,
		lending.ErrNoOutstandingDebt,
		lending.ErrLoanOutstanding,
		lending.ErrPositionStillHealthy,
		lending.ErrPartialLiquidationInsufficient,
		lending.ErrAssetNotAllowed,
		lending.ErrInvalidAmount,
		lending.ErrInsufficientBalance,
		liquidity.ErrInvalidAmount,
		liquidity.ErrInsufficientBalance,
		liquidity.ErrInsufficientLiquidity,
		liquidity.ErrWithdrawalPending,
		liquidity.ErrNoWithdrawalRequested,
		liquidity.ErrCooldownNotElapsed,
		liquidity.ErrExceedsPrincipal,
		credit.ErrVerificationFailed,
		credit.ErrMalformedJournal,
		oracle.ErrStalePriceFeed,
		oracle.ErrUnknownAsset,
		common.ErrModulePaused,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() { _ = reader.Close() }()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "failed to read request body", err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	started := time.Now()
	s.dispatch(w, r, req)
	if s.metrics != nil {
		s.metrics.RPCLatency.WithLabelValues(req.Method).Observe(time.Since(started).Seconds())
	}
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	handler, ok := s.routes()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
		return
	}
	if handler.mutating {
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		if !s.allowSource(clientSource(r), time.Now()) {
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
			return
		}
	}
	handler.fn(w, req)
}

type route struct {
	mutating bool
	fn       func(http.ResponseWriter, *RPCRequest)
}

func (s *Server) routes() map[string]route {
	return map[string]route{
		"lend_depositCollateral":      {mutating: true, fn: s.handleDepositCollateral},
		"lend_withdrawCollateral":     {mutating: true, fn: s.handleWithdrawCollateral},
		"lend_borrow":                 {mutating: true, fn: s.handleBorrow},
		"lend_repay":                  {mutating: true, fn: s.handleRepay},
		"lend_liquidate":              {mutating: true, fn: s.handleLiquidate},
		"lend_getPosition":            {fn: s.handleGetPosition},
		"lend_getLoan":                {fn: s.handleGetLoan},
		"lend_getBorrowerProfile":     {fn: s.handleGetBorrowerProfile},
		"lend_getMarket":              {fn: s.handleGetMarket},
		"lend_checkCollateralization": {fn: s.handleCheckCollateralization},
		"lend_getBalance":             {fn: s.handleGetBalance},
		"credit_submitTradFiProof":    {mutating: true, fn: s.handleSubmitTradFiProof},
		"credit_submitAccountProof":   {mutating: true, fn: s.handleSubmitAccountProof},
		"credit_submitNestingProof":   {mutating: true, fn: s.handleSubmitNestingProof},
		"credit_getRecord":            {fn: s.handleGetCreditRecord},
		"liq_depositFunds":            {mutating: true, fn: s.handleDepositFunds},
		"liq_claimInterest":           {mutating: true, fn: s.handleClaimInterest},
		"liq_requestWithdrawal":       {mutating: true, fn: s.handleRequestWithdrawal},
		"liq_completeWithdrawal":      {mutating: true, fn: s.handleCompleteWithdrawal},
		"liq_cancelWithdrawal":        {mutating: true, fn: s.handleCancelWithdrawal},
		"liq_withdrawEarly":           {mutating: true, fn: s.handleWithdrawEarly},
		"liq_getPosition":             {fn: s.handleGetLiquidityPosition},
		"oracle_health":               {fn: s.handleOracleHealth},
		"admin_setPaused":             {mutating: true, fn: s.handleSetPaused},
		"admin_setCreditScore":        {mutating: true, fn: s.handleSetCreditScore},
		"admin_setAllowList":          {mutating: true, fn: s.handleSetAllowList},
		"admin_setOraclePrice":        {mutating: true, fn: s.handleSetOraclePrice},
		"admin_setOracleVolatile":     {mutating: true, fn: s.handleSetOracleVolatile},
		"admin_withdrawReserves":      {mutating: true, fn: s.handleWithdrawReserves},
		"admin_mint":                  {mutating: true, fn: s.handleMint},
		"admin_mintToken":             {mutating: true, fn: s.handleMintToken},
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func (s *Server) allowSource(source string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.rateLimiters[source]
	if !ok {
		limiter = &rateLimiter{windowStart: now}
		s.rateLimiters[source] = limiter
	}
	if now.Sub(limiter.windowStart) >= rateLimitWindow {
		limiter.windowStart = now
		limiter.count = 0
	}
	if limiter.count >= maxTxPerWindow {
		return false
	}
	limiter.count++
	return true
}

func clientSource(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
