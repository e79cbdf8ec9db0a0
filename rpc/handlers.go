package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"zlend/crypto"
	"zlend/native/credit"
	"zlend/native/lending"
)

func unmarshalParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected exactly one params object")
	}
	dec := json.NewDecoder(bytes.NewReader(req.Params[0]))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func parseAddress(value string) ([20]byte, error) {
	var out [20]byte
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, err
	}
	copy(out[:], decoded.Bytes())
	return out, nil
}

func formatAddress(addr [20]byte) string {
	return crypto.NewAddress(crypto.ZLPrefix, addr[:]).String()
}

func parseAmount(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func parseHex(value string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(value), "0x"))
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// --- collateral and borrowing ---

type collateralParams struct {
	From   string `json:"from"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

func (s *Server) handleDepositCollateral(w http.ResponseWriter, req *RPCRequest) {
	var params collateralParams
	if err := unmarshalParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	from, err := parseAddress(params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.DepositCollateral(from, params.Asset, amount); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleWithdrawCollateral(w http.ResponseWriter, req *RPCRequest) {
	var params collateralParams
	if err := unmarshalParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	from, err := parseAddress(params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.WithdrawCollateral(from, params.Asset, amount); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type amountParams struct {
	From   string `json:"from"`
	Amount string `json:"amount"`
}

func (s *Server) handleBorrow(w http.ResponseWriter, req *RPCRequest) {
	var params amountParams
	if err := unmarshalParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	from, err := parseAddress(params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.Borrow(from, amount); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleRepay(w http.ResponseWriter, req *RPCRequest) {
	var params amountParams
	if err := unmarshalParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	from, err := parseAddress(params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	paid, err := s.node.Repay(from, amount)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"repaid": bigString(paid)})
}

type liquidateParams struct {
	From     string `json:"from"`
	Borrower string `json:"borrower"`
	Amount   string `json:"amount"`
}

func (s *Server) handleLiquidate(w http.ResponseWriter, req *RPCRequest) {
	var params liquidateParams
	if err := unmarshalParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	from, err := parseAddress(params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	borrower, err := parseAddress(params.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	repaid, seized, err := s.node.Liquidate(from, borrower, amount)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"repaid":      bigString(repaid),
		"seizedValue": bigString(seized),
	})
}

// --- views ---

type addressParams struct {
	Address string `json:"address"`
}

type loanResult struct {
	Principal       string `json:"principal"`
	AccruedInterest string `json:"accruedInterest"`
	RateBps         uint64 `json:"rateBps"`
	OpenedAt        uint64 `json:"openedAt"`
}

type collateralResult struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type positionResult struct {
	Address              string             `json:"address"`
	Collateral           []collateralResult `json:"collateral"`
	Loan                 *loanResult        `json:"loan,omitempty"`
	FirstInteraction     uint64             `json:"firstInteraction"`
	SuccessfulRepayments uint64             `json:"successfulRepayments"`
	LiquidationsSuffered uint64             `json:"liquidationsSuffered"`
}

func renderPosition(position *lending.Position) positionResult {
	out := positionResult{
		Address:              formatAddress(position.Address),
		Collateral:           make([]collateralResult, 0, len(position.Collateral)),
		FirstInteraction:     position.FirstInteraction,
		SuccessfulRepayments: position.SuccessfulRepayments,
		LiquidationsSuffered: position.LiquidationsSuffered,
	}
	for _, entry := range position.Collateral {
		out.Collateral = append(out.Collateral, collateralResult{
			Asset:  entry.Asset,
			Amount: bigString(entry.Amount),
		})
	}
	if position.Loan != nil {
		out.Loan = &loanResult{
			Principal:       bigString(position.Loan.Principal),
			AccruedInterest: bigString(position.Loan.AccruedInterest),
			RateBps:         position.Loan.RateBps,
			OpenedAt:        position.Loan.OpenedAt,
		}
	}
	return out
}

func (s *Server) handleGetPosition(w http.ResponseWriter, req *RPCRequest) {
	var params addressParams
	if err := unmarshalParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	position, err := s.node.GetPosition(addr)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, renderPosition(position))
}

// handleGetLoan returns just the open loan, or null when none is open.
func (s *Server) handleGetLoan(w http.ResponseWriter, req *RPCRequest) {
	var params addressParams
	if err := unmarshalParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	position, err := s.node.GetPosition(addr)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, renderPosition(position).Loan)
}

type profileResult struct {
	Position positionResult `json:"position"`
	Score    uint64         `json:"creditScore"`
	Verified bool           `json:"verified"`
	Terms    termsResult    `json:"terms"`
	Health   healthResult   `json:"health"`
}

type termsResult struct {
	CollateralRatioBps  uint64 `json:"collateralRatioBps"`
	InterestModifierBps uint64 `json:"interestModifierBps"`
	MaxLoanAmount       string `json:"maxLoanAmount,omitempty"`
}

type healthResult struct {
	Healthy        bool   `json:"healthy"`
	HealthRatioBps uint64 `json:"healthRatioBps"`
	Debt           string `json:"debt"`
	CollateralUSD  string `json:"collateralUsd"`
}

func renderHealth(status lending.HealthStatus) healthResult {
	return healthResult{
		Healthy:        status.Healthy,
		HealthRatioBps: status.HealthRatioBps,
		Debt:           bigString(status.Debt),
		CollateralUSD:  bigString(status.CollateralUSD),
	}
}

func (s *Server) handleGetBorrowerProfile(w http.ResponseWriter, req *RPCRequest) {
	var params addressParams
	if err := unmarshalParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	profile, err := s.node.GetBorrowerProfile(addr)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	result := profileResult{
		Position: renderPosition(profile.Position),
		Score:    profile.Score.Score,
		Verified: profile.Score.Verified,
		Terms: termsResult{
			CollateralRatioBps:  profile.Terms.CollateralRatioBps,
			InterestModifierBps: profile.Terms.InterestModifierBps,
		},
		Health: renderHealth(profile.Health),
	}
	if profile.Terms.MaxLoanAmount != nil {
		result.Terms.MaxLoanAmount = profile.Terms.MaxLoanAmount.String()
	}
	writeResult(w, req.ID, result)
}

type marketResult struct {
	TotalSupplied    string `json:"totalSupplied"`
	TotalBorrowed    string `json:"totalBorrowed"`
	InterestPool     string `json:"interestPool"`
	ProtocolReserves string `json:"protocolReserves"`
	AvailableCash    string `json:"availableLiquidity"`
	LastRateBps      uint64 `json:"lastRateBps"`
}

func (s *Server) handleGetMarket(w http.ResponseWriter, req *RPCRequest) {
	market, err := s.node.GetMarket()
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, marketResult{
		TotalSupplied:    bigString(market.TotalSupplied),
		TotalBorrowed:    bigString(market.TotalBorrowed),
		InterestPool:     bigString(market.InterestPool),
		ProtocolReserves: bigString(market.ProtocolReserves),
		AvailableCash:    bigString(market.AvailableLiquidity()),
		LastRateBps:      market.LastRateBps,
	})
}

func (s *Server) handleCheckCollateralization(w http.ResponseWriter, req *RPCRequest) {
	var params addressParams
	if err := unmarshalParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	status, err := s.node.CheckCollateralization(addr)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, renderHealth(status))
}

type balanceResult struct {
	Address string             `json:"address"`
	Balance string             `json:"balance"`
	Tokens  []collateralResult `json:"tokens,omitempty"`
}

func (s *Server) handleGetBalance(w http.ResponseWriter, req *RPCRequest) {
	var params addressParams
	if err := unmarshalParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	account, err := s.node.GetAccount(addr)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	result := balanceResult{Address: params.Address, Balance: bigString(account.Balance)}
	for _, token := range account.Tokens {
		result.Tokens = append(result.Tokens, collateralResult{
			Asset:  token.Asset,
			Amount: bigString(token.Amount),
		})
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleOracleHealth(w http.ResponseWriter, req *RPCRequest) {
	writeResult(w, req.ID, s.node.OracleHealth())
}

// --- credit verification ---

type proofParams struct {
	Subject string `json:"subject"`
	Seal    string `json:"seal"`
	Journal string `json:"journal"`
}

type creditRecordResult struct {
	Address         string `json:"address"`
	FinalScore      uint64 `json:"finalScore"`
	HasTradFiProof  bool   `json:"hasTradFiProof"`
	HasAccountProof bool   `json:"hasAccountProof"`
	HasNestingProof bool   `json:"hasNestingProof"`
	LastUpdate      uint64 `json:"lastUpdate"`
	Eligible        bool   `json:"eligible"`
}

func (s *Server) handleSubmitTradFiProof(w http.ResponseWriter, req *RPCRequest) {
	s.handleSubmitProof(w, req, credit.ProofTradFi)
}

func (s *Server) handleSubmitAccountProof(w http.ResponseWriter, req *RPCRequest) {
	s.handleSubmitProof(w, req, credit.ProofAccount)
}

func (s *Server) handleSubmitNestingProof(w http.ResponseWriter, req *RPCRequest) {
	s.handleSubmitProof(w, req, credit.ProofNesting)
}

func (s *Server) handleSubmitProof(w http.ResponseWriter, req *RPCRequest, kind credit.ProofKind) {
	var params proofParams
	if err := unmarshalParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	subject, err := parseAddress(params.Subject)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	seal, err := parseHex(params.Seal)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid seal encoding", nil)
		return
	}
	journal, err := parseHex(params.Journal)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid journal encoding", nil)
		return
	}
	record, err := s.node.SubmitCreditProof(kind, subject, seal, journal)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	eligible, _, err := s.node.CreditEligibility(subject)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, renderCreditRecord(record, eligible))
}

func renderCreditRecord(record *credit.Record, eligible bool) creditRecordResult {
	return creditRecordResult{
		Address:         formatAddress(record.Address),
		FinalScore:      record.FinalScore,
		HasTradFiProof:  record.HasTradFiProof,
		HasAccountProof: record.HasAccountProof,
		HasNestingProof: record.HasNestingProof,
		LastUpdate:      record.LastUpdate,
		Eligible:        eligible,
	}
}

func (s *Server) handleGetCreditRecord(w http.ResponseWriter, req *RPCRequest) {
	var params addressParams
	if err := unmarshalParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	record, found, err := s.node.GetCreditRecord(addr)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	if !found {
		writeResult(w, req.ID, nil)
		return
	}
	eligible, _, err := s.node.CreditEligibility(addr)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, renderCreditRecord(record, eligible))
}

// --- lender liquidity ---

func (s *Server) handleDepositFunds(w http.ResponseWriter, req *RPCRequest) {
	var params amountParams
	if err := unmarshalParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	from, err := parseAddress(params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.DepositFunds(from, amount); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleClaimInterest(w http.ResponseWriter, req *RPCRequest) {
	var params addressParams
	if err := unmarshalParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	paid, err := s.node.ClaimInterest(addr)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"paid": bigString(paid)})
}

func (s *Server) handleRequestWithdrawal(w http.ResponseWriter, req *RPCRequest) {
	var params amountParams
	if err := unmarshalParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	from, err := parseAddress(params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.RequestWithdrawal(from, amount); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleCompleteWithdrawal(w http.ResponseWriter, req *RPCRequest) {
	var params addressParams
	if err := unmarshalParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	paid, err := s.node.CompleteWithdrawal(addr)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"paid": bigString(paid)})
}

func (s *Server) handleCancelWithdrawal(w http.ResponseWriter, req *RPCRequest) {
	var params addressParams
	if err := unmarshalParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.CancelWithdrawal(addr); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleWithdrawEarly(w http.ResponseWriter, req *RPCRequest) {
	var params addressParams
	if err := unmarshalParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	paid, err := s.node.WithdrawEarly(addr)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"paid": bigString(paid)})
}

type liquidityPositionResult struct {
	Address           string `json:"address"`
	Principal         string `json:"principal"`
	PendingInterest   string `json:"pendingInterest"`
	EarnedInterest    string `json:"earnedInterest"`
	FirstDeposit      uint64 `json:"firstDeposit"`
	RateBps           uint64 `json:"rateBps"`
	PendingWithdrawal string `json:"pendingWithdrawal,omitempty"`
	RequestedAt       uint64 `json:"withdrawalRequestedAt,omitempty"`
}

func (s *Server) handleGetLiquidityPosition(w http.ResponseWriter, req *RPCRequest) {
	var params addressParams
	if err := unmarshalParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	position, err := s.node.GetLiquidityPosition(addr)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	rate, err := s.node.LenderRate(addr)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	result := liquidityPositionResult{
		Address:         formatAddress(position.Address),
		Principal:       bigString(position.Principal),
		PendingInterest: bigString(position.PendingInterest),
		EarnedInterest:  bigString(position.EarnedInterest),
		FirstDeposit:    position.FirstDeposit,
		RateBps:         rate,
	}
	if position.PendingWithdrawal != nil {
		result.PendingWithdrawal = bigString(position.PendingWithdrawal.Amount)
		result.RequestedAt = position.PendingWithdrawal.RequestedAt
	}
	writeResult(w, req.ID, result)
}

// --- administration ---
//
// Admin methods authenticate through the bearer token; the node-level role
// check runs against the configured administrator address.

type pauseParams struct {
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

func (s *Server) handleSetPaused(w http.ResponseWriter, req *RPCRequest) {
	var params pauseParams
	if err := unmarshalParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.SetPaused(s.node.Admin(), params.Module, params.Paused); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type scoreParams struct {
	Address string `json:"address"`
	Score   uint64 `json:"score"`
}

func (s *Server) handleSetCreditScore(w http.ResponseWriter, req *RPCRequest) {
	var params scoreParams
	if err := unmarshalParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.SetCreditScore(s.node.Admin(), addr, params.Score); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type allowListParams struct {
	Assets []string `json:"assets"`
}

func (s *Server) handleSetAllowList(w http.ResponseWriter, req *RPCRequest) {
	var params allowListParams
	if err := unmarshalParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.SetAllowList(s.node.Admin(), params.Assets); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type oraclePriceParams struct {
	Asset    string `json:"asset"`
	Value    string `json:"value"`
	Decimals uint8  `json:"decimals"`
}

func (s *Server) handleSetOraclePrice(w http.ResponseWriter, req *RPCRequest) {
	var params oraclePriceParams
	if err := unmarshalParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	value, err := parseAmount(params.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.SetOraclePrice(s.node.Admin(), params.Asset, value, params.Decimals); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type volatileParams struct {
	Volatile bool `json:"volatile"`
}

func (s *Server) handleSetOracleVolatile(w http.ResponseWriter, req *RPCRequest) {
	var params volatileParams
	if err := unmarshalParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.SetOracleVolatile(s.node.Admin(), params.Volatile); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type transferParams struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) handleWithdrawReserves(w http.ResponseWriter, req *RPCRequest) {
	var params transferParams
	if err := unmarshalParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	to, err := parseAddress(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.WithdrawReserves(s.node.Admin(), to, amount); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleMint(w http.ResponseWriter, req *RPCRequest) {
	var params transferParams
	if err := unmarshalParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	to, err := parseAddress(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.Mint(s.node.Admin(), to, amount); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type mintTokenParams struct {
	To     string `json:"to"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

func (s *Server) handleMintToken(w http.ResponseWriter, req *RPCRequest) {
	var params mintTokenParams
	if err := unmarshalParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	to, err := parseAddress(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.MintToken(s.node.Admin(), to, params.Asset, amount); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}
