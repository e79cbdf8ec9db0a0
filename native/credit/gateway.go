package credit

import (
	"errors"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	nativecommon "zlend/native/common"
)

const moduleName = "credit"

var (
	// ErrVerificationFailed is returned when the external verifier rejects a
	// proof. Nothing is mutated on this path.
	ErrVerificationFailed = errors.New("credit: proof verification failed")
	errNilState           = errors.New("credit: state not configured")
	errNilVerifier        = errors.New("credit: verifier not configured")
)

// storage abstracts the subset of state manager functionality the gateway
// needs. The gateway is the sole writer of credit records.
type storage interface {
	CreditGetRecord(addr [20]byte) (*Record, bool, error)
	CreditPutRecord(record *Record) error
	CreditSetScore(addr [20]byte, score uint64) error
}

// Gateway aggregates independently submitted attestations into one
// normalized credit score. Each proof kind is verified by the external
// verifier and recorded separately; re-submission overwrites the prior
// sub-score for that kind.
type Gateway struct {
	state    storage
	verifier Verifier
	params   Params
	pauses   nativecommon.PauseView
	nowFn    func() int64
}

// NewGateway constructs a gateway bound to the external verifier.
func NewGateway(verifier Verifier, params Params) *Gateway {
	return &Gateway{
		verifier: verifier,
		params:   params,
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the gateway to the persistence layer.
func (g *Gateway) SetState(state storage) {
	if g == nil {
		return
	}
	g.state = state
}

// SetPauses wires the module pause switchboard.
func (g *Gateway) SetPauses(p nativecommon.PauseView) {
	if g == nil {
		return
	}
	g.pauses = p
}

// SetNowFunc overrides the wall clock used for record timestamps.
func (g *Gateway) SetNowFunc(now func() int64) {
	if g == nil || now == nil {
		return
	}
	g.nowFn = now
}

// SubmitTradFiProof verifies and records a traditional-finance attestation.
func (g *Gateway) SubmitTradFiProof(subject [20]byte, seal, journal []byte) (*Record, error) {
	return g.submit(subject, ProofTradFi, seal, journal)
}

// SubmitAccountProof verifies and records an on-chain account-history
// attestation.
func (g *Gateway) SubmitAccountProof(subject [20]byte, seal, journal []byte) (*Record, error) {
	return g.submit(subject, ProofAccount, seal, journal)
}

// SubmitNestingProof verifies and records the hybrid attestation.
func (g *Gateway) SubmitNestingProof(subject [20]byte, seal, journal []byte) (*Record, error) {
	return g.submit(subject, ProofNesting, seal, journal)
}

func (g *Gateway) submit(subject [20]byte, kind ProofKind, seal, journal []byte) (*Record, error) {
	if g == nil || g.state == nil {
		return nil, errNilState
	}
	if g.verifier == nil {
		return nil, errNilVerifier
	}
	if err := nativecommon.Guard(g.pauses, moduleName); err != nil {
		return nil, err
	}

	ok, err := g.verifier.Verify(seal, journal)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrVerificationFailed
	}
	claims, err := DecodeJournal(journal)
	if err != nil {
		return nil, err
	}
	if claims.Subject != subject {
		return nil, ErrVerificationFailed
	}
	if claims.Score > 100 {
		claims.Score = 100
	}

	record, found, err := g.state.CreditGetRecord(subject)
	if err != nil {
		return nil, err
	}
	if !found || record == nil {
		record = &Record{Address: subject}
	} else {
		record = record.Clone()
	}

	digest := [32]byte{}
	copy(digest[:], ethcrypto.Keccak256(journal))
	switch kind {
	case ProofTradFi:
		record.HasTradFiProof = true
		record.TradFiScore = claims.Score
		record.TradFiJournal = digest
	case ProofAccount:
		record.HasAccountProof = true
		record.AccountScore = claims.Score
		record.AccountJournal = digest
	case ProofNesting:
		record.HasNestingProof = true
		record.NestingScore = claims.Score
		record.NestingJournal = digest
	}
	record.FinalScore = g.aggregate(record)
	record.LastUpdate = uint64(g.nowFn())

	if err := g.state.CreditPutRecord(record); err != nil {
		return nil, err
	}
	if err := g.state.CreditSetScore(subject, record.FinalScore); err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

// aggregate combines whichever sub-scores are present using renormalized
// weights. A single proof is floored: unless its sub-score reaches
// SingleProofFloor, the combined score is capped just below the eligibility
// threshold so one weak attestation can never grant borrowing rights alone.
func (g *Gateway) aggregate(record *Record) uint64 {
	if record == nil {
		return 0
	}
	var weighted, weights uint64
	count := 0
	if record.HasTradFiProof {
		weighted += record.TradFiScore * g.params.TradFiWeightBps
		weights += g.params.TradFiWeightBps
		count++
	}
	if record.HasAccountProof {
		weighted += record.AccountScore * g.params.AccountWeightBps
		weights += g.params.AccountWeightBps
		count++
	}
	if record.HasNestingProof {
		weighted += record.NestingScore * g.params.NestingWeightBps
		weights += g.params.NestingWeightBps
		count++
	}
	if weights == 0 {
		return 0
	}
	score := weighted / weights
	if count == 1 && score >= g.params.MinimumCreditScore {
		lone := record.TradFiScore
		if record.HasAccountProof {
			lone = record.AccountScore
		}
		if record.HasNestingProof {
			lone = record.NestingScore
		}
		if lone < g.params.SingleProofFloor && g.params.MinimumCreditScore > 0 {
			score = g.params.MinimumCreditScore - 1
		}
	}
	if score > 100 {
		score = 100
	}
	return score
}

// IsEligible reports whether the account's aggregated profile clears the
// borrowing floor. Missing records yield an ineligible, zero-score profile.
func (g *Gateway) IsEligible(subject [20]byte) (bool, uint64, error) {
	if g == nil || g.state == nil {
		return false, 0, errNilState
	}
	record, found, err := g.state.CreditGetRecord(subject)
	if err != nil {
		return false, 0, err
	}
	if !found || record == nil {
		return false, 0, nil
	}
	return record.FinalScore >= g.params.MinimumCreditScore, record.FinalScore, nil
}

// GetRecord returns the stored verification profile, if any.
func (g *Gateway) GetRecord(subject [20]byte) (*Record, bool, error) {
	if g == nil || g.state == nil {
		return nil, false, errNilState
	}
	record, found, err := g.state.CreditGetRecord(subject)
	if err != nil || !found {
		return nil, found, err
	}
	return record.Clone(), true, nil
}
