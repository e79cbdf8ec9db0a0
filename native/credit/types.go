package credit

// ProofKind enumerates the three independent attestation channels the gateway
// accepts.
type ProofKind uint8

const (
	// ProofTradFi attests a traditional-finance credit score notarized
	// off-chain.
	ProofTradFi ProofKind = iota
	// ProofAccount attests on-chain account history.
	ProofAccount
	// ProofNesting attests the hybrid claim combining on-chain and off-chain
	// signals.
	ProofNesting
)

func (k ProofKind) String() string {
	switch k {
	case ProofTradFi:
		return "tradfi"
	case ProofAccount:
		return "account"
	case ProofNesting:
		return "nesting"
	default:
		return "unknown"
	}
}

// Claims carries the numeric assertions decoded from a verified proof
// journal. The gateway trusts these values only after the external verifier
// has accepted the seal.
type Claims struct {
	Subject        [20]byte
	Score          uint64
	AccountAgeDays uint64
}

// Record is the persisted verification profile for one account. Sub-scores
// are tracked independently per proof kind; FinalScore is recomputed from
// whichever subset is present after every successful submission.
type Record struct {
	Address         [20]byte
	HasTradFiProof  bool
	HasAccountProof bool
	HasNestingProof bool
	TradFiScore     uint64
	AccountScore    uint64
	NestingScore    uint64
	FinalScore      uint64
	LastUpdate      uint64
	TradFiJournal   [32]byte
	AccountJournal  [32]byte
	NestingJournal  [32]byte
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// Params tunes the aggregation policy.
type Params struct {
	// TradFiWeightBps, AccountWeightBps and NestingWeightBps weight the
	// sub-scores when combining them; weights are renormalized over the
	// subset of proofs actually present.
	TradFiWeightBps  uint64
	AccountWeightBps uint64
	NestingWeightBps uint64
	// MinimumCreditScore is the eligibility floor applied to the final
	// score.
	MinimumCreditScore uint64
	// SingleProofFloor is the minimum sub-score a lone proof must reach
	// before it can grant eligibility on its own.
	SingleProofFloor uint64
}

// DefaultParams mirrors the production aggregation policy: no single weak
// proof reaches eligibility alone.
func DefaultParams() Params {
	return Params{
		TradFiWeightBps:    4000,
		AccountWeightBps:   3500,
		NestingWeightBps:   2500,
		MinimumCreditScore: 50,
		SingleProofFloor:   70,
	}
}
