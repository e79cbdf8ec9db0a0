package credit

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"

	"github.com/ethereum/go-ethereum/rlp"
)

// Verifier abstracts the external cryptographic proof verifier. The gateway
// never inspects seal internals; it only trusts the boolean outcome plus the
// claims decoded from the journal.
type Verifier interface {
	Verify(seal, journal []byte) (bool, error)
}

// ErrMalformedJournal marks a journal payload that could not be decoded into
// claims.
var ErrMalformedJournal = errors.New("credit: malformed proof journal")

// HMACVerifier authenticates seals from a scoring service that shares a
// secret with the node: a seal is valid when it equals
// HMAC-SHA256(secret, journal).
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier copies the shared secret.
func NewHMACVerifier(secret []byte) *HMACVerifier {
	return &HMACVerifier{secret: append([]byte(nil), secret...)}
}

func (v *HMACVerifier) Verify(seal, journal []byte) (bool, error) {
	if v == nil || len(v.secret) == 0 {
		return false, errors.New("credit: verifier secret not configured")
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(journal)
	return hmac.Equal(seal, mac.Sum(nil)), nil
}

type journalPayload struct {
	Subject        [20]byte
	Score          uint64
	AccountAgeDays uint64
}

// DecodeJournal parses the RLP claims payload emitted alongside a proof.
func DecodeJournal(journal []byte) (Claims, error) {
	var payload journalPayload
	if err := rlp.DecodeBytes(journal, &payload); err != nil {
		return Claims{}, ErrMalformedJournal
	}
	return Claims{
		Subject:        payload.Subject,
		Score:          payload.Score,
		AccountAgeDays: payload.AccountAgeDays,
	}, nil
}

// EncodeJournal renders claims into the canonical journal encoding. The
// daemon does not emit journals itself; this exists for test fixtures and
// tooling.
func EncodeJournal(claims Claims) ([]byte, error) {
	return rlp.EncodeToBytes(journalPayload{
		Subject:        claims.Subject,
		Score:          claims.Score,
		AccountAgeDays: claims.AccountAgeDays,
	})
}
