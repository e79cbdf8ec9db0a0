package state

import (
	"zlend/native/credit"
	"zlend/native/lending"
)

// CreditGetRecord loads the verification profile for addr.
func (m *Manager) CreditGetRecord(addr [20]byte) (*credit.Record, bool, error) {
	record := new(credit.Record)
	found, err := m.KVGet(creditRecordKey(addr), record)
	if err != nil || !found {
		return nil, found, err
	}
	return record, true, nil
}

// CreditPutRecord stages the verification profile.
func (m *Manager) CreditPutRecord(record *credit.Record) error {
	return m.KVPut(creditRecordKey(record.Address), record)
}

// CreditGetScore loads the score record the tier engine consumes.
func (m *Manager) CreditGetScore(addr [20]byte) (lending.ScoreRecord, bool, error) {
	var record lending.ScoreRecord
	found, err := m.KVGet(creditScoreKey(addr), &record)
	if err != nil || !found {
		return lending.ScoreRecord{}, found, err
	}
	return record, true, nil
}

// CreditSetScore stages a gateway-produced score. Scores written through this
// path are marked verified; the verification gateway is its only caller.
func (m *Manager) CreditSetScore(addr [20]byte, score uint64) error {
	return m.KVPut(creditScoreKey(addr), lending.ScoreRecord{Score: score, Verified: true})
}

// CreditSetManualScore stages an operator-assigned score. Manual scores stay
// unverified, so they are clamped to the base tier whenever verification is
// required.
func (m *Manager) CreditSetManualScore(addr [20]byte, score uint64) error {
	return m.KVPut(creditScoreKey(addr), lending.ScoreRecord{Score: score, Verified: false})
}
