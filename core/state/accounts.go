package state

import "zlend/core/types"

// GetAccount loads the account stored for addr. Unknown addresses yield a
// fresh zero-balance account rather than an error.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	account := new(types.Account)
	found, err := m.KVGet(accountKey(addr), account)
	if err != nil {
		return nil, err
	}
	if !found {
		account = &types.Account{}
	}
	account.EnsureDefaults()
	return account, nil
}

// PutAccount stages the account record for addr.
func (m *Manager) PutAccount(addr [20]byte, account *types.Account) error {
	account.EnsureDefaults()
	return m.KVPut(accountKey(addr), account)
}
