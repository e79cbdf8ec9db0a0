package state

import "zlend/native/lending"

// LendingGetMarket loads the aggregate market record.
func (m *Manager) LendingGetMarket() (*lending.Market, bool, error) {
	market := new(lending.Market)
	found, err := m.KVGet(lendingMarketKey, market)
	if err != nil || !found {
		return nil, found, err
	}
	market.EnsureDefaults()
	return market, true, nil
}

// LendingPutMarket stages the aggregate market record.
func (m *Manager) LendingPutMarket(market *lending.Market) error {
	market.EnsureDefaults()
	return m.KVPut(lendingMarketKey, market)
}

// LendingGetPosition loads the borrower position for addr.
func (m *Manager) LendingGetPosition(addr [20]byte) (*lending.Position, bool, error) {
	position := new(lending.Position)
	found, err := m.KVGet(lendingPositionKey(addr), position)
	if err != nil || !found {
		return nil, found, err
	}
	position.EnsureDefaults()
	return position, true, nil
}

// LendingPutPosition stages the borrower position record.
func (m *Manager) LendingPutPosition(position *lending.Position) error {
	position.EnsureDefaults()
	return m.KVPut(lendingPositionKey(position.Address), position)
}

// LendingGetAllowList loads the persisted collateral allow-list.
func (m *Manager) LendingGetAllowList() ([]string, bool, error) {
	var assets []string
	found, err := m.KVGet(lendingAllowListKey, &assets)
	if err != nil || !found {
		return nil, found, err
	}
	return assets, true, nil
}

// LendingSetAllowList stages the collateral allow-list.
func (m *Manager) LendingSetAllowList(assets []string) error {
	return m.KVPut(lendingAllowListKey, assets)
}
