package state

import "zlend/native/liquidity"

// LiquidityGetPosition loads the lender position for addr.
func (m *Manager) LiquidityGetPosition(addr [20]byte) (*liquidity.Position, bool, error) {
	position := new(liquidity.Position)
	found, err := m.KVGet(liquidityPositionKey(addr), position)
	if err != nil || !found {
		return nil, found, err
	}
	position.EnsureDefaults()
	return position, true, nil
}

// LiquidityPutPosition stages the lender position record.
func (m *Manager) LiquidityPutPosition(position *liquidity.Position) error {
	position.EnsureDefaults()
	return m.KVPut(liquidityPositionKey(position.Address), position)
}
