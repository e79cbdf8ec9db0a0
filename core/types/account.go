package types

import "math/big"

// TokenBalance pairs a collateral asset symbol with an amount. Balances are
// kept as a sorted slice rather than a map so the account encodes
// deterministically.
type TokenBalance struct {
	Asset  string
	Amount *big.Int
}

// Account holds the transferable balances for a protocol participant. Balance
// is denominated in the pool's base asset smallest unit; Tokens carries the
// per-asset collateral token balances held outside the lending module.
type Account struct {
	Nonce   uint64
	Balance *big.Int
	Tokens  []TokenBalance
}

// EnsureDefaults populates nil big.Int fields so state encoding is safe.
func (a *Account) EnsureDefaults() {
	if a.Balance == nil {
		a.Balance = big.NewInt(0)
	}
	for i := range a.Tokens {
		if a.Tokens[i].Amount == nil {
			a.Tokens[i].Amount = big.NewInt(0)
		}
	}
}

// TokenBalance returns the balance held for the given asset, zero when the
// asset has never been touched.
func (a *Account) TokenBalance(asset string) *big.Int {
	for i := range a.Tokens {
		if a.Tokens[i].Asset == asset {
			if a.Tokens[i].Amount == nil {
				return big.NewInt(0)
			}
			return new(big.Int).Set(a.Tokens[i].Amount)
		}
	}
	return big.NewInt(0)
}

// SetTokenBalance overwrites the balance for the given asset, inserting the
// entry in sorted position on first use.
func (a *Account) SetTokenBalance(asset string, amount *big.Int) {
	if amount == nil {
		amount = big.NewInt(0)
	}
	for i := range a.Tokens {
		if a.Tokens[i].Asset == asset {
			a.Tokens[i].Amount = new(big.Int).Set(amount)
			return
		}
	}
	idx := len(a.Tokens)
	for i := range a.Tokens {
		if a.Tokens[i].Asset > asset {
			idx = i
			break
		}
	}
	entry := TokenBalance{Asset: asset, Amount: new(big.Int).Set(amount)}
	a.Tokens = append(a.Tokens, TokenBalance{})
	copy(a.Tokens[idx+1:], a.Tokens[idx:])
	a.Tokens[idx] = entry
}
