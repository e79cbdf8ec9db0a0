package lending

import "errors"

var (
	// ErrInsufficientCollateral rejects a borrow or collateral withdrawal
	// that would leave the position below its required collateralization
	// ratio.
	ErrInsufficientCollateral = errors.New("lending: insufficient collateral")
	// ErrExceedsMaxLoan rejects a borrow larger than the account's risk
	// tier permits.
	ErrExceedsMaxLoan = errors.New("lending: amount exceeds tier loan limit")
	// ErrInsufficientLiquidity rejects an operation the pool cannot fund.
	ErrInsufficientLiquidity = errors.New("lending: insufficient pool liquidity")
	// ErrNoOutstandingDebt rejects repayment or liquidation of an account
	// with no debt.
	ErrNoOutstandingDebt = errors.New("lending: no outstanding debt")
	// ErrLoanOutstanding rejects a borrow while a previous loan still
	// carries debt and top-ups are disabled.
	ErrLoanOutstanding = errors.New("lending: loan with outstanding debt already open")
	// ErrPositionStillHealthy rejects liquidation of a healthy position.
	ErrPositionStillHealthy = errors.New("lending: position still healthy")
	// ErrPartialLiquidationInsufficient rejects a partial liquidation that
	// would leave the position unhealthy without clearing the debt.
	ErrPartialLiquidationInsufficient = errors.New("lending: partial liquidation leaves position unhealthy")
	// ErrUnauthorized rejects a guarded call from an address without the
	// required role.
	ErrUnauthorized = errors.New("lending: unauthorized")
	// ErrAssetNotAllowed rejects collateral deposits of assets outside the
	// allow-list.
	ErrAssetNotAllowed = errors.New("lending: collateral asset not on allow-list")
	// ErrInvalidAmount rejects zero or negative amounts.
	ErrInvalidAmount = errors.New("lending: amount must be positive")
	// ErrInsufficientBalance rejects transfers the caller cannot fund.
	ErrInsufficientBalance = errors.New("lending: insufficient balance")

	errNilState  = errors.New("lending: state not configured")
	errNilOracle = errors.New("lending: price oracle not configured")
)
