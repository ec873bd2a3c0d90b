package pool

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"

	"subdex/internal/numeric"
)

// TreasuryPolicy routes a share of every swap fee to a protocol account.
type TreasuryPolicy struct {
	Nominator   numeric.Amount
	Denominator numeric.Amount
	Recipient   common.Address
}

// FeePolicy is the swap fee rate and optional treasury split. Build it with
// NewFeePolicy so the fractions are validated once.
type FeePolicy struct {
	Nominator   numeric.Amount
	Denominator numeric.Amount
	Treasury    *TreasuryPolicy
}

// NewFeePolicy validates the fee fractions against the balance width.
func NewFeePolicy(width numeric.Width, nominator, denominator numeric.Amount, treasury *TreasuryPolicy) (FeePolicy, error) {
	if err := validateFraction(width, nominator, denominator); err != nil {
		return FeePolicy{}, errorsmod.Wrapf(err, "swap fee %s/%s", nominator, denominator)
	}
	policy := FeePolicy{Nominator: nominator, Denominator: denominator}
	if treasury != nil {
		if err := validateFraction(width, treasury.Nominator, treasury.Denominator); err != nil {
			return FeePolicy{}, errorsmod.Wrapf(err, "treasury fee %s/%s", treasury.Nominator, treasury.Denominator)
		}
		copied := *treasury
		policy.Treasury = &copied
	}
	return policy, nil
}

func validateFraction(width numeric.Width, nominator, denominator numeric.Amount) error {
	if denominator.IsZero() {
		return errorsmod.Wrap(ErrInvalidFeePolicy, "zero denominator")
	}
	if nominator.GT(denominator) {
		return errorsmod.Wrap(ErrInvalidFeePolicy, "nominator above denominator")
	}
	if !width.Fits(denominator) {
		return errorsmod.Wrap(ErrInvalidFeePolicy, "denominator exceeds balance width")
	}
	return nil
}

// TreasuryCut is the part of a swap fee owed to the treasury recipient.
type TreasuryCut struct {
	Amount    numeric.Amount `json:"amount"`
	Recipient common.Address `json:"recipient"`
}

// splitFee computes the total fee on amountIn and divides it between the
// pool and the treasury.
func (e *Engine) splitFee(amountIn numeric.Amount) (fee, poolFee numeric.Amount, cut *TreasuryCut, err error) {
	fee, ok := e.width.MulDiv(e.policy.Nominator, amountIn, e.policy.Denominator)
	if !ok {
		return fee, poolFee, nil, ErrUnderflowOrOverflowOccured
	}

	treasury := e.policy.Treasury
	if treasury == nil {
		return fee, fee, nil, nil
	}

	treasuryFee, ok := e.width.MulDiv(treasury.Nominator, fee, treasury.Denominator)
	if !ok {
		return fee, poolFee, nil, ErrUnderflowOrOverflowOccured
	}
	poolFee, ok = e.width.Sub(fee, treasuryFee)
	if !ok {
		return fee, poolFee, nil, ErrUnderflowOccured
	}
	return fee, poolFee, &TreasuryCut{Amount: treasuryFee, Recipient: treasury.Recipient}, nil
}
