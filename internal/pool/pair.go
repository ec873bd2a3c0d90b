package pool

import (
	"fmt"
	"strings"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PairKey identifies a pool by its two asset identifiers, in order.
type PairKey struct {
	First  string `json:"first"`
	Second string `json:"second"`
}

// NewPairKey trims and validates the asset identifiers.
func NewPairKey(first, second string) (PairKey, error) {
	key := PairKey{First: strings.TrimSpace(first), Second: strings.TrimSpace(second)}
	if err := key.Validate(); err != nil {
		return PairKey{}, err
	}
	return key, nil
}

func (k PairKey) Validate() error {
	if k.First == "" || k.Second == "" {
		return errorsmod.Wrap(ErrInvalidPair, "empty asset id")
	}
	if k.First == k.Second {
		return errorsmod.Wrapf(ErrInvalidPair, "same asset %q on both sides", k.First)
	}
	if strings.Contains(k.First, "/") || strings.Contains(k.Second, "/") {
		return errorsmod.Wrap(ErrInvalidPair, "asset id contains '/'")
	}
	return nil
}

func (k PairKey) String() string {
	return k.First + "/" + k.Second
}

// ParsePairKey parses the "first/second" form produced by String.
func ParsePairKey(s string) (PairKey, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return PairKey{}, errorsmod.Wrapf(ErrInvalidPair, "want first/second, got %q", s)
	}
	return NewPairKey(parts[0], parts[1])
}

// Hash is keccak256(first || 0x00 || second).
func (k PairKey) Hash() common.Hash {
	return crypto.Keccak256Hash([]byte(k.First), []byte{0}, []byte(k.Second))
}

// Account is the custody account holding the pool's reserves.
func (k PairKey) Account() common.Address {
	return common.BytesToAddress(k.Hash().Bytes()[12:])
}

// Asset returns the asset identifier on the given side.
func (k PairKey) Asset(first bool) string {
	if first {
		return k.First
	}
	return k.Second
}

// Direction selects which reserve receives the swap input.
type Direction uint8

const (
	FirstToSecond Direction = iota
	SecondToFirst
)

func (d Direction) String() string {
	switch d {
	case FirstToSecond:
		return "first_to_second"
	case SecondToFirst:
		return "second_to_first"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// ParseDirection accepts the String form and the short "1to2"/"2to1" forms.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "first_to_second", "1to2", "first":
		return FirstToSecond, nil
	case "second_to_first", "2to1", "second":
		return SecondToFirst, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s", s)
	}
}

// InputAsset is the asset the trader pays in.
func (d Direction) InputAsset(pair PairKey) string {
	return pair.Asset(d == FirstToSecond)
}

// OutputAsset is the asset the trader receives.
func (d Direction) OutputAsset(pair PairKey) string {
	return pair.Asset(d != FirstToSecond)
}
