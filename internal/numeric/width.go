package numeric

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Width is the bit width of the balance type. All checked operations fail
// when a result does not fit in it.
type Width uint

const (
	Width64  Width = 64
	Width128 Width = 128
	Width256 Width = 256
)

// NewWidth validates a bit width: a multiple of 8 between 8 and 256.
func NewWidth(bits int) (Width, error) {
	if bits < 8 || bits > 256 || bits%8 != 0 {
		return 0, fmt.Errorf("invalid balance width %d: want a multiple of 8 in [8, 256]", bits)
	}
	return Width(bits), nil
}

// Max is the largest representable amount, 2^w - 1.
func (w Width) Max() Amount {
	var a Amount
	if w >= Width256 {
		a.v.SetAllOne()
		return a
	}
	a.v.Lsh(uint256.NewInt(1), uint(w))
	a.v.SubUint64(&a.v, 1)
	return a
}

// Fits reports whether a is representable in w bits.
func (w Width) Fits(a Amount) bool {
	return a.v.BitLen() <= int(w)
}

// MinFee is the dust deduction applied to the first share mint. Wider
// balance types carry more decimals, so the deduction grows with the width.
func (w Width) MinFee() Amount {
	switch {
	case w <= 64:
		return NewAmount(1)
	case w < 128:
		return NewAmount(10)
	default:
		return NewAmount(1000)
	}
}

// Add returns a+b, false on overflow.
func (w Width) Add(a, b Amount) (Amount, bool) {
	var out Amount
	if _, overflow := out.v.AddOverflow(&a.v, &b.v); overflow {
		return Amount{}, false
	}
	if !w.Fits(out) {
		return Amount{}, false
	}
	return out, true
}

// Sub returns a-b, false on underflow.
func (w Width) Sub(a, b Amount) (Amount, bool) {
	if a.v.Lt(&b.v) {
		return Amount{}, false
	}
	var out Amount
	out.v.Sub(&a.v, &b.v)
	return out, true
}

// Mul returns a*b, false on overflow.
func (w Width) Mul(a, b Amount) (Amount, bool) {
	var out Amount
	if _, overflow := out.v.MulOverflow(&a.v, &b.v); overflow {
		return Amount{}, false
	}
	if !w.Fits(out) {
		return Amount{}, false
	}
	return out, true
}

// Div returns floor(a/b), false when b is zero.
func (w Width) Div(a, b Amount) (Amount, bool) {
	if b.v.IsZero() {
		return Amount{}, false
	}
	var out Amount
	out.v.Div(&a.v, &b.v)
	return out, true
}

// MulDiv returns floor(a*b/c), false if the product overflows or c is zero.
func (w Width) MulDiv(a, b, c Amount) (Amount, bool) {
	product, ok := w.Mul(a, b)
	if !ok {
		return Amount{}, false
	}
	return w.Div(product, c)
}

// Sqrt returns floor(sqrt(a)), false when a itself is not representable.
func (w Width) Sqrt(a Amount) (Amount, bool) {
	if !w.Fits(a) {
		return Amount{}, false
	}
	var root Amount
	root.v.Sqrt(&a.v)
	return root, true
}
