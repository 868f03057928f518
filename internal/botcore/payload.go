package botcore

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Router swap selectors. The router takes a single uint256 amount parameter;
// direction is chosen by the selector, not an argument.
var (
	SelectorPriorToUSDC = [4]byte{0x8e, 0xc7, 0xba, 0xf1}
	SelectorUSDCToPrior = [4]byte{0xea, 0x0e, 0x43, 0x58}
)

// EncodeAmountCall builds selector + 32-byte big-endian zero-padded amount.
func EncodeAmountCall(selector [4]byte, amount *big.Int) []byte {
	out := make([]byte, 0, 4+32)
	out = append(out, selector[:]...)
	out = append(out, common.LeftPadBytes(amount.Bytes(), 32)...)
	return out
}

// ERC20 calldata builders (well-known selectors).
func encodeBalanceOf(owner common.Address) []byte {
	return append(common.FromHex("0x70a08231"), common.LeftPadBytes(owner.Bytes(), 32)...)
}

func encodeAllowance(owner, spender common.Address) []byte {
	data := append(common.FromHex("0xdd62ed3e"), common.LeftPadBytes(owner.Bytes(), 32)...)
	return append(data, common.LeftPadBytes(spender.Bytes(), 32)...)
}

func encodeApprove(spender common.Address, amount *big.Int) []byte {
	data := append(common.FromHex("0x095ea7b3"), common.LeftPadBytes(spender.Bytes(), 32)...)
	return append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
}

func sel(sig string) []byte {
	h := gethcrypto.Keccak256([]byte(sig))
	return h[:4]
}

// maxApproval is the unlimited allowance value (2^256 - 1).
var maxApproval = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ParseUnits converts a decimal token amount ("0.1") to its integer
// representation with the given decimals. Excess fractional digits are
// truncated.
func ParseUnits(s string, decimals int) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		frac = frac[:decimals]
	}
	frac += strings.Repeat("0", decimals-len(frac))
	z, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("bad amount %q", s)
	}
	if z.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	return z, nil
}

// FormatUnits renders an integer token amount with up to 4 fractional digits.
func FormatUnits(x *big.Int, decimals int) string {
	if x == nil {
		return "0"
	}
	base := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	var intPart, frac big.Int
	intPart.Quo(x, base)
	frac.Rem(x, base)
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(4), nil)
	fracScaled := new(big.Int).Mul(&frac, scale)
	fracScaled.Quo(fracScaled, base)
	fs := fracScaled.String()
	if len(fs) < 4 {
		fs = strings.Repeat("0", 4-len(fs)) + fs
	}
	fs = strings.TrimRight(fs, "0")
	if fs == "" {
		return intPart.String()
	}
	return intPart.String() + "." + fs
}

func gweiToWei(g int64) *big.Int {
	x := new(big.Int).SetInt64(g)
	return x.Mul(x, big.NewInt(1_000_000_000))
}
