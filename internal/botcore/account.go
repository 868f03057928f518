package botcore

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Account is one key-derived identity under management. The proxy pairing is
// fixed at startup; cached balances are written only by the campaign
// controller (or an explicit refresh) and read by the status sink.
type Account struct {
	Index   int
	Key     *ecdsa.PrivateKey
	Address common.Address
	Proxy   string

	BalETH   *big.Int
	BalPrior *big.Int
	BalUSDC  *big.Int
}

// NewAccounts derives accounts from hex private keys, assigning proxies
// round-robin by index. Keys are expected pre-validated by the config loader;
// a malformed key here is still an error, not a skip.
func NewAccounts(keys []string, proxies []string) ([]*Account, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("no accounts configured")
	}
	out := make([]*Account, 0, len(keys))
	for i, k := range keys {
		prv, err := hexToECDSAPriv(k)
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", i+1, err)
		}
		proxy := ""
		if len(proxies) > 0 {
			proxy = proxies[i%len(proxies)]
		}
		out = append(out, &Account{
			Index:    i,
			Key:      prv,
			Address:  gethcrypto.PubkeyToAddress(prv.PublicKey),
			Proxy:    proxy,
			BalETH:   big.NewInt(0),
			BalPrior: big.NewInt(0),
			BalUSDC:  big.NewInt(0),
		})
	}
	return out, nil
}

// Snapshot is the display form of an account's cached balances.
type Snapshot struct {
	Address string
	ETH     string
	Prior   string
	USDC    string
}

func (a *Account) Snapshot() Snapshot {
	return Snapshot{
		Address: ShortAddr(a.Address),
		ETH:     FormatUnits(a.BalETH, 18),
		Prior:   FormatUnits(a.BalPrior, 18),
		USDC:    FormatUnits(a.BalUSDC, 6),
	}
}

// Parse hex ECDSA private key (with / without 0x).
func hexToECDSAPriv(s string) (*ecdsa.PrivateKey, error) {
	h := strings.TrimSpace(strings.TrimPrefix(s, "0x"))
	if len(h) == 0 {
		return nil, fmt.Errorf("empty private key")
	}
	return gethcrypto.HexToECDSA(h)
}

// ShortAddr renders 0x1234...abcd for log lines.
func ShortAddr(a common.Address) string {
	h := a.Hex()
	return h[:6] + "..." + h[len(h)-4:]
}

func ShortHash(h common.Hash) string {
	s := h.Hex()
	return s[:6] + "..." + s[len(s)-4:]
}
