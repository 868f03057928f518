package botcore

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	xproxy "golang.org/x/net/proxy"
)

// Testnet economics allow static, generous gas parameters instead of
// estimation.
var (
	approveGasLimit = uint64(300_000)
	swapGasLimit    = uint64(300_000)

	approveFeeCap = gweiToWei(1)
	approveTip    = big.NewInt(500_000_000) // 0.5 gwei
	swapFeeCap    = gweiToWei(5)
	swapTip       = gweiToWei(1)
)

// Receipt is the confirmed outcome of a submitted transaction.
type Receipt struct {
	TxHash      common.Hash
	Status      uint64
	BlockNumber *big.Int
}

func (r *Receipt) Success() bool { return r.Status == types.ReceiptStatusSuccessful }

// ApproveResult reports whether an approval was actually submitted; Skipped
// means the existing allowance already covers the amount.
type ApproveResult struct {
	Skipped bool
	Hash    common.Hash
}

// Gateway wraps JSON-RPC access for all accounts, dialing one client per
// proxy. It owns no state beyond connection handles and the nonce tracker;
// retry policy for mutations belongs to the caller.
type Gateway struct {
	rpcURL      string
	chainID     *big.Int
	router      common.Address
	faucet      common.Address
	receiptWait time.Duration
	nonces      *NonceTracker

	mu      sync.Mutex
	clients map[string]*ethclient.Client
}

func NewGateway(rpcURL string, chainID int64, router, faucet common.Address, receiptWait time.Duration) *Gateway {
	if receiptWait <= 0 {
		receiptWait = 90 * time.Second
	}
	return &Gateway{
		rpcURL:      rpcURL,
		chainID:     big.NewInt(chainID),
		router:      router,
		faucet:      faucet,
		receiptWait: receiptWait,
		nonces:      NewNonceTracker(),
		clients:     make(map[string]*ethclient.Client),
	}
}

func (g *Gateway) Nonces() *NonceTracker { return g.nonces }

// clientFor returns the ethclient for the account's proxy, dialing lazily.
func (g *Gateway) clientFor(acct *Account) (*ethclient.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ec, ok := g.clients[acct.Proxy]; ok {
		return ec, nil
	}
	ec, err := dialWithProxy(g.rpcURL, acct.Proxy)
	if err != nil {
		return nil, err
	}
	g.clients[acct.Proxy] = ec
	return ec, nil
}

// dialWithProxy dials RPC over an optionally proxied HTTP client with
// keep-alives and sane timeouts.
func dialWithProxy(rpcURL, proxyURL string) (*ethclient.Client, error) {
	transport := &http.Transport{
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
	}
	if proxyURL != "" {
		if strings.HasPrefix(proxyURL, "socks") {
			addr := proxyURL
			if i := strings.Index(addr, "://"); i >= 0 {
				addr = addr[i+3:]
			}
			dialer, err := xproxy.SOCKS5("tcp", addr, nil, xproxy.Direct)
			if err != nil {
				return nil, fmt.Errorf("socks dialer: %w", err)
			}
			transport.Dial = dialer.Dial
		} else {
			u, err := url.Parse(proxyURL)
			if err != nil {
				return nil, fmt.Errorf("proxy url: %w", err)
			}
			transport.Proxy = http.ProxyURL(u)
		}
	}
	httpClient := &http.Client{Timeout: 30 * time.Second, Transport: transport}
	rpcClient, err := rpc.DialHTTPWithClient(rpcURL, httpClient)
	if err != nil {
		return nil, err
	}
	return ethclient.NewClient(rpcClient), nil
}

// callWithRetry performs eth_call with small exponential backoff.
func callWithRetry(ctx context.Context, ec *ethclient.Client, msg ethereum.CallMsg) ([]byte, error) {
	const maxAttempts = 3
	backoff := 200 * time.Millisecond
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ret, err := ec.CallContract(ctx, msg, nil)
		if err == nil {
			return ret, nil
		}
		lastErr = err
		if attempt < maxAttempts {
			time.Sleep(backoff)
			if strings.Contains(err.Error(), "Too Many Requests") || strings.Contains(err.Error(), "-32005") {
				backoff *= 2
			}
		}
	}
	return nil, lastErr
}

func (g *Gateway) NativeBalance(ctx context.Context, acct *Account) (*big.Int, error) {
	ec, err := g.clientFor(acct)
	if err != nil {
		return nil, err
	}
	return ec.BalanceAt(ctx, acct.Address, nil)
}

func (g *Gateway) TokenBalance(ctx context.Context, acct *Account, token common.Address) (*big.Int, error) {
	ec, err := g.clientFor(acct)
	if err != nil {
		return nil, err
	}
	ret, err := callWithRetry(ctx, ec, ethereum.CallMsg{To: &token, Data: encodeBalanceOf(acct.Address)})
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(ret), nil
}

func (g *Gateway) allowance(ctx context.Context, ec *ethclient.Client, token, owner common.Address) (*big.Int, error) {
	ret, err := callWithRetry(ctx, ec, ethereum.CallMsg{To: &token, Data: encodeAllowance(owner, g.router)})
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(ret), nil
}

// ApproveRouter submits an unlimited approval for the router when the current
// allowance does not cover amount. The token balance is checked first;
// balance < amount means no transaction is sent at all.
func (g *Gateway) ApproveRouter(ctx context.Context, acct *Account, token common.Address, amount *big.Int) (ApproveResult, error) {
	ec, err := g.clientFor(acct)
	if err != nil {
		return ApproveResult{}, err
	}
	bal, err := g.TokenBalance(ctx, acct, token)
	if err != nil {
		return ApproveResult{}, err
	}
	if bal.Cmp(amount) < 0 {
		return ApproveResult{}, opErrf(KindInsufficientBalance,
			"balance %s < amount %s", bal.String(), amount.String())
	}
	allow, err := g.allowance(ctx, ec, token, acct.Address)
	if err != nil {
		return ApproveResult{}, err
	}
	if allow.Cmp(amount) >= 0 {
		return ApproveResult{Skipped: true}, nil
	}
	hash, err := g.sendTx(ctx, ec, acct, &token, encodeApprove(g.router, maxApproval),
		approveGasLimit, approveTip, approveFeeCap)
	if err != nil {
		return ApproveResult{}, err
	}
	return ApproveResult{Hash: hash}, nil
}

// SubmitSwap sends the raw selector+amount call to the router.
func (g *Gateway) SubmitSwap(ctx context.Context, acct *Account, selector [4]byte, amount *big.Int) (common.Hash, error) {
	ec, err := g.clientFor(acct)
	if err != nil {
		return common.Hash{}, err
	}
	return g.sendTx(ctx, ec, acct, &g.router, EncodeAmountCall(selector, amount),
		swapGasLimit, swapTip, swapFeeCap)
}

// ClaimFaucet sends the faucet claim() transaction.
func (g *Gateway) ClaimFaucet(ctx context.Context, acct *Account) (common.Hash, error) {
	ec, err := g.clientFor(acct)
	if err != nil {
		return common.Hash{}, err
	}
	return g.sendTx(ctx, ec, acct, &g.faucet, sel("claim()"),
		approveGasLimit, approveTip, approveFeeCap)
}

// FaucetCooldown reads lastClaimTime(address) and claimInterval() from the
// faucet contract.
func (g *Gateway) FaucetCooldown(ctx context.Context, acct *Account) (time.Time, time.Duration, error) {
	ec, err := g.clientFor(acct)
	if err != nil {
		return time.Time{}, 0, err
	}
	data := append(sel("lastClaimTime(address)"), common.LeftPadBytes(acct.Address.Bytes(), 32)...)
	ret, err := callWithRetry(ctx, ec, ethereum.CallMsg{To: &g.faucet, Data: data})
	if err != nil {
		return time.Time{}, 0, err
	}
	last := time.Unix(new(big.Int).SetBytes(ret).Int64(), 0)

	ret, err = callWithRetry(ctx, ec, ethereum.CallMsg{To: &g.faucet, Data: sel("claimInterval()")})
	if err != nil {
		return time.Time{}, 0, err
	}
	interval := time.Duration(new(big.Int).SetBytes(ret).Int64()) * time.Second
	return last, interval, nil
}

// sendTx allocates a nonce, builds, signs and submits an EIP-1559 transaction.
// The nonce is taken immediately before submission.
func (g *Gateway) sendTx(ctx context.Context, ec *ethclient.Client, acct *Account, to *common.Address, data []byte, gasLimit uint64, tip, feeCap *big.Int) (common.Hash, error) {
	nonce, err := g.nonces.Next(ctx, ec, acct.Address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce: %w", err)
	}
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   g.chainID,
		Nonce:     nonce,
		Gas:       gasLimit,
		GasTipCap: new(big.Int).Set(tip),
		GasFeeCap: new(big.Int).Set(feeCap),
		To:        to,
		Value:     big.NewInt(0),
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(g.chainID), acct.Key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign: %w", err)
	}
	if err := ec.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	return signed.Hash(), nil
}

// WaitReceipt polls for the receipt until the configured timeout. A timeout
// is surfaced as KindTransactionTimeout, distinct from an on-chain revert
// which shows up in the returned receipt's status.
func (g *Gateway) WaitReceipt(ctx context.Context, acct *Account, hash common.Hash) (*Receipt, error) {
	ec, err := g.clientFor(acct)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(g.receiptWait)
	for {
		rcpt, err := ec.TransactionReceipt(ctx, hash)
		if err == nil && rcpt != nil {
			return &Receipt{TxHash: hash, Status: rcpt.Status, BlockNumber: rcpt.BlockNumber}, nil
		}
		if ctx.Err() != nil {
			return nil, opErrf(KindTransactionTimeout, "wait %s: %v", ShortHash(hash), ctx.Err())
		}
		if time.Now().After(deadline) {
			return nil, opErrf(KindTransactionTimeout, "no receipt for %s after %s", ShortHash(hash), g.receiptWait)
		}
		time.Sleep(1 * time.Second)
	}
}
