// Package priorapi talks to the Prior testnet campaign backend. All calls are
// best effort telemetry; callers log failures and move on.
package priorapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	xproxy "golang.org/x/net/proxy"

	"github.com/adbnode/prior-auto/internal/botcore"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"

// Client reports swaps and faucet claims to the campaign API. Requests are
// retried a fixed number of times with a fixed delay; per-attempt failures
// are aggregated into the returned error.
type Client struct {
	BaseURL string
	Site    string // Referer origin, the API base without the /api suffix

	RetryAttempts int
	RetryDelay    time.Duration

	// ProxyFor maps a wallet to its proxy URL so API traffic exits through
	// the same proxy as the wallet's RPC traffic. Nil means direct.
	ProxyFor func(common.Address) string

	log *botcore.EventLog

	mu      sync.Mutex
	clients map[string]*http.Client
}

func NewClient(baseURL string, log *botcore.EventLog) *Client {
	if log == nil {
		log = botcore.NewEventLog(0, nil)
	}
	return &Client{
		BaseURL:       strings.TrimSuffix(baseURL, "/"),
		Site:          strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/api"),
		RetryAttempts: 3,
		RetryDelay:    2 * time.Second,
		log:           log,
		clients:       make(map[string]*http.Client),
	}
}

func (c *Client) proxyFor(addr common.Address) string {
	if c.ProxyFor == nil {
		return ""
	}
	return c.ProxyFor(addr)
}

// httpClientFor returns the HTTP client for a proxy URL, creating it lazily.
func (c *Client) httpClientFor(proxyURL string) (*http.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hc, ok := c.clients[proxyURL]; ok {
		return hc, nil
	}
	transport := &http.Transport{
		MaxIdleConns:    50,
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
	hc := &http.Client{Timeout: 20 * time.Second, Transport: transport}
	c.clients[proxyURL] = hc
	return hc, nil
}

// setHeaders applies the browser-shaped headers the backend expects.
func (c *Client) setHeaders(req *http.Request, referer string) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", c.Site)
	req.Header.Set("Referer", referer)
	req.Header.Set("Sec-Ch-Ua", `"Chromium";v="135", "Not-A.Brand";v="8", "Brave";v="135"`)
	req.Header.Set("Sec-Ch-Ua-Mobile", "?0")
	req.Header.Set("Sec-Ch-Ua-Platform", `"Windows"`)
	req.Header.Set("Sec-Fetch-Dest", "empty")
	req.Header.Set("Sec-Fetch-Mode", "cors")
	req.Header.Set("Sec-Fetch-Site", "same-origin")
}

// do issues the request with the fixed retry schedule. All attempt errors
// are joined into the final error; a nil return means some attempt got a
// 2xx response.
func (c *Client) do(ctx context.Context, method, path, referer, proxy string, body []byte) ([]byte, error) {
	hc, err := c.httpClientFor(proxy)
	if err != nil {
		return nil, err
	}
	attempts := c.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	var errs []error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				errs = append(errs, ctx.Err())
				return nil, errors.Join(errs...)
			case <-time.After(c.RetryDelay):
			}
		}
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
		if err != nil {
			return nil, err
		}
		c.setHeaders(req, referer)

		resp, err := hc.Do(req)
		if err != nil {
			errs = append(errs, fmt.Errorf("attempt %d: %w", attempt, err))
			c.log.Logf(botcore.SevWait, "api %s %s attempt %d/%d failed: %v", method, path, attempt, attempts, err)
			continue
		}
		data, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if readErr != nil {
				return nil, readErr
			}
			return data, nil
		}
		errs = append(errs, fmt.Errorf("attempt %d: status %d: %s", attempt, resp.StatusCode, strings.TrimSpace(string(data))))
		c.log.Logf(botcore.SevWait, "api %s %s attempt %d/%d: status %d", method, path, attempt, attempts, resp.StatusCode)
	}
	return nil, errors.Join(errs...)
}

type swapReport struct {
	Address   string `json:"address"`
	Amount    string `json:"amount"`
	TokenFrom string `json:"tokenFrom"`
	TokenTo   string `json:"tokenTo"`
	TxHash    string `json:"txHash"`
}

// ReportSwap records a confirmed swap against the wallet's campaign profile.
func (c *Client) ReportSwap(ctx context.Context, addr common.Address, txHash common.Hash, fromSymbol, toSymbol, fromAmount string) error {
	body, err := json.Marshal(swapReport{
		Address:   strings.ToLower(addr.Hex()),
		Amount:    fromAmount,
		TokenFrom: fromSymbol,
		TokenTo:   toSymbol,
		TxHash:    txHash.Hex(),
	})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, "/swap", c.Site+"/swap", c.proxyFor(addr), body)
	return err
}

type faucetReport struct {
	Address string `json:"address"`
}

// ReportFaucetClaim records a confirmed faucet claim. The backend keys claims
// purely on the wallet address; the tx hash stays local.
func (c *Client) ReportFaucetClaim(ctx context.Context, addr common.Address, _ common.Hash) error {
	body, err := json.Marshal(faucetReport{
		Address: strings.ToLower(addr.Hex()),
	})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, "/faucet/claim", c.Site+"/faucet", c.proxyFor(addr), body)
	return err
}

type userRecord struct {
	LastFaucetClaim string `json:"lastFaucetClaim"`
}

// LastFaucetClaim fetches the wallet's last faucet claim time from its user
// record. A zero time with nil error means the wallet has never claimed.
func (c *Client) LastFaucetClaim(ctx context.Context, addr common.Address) (time.Time, error) {
	data, err := c.do(ctx, http.MethodGet, "/users/"+strings.ToLower(addr.Hex()), c.Site+"/faucet", c.proxyFor(addr), nil)
	if err != nil {
		return time.Time{}, err
	}
	var rec userRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return time.Time{}, fmt.Errorf("user record: %w", err)
	}
	if rec.LastFaucetClaim == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, rec.LastFaucetClaim)
	if err != nil {
		return time.Time{}, fmt.Errorf("lastFaucetClaim %q: %w", rec.LastFaucetClaim, err)
	}
	return t, nil
}

var _ botcore.Reporter = (*Client)(nil)
