package botcore

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// State is the campaign lifecycle phase.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// ChainGateway is the chain surface the controller drives. *Gateway is the
// production implementation; tests substitute a fake.
type ChainGateway interface {
	NativeBalance(ctx context.Context, acct *Account) (*big.Int, error)
	TokenBalance(ctx context.Context, acct *Account, token common.Address) (*big.Int, error)
	ApproveRouter(ctx context.Context, acct *Account, token common.Address, amount *big.Int) (ApproveResult, error)
	SubmitSwap(ctx context.Context, acct *Account, selector [4]byte, amount *big.Int) (common.Hash, error)
	ClaimFaucet(ctx context.Context, acct *Account) (common.Hash, error)
	FaucetCooldown(ctx context.Context, acct *Account) (time.Time, time.Duration, error)
	WaitReceipt(ctx context.Context, acct *Account, hash common.Hash) (*Receipt, error)
}

// Reporter pushes activity to the campaign backend. Reporting is best effort:
// a reporter failure never fails the operation that triggered it.
type Reporter interface {
	ReportSwap(ctx context.Context, addr common.Address, txHash common.Hash, fromSymbol, toSymbol, fromAmount string) error
	ReportFaucetClaim(ctx context.Context, addr common.Address, txHash common.Hash) error
	LastFaucetClaim(ctx context.Context, addr common.Address) (time.Time, error)
}

// Direction describes one leg of the swap pair.
type Direction struct {
	Label      string
	Selector   [4]byte
	FromToken  common.Address
	ToToken    common.Address
	FromSymbol string
	ToSymbol   string
	Decimals   int
}

// CooldownSource selects where the faucet cooldown is read from.
type CooldownSource string

const (
	CooldownAPI      CooldownSource = "api"
	CooldownContract CooldownSource = "contract"
)

// SwapParams tunes one campaign run. Zero values fall back to the
// controller's configured defaults. An empty max amount means the fixed
// amount is used; otherwise each swap draws uniformly from [amount, max].
type SwapParams struct {
	Cycles         int
	AmountPrior    string
	AmountPriorMax string
	AmountUSDC     string
	AmountUSDCMax  string
	DelayMin       time.Duration
	DelayMax       time.Duration
	CycleDelay     time.Duration
}

// ControllerConfig carries the campaign defaults and wiring.
type ControllerConfig struct {
	Directions  [2]Direction
	Defaults    SwapParams
	FaucetDelay time.Duration
	Cooldown    CooldownSource
	APICooldown time.Duration
}

// Controller runs at most one campaign at a time, either the swap loop or
// the faucet sweep. All campaign work happens on a single goroutine; Stop
// cancels it and the controller settles into Stopped once the goroutine
// observes the cancellation.
type Controller struct {
	gw       ChainGateway
	reporter Reporter
	accounts []*Account
	log      *EventLog
	cfg      ControllerConfig
	rng      *rand.Rand

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

func NewController(gw ChainGateway, reporter Reporter, accounts []*Account, log *EventLog, cfg ControllerConfig) *Controller {
	if log == nil {
		log = NewEventLog(0, nil)
	}
	if cfg.FaucetDelay <= 0 {
		cfg.FaucetDelay = 10 * time.Second
	}
	if cfg.Cooldown == "" {
		cfg.Cooldown = CooldownAPI
	}
	if cfg.APICooldown <= 0 {
		cfg.APICooldown = 24 * time.Hour
	}
	return &Controller{
		gw:       gw,
		reporter: reporter,
		accounts: accounts,
		log:      log,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		state:    StateIdle,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// begin flips the controller into Running, rejecting concurrent campaigns.
func (c *Controller) begin() (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateRunning {
		return nil, opErrf(KindAlreadyRunning, "a campaign is already running")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.state = StateRunning
	c.cancel = cancel
	c.done = make(chan struct{})
	return ctx, nil
}

// finish publishes the campaign outcome and returns the controller to Idle
// so the command surface shows a startable state. Cancellation wins over
// completion.
func (c *Controller) finish(ctx context.Context) {
	outcome := StateCompleted
	if ctx.Err() != nil {
		outcome = StateStopped
	}
	c.mu.Lock()
	c.state = StateIdle
	c.cancel = nil
	done := c.done
	c.mu.Unlock()
	// Publish before releasing waiters so Wait() observes the outcome.
	c.log.Sink().RunState(outcome)
	c.log.Sink().RunState(StateIdle)
	close(done)
}

// Stop cancels the running campaign, if any. It does not wait for the
// campaign goroutine to unwind.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		c.log.Logf(SevWait, "stop requested")
		cancel()
	}
}

// Wait blocks until the current campaign goroutine exits. No-op when idle.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// StartSwapCampaign launches the swap loop on its own goroutine. Returns
// KindAlreadyRunning while another campaign is active.
func (c *Controller) StartSwapCampaign(params SwapParams) error {
	params = c.withDefaults(params)
	if err := c.checkAmounts(params); err != nil {
		return err
	}
	ctx, err := c.begin()
	if err != nil {
		return err
	}
	c.log.Sink().RunState(StateRunning)
	go func() {
		defer c.finish(ctx)
		c.runSwaps(ctx, params)
	}()
	return nil
}

// StartFaucetSweep launches the faucet claim pass over all accounts. It
// shares the single-campaign gate with the swap loop.
func (c *Controller) StartFaucetSweep() error {
	ctx, err := c.begin()
	if err != nil {
		return err
	}
	c.log.Sink().RunState(StateRunning)
	go func() {
		defer c.finish(ctx)
		c.runFaucetSweep(ctx)
	}()
	return nil
}

// checkAmounts rejects malformed amount settings before any campaign state
// changes; a bad amount is an operator input error, not a mid-run failure.
func (c *Controller) checkAmounts(p SwapParams) error {
	for _, a := range []struct {
		min, max string
		decimals int
	}{
		{p.AmountPrior, p.AmountPriorMax, c.cfg.Directions[0].Decimals},
		{p.AmountUSDC, p.AmountUSDCMax, c.cfg.Directions[1].Decimals},
	} {
		if _, err := ParseUnits(a.min, a.decimals); err != nil {
			return fmt.Errorf("swap amount: %w", err)
		}
		if a.max != "" {
			if _, err := ParseUnits(a.max, a.decimals); err != nil {
				return fmt.Errorf("swap amount max: %w", err)
			}
		}
	}
	return nil
}

func (c *Controller) withDefaults(p SwapParams) SwapParams {
	d := c.cfg.Defaults
	if p.Cycles <= 0 {
		p.Cycles = d.Cycles
	}
	if p.AmountPrior == "" {
		p.AmountPrior = d.AmountPrior
		p.AmountPriorMax = d.AmountPriorMax
	}
	if p.AmountUSDC == "" {
		p.AmountUSDC = d.AmountUSDC
		p.AmountUSDCMax = d.AmountUSDCMax
	}
	if p.DelayMin <= 0 {
		p.DelayMin = d.DelayMin
	}
	if p.DelayMax < p.DelayMin {
		p.DelayMax = d.DelayMax
	}
	if p.DelayMax < p.DelayMin {
		p.DelayMax = p.DelayMin
	}
	if p.CycleDelay <= 0 {
		p.CycleDelay = d.CycleDelay
	}
	return p
}

// runSwaps walks cycles in the outer loop and accounts in the inner loop.
// Odd cycles swap in the first configured direction, even cycles reverse.
func (c *Controller) runSwaps(ctx context.Context, params SwapParams) {
	c.log.Logf(SevInfo, "swap campaign: %d cycles over %d wallets", params.Cycles, len(c.accounts))
	for cycle := 1; cycle <= params.Cycles; cycle++ {
		dirIdx := (cycle - 1) % 2
		dir := c.cfg.Directions[dirIdx]
		minStr, maxStr := params.AmountPrior, params.AmountPriorMax
		if dirIdx == 1 {
			minStr, maxStr = params.AmountUSDC, params.AmountUSDCMax
		}
		c.log.Logf(SevInfo, "cycle %d/%d: %s", cycle, params.Cycles, dir.Label)

		for i, acct := range c.accounts {
			if ctx.Err() != nil {
				return
			}
			amount, amountStr, err := c.drawAmount(minStr, maxStr, dir.Decimals)
			if err != nil {
				c.log.Logf(SevError, "cycle %d: bad amount %q: %v", cycle, minStr, err)
				return
			}
			if err := c.swapOnce(ctx, acct, dir, amount, amountStr); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.log.Logf(SevError, "wallet %d %s: %s: %v",
					acct.Index, ShortAddr(acct.Address), KindOf(err), err)
			}
			if i < len(c.accounts)-1 {
				if !c.sleep(ctx, c.randDelay(params.DelayMin, params.DelayMax)) {
					return
				}
			}
		}
		if cycle < params.Cycles {
			c.log.Logf(SevWait, "cycle %d done, pausing %s", cycle, params.CycleDelay)
			if !c.sleep(ctx, params.CycleDelay) {
				return
			}
		}
	}
	c.log.Logf(SevSuccess, "swap campaign finished: %d cycles", params.Cycles)
}

// swapOnce performs approve-if-needed then swap for one wallet, and reports
// the swap on success.
func (c *Controller) swapOnce(ctx context.Context, acct *Account, dir Direction, amount *big.Int, amountStr string) error {
	ap, err := c.gw.ApproveRouter(ctx, acct, dir.FromToken, amount)
	if err != nil {
		if IsKind(err, KindInsufficientBalance) {
			// An informational skip, not a campaign error.
			c.log.Logf(SevWait, "wallet %d %s: skipping %s, %v",
				acct.Index, ShortAddr(acct.Address), dir.Label, err)
			return nil
		}
		return &OpError{Kind: KindApprovalFailed, Err: err}
	}
	if !ap.Skipped {
		c.log.Logf(SevInfo, "wallet %d: approval sent %s", acct.Index, ShortHash(ap.Hash))
		rcpt, err := c.gw.WaitReceipt(ctx, acct, ap.Hash)
		if err != nil {
			return err
		}
		if !rcpt.Success() {
			return opErrf(KindApprovalFailed, "approval %s reverted", ShortHash(ap.Hash))
		}
		c.log.Logf(SevSuccess, "wallet %d: approval confirmed", acct.Index)
	}

	hash, err := c.gw.SubmitSwap(ctx, acct, dir.Selector, amount)
	if err != nil {
		return err
	}
	c.log.Logf(SevInfo, "wallet %d: swap %s %s sent %s",
		acct.Index, amountStr, dir.FromSymbol, ShortHash(hash))
	rcpt, err := c.gw.WaitReceipt(ctx, acct, hash)
	if err != nil {
		return err
	}
	if !rcpt.Success() {
		return opErrf(KindSwapReverted, "swap %s reverted", ShortHash(hash))
	}
	c.log.Logf(SevSuccess, "wallet %d: swap confirmed in block %s", acct.Index, rcpt.BlockNumber)

	if c.reporter != nil {
		if err := c.reporter.ReportSwap(ctx, acct.Address, hash, dir.FromSymbol, dir.ToSymbol, amountStr); err != nil {
			c.log.Logf(SevError, "wallet %d: swap report failed: %v", acct.Index, err)
		}
	}
	c.refreshOne(ctx, acct)
	return nil
}

// refreshOne updates one wallet's cached balances after a mutation and pushes
// the full table to the sink.
func (c *Controller) refreshOne(ctx context.Context, acct *Account) {
	if ctx.Err() != nil {
		return
	}
	acct.BalETH = c.readOrZero(acct, "ETH", func() (*big.Int, error) {
		return c.gw.NativeBalance(ctx, acct)
	})
	acct.BalPrior = c.readOrZero(acct, c.cfg.Directions[0].FromSymbol, func() (*big.Int, error) {
		return c.gw.TokenBalance(ctx, acct, c.cfg.Directions[0].FromToken)
	})
	acct.BalUSDC = c.readOrZero(acct, c.cfg.Directions[1].FromSymbol, func() (*big.Int, error) {
		return c.gw.TokenBalance(ctx, acct, c.cfg.Directions[1].FromToken)
	})
	snaps := make([]Snapshot, 0, len(c.accounts))
	for _, a := range c.accounts {
		snaps = append(snaps, a.Snapshot())
	}
	c.log.Sink().Wallets(snaps)
}

// RefreshBalances re-reads ETH and token balances for every account and
// publishes the snapshots to the sink. Reads are best effort for display: a
// failed read logs a warning and shows as zero. Refused while a campaign is
// running: the campaign goroutine refreshes balances itself after each
// mutation, and cached balances must have a single writer per account.
func (c *Controller) RefreshBalances(ctx context.Context) ([]Snapshot, error) {
	c.mu.Lock()
	if c.state == StateRunning {
		c.mu.Unlock()
		return nil, opErrf(KindAlreadyRunning, "cannot refresh balances while a campaign is running")
	}
	c.mu.Unlock()
	snaps := make([]Snapshot, 0, len(c.accounts))
	for _, acct := range c.accounts {
		if ctx.Err() != nil {
			return snaps, ctx.Err()
		}
		acct.BalETH = c.readOrZero(acct, "ETH", func() (*big.Int, error) {
			return c.gw.NativeBalance(ctx, acct)
		})
		acct.BalPrior = c.readOrZero(acct, c.cfg.Directions[0].FromSymbol, func() (*big.Int, error) {
			return c.gw.TokenBalance(ctx, acct, c.cfg.Directions[0].FromToken)
		})
		acct.BalUSDC = c.readOrZero(acct, c.cfg.Directions[1].FromSymbol, func() (*big.Int, error) {
			return c.gw.TokenBalance(ctx, acct, c.cfg.Directions[1].FromToken)
		})
		snaps = append(snaps, acct.Snapshot())
	}
	c.log.Sink().Wallets(snaps)
	return snaps, nil
}

func (c *Controller) readOrZero(acct *Account, what string, read func() (*big.Int, error)) *big.Int {
	bal, err := read()
	if err != nil {
		c.log.Logf(SevWait, "wallet %d: %s balance read failed: %v", acct.Index, what, err)
		return big.NewInt(0)
	}
	return bal
}

// drawAmount resolves the swap amount: fixed when no max is configured,
// otherwise uniform in [min, max]. Returns the integer amount and its
// display form.
func (c *Controller) drawAmount(minStr, maxStr string, decimals int) (*big.Int, string, error) {
	min, err := ParseUnits(minStr, decimals)
	if err != nil {
		return nil, "", err
	}
	if maxStr == "" || maxStr == minStr {
		return min, minStr, nil
	}
	max, err := ParseUnits(maxStr, decimals)
	if err != nil {
		return nil, "", err
	}
	if max.Cmp(min) <= 0 {
		return min, minStr, nil
	}
	span := new(big.Int).Sub(max, min)
	span.Add(span, big.NewInt(1))
	amount := new(big.Int).Rand(c.rng, span)
	amount.Add(amount, min)
	return amount, FormatUnits(amount, decimals), nil
}

func (c *Controller) randDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(c.rng.Int63n(int64(max-min)))
}

// sleep waits for d or until cancellation, reporting false when cancelled.
func (c *Controller) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
