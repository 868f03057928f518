package botcore

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var testKeys = []string{
	"0000000000000000000000000000000000000000000000000000000000000001",
	"0000000000000000000000000000000000000000000000000000000000000002",
}

func testAccounts(t *testing.T) []*Account {
	t.Helper()
	accts, err := NewAccounts(testKeys, nil)
	require.NoError(t, err)
	return accts
}

type gwCall struct {
	Op       string
	Acct     int
	Selector [4]byte
}

// fakeGateway records every chain interaction and lets tests script failures
// per account index.
type fakeGateway struct {
	mu            sync.Mutex
	calls         []gwCall
	approveErr    map[int]error
	swapStatus    map[int]uint64 // receipt status per account, default success
	waitErr       map[int]error
	cooldownLast  time.Time
	cooldownEvery time.Duration
	hashes        int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		approveErr: map[int]error{},
		swapStatus: map[int]uint64{},
		waitErr:    map[int]error{},
	}
}

func (f *fakeGateway) record(op string, acct *Account, selector [4]byte) {
	f.mu.Lock()
	f.calls = append(f.calls, gwCall{Op: op, Acct: acct.Index, Selector: selector})
	f.mu.Unlock()
}

func (f *fakeGateway) recorded(op string) []gwCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []gwCall
	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeGateway) NativeBalance(_ context.Context, acct *Account) (*big.Int, error) {
	f.record("native", acct, [4]byte{})
	return big.NewInt(1e18), nil
}

func (f *fakeGateway) TokenBalance(_ context.Context, acct *Account, _ common.Address) (*big.Int, error) {
	f.record("balance", acct, [4]byte{})
	return big.NewInt(1e18), nil
}

func (f *fakeGateway) ApproveRouter(_ context.Context, acct *Account, _ common.Address, _ *big.Int) (ApproveResult, error) {
	f.record("approve", acct, [4]byte{})
	if err := f.approveErr[acct.Index]; err != nil {
		return ApproveResult{}, err
	}
	return ApproveResult{Skipped: true}, nil
}

func (f *fakeGateway) SubmitSwap(_ context.Context, acct *Account, selector [4]byte, _ *big.Int) (common.Hash, error) {
	f.record("swap", acct, selector)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hashes++
	return common.BigToHash(big.NewInt(int64(f.hashes))), nil
}

func (f *fakeGateway) ClaimFaucet(_ context.Context, acct *Account) (common.Hash, error) {
	f.record("claim", acct, [4]byte{})
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hashes++
	return common.BigToHash(big.NewInt(int64(f.hashes))), nil
}

func (f *fakeGateway) FaucetCooldown(_ context.Context, acct *Account) (time.Time, time.Duration, error) {
	f.record("cooldown", acct, [4]byte{})
	return f.cooldownLast, f.cooldownEvery, nil
}

func (f *fakeGateway) WaitReceipt(_ context.Context, acct *Account, hash common.Hash) (*Receipt, error) {
	f.record("wait", acct, [4]byte{})
	if err := f.waitErr[acct.Index]; err != nil {
		return nil, err
	}
	status := uint64(1)
	f.mu.Lock()
	if s, ok := f.swapStatus[acct.Index]; ok {
		status = s
	}
	f.mu.Unlock()
	return &Receipt{TxHash: hash, Status: status, BlockNumber: big.NewInt(100)}, nil
}

type fakeReporter struct {
	mu        sync.Mutex
	swaps     int
	claims    int
	swapErr   error
	lastClaim map[common.Address]time.Time
}

func (f *fakeReporter) ReportSwap(context.Context, common.Address, common.Hash, string, string, string) error {
	f.mu.Lock()
	f.swaps++
	f.mu.Unlock()
	return f.swapErr
}

func (f *fakeReporter) ReportFaucetClaim(context.Context, common.Address, common.Hash) error {
	f.mu.Lock()
	f.claims++
	f.mu.Unlock()
	return nil
}

func (f *fakeReporter) LastFaucetClaim(_ context.Context, addr common.Address) (time.Time, error) {
	return f.lastClaim[addr], nil
}

func (f *fakeReporter) swapCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.swaps
}

func (f *fakeReporter) claimCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claims
}

func testConfig() ControllerConfig {
	prior := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	usdc := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	return ControllerConfig{
		Directions: [2]Direction{
			{Label: "PRIOR -> USDC", Selector: SelectorPriorToUSDC, FromToken: prior, ToToken: usdc, FromSymbol: "PRIOR", ToSymbol: "USDC", Decimals: 18},
			{Label: "USDC -> PRIOR", Selector: SelectorUSDCToPrior, FromToken: usdc, ToToken: prior, FromSymbol: "USDC", ToSymbol: "PRIOR", Decimals: 6},
		},
		Defaults: SwapParams{
			Cycles:      2,
			AmountPrior: "0.1",
			AmountUSDC:  "0.2",
			DelayMin:    time.Millisecond,
			DelayMax:    2 * time.Millisecond,
			CycleDelay:  time.Millisecond,
		},
		FaucetDelay: time.Millisecond,
	}
}

func TestSwapCampaignCycleParity(t *testing.T) {
	gw := newFakeGateway()
	rep := &fakeReporter{}
	sink := &captureSink{}
	ctrl := NewController(gw, rep, testAccounts(t), NewEventLog(100, sink), testConfig())

	require.NoError(t, ctrl.StartSwapCampaign(SwapParams{}))
	ctrl.Wait()
	require.Equal(t, StateCompleted, sink.outcome())
	require.Equal(t, StateIdle, ctrl.State())

	swaps := gw.recorded("swap")
	require.Len(t, swaps, 4)
	// Cycle 1 goes PRIOR->USDC for both wallets, cycle 2 reverses.
	require.Equal(t, SelectorPriorToUSDC, swaps[0].Selector)
	require.Equal(t, SelectorPriorToUSDC, swaps[1].Selector)
	require.Equal(t, SelectorUSDCToPrior, swaps[2].Selector)
	require.Equal(t, SelectorUSDCToPrior, swaps[3].Selector)
	require.Equal(t, []int{0, 1, 0, 1}, []int{swaps[0].Acct, swaps[1].Acct, swaps[2].Acct, swaps[3].Acct})

	require.Len(t, gw.recorded("approve"), 4)
	require.Equal(t, 4, rep.swapCount())
}

func TestSecondCampaignRejectedWhileRunning(t *testing.T) {
	gw := newFakeGateway()
	cfg := testConfig()
	cfg.Defaults.DelayMin = time.Hour
	cfg.Defaults.DelayMax = time.Hour
	sink := &captureSink{}
	ctrl := NewController(gw, &fakeReporter{}, testAccounts(t), NewEventLog(100, sink), cfg)

	require.NoError(t, ctrl.StartSwapCampaign(SwapParams{}))
	err := ctrl.StartSwapCampaign(SwapParams{})
	require.Error(t, err)
	require.True(t, IsKind(err, KindAlreadyRunning))

	err = ctrl.StartFaucetSweep()
	require.Error(t, err)
	require.True(t, IsKind(err, KindAlreadyRunning))

	ctrl.Stop()
	ctrl.Wait()
	require.Equal(t, StateStopped, sink.outcome())
	require.Equal(t, StateIdle, ctrl.State())
}

func TestStopInterruptsDelayQuickly(t *testing.T) {
	gw := newFakeGateway()
	cfg := testConfig()
	cfg.Defaults.DelayMin = time.Hour
	cfg.Defaults.DelayMax = time.Hour
	ctrl := NewController(gw, &fakeReporter{}, testAccounts(t), nil, cfg)

	require.NoError(t, ctrl.StartSwapCampaign(SwapParams{}))
	// Wait for the first swap so the campaign is inside the inter-wallet delay.
	require.Eventually(t, func() bool {
		return len(gw.recorded("swap")) >= 1
	}, time.Second, time.Millisecond)

	start := time.Now()
	ctrl.Stop()
	ctrl.Wait()
	require.Less(t, time.Since(start), 150*time.Millisecond)
	require.Equal(t, StateIdle, ctrl.State())
	require.Len(t, gw.recorded("swap"), 1)
}

func TestInsufficientBalanceSkipsWallet(t *testing.T) {
	gw := newFakeGateway()
	gw.approveErr[0] = opErrf(KindInsufficientBalance, "balance 0 < amount 100")
	cfg := testConfig()
	cfg.Defaults.Cycles = 1
	sink := &captureSink{}
	log := NewEventLog(100, sink)
	ctrl := NewController(gw, &fakeReporter{}, testAccounts(t), log, cfg)

	require.NoError(t, ctrl.StartSwapCampaign(SwapParams{}))
	ctrl.Wait()
	require.Equal(t, StateCompleted, sink.outcome())

	swaps := gw.recorded("swap")
	require.Len(t, swaps, 1)
	require.Equal(t, 1, swaps[0].Acct)

	// The skip is informational: logged once at wait severity, never as an
	// error.
	var skips int
	for _, ev := range log.Events() {
		require.NotEqual(t, SevError, ev.Sev, ev.Msg)
		if ev.Sev == SevWait {
			skips++
		}
	}
	require.Equal(t, 1, skips)
}

func TestStartRejectsMalformedAmount(t *testing.T) {
	gw := newFakeGateway()
	ctrl := NewController(gw, &fakeReporter{}, testAccounts(t), nil, testConfig())

	err := ctrl.StartSwapCampaign(SwapParams{AmountPrior: "abc"})
	require.Error(t, err)
	require.Equal(t, StateIdle, ctrl.State())

	err = ctrl.StartSwapCampaign(SwapParams{AmountUSDC: "0.1", AmountUSDCMax: "x"})
	require.Error(t, err)
	require.Equal(t, StateIdle, ctrl.State())
	require.Empty(t, gw.recorded("swap"))

	// A valid start still goes through afterwards.
	require.NoError(t, ctrl.StartSwapCampaign(SwapParams{}))
	ctrl.Wait()
	require.NotEmpty(t, gw.recorded("swap"))
}

func TestRefreshBalancesRejectedWhileRunning(t *testing.T) {
	gw := newFakeGateway()
	cfg := testConfig()
	cfg.Defaults.DelayMin = time.Hour
	cfg.Defaults.DelayMax = time.Hour
	ctrl := NewController(gw, &fakeReporter{}, testAccounts(t), nil, cfg)

	require.NoError(t, ctrl.StartSwapCampaign(SwapParams{}))
	_, err := ctrl.RefreshBalances(context.Background())
	require.Error(t, err)
	require.True(t, IsKind(err, KindAlreadyRunning))

	ctrl.Stop()
	ctrl.Wait()
	_, err = ctrl.RefreshBalances(context.Background())
	require.NoError(t, err)
}

func TestReporterFailureDoesNotFailCampaign(t *testing.T) {
	gw := newFakeGateway()
	rep := &fakeReporter{swapErr: context.DeadlineExceeded}
	cfg := testConfig()
	cfg.Defaults.Cycles = 1
	sink := &captureSink{}
	ctrl := NewController(gw, rep, testAccounts(t), NewEventLog(100, sink), cfg)

	require.NoError(t, ctrl.StartSwapCampaign(SwapParams{}))
	ctrl.Wait()
	require.Equal(t, StateCompleted, sink.outcome())
	require.Len(t, gw.recorded("swap"), 2)
}

func TestSwapRevertClassified(t *testing.T) {
	gw := newFakeGateway()
	gw.swapStatus[0] = 0
	ctrl := NewController(gw, &fakeReporter{}, testAccounts(t), nil, testConfig())

	acct := ctrl.accounts[0]
	dir := ctrl.cfg.Directions[0]
	err := ctrl.swapOnce(context.Background(), acct, dir, big.NewInt(100), "0.1")
	require.Error(t, err)
	require.Equal(t, KindSwapReverted, KindOf(err))
}

func TestTimeoutClassified(t *testing.T) {
	gw := newFakeGateway()
	gw.waitErr[0] = opErrf(KindTransactionTimeout, "no receipt")
	ctrl := NewController(gw, &fakeReporter{}, testAccounts(t), nil, testConfig())

	acct := ctrl.accounts[0]
	dir := ctrl.cfg.Directions[0]
	err := ctrl.swapOnce(context.Background(), acct, dir, big.NewInt(100), "0.1")
	require.Error(t, err)
	require.Equal(t, KindTransactionTimeout, KindOf(err))
}

func TestFaucetSweepHonorsAPICooldown(t *testing.T) {
	gw := newFakeGateway()
	keys := append(append([]string{}, testKeys...),
		"0000000000000000000000000000000000000000000000000000000000000003")
	accts, err := NewAccounts(keys, nil)
	require.NoError(t, err)
	rep := &fakeReporter{lastClaim: map[common.Address]time.Time{
		accts[1].Address: time.Now().Add(-time.Hour), // claimed an hour ago
	}}
	cfg := testConfig()
	cfg.Cooldown = CooldownAPI
	sink := &captureSink{}
	ctrl := NewController(gw, rep, accts, NewEventLog(100, sink), cfg)

	require.NoError(t, ctrl.StartFaucetSweep())
	ctrl.Wait()
	require.Equal(t, StateCompleted, sink.outcome())

	claims := gw.recorded("claim")
	require.Len(t, claims, 2)
	require.Equal(t, 0, claims[0].Acct)
	require.Equal(t, 2, claims[1].Acct)
	require.Equal(t, 2, rep.claimCount())
}

func TestFaucetSweepContractCooldownExpired(t *testing.T) {
	gw := newFakeGateway()
	gw.cooldownLast = time.Now().Add(-48 * time.Hour)
	gw.cooldownEvery = 24 * time.Hour
	cfg := testConfig()
	cfg.Cooldown = CooldownContract
	rep := &fakeReporter{}
	ctrl := NewController(gw, rep, testAccounts(t), nil, cfg)

	require.NoError(t, ctrl.StartFaucetSweep())
	ctrl.Wait()
	require.Len(t, gw.recorded("claim"), 2)
	require.Equal(t, 2, rep.claimCount())
}

func TestDrawAmountRange(t *testing.T) {
	ctrl := NewController(newFakeGateway(), &fakeReporter{}, testAccounts(t), nil, testConfig())

	amt, display, err := ctrl.drawAmount("0.1", "", 6)
	require.NoError(t, err)
	require.Equal(t, "100000", amt.String())
	require.Equal(t, "0.1", display)

	lo, _ := ParseUnits("0.1", 6)
	hi, _ := ParseUnits("0.5", 6)
	for i := 0; i < 50; i++ {
		amt, _, err := ctrl.drawAmount("0.1", "0.5", 6)
		require.NoError(t, err)
		require.True(t, amt.Cmp(lo) >= 0 && amt.Cmp(hi) <= 0, amt.String())
	}

	// max below min degrades to the fixed amount
	amt, _, err = ctrl.drawAmount("0.5", "0.1", 6)
	require.NoError(t, err)
	require.Equal(t, "500000", amt.String())
}

func TestRefreshBalancesPublishesSnapshots(t *testing.T) {
	gw := newFakeGateway()
	ctrl := NewController(gw, &fakeReporter{}, testAccounts(t), nil, testConfig())

	snaps, err := ctrl.RefreshBalances(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	require.Equal(t, "1", snaps[0].ETH)
}
