package botcore

import (
	"context"
	"time"
)

// runFaucetSweep tries one claim per wallet, skipping wallets still inside
// their cooldown window. Skips and failures never stop the sweep.
func (c *Controller) runFaucetSweep(ctx context.Context) {
	c.log.Logf(SevInfo, "faucet sweep: %d wallets", len(c.accounts))
	claimed := 0
	for i, acct := range c.accounts {
		if ctx.Err() != nil {
			return
		}
		if err := c.claimOnce(ctx, acct); err != nil {
			if ctx.Err() != nil {
				return
			}
			if IsKind(err, KindCooldownActive) {
				c.log.Logf(SevWait, "wallet %d %s: %v", acct.Index, ShortAddr(acct.Address), err)
			} else {
				c.log.Logf(SevError, "wallet %d %s: claim failed: %v", acct.Index, ShortAddr(acct.Address), err)
			}
		} else {
			claimed++
		}
		if i < len(c.accounts)-1 {
			if !c.sleep(ctx, c.cfg.FaucetDelay) {
				return
			}
		}
	}
	c.log.Logf(SevSuccess, "faucet sweep finished: %d/%d claimed", claimed, len(c.accounts))
}

// claimOnce checks the cooldown, submits the claim, waits for confirmation
// and reports the claim.
func (c *Controller) claimOnce(ctx context.Context, acct *Account) error {
	if remaining, err := c.cooldownRemaining(ctx, acct); err != nil {
		// Treat an unreadable cooldown as claimable; the contract rejects
		// early claims anyway.
		c.log.Logf(SevWait, "wallet %d: cooldown check failed, claiming anyway: %v", acct.Index, err)
	} else if remaining > 0 {
		return opErrf(KindCooldownActive, "next claim in %s", remaining.Round(time.Minute))
	}

	hash, err := c.gw.ClaimFaucet(ctx, acct)
	if err != nil {
		return err
	}
	c.log.Logf(SevInfo, "wallet %d: claim sent %s", acct.Index, ShortHash(hash))
	rcpt, err := c.gw.WaitReceipt(ctx, acct, hash)
	if err != nil {
		return err
	}
	if !rcpt.Success() {
		// The contract reverts early claims, so a revert almost always means
		// the on-chain cooldown disagrees with what we read.
		return opErrf(KindCooldownActive, "claim %s reverted", ShortHash(hash))
	}
	c.log.Logf(SevSuccess, "wallet %d: claim confirmed in block %s", acct.Index, rcpt.BlockNumber)

	if c.reporter != nil {
		if err := c.reporter.ReportFaucetClaim(ctx, acct.Address, hash); err != nil {
			c.log.Logf(SevError, "wallet %d: claim report failed: %v", acct.Index, err)
		}
	}
	c.refreshOne(ctx, acct)
	return nil
}

// cooldownRemaining reads the claim cooldown from the configured source and
// returns how long until the wallet may claim again; zero means claimable.
func (c *Controller) cooldownRemaining(ctx context.Context, acct *Account) (time.Duration, error) {
	switch c.cfg.Cooldown {
	case CooldownContract:
		last, interval, err := c.gw.FaucetCooldown(ctx, acct)
		if err != nil {
			return 0, err
		}
		if last.IsZero() || last.Unix() == 0 {
			return 0, nil
		}
		return time.Until(last.Add(interval)), nil
	default:
		if c.reporter == nil {
			return 0, nil
		}
		last, err := c.reporter.LastFaucetClaim(ctx, acct.Address)
		if err != nil {
			return 0, err
		}
		if last.IsZero() {
			return 0, nil
		}
		return time.Until(last.Add(c.cfg.APICooldown)), nil
	}
}
