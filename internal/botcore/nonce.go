package botcore

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// PendingCounter is the slice of the RPC surface the tracker needs.
type PendingCounter interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// NonceTracker hands out the next nonce per account, reconciled against the
// chain's pending count on every allocation so externally submitted
// transactions are tolerated. Allocation for one address is serialized;
// different addresses proceed independently.
type NonceTracker struct {
	mu    sync.Mutex
	state map[common.Address]*nonceState
}

type nonceState struct {
	mu     sync.Mutex
	issued bool
	last   uint64
}

func NewNonceTracker() *NonceTracker {
	return &NonceTracker{state: make(map[common.Address]*nonceState)}
}

// Next returns max(pendingCount, lastIssued+1) and records it as last issued.
// On a chain query failure the per-account state is left unchanged.
func (t *NonceTracker) Next(ctx context.Context, pc PendingCounter, addr common.Address) (uint64, error) {
	st := t.stateFor(addr)
	st.mu.Lock()
	defer st.mu.Unlock()

	pending, err := pc.PendingNonceAt(ctx, addr)
	if err != nil {
		return 0, err
	}
	next := pending
	if st.issued && st.last+1 > next {
		next = st.last + 1
	}
	st.last = next
	st.issued = true
	return next, nil
}

func (t *NonceTracker) stateFor(addr common.Address) *nonceState {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.state[addr]
	if !ok {
		st = &nonceState{}
		t.state[addr] = st
	}
	return st
}
