package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// tokenState is the ledger for one registered token.
type tokenState struct {
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

func newTokenState() *tokenState {
	return &tokenState{
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

func (t *tokenState) clone() *tokenState {
	c := newTokenState()
	for a, b := range t.balances {
		c.balances[a] = new(big.Int).Set(b)
	}
	for owner, spenders := range t.allowances {
		m := make(map[common.Address]*big.Int, len(spenders))
		for s, v := range spenders {
			m[s] = new(big.Int).Set(v)
		}
		c.allowances[owner] = m
	}
	return c
}

// Memory is an in-memory journaled Host. It backs the simulator and the
// package tests: tokens and contract handlers are registered at addresses,
// and Snapshot/RevertTo give callers the same all-or-nothing unit of work a
// transaction boundary would.
//
// State-mutating operations are serialized by a mutex, matching the global
// serialization of the platform being modeled. The mutex is not held across
// handler invocations, so contracts may reenter the host.
type Memory struct {
	mu        sync.Mutex
	tokens    map[common.Address]*tokenState
	contracts map[common.Address]Handler
	journal   []map[common.Address]*tokenState
	now       func() time.Time
}

// NewMemory returns an empty Memory using the wall clock.
func NewMemory() *Memory {
	return &Memory{
		tokens:    make(map[common.Address]*tokenState),
		contracts: make(map[common.Address]Handler),
		now:       time.Now,
	}
}

// SetClock overrides the clock used by Now. Tests use this to exercise
// deadline behavior deterministically.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// RegisterToken creates an empty ledger for a token address. Registering an
// existing token is a no-op.
func (m *Memory) RegisterToken(token common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[token]; !ok {
		m.tokens[token] = newTokenState()
	}
}

// RegisterContract installs a handler at an address. A later registration
// replaces an earlier one.
func (m *Memory) RegisterContract(addr common.Address, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contracts[addr] = h
}

// Mint credits an account with freshly created tokens.
func (m *Memory) Mint(token, account common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[token]
	if !ok {
		return fmt.Errorf("chain: token %s not registered", token.Hex())
	}
	cur := t.balances[account]
	if cur == nil {
		cur = new(big.Int)
	}
	t.balances[account] = new(big.Int).Add(cur, amount)
	return nil
}

// Snapshot records the full token state and returns a journal id that can be
// passed to RevertTo or Release.
func (m *Memory) Snapshot() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := make(map[common.Address]*tokenState, len(m.tokens))
	for addr, st := range m.tokens {
		snap[addr] = st.clone()
	}
	m.journal = append(m.journal, snap)
	return len(m.journal) - 1
}

// RevertTo restores the state captured at id and discards it together with
// any later snapshots.
func (m *Memory) RevertTo(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 0 || id >= len(m.journal) {
		return
	}
	m.tokens = m.journal[id]
	m.journal = m.journal[:id]
}

// Release discards the snapshot at id and any later ones without restoring.
func (m *Memory) Release(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 0 || id >= len(m.journal) {
		return
	}
	m.journal = m.journal[:id]
}

func (m *Memory) token(token common.Address) (*tokenState, error) {
	t, ok := m.tokens[token]
	if !ok {
		return nil, fmt.Errorf("chain: token %s not registered", token.Hex())
	}
	return t, nil
}

// BalanceOf returns a copy of the account's balance; zero for unknown
// accounts of a registered token.
func (m *Memory) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.token(token)
	if err != nil {
		return nil, err
	}
	if b, ok := t.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

// Allowance returns a copy of the (owner, spender) allowance.
func (m *Memory) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.token(token)
	if err != nil {
		return nil, err
	}
	if spenders, ok := t.allowances[owner]; ok {
		if v, ok := spenders[spender]; ok {
			return new(big.Int).Set(v), nil
		}
	}
	return new(big.Int), nil
}

// Approve sets the (owner, spender) allowance. Like tokens that reject
// non-zero to non-zero allowance changes, it fails unless either the current
// or the new allowance is zero.
func (m *Memory) Approve(ctx context.Context, token, owner, spender common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.token(token)
	if err != nil {
		return err
	}
	spenders, ok := t.allowances[owner]
	if !ok {
		spenders = make(map[common.Address]*big.Int)
		t.allowances[owner] = spenders
	}
	if cur, ok := spenders[spender]; ok && cur.Sign() != 0 && amount.Sign() != 0 {
		return fmt.Errorf("chain: token %s rejects non-zero to non-zero approval", token.Hex())
	}
	spenders[spender] = new(big.Int).Set(amount)
	return nil
}

// Transfer moves amount from one account to another.
func (m *Memory) Transfer(ctx context.Context, token, from, to common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transferLocked(token, from, to, amount)
}

func (m *Memory) transferLocked(token, from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("chain: negative transfer amount %s", amount)
	}
	t, err := m.token(token)
	if err != nil {
		return err
	}
	bal := t.balances[from]
	if bal == nil || bal.Cmp(amount) < 0 {
		return fmt.Errorf("chain: token %s: balance of %s below transfer amount %s", token.Hex(), from.Hex(), amount)
	}
	t.balances[from] = new(big.Int).Sub(bal, amount)
	cur := t.balances[to]
	if cur == nil {
		cur = new(big.Int)
	}
	t.balances[to] = new(big.Int).Add(cur, amount)
	return nil
}

// TransferFrom moves amount out of from using spender's allowance, which is
// decremented by the amount moved.
func (m *Memory) TransferFrom(ctx context.Context, token, spender, from, to common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.token(token)
	if err != nil {
		return err
	}
	allowed := new(big.Int)
	if spenders, ok := t.allowances[from]; ok {
		if v, ok := spenders[spender]; ok {
			allowed = v
		}
	}
	if allowed.Cmp(amount) < 0 {
		return fmt.Errorf("chain: token %s: allowance %s below transfer amount %s", token.Hex(), allowed, amount)
	}
	if err := m.transferLocked(token, from, to, amount); err != nil {
		return err
	}
	t.allowances[from][spender] = new(big.Int).Sub(allowed, amount)
	return nil
}

// Call invokes the handler registered at target. The host mutex is released
// before the handler runs so the contract can read and mutate state through
// the same host.
func (m *Memory) Call(ctx context.Context, caller, target common.Address, payload []byte) ([]byte, error) {
	m.mu.Lock()
	h, ok := m.contracts[target]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("chain: no contract at %s", target.Hex())
	}
	return h(ctx, CallEnv{Host: m, Caller: caller, Target: target, Payload: payload})
}

// Now returns the host clock's current time.
func (m *Memory) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now()
}
