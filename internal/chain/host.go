// Package chain abstracts the environment the execution engine runs against:
// token balances, allowances, and opaque contract calls. The engine treats
// every Call as untrusted I/O; the only effect it believes is a balance
// delta it measured itself through this interface.
package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// CallEnv is the context handed to a contract handler for one invocation.
type CallEnv struct {
	Host    Host
	Caller  common.Address
	Target  common.Address
	Payload []byte
}

// Handler is a contract registered at an address on a Host. Its return data
// is opaque to the engine except where a protocol defines a status word.
type Handler func(ctx context.Context, env CallEnv) ([]byte, error)

// Host is the engine's view of chain state. All amounts are wei-denominated
/// big integers and are never aliased: implementations return copies.
type Host interface {
	BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, token, owner, spender common.Address, amount *big.Int) error
	Transfer(ctx context.Context, token, from, to common.Address, amount *big.Int) error
	// TransferFrom moves funds using spender's allowance from the owner,
	// decrementing the allowance.
	TransferFrom(ctx context.Context, token, spender, from, to common.Address, amount *big.Int) error
	// Call invokes the contract registered at target with an opaque
	// payload. The returned bytes are whatever the contract produced; an
	// error means the call reverted.
	Call(ctx context.Context, caller, target common.Address, payload []byte) ([]byte, error)
	// Now is the clock used for deadline checks.
	Now() time.Time
}
