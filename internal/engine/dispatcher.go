package engine

import (
	"context"
	"fmt"

	"github.com/blockbit-hama/xCrack-sub003/internal/codec"
	"github.com/blockbit-hama/xCrack-sub003/internal/domain"
)

// PayloadFamily selects the wire format a callback payload uses. The
// capital-provider callback form determines the family, so the two tag
// spaces can never shadow each other.
type PayloadFamily uint8

const (
	// FamilySingle is the selector-prefixed format of the single-asset
	// callback.
	FamilySingle PayloadFamily = iota + 1
	// FamilyMulti is the type-byte-prefixed format of the multi-asset
	// callback.
	FamilyMulti
)

// HandlerFunc executes one decoded strategy request against the loans the
// provider funded.
type HandlerFunc func(ctx context.Context, req domain.StrategyRequest, loans []domain.Loan) error

// Dispatcher decodes opaque callback payloads into strategy requests and
// routes each to the single handler registered for its kind. Decoding is
// pure; the only side effects are the handler's.
type Dispatcher struct {
	handlers map[domain.StrategyKind]HandlerFunc
}

// NewDispatcher returns a Dispatcher with no handlers registered.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[domain.StrategyKind]HandlerFunc)}
}

// Register installs the handler for a strategy kind. Registering a kind
// twice panics: the kind-to-handler mapping must stay exclusive, and a
// duplicate is a wiring bug.
func (d *Dispatcher) Register(kind domain.StrategyKind, h HandlerFunc) {
	if _, ok := d.handlers[kind]; ok {
		panic(fmt.Sprintf("engine: duplicate handler for strategy %s", kind))
	}
	d.handlers[kind] = h
}

// Decode parses a payload in the given family into a strategy request.
func (d *Dispatcher) Decode(family PayloadFamily, payload []byte) (domain.StrategyRequest, error) {
	switch family {
	case FamilySingle:
		return codec.DecodeSingle(payload)
	case FamilyMulti:
		return codec.DecodeMulti(payload)
	default:
		return nil, fmt.Errorf("engine: unknown payload family %d: %w", family, domain.ErrDecodeFailure)
	}
}

// Dispatch invokes the handler registered for the request's kind.
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.StrategyRequest, loans []domain.Loan) error {
	h, ok := d.handlers[req.Kind()]
	if !ok {
		return fmt.Errorf("engine: no handler for strategy %s: %w", req.Kind(), domain.ErrDecodeFailure)
	}
	return h(ctx, req, loans)
}
