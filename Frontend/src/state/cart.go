package state

import (
	"context"
	"errors"
	"sync"

	"github.com/ahinestrog/bookshop/common"
)

var errNoSource = errors.New("state: no snapshot source configured")

// Cart owns the in-memory cart. Local storage (Guest) or the remote store
// (Authenticated) is a cache of it, selected by Mode.
//
// Mutations are serialized: a call waits for the previous one to settle.
// Readers never wait on remote I/O.
type Cart struct {
	opts   options
	local  LocalStore
	remote RemoteCart

	op sync.Mutex

	mu    sync.RWMutex
	mode  Mode
	store cartStore
	lines []common.CartLine
	busy  int
}

// NewCart starts in Guest mode with an empty cart; call Initialize to load.
// remote may be nil for a guest-only cart.
func NewCart(local LocalStore, remote RemoteCart, opts ...Option) *Cart {
	if local == nil {
		local = NewMemoryStore()
	}
	c := &Cart{
		opts:   buildOptions(opts),
		local:  local,
		remote: remote,
		lines:  []common.CartLine{},
	}
	c.store = c.storeFor(Guest)
	return c
}

func (c *Cart) storeFor(m Mode) cartStore {
	if m == Authenticated {
		return remoteCartStore{remote: c.remote}
	}
	return guestCartStore{local: c.local, log: c.opts.log}
}

func (c *Cart) begin() {
	c.op.Lock()
	c.mu.Lock()
	c.busy++
	c.mu.Unlock()
}

func (c *Cart) end() {
	c.mu.Lock()
	c.busy--
	c.mu.Unlock()
	c.op.Unlock()
}

// Initialize loads the cart for mode, replacing in-memory state.
func (c *Cart) Initialize(ctx context.Context, mode Mode) Result {
	c.begin()
	defer c.end()
	return c.install(ctx, "initialize", mode)
}

// SwitchMode performs a session transition. On Guest→Authenticated the remote
// cart is authoritative; guest lines are pushed first only under
// MergeGuestIntoRemote.
func (c *Cart) SwitchMode(ctx context.Context, mode Mode) Result {
	c.begin()
	defer c.end()

	c.mu.RLock()
	prev := c.mode
	guest := cloneLines(c.lines)
	c.mu.RUnlock()

	var pushErr error
	if prev == Guest && mode == Authenticated && c.opts.merge == MergeGuestIntoRemote && c.remote != nil {
		pushErr = c.pushGuest(ctx, guest)
	}
	res := c.install(ctx, "switch-mode", mode)
	if res.OK && pushErr != nil {
		return c.fail("merge", pushErr)
	}
	return res
}

func (c *Cart) pushGuest(ctx context.Context, lines []common.CartLine) error {
	var errs []error
	for _, l := range lines {
		if err := c.remote.AddItem(ctx, l.BookID, l.Qty); err != nil {
			c.opts.log.Warn().Err(err).Int64("book", l.BookID).Msg("guest cart line not merged")
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return c.local.Delete(ctx, CartKey)
}

func (c *Cart) install(ctx context.Context, op string, mode Mode) Result {
	store := c.storeFor(mode)
	lines, err := store.load(ctx)

	c.mu.Lock()
	c.mode = mode
	c.store = store
	c.lines = cloneLines(lines)
	c.mu.Unlock()

	if err != nil {
		return c.fail(op, err)
	}
	c.opts.log.Debug().Str("mode", mode.String()).Int("lines", len(lines)).Msg("cart loaded")
	return succeeded()
}

func (c *Cart) mutate(ctx context.Context, op string, fn func(cartStore, []common.CartLine) ([]common.CartLine, error)) Result {
	c.mu.RLock()
	store := c.store
	cur := cloneLines(c.lines)
	c.mu.RUnlock()

	next, err := fn(store, cur)
	if err != nil {
		return c.fail(op, err)
	}

	c.mu.Lock()
	c.lines = cloneLines(next)
	c.mu.Unlock()
	return succeeded()
}

func (c *Cart) fail(op string, err error) Result {
	res := Failed(err)
	c.opts.log.Warn().Err(err).Str("op", op).Str("kind", res.Kind.String()).Msg("cart operation failed")
	return res
}

// Add increments the line for bookID by qty, creating it if absent.
func (c *Cart) Add(ctx context.Context, bookID int64, qty int32) Result {
	if bookID <= 0 {
		return invalid(errInvalidID, "Unknown product.")
	}
	if qty < 1 {
		return invalid(errInvalidQty, "Quantity must be at least 1.")
	}
	c.begin()
	defer c.end()
	return c.mutate(ctx, "add", func(s cartStore, cur []common.CartLine) ([]common.CartLine, error) {
		return s.add(ctx, cur, bookID, qty)
	})
}

func (c *Cart) Remove(ctx context.Context, bookID int64) Result {
	c.begin()
	defer c.end()
	return c.mutate(ctx, "remove", func(s cartStore, cur []common.CartLine) ([]common.CartLine, error) {
		return s.remove(ctx, cur, bookID)
	})
}

// SetQuantity sets the line quantity; qty < 1 removes the line.
func (c *Cart) SetQuantity(ctx context.Context, bookID int64, qty int32) Result {
	if qty < 1 {
		return c.Remove(ctx, bookID)
	}
	c.begin()
	defer c.end()
	return c.mutate(ctx, "set-quantity", func(s cartStore, cur []common.CartLine) ([]common.CartLine, error) {
		return s.setQty(ctx, cur, bookID, qty)
	})
}

// Clear empties the cart in memory, then clears the backing store.
func (c *Cart) Clear(ctx context.Context) Result {
	c.begin()
	defer c.end()

	c.mu.Lock()
	c.lines = []common.CartLine{}
	store := c.store
	c.mu.Unlock()

	if err := store.clear(ctx); err != nil {
		return c.fail("clear", err)
	}
	return succeeded()
}

// RefreshSnapshots replaces guest snapshots with current catalog data. In
// Authenticated mode it refetches the remote cart.
func (c *Cart) RefreshSnapshots(ctx context.Context) Result {
	c.begin()
	defer c.end()

	c.mu.RLock()
	mode := c.mode
	c.mu.RUnlock()
	if mode == Authenticated {
		return c.install(ctx, "refresh", mode)
	}
	if c.opts.source == nil {
		return c.fail("refresh", errNoSource)
	}

	var lookupErr error
	res := c.mutate(ctx, "refresh", func(s cartStore, cur []common.CartLine) ([]common.CartLine, error) {
		var errs []error
		for i := range cur {
			b, err := c.opts.source.Book(ctx, cur[i].BookID)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			b.ID = cur[i].BookID
			cur[i].Book = b
		}
		lookupErr = errors.Join(errs...)
		return s.(guestCartStore).persist(ctx, cur)
	})
	if res.OK && lookupErr != nil {
		return c.fail("refresh", lookupErr)
	}
	return res
}

// Lines returns a copy of the current lines, in insertion order.
func (c *Cart) Lines() []common.CartLine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneLines(c.lines)
}

// Line returns the line for bookID, if present.
func (c *Cart) Line(bookID int64) (common.CartLine, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := indexLine(c.lines, bookID); i >= 0 {
		return c.lines[i], true
	}
	return common.CartLine{}, false
}

// Total is Σ price × qty over the snapshots. Rounding is left to presentation.
func (c *Cart) Total() common.Money {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var total common.Money
	for _, l := range c.lines {
		total = total.Add(l.LineTotal())
	}
	return total
}

// ItemCount is the number of units, not the number of lines.
func (c *Cart) ItemCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, l := range c.lines {
		n += int(l.Qty)
	}
	return n
}

func (c *Cart) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// Busy reports whether a mutation is in flight or waiting.
func (c *Cart) Busy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.busy > 0
}

type BlockerReason int

const (
	// StockShort: requested quantity exceeds the snapshot stock.
	StockShort BlockerReason = iota + 1
	// StockUnknown: the line only has a bare guest snapshot.
	StockUnknown
)

type Blocker struct {
	BookID    int64
	Title     string
	Requested int32
	Available int32
	Reason    BlockerReason
}

// CheckoutBlockers lists the lines that would fail a stock comparison.
func (c *Cart) CheckoutBlockers() []Blocker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Blocker
	for _, l := range c.lines {
		b := Blocker{BookID: l.BookID, Title: l.Book.Title, Requested: l.Qty, Available: l.Book.Stock}
		switch {
		case !l.Book.Known():
			b.Reason = StockUnknown
		case l.Qty > l.Book.Stock:
			b.Reason = StockShort
		default:
			continue
		}
		out = append(out, b)
	}
	return out
}
