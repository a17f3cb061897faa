package state

import (
	"context"
	"errors"
	"sync"

	"github.com/ahinestrog/bookshop/common"
	"github.com/rs/zerolog"
)

type wishlistStore interface {
	load(ctx context.Context) ([]common.WishlistEntry, error)
	add(ctx context.Context, cur []common.WishlistEntry, e common.WishlistEntry) ([]common.WishlistEntry, error)
	remove(ctx context.Context, cur []common.WishlistEntry, bookID int64) ([]common.WishlistEntry, error)
	clear(ctx context.Context) error
}

type guestWishlistStore struct {
	local LocalStore
	log   zerolog.Logger
}

func (s guestWishlistStore) load(ctx context.Context) ([]common.WishlistEntry, error) {
	entries, err := loadJSON[common.WishlistEntry](ctx, s.local, WishlistKey, s.log)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]struct{}, len(entries))
	out := entries[:0]
	for _, e := range entries {
		if e.BookID <= 0 {
			continue
		}
		if _, dup := seen[e.BookID]; dup {
			continue
		}
		seen[e.BookID] = struct{}{}
		out = append(out, e)
	}
	return out, nil
}

func (s guestWishlistStore) add(ctx context.Context, cur []common.WishlistEntry, e common.WishlistEntry) ([]common.WishlistEntry, error) {
	next := append(cloneEntries(cur), e)
	if err := saveJSON(ctx, s.local, WishlistKey, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (s guestWishlistStore) remove(ctx context.Context, cur []common.WishlistEntry, bookID int64) ([]common.WishlistEntry, error) {
	next := make([]common.WishlistEntry, 0, len(cur))
	for _, e := range cur {
		if e.BookID != bookID {
			next = append(next, e)
		}
	}
	if err := saveJSON(ctx, s.local, WishlistKey, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (s guestWishlistStore) clear(ctx context.Context) error {
	return s.local.Delete(ctx, WishlistKey)
}

type remoteWishlistStore struct {
	remote RemoteWishlist
}

func (s remoteWishlistStore) load(ctx context.Context) ([]common.WishlistEntry, error) {
	if s.remote == nil {
		return nil, errNoRemote
	}
	return s.remote.GetWishlist(ctx)
}

func (s remoteWishlistStore) add(ctx context.Context, _ []common.WishlistEntry, e common.WishlistEntry) ([]common.WishlistEntry, error) {
	if s.remote == nil {
		return nil, errNoRemote
	}
	if err := s.remote.AddItem(ctx, e.BookID); err != nil {
		return nil, err
	}
	return s.remote.GetWishlist(ctx)
}

func (s remoteWishlistStore) remove(ctx context.Context, _ []common.WishlistEntry, bookID int64) ([]common.WishlistEntry, error) {
	if s.remote == nil {
		return nil, errNoRemote
	}
	if err := s.remote.RemoveItem(ctx, bookID); err != nil {
		return nil, err
	}
	return s.remote.GetWishlist(ctx)
}

func (s remoteWishlistStore) clear(ctx context.Context) error {
	if s.remote == nil {
		return errNoRemote
	}
	return s.remote.Clear(ctx)
}

// CartAdder is the part of Cart that MoveToCart needs.
type CartAdder interface {
	Add(ctx context.Context, bookID int64, qty int32) Result
}

// Wishlist mirrors Cart with set semantics: one entry per book, no quantity.
type Wishlist struct {
	opts   options
	local  LocalStore
	remote RemoteWishlist

	op sync.Mutex

	mu      sync.RWMutex
	mode    Mode
	store   wishlistStore
	entries []common.WishlistEntry
	index   map[int64]int
	busy    int
}

func NewWishlist(local LocalStore, remote RemoteWishlist, opts ...Option) *Wishlist {
	if local == nil {
		local = NewMemoryStore()
	}
	w := &Wishlist{
		opts:   buildOptions(opts),
		local:  local,
		remote: remote,
	}
	w.store = w.storeFor(Guest)
	w.set(nil)
	return w
}

func (w *Wishlist) storeFor(m Mode) wishlistStore {
	if m == Authenticated {
		return remoteWishlistStore{remote: w.remote}
	}
	return guestWishlistStore{local: w.local, log: w.opts.log}
}

// set installs entries; callers hold mu.
func (w *Wishlist) set(entries []common.WishlistEntry) {
	w.entries = cloneEntries(entries)
	w.index = make(map[int64]int, len(w.entries))
	for i, e := range w.entries {
		w.index[e.BookID] = i
	}
}

func (w *Wishlist) begin() {
	w.op.Lock()
	w.mu.Lock()
	w.busy++
	w.mu.Unlock()
}

func (w *Wishlist) end() {
	w.mu.Lock()
	w.busy--
	w.mu.Unlock()
	w.op.Unlock()
}

func (w *Wishlist) Initialize(ctx context.Context, mode Mode) Result {
	w.begin()
	defer w.end()
	return w.install(ctx, "initialize", mode)
}

// SwitchMode follows the same transition rules as Cart.SwitchMode.
func (w *Wishlist) SwitchMode(ctx context.Context, mode Mode) Result {
	w.begin()
	defer w.end()

	w.mu.RLock()
	prev := w.mode
	guest := cloneEntries(w.entries)
	w.mu.RUnlock()

	var pushErr error
	if prev == Guest && mode == Authenticated && w.opts.merge == MergeGuestIntoRemote && w.remote != nil {
		pushErr = w.pushGuest(ctx, guest)
	}
	res := w.install(ctx, "switch-mode", mode)
	if res.OK && pushErr != nil {
		return w.fail("merge", pushErr)
	}
	return res
}

func (w *Wishlist) pushGuest(ctx context.Context, entries []common.WishlistEntry) error {
	var errs []error
	for _, e := range entries {
		if err := w.remote.AddItem(ctx, e.BookID); err != nil {
			w.opts.log.Warn().Err(err).Int64("book", e.BookID).Msg("guest wishlist entry not merged")
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return w.local.Delete(ctx, WishlistKey)
}

func (w *Wishlist) install(ctx context.Context, op string, mode Mode) Result {
	store := w.storeFor(mode)
	entries, err := store.load(ctx)

	w.mu.Lock()
	w.mode = mode
	w.store = store
	w.set(entries)
	w.mu.Unlock()

	if err != nil {
		return w.fail(op, err)
	}
	return succeeded()
}

func (w *Wishlist) mutate(op string, fn func(wishlistStore, []common.WishlistEntry) ([]common.WishlistEntry, error)) Result {
	w.mu.RLock()
	store := w.store
	cur := cloneEntries(w.entries)
	w.mu.RUnlock()

	next, err := fn(store, cur)
	if err != nil {
		return w.fail(op, err)
	}
	w.mu.Lock()
	w.set(next)
	w.mu.Unlock()
	return succeeded()
}

func (w *Wishlist) fail(op string, err error) Result {
	res := Failed(err)
	w.opts.log.Warn().Err(err).Str("op", op).Str("kind", res.Kind.String()).Msg("wishlist operation failed")
	return res
}

// Add is a successful no-op if bookID is already present.
func (w *Wishlist) Add(ctx context.Context, bookID int64) Result {
	if bookID <= 0 {
		return invalid(errInvalidID, "Unknown product.")
	}
	w.begin()
	defer w.end()
	if w.IsPresent(bookID) {
		return succeeded()
	}
	e := common.WishlistEntry{
		BookID:  bookID,
		Book:    common.Book{ID: bookID},
		AddedAt: w.opts.now().UTC(),
	}
	return w.mutate("add", func(s wishlistStore, cur []common.WishlistEntry) ([]common.WishlistEntry, error) {
		return s.add(ctx, cur, e)
	})
}

func (w *Wishlist) Remove(ctx context.Context, bookID int64) Result {
	w.begin()
	defer w.end()
	return w.remove(ctx, bookID)
}

func (w *Wishlist) remove(ctx context.Context, bookID int64) Result {
	return w.mutate("remove", func(s wishlistStore, cur []common.WishlistEntry) ([]common.WishlistEntry, error) {
		return s.remove(ctx, cur, bookID)
	})
}

func (w *Wishlist) Clear(ctx context.Context) Result {
	w.begin()
	defer w.end()

	w.mu.Lock()
	w.set(nil)
	store := w.store
	w.mu.Unlock()

	if err := store.clear(ctx); err != nil {
		return w.fail("clear", err)
	}
	return succeeded()
}

// MoveToCart adds one unit of bookID to cart and, only if that succeeded,
// removes the wishlist entry. A failed add is returned unchanged.
func (w *Wishlist) MoveToCart(ctx context.Context, bookID int64, cart CartAdder) Result {
	w.begin()
	defer w.end()
	if res := cart.Add(ctx, bookID, 1); !res.OK {
		return res
	}
	return w.remove(ctx, bookID)
}

func (w *Wishlist) IsPresent(bookID int64) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.index[bookID]
	return ok
}

func (w *Wishlist) Entries() []common.WishlistEntry {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return cloneEntries(w.entries)
}

func (w *Wishlist) Count() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.entries)
}

func (w *Wishlist) Mode() Mode {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.mode
}

func (w *Wishlist) Busy() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.busy > 0
}

func cloneEntries(src []common.WishlistEntry) []common.WishlistEntry {
	out := make([]common.WishlistEntry, len(src))
	copy(out, src)
	return out
}
