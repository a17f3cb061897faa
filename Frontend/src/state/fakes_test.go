package state

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ahinestrog/bookshop/common"
)

// remoteErr mimics api.RemoteError.
type remoteErr struct{ msg string }

func (e *remoteErr) Error() string          { return "remote: " + e.msg }
func (e *remoteErr) DisplayMessage() string { return e.msg }

var errNetwork = errors.New("dial tcp: connection refused")

// fakeRemote is an in-memory remote store for cart and wishlist. Stock is
// enforced on add like the real backend.
type fakeRemote struct {
	mu       sync.Mutex
	books    map[int64]common.Book
	cart     []common.CartLine
	wishlist []common.WishlistEntry
	calls    []string

	failAdd   error
	failGet   error
	failClear error
	// wishlist adds rejected per book
	failWishlistAdd map[int64]error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{books: map[int64]common.Book{
		1: {ID: 1, Title: "Dune", PriceCents: 1500, Stock: 10},
		2: {ID: 2, Title: "Emma", PriceCents: 900, Stock: 2},
		3: {ID: 3, Title: "Ulysses", PriceCents: 2500, Stock: 0},
	}}
}

func (f *fakeRemote) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeRemote) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) GetCart(context.Context) ([]common.CartLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("get")
	if f.failGet != nil {
		return nil, f.failGet
	}
	return append([]common.CartLine(nil), f.cart...), nil
}

func (f *fakeRemote) AddItem(_ context.Context, bookID int64, qty int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("add %d %d", bookID, qty)
	if f.failAdd != nil {
		return f.failAdd
	}
	b, ok := f.books[bookID]
	if !ok {
		return &remoteErr{msg: "Book not found."}
	}
	for i := range f.cart {
		if f.cart[i].BookID == bookID {
			if int64(f.cart[i].Qty)+int64(qty) > int64(b.Stock) {
				return &remoteErr{msg: fmt.Sprintf("Only %d left in stock.", b.Stock)}
			}
			f.cart[i].Qty += qty
			return nil
		}
	}
	if qty > b.Stock {
		return &remoteErr{msg: fmt.Sprintf("Only %d left in stock.", b.Stock)}
	}
	f.cart = append(f.cart, common.CartLine{BookID: bookID, Qty: qty, Book: b})
	return nil
}

func (f *fakeRemote) UpdateItem(_ context.Context, bookID int64, qty int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("update %d %d", bookID, qty)
	for i := range f.cart {
		if f.cart[i].BookID == bookID {
			f.cart[i].Qty = qty
			return nil
		}
	}
	return &remoteErr{msg: "Item not in cart."}
}

func (f *fakeRemote) RemoveItem(_ context.Context, bookID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("remove %d", bookID)
	out := f.cart[:0]
	for _, l := range f.cart {
		if l.BookID != bookID {
			out = append(out, l)
		}
	}
	f.cart = out
	return nil
}

func (f *fakeRemote) ClearCart(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("clear")
	if f.failClear != nil {
		return f.failClear
	}
	f.cart = nil
	return nil
}

// wishlistRemote adapts fakeRemote to RemoteWishlist.
type wishlistRemote struct{ *fakeRemote }

func (w wishlistRemote) GetWishlist(context.Context) ([]common.WishlistEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("wl-get")
	if w.failGet != nil {
		return nil, w.failGet
	}
	return append([]common.WishlistEntry(nil), w.wishlist...), nil
}

func (w wishlistRemote) AddItem(_ context.Context, bookID int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("wl-add %d", bookID)
	if err := w.failWishlistAdd[bookID]; err != nil {
		return err
	}
	for _, e := range w.wishlist {
		if e.BookID == bookID {
			return nil
		}
	}
	w.wishlist = append(w.wishlist, common.WishlistEntry{BookID: bookID, Book: w.books[bookID]})
	return nil
}

func (w wishlistRemote) RemoveItem(_ context.Context, bookID int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("wl-remove %d", bookID)
	out := w.wishlist[:0]
	for _, e := range w.wishlist {
		if e.BookID != bookID {
			out = append(out, e)
		}
	}
	w.wishlist = out
	return nil
}

func (w wishlistRemote) Clear(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("wl-clear")
	w.wishlist = nil
	return nil
}

// failingStore is a LocalStore whose writes fail.
type failingStore struct{ *MemoryStore }

func (failingStore) Set(context.Context, string, []byte) error { return errors.New("disk full") }

type bookSource map[int64]common.Book

func (s bookSource) Book(_ context.Context, id int64) (common.Book, error) {
	b, ok := s[id]
	if !ok {
		return common.Book{}, &remoteErr{msg: "Book not found."}
	}
	return b, nil
}
