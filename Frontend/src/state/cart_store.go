package state

import (
	"context"
	"math"

	"github.com/ahinestrog/bookshop/common"
	"github.com/rs/zerolog"
)

// cartStore is the persistence strategy selected by Mode. Each mutation gets
// the settled lines and returns the lines to install.
type cartStore interface {
	load(ctx context.Context) ([]common.CartLine, error)
	add(ctx context.Context, cur []common.CartLine, bookID int64, qty int32) ([]common.CartLine, error)
	setQty(ctx context.Context, cur []common.CartLine, bookID int64, qty int32) ([]common.CartLine, error)
	remove(ctx context.Context, cur []common.CartLine, bookID int64) ([]common.CartLine, error)
	clear(ctx context.Context) error
}

type guestCartStore struct {
	local LocalStore
	log   zerolog.Logger
}

func (s guestCartStore) load(ctx context.Context) ([]common.CartLine, error) {
	lines, err := loadJSON[common.CartLine](ctx, s.local, CartKey, s.log)
	if err != nil {
		return nil, err
	}
	out := lines[:0]
	for _, l := range lines {
		if l.BookID <= 0 || l.Qty < 1 {
			s.log.Warn().Int64("book", l.BookID).Int32("qty", l.Qty).Msg("dropping invalid guest cart line")
			continue
		}
		if l.Book.ID == 0 {
			l.Book.ID = l.BookID
		}
		out = append(out, l)
	}
	return out, nil
}

func (s guestCartStore) persist(ctx context.Context, lines []common.CartLine) ([]common.CartLine, error) {
	if err := saveJSON(ctx, s.local, CartKey, lines); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s guestCartStore) add(ctx context.Context, cur []common.CartLine, bookID int64, qty int32) ([]common.CartLine, error) {
	next := cloneLines(cur)
	if i := indexLine(next, bookID); i >= 0 {
		sum := int64(next[i].Qty) + int64(qty)
		if sum > math.MaxInt32 {
			return nil, errQtyTooLarge
		}
		next[i].Qty = int32(sum)
	} else {
		next = append(next, common.CartLine{BookID: bookID, Qty: qty, Book: common.Book{ID: bookID}})
	}
	return s.persist(ctx, next)
}

func (s guestCartStore) setQty(ctx context.Context, cur []common.CartLine, bookID int64, qty int32) ([]common.CartLine, error) {
	next := cloneLines(cur)
	i := indexLine(next, bookID)
	if i < 0 {
		return nil, errNotInCart
	}
	next[i].Qty = qty
	return s.persist(ctx, next)
}

func (s guestCartStore) remove(ctx context.Context, cur []common.CartLine, bookID int64) ([]common.CartLine, error) {
	next := make([]common.CartLine, 0, len(cur))
	for _, l := range cur {
		if l.BookID != bookID {
			next = append(next, l)
		}
	}
	return s.persist(ctx, next)
}

func (s guestCartStore) clear(ctx context.Context) error {
	return s.local.Delete(ctx, CartKey)
}

// remoteCartStore sends every mutation to the remote store and refetches so
// server-computed fields (stock, price) win.
type remoteCartStore struct {
	remote RemoteCart
}

func (s remoteCartStore) load(ctx context.Context) ([]common.CartLine, error) {
	if s.remote == nil {
		return nil, errNoRemote
	}
	return s.remote.GetCart(ctx)
}

func (s remoteCartStore) add(ctx context.Context, _ []common.CartLine, bookID int64, qty int32) ([]common.CartLine, error) {
	if s.remote == nil {
		return nil, errNoRemote
	}
	if err := s.remote.AddItem(ctx, bookID, qty); err != nil {
		return nil, err
	}
	return s.remote.GetCart(ctx)
}

func (s remoteCartStore) setQty(ctx context.Context, _ []common.CartLine, bookID int64, qty int32) ([]common.CartLine, error) {
	if s.remote == nil {
		return nil, errNoRemote
	}
	if err := s.remote.UpdateItem(ctx, bookID, qty); err != nil {
		return nil, err
	}
	return s.remote.GetCart(ctx)
}

func (s remoteCartStore) remove(ctx context.Context, _ []common.CartLine, bookID int64) ([]common.CartLine, error) {
	if s.remote == nil {
		return nil, errNoRemote
	}
	if err := s.remote.RemoveItem(ctx, bookID); err != nil {
		return nil, err
	}
	return s.remote.GetCart(ctx)
}

func (s remoteCartStore) clear(ctx context.Context) error {
	if s.remote == nil {
		return errNoRemote
	}
	return s.remote.ClearCart(ctx)
}

func indexLine(lines []common.CartLine, bookID int64) int {
	for i := range lines {
		if lines[i].BookID == bookID {
			return i
		}
	}
	return -1
}

func cloneLines(src []common.CartLine) []common.CartLine {
	out := make([]common.CartLine, len(src))
	copy(out, src)
	return out
}
