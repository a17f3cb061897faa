package state

import (
	"context"

	"github.com/ahinestrog/bookshop/common"
)

// RemoteCart is the authenticated cart store. Errors implementing Displayer
// are surfaced to the user verbatim.
type RemoteCart interface {
	GetCart(ctx context.Context) ([]common.CartLine, error)
	AddItem(ctx context.Context, bookID int64, qty int32) error
	UpdateItem(ctx context.Context, bookID int64, qty int32) error
	RemoveItem(ctx context.Context, bookID int64) error
	ClearCart(ctx context.Context) error
}

type RemoteWishlist interface {
	GetWishlist(ctx context.Context) ([]common.WishlistEntry, error)
	AddItem(ctx context.Context, bookID int64) error
	RemoveItem(ctx context.Context, bookID int64) error
	Clear(ctx context.Context) error
}

type RemoteReviews interface {
	List(ctx context.Context, bookID int64) ([]common.Review, error)
	Create(ctx context.Context, bookID int64, in common.ReviewInput) (common.Review, error)
	Update(ctx context.Context, reviewID string, in common.ReviewInput) (common.Review, error)
	Delete(ctx context.Context, reviewID string) error
	MarkHelpful(ctx context.Context, reviewID string) (common.Review, error)
}

// SnapshotSource resolves the current catalog snapshot of a book.
type SnapshotSource interface {
	Book(ctx context.Context, id int64) (common.Book, error)
}
