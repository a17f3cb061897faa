package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ahinestrog/bookshop/common"
)

// CartAPI implements state.RemoteCart.
type CartAPI struct{ c *Client }

func (a *CartAPI) GetCart(ctx context.Context) ([]common.CartLine, error) {
	var v common.CartView
	if err := a.c.do(ctx, http.MethodGet, "/api/cart", nil, &v); err != nil {
		return nil, err
	}
	return v.Items, nil
}

func (a *CartAPI) AddItem(ctx context.Context, bookID int64, qty int32) error {
	return a.c.do(ctx, http.MethodPost, "/api/cart/items", common.AddItemRequest{BookID: bookID, Qty: qty}, nil)
}

func (a *CartAPI) UpdateItem(ctx context.Context, bookID int64, qty int32) error {
	return a.c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/cart/items/%d", bookID), common.UpdateItemRequest{Qty: qty}, nil)
}

func (a *CartAPI) RemoveItem(ctx context.Context, bookID int64) error {
	return a.c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/cart/items/%d", bookID), nil, nil)
}

func (a *CartAPI) ClearCart(ctx context.Context) error {
	return a.c.do(ctx, http.MethodDelete, "/api/cart", nil, nil)
}

// WishlistAPI implements state.RemoteWishlist.
type WishlistAPI struct{ c *Client }

func (a *WishlistAPI) GetWishlist(ctx context.Context) ([]common.WishlistEntry, error) {
	var v common.WishlistView
	if err := a.c.do(ctx, http.MethodGet, "/api/wishlist", nil, &v); err != nil {
		return nil, err
	}
	return v.Items, nil
}

func (a *WishlistAPI) AddItem(ctx context.Context, bookID int64) error {
	return a.c.do(ctx, http.MethodPost, "/api/wishlist/items", common.WishlistAddRequest{BookID: bookID}, nil)
}

func (a *WishlistAPI) RemoveItem(ctx context.Context, bookID int64) error {
	return a.c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/wishlist/items/%d", bookID), nil, nil)
}

func (a *WishlistAPI) Clear(ctx context.Context) error {
	return a.c.do(ctx, http.MethodDelete, "/api/wishlist", nil, nil)
}

// ReviewsAPI implements state.RemoteReviews.
type ReviewsAPI struct{ c *Client }

func (a *ReviewsAPI) List(ctx context.Context, bookID int64) ([]common.Review, error) {
	var v common.ReviewList
	if err := a.c.do(ctx, http.MethodGet, fmt.Sprintf("/api/books/%d/reviews", bookID), nil, &v); err != nil {
		return nil, err
	}
	return v.Items, nil
}

func (a *ReviewsAPI) Create(ctx context.Context, bookID int64, in common.ReviewInput) (common.Review, error) {
	var out common.Review
	err := a.c.do(ctx, http.MethodPost, fmt.Sprintf("/api/books/%d/reviews", bookID), in, &out)
	return out, err
}

func (a *ReviewsAPI) Update(ctx context.Context, reviewID string, in common.ReviewInput) (common.Review, error) {
	var out common.Review
	err := a.c.do(ctx, http.MethodPut, "/api/reviews/"+url.PathEscape(reviewID), in, &out)
	return out, err
}

func (a *ReviewsAPI) Delete(ctx context.Context, reviewID string) error {
	return a.c.do(ctx, http.MethodDelete, "/api/reviews/"+url.PathEscape(reviewID), nil, nil)
}

func (a *ReviewsAPI) MarkHelpful(ctx context.Context, reviewID string) (common.Review, error) {
	var out common.Review
	err := a.c.do(ctx, http.MethodPost, "/api/reviews/"+url.PathEscape(reviewID)+"/helpful", nil, &out)
	return out, err
}
