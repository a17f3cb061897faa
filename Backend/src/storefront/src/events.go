package main

import "context"

const (
	EvCartItemAdded   = "cart.item.added"
	EvCartItemUpdated = "cart.item.updated"
	EvCartItemRemoved = "cart.item.removed"
	EvCartCleared     = "cart.cleared"
	EvWishlistAdded   = "wishlist.item.added"
	EvWishlistRemoved = "wishlist.item.removed"
	EvWishlistCleared = "wishlist.cleared"
	EvReviewCreated   = "review.created"
	EvReviewUpdated   = "review.updated"
	EvReviewDeleted   = "review.deleted"
	EvReviewHelpful   = "review.helpful"
	EvUserCreated     = "user.created"
)

type Events interface {
	PublishJSON(ctx context.Context, routingKey string, payload any) error
}

type CartItemEvent struct {
	UserID int64 `json:"user_id"`
	BookID int64 `json:"book_id"`
	Qty    int32 `json:"qty,omitempty"`
}

type WishlistEvent struct {
	UserID int64 `json:"user_id"`
	BookID int64 `json:"book_id,omitempty"`
}

type ReviewEvent struct {
	ReviewID string `json:"review_id"`
	BookID   int64  `json:"book_id,omitempty"`
	UserID   int64  `json:"user_id,omitempty"`
	Rating   int    `json:"rating,omitempty"`
}

type UserCreated struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}
