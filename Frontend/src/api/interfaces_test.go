package api

import "github.com/ahinestrog/bookshop/Frontend/src/state"

var (
	_ state.RemoteCart     = (*CartAPI)(nil)
	_ state.RemoteWishlist = (*WishlistAPI)(nil)
	_ state.RemoteReviews  = (*ReviewsAPI)(nil)
	_ state.SnapshotSource = (*Client)(nil)
	_ state.Authenticator  = (*Client)(nil)
	_ state.Displayer      = (*RemoteError)(nil)
)
