package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/ahinestrog/bookshop/Frontend/src/state"
	"github.com/ahinestrog/bookshop/common"
)

type commandHandler func(context.Context, *runtime, CLI) int

var commands = map[string]commandHandler{
	"cart show":       runCartShow,
	"cart add":        runCartAdd,
	"cart set":        runCartSet,
	"cart remove":     runCartRemove,
	"cart clear":      runCartClear,
	"cart check":      runCartCheck,
	"wishlist show":   runWishlistShow,
	"wishlist add":    runWishlistAdd,
	"wishlist remove": runWishlistRemove,
	"wishlist move":   runWishlistMove,
	"wishlist clear":  runWishlistClear,
	"reviews list":    runReviewsList,
	"reviews stats":   runReviewsStats,
	"reviews write":   runReviewsWrite,
	"reviews edit":    runReviewsEdit,
	"reviews delete":  runReviewsDelete,
	"reviews helpful": runReviewsHelpful,
	"books list":      runBooksList,
	"books show":      runBooksShow,
	"login":           runLogin,
	"register":        runRegister,
	"logout":          runLogout,
	"whoami":          runWhoami,
}

// ---------- cart ----------

func runCartShow(ctx context.Context, rt *runtime, cli CLI) int {
	rt.restore(ctx)
	cart := rt.session.Cart
	if cli.Cart.Show.Refresh && cart.Mode() == state.Guest {
		if res := cart.RefreshSnapshots(ctx); !res.OK {
			fmt.Fprintf(rt.out, "Warning: %s\n", res.Message)
		}
	}
	printCart(rt.out, cart)
	return 0
}

func runCartAdd(ctx context.Context, rt *runtime, cli CLI) int {
	rt.restore(ctx)
	c := cli.Cart.Add
	if code := rt.report(rt.session.Cart.Add(ctx, c.BookID, c.Qty)); code != 0 {
		return code
	}
	line, _ := rt.session.Cart.Line(c.BookID)
	fmt.Fprintf(rt.out, "Added %s (now x%d). %d in cart.\n", bookLabel(line.Book, c.BookID), line.Qty, rt.session.Cart.ItemCount())
	return 0
}

func runCartSet(ctx context.Context, rt *runtime, cli CLI) int {
	rt.restore(ctx)
	c := cli.Cart.Set
	if code := rt.report(rt.session.Cart.SetQuantity(ctx, c.BookID, c.Qty)); code != 0 {
		return code
	}
	printCart(rt.out, rt.session.Cart)
	return 0
}

func runCartRemove(ctx context.Context, rt *runtime, cli CLI) int {
	rt.restore(ctx)
	if code := rt.report(rt.session.Cart.Remove(ctx, cli.Cart.Remove.BookID)); code != 0 {
		return code
	}
	printCart(rt.out, rt.session.Cart)
	return 0
}

func runCartClear(ctx context.Context, rt *runtime, _ CLI) int {
	rt.restore(ctx)
	if code := rt.report(rt.session.Cart.Clear(ctx)); code != 0 {
		return code
	}
	fmt.Fprintln(rt.out, "Cart cleared.")
	return 0
}

func runCartCheck(ctx context.Context, rt *runtime, _ CLI) int {
	rt.restore(ctx)
	blockers := rt.session.Cart.CheckoutBlockers()
	if len(blockers) == 0 {
		fmt.Fprintln(rt.out, "Ready to checkout.")
		return 0
	}
	for _, b := range blockers {
		name := bookLabel(common.Book{ID: b.BookID, Title: b.Title}, b.BookID)
		switch b.Reason {
		case state.StockShort:
			fmt.Fprintf(rt.out, "%s: %d requested, %d available\n", name, b.Requested, b.Available)
		case state.StockUnknown:
			fmt.Fprintf(rt.out, "%s: stock unknown, run 'shop cart show --refresh'\n", name)
		}
	}
	return 1
}

// ---------- wishlist ----------

func runWishlistShow(ctx context.Context, rt *runtime, _ CLI) int {
	rt.restore(ctx)
	printWishlist(rt.out, rt.session.Wishlist, rt.now())
	return 0
}

func runWishlistAdd(ctx context.Context, rt *runtime, cli CLI) int {
	rt.restore(ctx)
	if code := rt.report(rt.session.Wishlist.Add(ctx, cli.Wishlist.Add.BookID)); code != 0 {
		return code
	}
	fmt.Fprintf(rt.out, "Saved. %d in wishlist.\n", rt.session.Wishlist.Count())
	return 0
}

func runWishlistRemove(ctx context.Context, rt *runtime, cli CLI) int {
	rt.restore(ctx)
	if code := rt.report(rt.session.Wishlist.Remove(ctx, cli.Wishlist.Remove.BookID)); code != 0 {
		return code
	}
	fmt.Fprintf(rt.out, "Removed. %d in wishlist.\n", rt.session.Wishlist.Count())
	return 0
}

func runWishlistMove(ctx context.Context, rt *runtime, cli CLI) int {
	rt.restore(ctx)
	id := cli.Wishlist.Move.BookID
	if !rt.session.Wishlist.IsPresent(id) {
		fmt.Fprintln(rt.out, "That book is not in your wishlist.")
		return 1
	}
	if code := rt.report(rt.session.Wishlist.MoveToCart(ctx, id, rt.session.Cart)); code != 0 {
		return code
	}
	fmt.Fprintf(rt.out, "Moved to cart. %d in cart.\n", rt.session.Cart.ItemCount())
	return 0
}

func runWishlistClear(ctx context.Context, rt *runtime, _ CLI) int {
	rt.restore(ctx)
	if code := rt.report(rt.session.Wishlist.Clear(ctx)); code != 0 {
		return code
	}
	fmt.Fprintln(rt.out, "Wishlist cleared.")
	return 0
}

// ---------- reviews ----------

var sortOrders = map[string]state.SortOrder{
	"newest":  state.SortNewest,
	"oldest":  state.SortOldest,
	"highest": state.SortHighest,
	"lowest":  state.SortLowest,
	"helpful": state.SortHelpful,
}

func runReviewsList(ctx context.Context, rt *runtime, cli CLI) int {
	c := cli.Reviews.List
	reviews := rt.session.Reviews
	if code := rt.report(reviews.Load(ctx, c.BookID)); code != 0 {
		return code
	}
	list := reviews.Sorted(c.BookID, sortOrders[c.Sort])
	if len(list) == 0 {
		fmt.Fprintln(rt.out, "No reviews yet.")
		return 0
	}
	for _, r := range list {
		printReview(rt.out, r, rt.now())
	}
	return 0
}

func runReviewsStats(ctx context.Context, rt *runtime, cli CLI) int {
	id := cli.Reviews.Stats.BookID
	if code := rt.report(rt.session.Reviews.Load(ctx, id)); code != 0 {
		return code
	}
	printStats(rt.out, rt.session.Reviews.RatingStats(id))
	return 0
}

// userReviews restores the login and loads the book's reviews before a write.
func (rt *runtime) userReviews(ctx context.Context, bookID int64) (*state.Reviews, bool) {
	rt.restore(ctx)
	if rt.session.Mode() != state.Authenticated {
		fmt.Fprintln(rt.out, "Please sign in first.")
		return nil, false
	}
	if rt.report(rt.session.Reviews.Load(ctx, bookID)) != 0 {
		return nil, false
	}
	return rt.session.Reviews, true
}

func runReviewsWrite(ctx context.Context, rt *runtime, cli CLI) int {
	c := cli.Reviews.Write
	reviews, ok := rt.userReviews(ctx, c.BookID)
	if !ok {
		return 1
	}
	u, _ := rt.session.User()
	if reviews.HasUserReviewed(c.BookID, u.UserID) {
		fmt.Fprintln(rt.out, "You have already reviewed this book.")
		return 1
	}
	if code := rt.report(reviews.Create(ctx, c.BookID, common.ReviewInput{Rating: c.Rating, Title: c.Title, Body: c.Body})); code != 0 {
		return code
	}
	fmt.Fprintln(rt.out, "Thanks for your review.")
	printStats(rt.out, reviews.RatingStats(c.BookID))
	return 0
}

func runReviewsEdit(ctx context.Context, rt *runtime, cli CLI) int {
	c := cli.Reviews.Edit
	reviews, ok := rt.userReviews(ctx, c.BookID)
	if !ok {
		return 1
	}
	if code := rt.report(reviews.Update(ctx, c.ReviewID, common.ReviewInput{Rating: c.Rating, Title: c.Title, Body: c.Body})); code != 0 {
		return code
	}
	fmt.Fprintln(rt.out, "Review updated.")
	return 0
}

func runReviewsDelete(ctx context.Context, rt *runtime, cli CLI) int {
	c := cli.Reviews.Delete
	reviews, ok := rt.userReviews(ctx, c.BookID)
	if !ok {
		return 1
	}
	if code := rt.report(reviews.Delete(ctx, c.ReviewID)); code != 0 {
		return code
	}
	fmt.Fprintln(rt.out, "Review deleted.")
	return 0
}

func runReviewsHelpful(ctx context.Context, rt *runtime, cli CLI) int {
	c := cli.Reviews.Helpful
	reviews, ok := rt.userReviews(ctx, c.BookID)
	if !ok {
		return 1
	}
	if code := rt.report(reviews.MarkHelpful(ctx, c.ReviewID)); code != 0 {
		return code
	}
	for _, r := range reviews.List(c.BookID) {
		if r.ID == c.ReviewID {
			fmt.Fprintf(rt.out, "Marked helpful (%d).\n", r.Helpful)
		}
	}
	return 0
}

// ---------- catalog ----------

func runBooksList(ctx context.Context, rt *runtime, cli CLI) int {
	books, err := rt.client.Books(ctx, cli.Books.List.Query)
	if err != nil {
		return rt.report(state.Failed(err))
	}
	if len(books) == 0 {
		fmt.Fprintln(rt.out, "No books found.")
		return 0
	}
	for _, b := range books {
		fmt.Fprintf(rt.out, "%4d  %-32s %-24s %12s  %s\n", b.ID, b.Title, b.Author, formatMoney(common.Money{Cents: b.PriceCents}), stockLabel(b.Stock))
	}
	return 0
}

func runBooksShow(ctx context.Context, rt *runtime, cli CLI) int {
	b, err := rt.client.Book(ctx, cli.Books.Show.BookID)
	if err != nil {
		return rt.report(state.Failed(err))
	}
	fmt.Fprintf(rt.out, "%s\nby %s\n%s  %s\n", b.Title, b.Author, formatMoney(common.Money{Cents: b.PriceCents}), stockLabel(b.Stock))
	return 0
}

// ---------- session ----------

func runLogin(ctx context.Context, rt *runtime, cli CLI) int {
	rt.restore(ctx)
	if code := rt.report(rt.session.Login(ctx, strings.TrimSpace(cli.Login.Email), cli.Login.Password)); code != 0 {
		return code
	}
	u, _ := rt.session.User()
	fmt.Fprintf(rt.out, "Signed in as %s. %d in cart, %d in wishlist.\n", u.Name, rt.session.Cart.ItemCount(), rt.session.Wishlist.Count())
	return 0
}

func runRegister(ctx context.Context, rt *runtime, cli CLI) int {
	c := cli.Register
	if _, err := rt.client.Register(ctx, strings.TrimSpace(c.Name), strings.TrimSpace(c.Email), c.Password); err != nil {
		return rt.report(state.Failed(err))
	}
	cli.Login = LoginCmd{Email: c.Email, Password: c.Password, Merge: c.Merge}
	return runLogin(ctx, rt, cli)
}

func runLogout(ctx context.Context, rt *runtime, _ CLI) int {
	rt.restore(ctx)
	if rt.session.Mode() == state.Guest {
		fmt.Fprintln(rt.out, "Not signed in.")
		return 0
	}
	if err := rt.client.Logout(ctx); err != nil {
		rt.log.Warn().Err(err).Msg("token not revoked")
	}
	if code := rt.report(rt.session.Logout(ctx)); code != 0 {
		return code
	}
	fmt.Fprintln(rt.out, "Signed out.")
	return 0
}

func runWhoami(ctx context.Context, rt *runtime, _ CLI) int {
	rt.restore(ctx)
	if u, ok := rt.session.User(); ok {
		fmt.Fprintf(rt.out, "%s (user %d), %s\n", u.Name, u.UserID, rt.session.Mode())
		return 0
	}
	fmt.Fprintln(rt.out, state.Guest.String())
	return 0
}
