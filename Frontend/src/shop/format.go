package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ahinestrog/bookshop/Frontend/src/state"
	"github.com/ahinestrog/bookshop/common"
	"github.com/dustin/go-humanize"
)

func formatMoney(m common.Money) string {
	sign := ""
	c := m.Cents
	if c < 0 {
		sign, c = "-", -c
	}
	return fmt.Sprintf("%s$%s.%02d", sign, humanize.Comma(c/100), c%100)
}

func bookLabel(b common.Book, id int64) string {
	if b.Title != "" {
		return b.Title
	}
	return fmt.Sprintf("Book #%d", id)
}

func stockLabel(n int32) string {
	switch {
	case n <= 0:
		return "out of stock"
	case n == 1:
		return "1 left"
	}
	return fmt.Sprintf("%d in stock", n)
}

func printCart(w io.Writer, cart *state.Cart) {
	lines := cart.Lines()
	if len(lines) == 0 {
		fmt.Fprintf(w, "Your cart is empty (%s).\n", cart.Mode())
		return
	}
	for _, l := range lines {
		price := "-"
		if l.Book.Known() {
			price = formatMoney(l.LineTotal())
		}
		fmt.Fprintf(w, "%4d  %-32s x%-3d %12s\n", l.BookID, bookLabel(l.Book, l.BookID), l.Qty, price)
	}
	fmt.Fprintf(w, "%d items, total %s (%s)\n", cart.ItemCount(), formatMoney(cart.Total()), cart.Mode())
}

func printWishlist(w io.Writer, wl *state.Wishlist, now time.Time) {
	entries := wl.Entries()
	if len(entries) == 0 {
		fmt.Fprintf(w, "Your wishlist is empty (%s).\n", wl.Mode())
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%4d  %-32s saved %s\n", e.BookID, bookLabel(e.Book, e.BookID), humanize.RelTime(e.AddedAt, now, "ago", "from now"))
	}
}

func printReview(w io.Writer, r common.Review, now time.Time) {
	n := min(max(r.Rating, 0), 5)
	stars := strings.Repeat("*", n) + strings.Repeat(".", 5-n)
	fmt.Fprintf(w, "[%s] %s  %s, %s  (%s)\n", r.ID, stars, orAnonymous(r.UserName), humanize.RelTime(r.CreatedAt, now, "ago", "from now"), helpfulLabel(r.Helpful))
	if r.Title != "" {
		fmt.Fprintf(w, "  %s\n", r.Title)
	}
	if r.Body != "" {
		fmt.Fprintf(w, "  %s\n", r.Body)
	}
}

func printStats(w io.Writer, st state.Stats) {
	if st.Total == 0 {
		fmt.Fprintln(w, "No ratings yet.")
		return
	}
	fmt.Fprintf(w, "%.1f out of 5 (%s)\n", st.Average, humanize.Comma(int64(st.Total))+" "+plural(st.Total, "rating"))
	for stars := 5; stars >= 1; stars-- {
		fmt.Fprintf(w, "  %d %s %d\n", stars, strings.Repeat("#", st.Histogram[stars]), st.Histogram[stars])
	}
}

func orAnonymous(name string) string {
	if name == "" {
		return "anonymous"
	}
	return name
}

func helpfulLabel(n int) string {
	return fmt.Sprintf("%d %s", n, plural(n, "helpful vote"))
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
