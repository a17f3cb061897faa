package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ahinestrog/bookshop/Frontend/src/state"
	"github.com/ahinestrog/bookshop/common"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeBackend struct {
	mu      sync.Mutex
	books   map[int64]common.Book
	cart    []common.CartLine
	reviews []common.Review
}

func reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newFakeBackend(t *testing.T) (*fakeBackend, string) {
	t.Helper()
	f := &fakeBackend{
		books: map[int64]common.Book{
			1: {ID: 1, Title: "Dune", PriceCents: 1500, Stock: 10},
			2: {ID: 2, Title: "Emma", PriceCents: 900, Stock: 2},
		},
		reviews: []common.Review{
			{ID: "r1", BookID: 1, UserID: 3, UserName: "Luis", Rating: 5, CreatedAt: testNow.Add(-48 * time.Hour)},
			{ID: "r2", BookID: 1, UserID: 4, UserName: "Eva", Rating: 4, Helpful: 2, CreatedAt: testNow.Add(-time.Hour)},
		},
	}

	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok" {
				reply(w, http.StatusUnauthorized, common.ErrorBody{Message: "Please sign in to continue."})
				return
			}
			next(w, r)
		}
	}

	r := chi.NewRouter()
	r.Post("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var in common.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in.Password != "secret" {
			reply(w, http.StatusUnauthorized, common.ErrorBody{Message: "Invalid email or password."})
			return
		}
		reply(w, http.StatusOK, common.LoginResponse{Token: "tok", UserID: 7, Name: "Ana"})
	})
	r.Post("/api/auth/logout", authed(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	r.Get("/api/books/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		f.mu.Lock()
		b, ok := f.books[id]
		f.mu.Unlock()
		if !ok {
			reply(w, http.StatusNotFound, common.ErrorBody{Message: "Book not found."})
			return
		}
		reply(w, http.StatusOK, b)
	})
	r.Get("/api/books/{id}/reviews", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		f.mu.Lock()
		defer f.mu.Unlock()
		out := []common.Review{}
		for _, rev := range f.reviews {
			if rev.BookID == id {
				out = append(out, rev)
			}
		}
		reply(w, http.StatusOK, common.ReviewList{Items: out})
	})
	r.Get("/api/cart", authed(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		reply(w, http.StatusOK, common.CartView{Items: append([]common.CartLine{}, f.cart...)})
	}))
	r.Post("/api/cart/items", authed(func(w http.ResponseWriter, r *http.Request) {
		var in common.AddItemRequest
		_ = json.NewDecoder(r.Body).Decode(&in)
		f.mu.Lock()
		defer f.mu.Unlock()
		b := f.books[in.BookID]
		for i := range f.cart {
			if f.cart[i].BookID == in.BookID {
				if f.cart[i].Qty+in.Qty > b.Stock {
					reply(w, http.StatusConflict, common.ErrorBody{Message: fmt.Sprintf("Only %d left in stock.", b.Stock)})
					return
				}
				f.cart[i].Qty += in.Qty
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		if in.Qty > b.Stock {
			reply(w, http.StatusConflict, common.ErrorBody{Message: fmt.Sprintf("Only %d left in stock.", b.Stock)})
			return
		}
		f.cart = append(f.cart, common.CartLine{BookID: in.BookID, Qty: in.Qty, Book: b})
		w.WriteHeader(http.StatusNoContent)
	}))
	r.Get("/api/wishlist", authed(func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, common.WishlistView{Items: []common.WishlistEntry{}})
	}))
	r.Post("/api/wishlist/items", authed(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return f, srv.URL
}

type harness struct {
	t     *testing.T
	api   string
	local state.LocalStore
}

func newHarness(t *testing.T) (*harness, *fakeBackend) {
	f, url := newFakeBackend(t)
	return &harness{t: t, api: url, local: state.NewMemoryStore()}, f
}

func (h *harness) run(args ...string) (int, string) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	code := Run(append([]string{"--api", h.api}, args...), Dependencies{
		Out:   &out,
		Err:   &errOut,
		Local: h.local,
		Now:   func() time.Time { return testNow },
	})
	return code, out.String() + errOut.String()
}

func TestCommandPath(t *testing.T) {
	assert.Equal(t, "cart add", commandPath("cart add <book-id> <qty>"))
	assert.Equal(t, "whoami", commandPath("whoami"))
}

func TestRun_GuestCartPersistsAcrossInvocations(t *testing.T) {
	h, _ := newHarness(t)

	code, out := h.run("cart", "add", "1", "2")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "Added Book #1 (now x2). 2 in cart.")

	code, out = h.run("cart", "add", "1")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "(now x3)")

	code, out = h.run("cart", "show")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "Book #1")
	assert.Contains(t, out, "3 items")
	assert.Contains(t, out, "(guest)")

	code, out = h.run("cart", "show", "--refresh")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "Dune")
	assert.Contains(t, out, "total $45.00")

	code, out = h.run("cart", "check")
	assert.Equal(t, 0, code, out)
	assert.Contains(t, out, "Ready to checkout.")
}

func TestRun_GuestCheckUnknownStock(t *testing.T) {
	h, _ := newHarness(t)
	code, _ := h.run("cart", "add", "2", "1")
	require.Equal(t, 0, code)

	code, out := h.run("cart", "check")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "Book #2: stock unknown")
}

func TestRun_ValidationMessages(t *testing.T) {
	h, _ := newHarness(t)

	code, out := h.run("cart", "add", "1", "0")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "Quantity must be at least 1.")

	code, out = h.run("wishlist", "add", "0")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "Unknown product.")

	code, out = h.run("cart", "set", "2", "3")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "This book is not in your cart.")

	_, _ = h.run("cart", "add", "1", "2147483647")
	code, out = h.run("cart", "add", "1")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "Quantity is too large.")
}

func TestRun_SetZeroRemoves(t *testing.T) {
	h, _ := newHarness(t)
	_, _ = h.run("cart", "add", "1", "2")

	code, out := h.run("cart", "set", "1", "0")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "Your cart is empty (guest).")
}

func TestRun_WishlistMoveToCart(t *testing.T) {
	h, _ := newHarness(t)
	code, out := h.run("wishlist", "add", "1")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "Saved. 1 in wishlist.")

	code, out = h.run("wishlist", "show")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "saved now")

	code, out = h.run("wishlist", "move", "1")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "Moved to cart. 1 in cart.")

	code, out = h.run("wishlist", "move", "1")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "not in your wishlist")
}

func TestRun_LoginMergeAndLogout(t *testing.T) {
	h, f := newHarness(t)
	_, _ = h.run("cart", "add", "2", "1")

	code, out := h.run("login", "-e", "ana@example.com", "-p", "nope")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "Invalid email or password.")

	code, out = h.run("login", "-e", "ana@example.com", "-p", "secret", "--merge")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "Signed in as Ana. 1 in cart, 0 in wishlist.")
	f.mu.Lock()
	require.Len(t, f.cart, 1)
	assert.Equal(t, int64(2), f.cart[0].BookID)
	f.mu.Unlock()

	code, out = h.run("whoami")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Ana (user 7), authenticated")

	code, out = h.run("cart", "add", "2", "5")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "Only 2 left in stock.")

	code, out = h.run("logout")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "Signed out.")

	code, out = h.run("cart", "show")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Your cart is empty (guest).")
}

func TestRun_LoginReplacesGuestCart(t *testing.T) {
	h, _ := newHarness(t)
	_, _ = h.run("cart", "add", "1", "4")

	code, out := h.run("login", "-e", "ana@example.com", "-p", "secret")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "0 in cart")

	_, _ = h.run("logout")
	code, out = h.run("cart", "show")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "4 items")
}

func TestRun_ReviewsListAndStats(t *testing.T) {
	h, _ := newHarness(t)

	code, out := h.run("reviews", "stats", "1")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "4.5 out of 5 (2 ratings)")

	code, out = h.run("reviews", "list", "1", "--sort", "helpful")
	require.Equal(t, 0, code, out)
	assert.Less(t, bytes.Index([]byte(out), []byte("[r2]")), bytes.Index([]byte(out), []byte("[r1]")))
	assert.Contains(t, out, "2 days ago")

	code, out = h.run("reviews", "list", "2")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "No reviews yet.")
}

func TestRun_WriteReviewNeedsLogin(t *testing.T) {
	h, _ := newHarness(t)
	code, out := h.run("reviews", "write", "1", "-r", "5")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "Please sign in first.")
}

func TestRun_BooksShow(t *testing.T) {
	h, _ := newHarness(t)
	code, out := h.run("books", "show", "2")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "Emma")
	assert.Contains(t, out, "$9.00")
	assert.Contains(t, out, "2 in stock")

	code, out = h.run("books", "show", "9")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "Book not found.")
}

func TestRun_ParseError(t *testing.T) {
	h, _ := newHarness(t)
	code, out := h.run("checkout")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "Error:")
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$59,900.00", formatMoney(common.Money{Cents: 5990000}))
	assert.Equal(t, "$0.05", formatMoney(common.Money{Cents: 5}))
	assert.Equal(t, "-$1.50", formatMoney(common.Money{Cents: -150}))
}
