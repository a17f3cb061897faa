// Tipos compartidos entre el backend storefront y el cliente (Frontend/src/state, api).
package common

import "time"

// Book is the denormalized copy of catalog fields kept next to a cart line or
// wishlist entry. A guest-mode snapshot may only carry ID.
type Book struct {
	ID         int64  `json:"id"`
	Title      string `json:"title,omitempty"`
	Author     string `json:"author,omitempty"`
	PriceCents int64  `json:"price_cents,omitempty"`
	Stock      int32  `json:"stock,omitempty"`
	CoverURL   string `json:"cover_url,omitempty"`
}

// Known reports whether the snapshot carries more than the bare id.
func (b Book) Known() bool { return b.Title != "" || b.PriceCents != 0 || b.Stock != 0 }

type CartLine struct {
	BookID int64 `json:"book_id"`
	Qty    int32 `json:"qty"`
	Book   Book  `json:"book"`
}

func (l CartLine) LineTotal() Money { return Money{Cents: l.Book.PriceCents}.Mul(l.Qty) }

type CartView struct {
	Items []CartLine `json:"items"`
}

type WishlistEntry struct {
	BookID  int64     `json:"book_id"`
	Book    Book      `json:"book"`
	AddedAt time.Time `json:"added_at"`
}

type WishlistView struct {
	Items []WishlistEntry `json:"items"`
}

type Review struct {
	ID        string    `json:"id"`
	BookID    int64     `json:"book_id"`
	UserID    int64     `json:"user_id"`
	UserName  string    `json:"user_name,omitempty"`
	Rating    int       `json:"rating"`
	Title     string    `json:"title,omitempty"`
	Body      string    `json:"body,omitempty"`
	Helpful   int       `json:"helpful"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ReviewList struct {
	Items []Review `json:"items"`
}

// ReviewInput is the body of create and update requests.
type ReviewInput struct {
	Rating int    `json:"rating"`
	Title  string `json:"title,omitempty"`
	Body   string `json:"body,omitempty"`
}

type AddItemRequest struct {
	BookID int64 `json:"book_id"`
	Qty    int32 `json:"qty"`
}

type UpdateItemRequest struct {
	Qty int32 `json:"qty"`
}

type WishlistAddRequest struct {
	BookID int64 `json:"book_id"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token  string `json:"token"`
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
}

// ErrorBody is what the backend writes on every non-2xx response.
type ErrorBody struct {
	Message string `json:"message"`
}

type Money struct{ Cents int64 }

func (m Money) Add(o Money) Money   { return Money{Cents: m.Cents + o.Cents} }
func (m Money) Mul(qty int32) Money { return Money{Cents: m.Cents * int64(qty)} }
