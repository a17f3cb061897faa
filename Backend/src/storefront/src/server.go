// Servidor HTTP REST del storefront (chi + cors).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ahinestrog/bookshop/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLen  = 8
	defaultPageSize = 20
	maxPageSize     = 100
)

type Server struct {
	repo       *Repository
	events     Events
	log        zerolog.Logger
	sessionTTL time.Duration
}

func NewServer(repo *Repository, events Events, log zerolog.Logger, sessionTTL time.Duration) *Server {
	return &Server{repo: repo, events: events, log: log, sessionTTL: sessionTTL}
}

func (s *Server) Routes(origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, s.requestLog, middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Get("/books", s.handleListBooks)
		r.Get("/books/{id}", s.handleGetBook)
		r.Get("/books/{id}/reviews", s.handleListReviews)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Post("/auth/logout", s.handleLogout)

			r.Get("/cart", s.handleGetCart)
			r.Delete("/cart", s.handleClearCart)
			r.Post("/cart/items", s.handleAddCartItem)
			r.Patch("/cart/items/{id}", s.handleUpdateCartItem)
			r.Delete("/cart/items/{id}", s.handleRemoveCartItem)

			r.Get("/wishlist", s.handleGetWishlist)
			r.Delete("/wishlist", s.handleClearWishlist)
			r.Post("/wishlist/items", s.handleAddWishlistItem)
			r.Delete("/wishlist/items/{id}", s.handleRemoveWishlistItem)

			r.Post("/books/{id}/reviews", s.handleCreateReview)
			r.Put("/reviews/{id}", s.handleUpdateReview)
			r.Delete("/reviews/{id}", s.handleDeleteReview)
			r.Post("/reviews/{id}/helpful", s.handleMarkHelpful)
		})
	})

	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         600,
	}).Handler(r)
}

// ---------- middleware ----------

type ctxKey int

const userKey ctxKey = iota

func userID(r *http.Request) int64 {
	id, _ := r.Context().Value(userKey).(int64)
	return id
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearer(r)
		if tok == "" {
			s.fail(w, r, ErrUnauthorized, "")
			return
		}
		uid, err := s.repo.UserForToken(r.Context(), tok)
		if err != nil {
			s.fail(w, r, err, "")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, uid)))
	})
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http")
	})
}

// ---------- helpers ----------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, common.ErrorBody{Message: msg})
}

// fail traduce errores del repositorio a respuestas; msg es el texto para
// ErrNotFound y ErrConflict.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	var se *StockError
	switch {
	case errors.As(err, &se):
		if se.Available <= 0 {
			writeMessage(w, http.StatusConflict, "This book is out of stock.")
			return
		}
		writeMessage(w, http.StatusConflict, fmt.Sprintf("Only %d left in stock.", se.Available))
	case errors.Is(err, ErrUnauthorized):
		writeMessage(w, http.StatusUnauthorized, "Please sign in to continue.")
	case errors.Is(err, ErrForbidden):
		writeMessage(w, http.StatusForbidden, "You can only change your own reviews.")
	case errors.Is(err, ErrNotFound):
		writeMessage(w, http.StatusNotFound, orDefault(msg, "Not found."))
	case errors.Is(err, ErrConflict):
		writeMessage(w, http.StatusConflict, orDefault(msg, "Already exists."))
	default:
		s.log.Error().Err(err).Str("path", r.URL.Path).Str("request_id", middleware.GetReqID(r.Context())).Msg("request failed")
		writeMessage(w, http.StatusInternalServerError, "Internal server error.")
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body.")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeMessage(w, http.StatusBadRequest, "Invalid book id.")
		return 0, false
	}
	return id, true
}

func (s *Server) publish(r *http.Request, key string, payload any) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Second)
	defer cancel()
	if err := s.events.PublishJSON(ctx, key, payload); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("publish failed")
	}
}

func validRating(rating int) bool { return rating >= 1 && rating <= 5 }

// ---------- auth ----------

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in common.RegisterRequest
	if !decode(w, r, &in) {
		return
	}
	in.Name, in.Email = strings.TrimSpace(in.Name), strings.TrimSpace(in.Email)
	if in.Name == "" || in.Email == "" || in.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Name, email and password are required.")
		return
	}
	if len(in.Password) < minPasswordLen {
		writeMessage(w, http.StatusBadRequest, fmt.Sprintf("Password must be at least %d characters.", minPasswordLen))
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	id, err := s.repo.CreateUser(r.Context(), in.Name, in.Email, string(hash))
	if err != nil {
		s.fail(w, r, err, "Email already registered.")
		return
	}
	s.publish(r, EvUserCreated, UserCreated{UserID: id, Name: in.Name, Email: in.Email})
	s.issueSession(w, r, id, in.Name, http.StatusCreated)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in common.LoginRequest
	if !decode(w, r, &in) {
		return
	}
	u, err := s.repo.GetUserByEmail(r.Context(), strings.TrimSpace(in.Email))
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.fail(w, r, err, "")
		return
	}
	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		writeMessage(w, http.StatusUnauthorized, "Invalid email or password.")
		return
	}
	s.issueSession(w, r, u.ID, u.Name, http.StatusOK)
}

func (s *Server) issueSession(w http.ResponseWriter, r *http.Request, uid int64, name string, status int) {
	sess, err := s.repo.CreateSession(r.Context(), uid, s.sessionTTL)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, status, common.LoginResponse{Token: sess.Token, UserID: uid, Name: name})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.DeleteSession(r.Context(), bearer(r)); err != nil {
		s.fail(w, r, err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------- catálogo ----------

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset, _ := strconv.Atoi(q.Get("offset"))
	if offset < 0 {
		offset = 0
	}
	books, err := s.repo.ListBooks(r.Context(), q.Get("q"), limit, offset)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": books})
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b, err := s.repo.GetBook(r.Context(), id)
	if err != nil {
		s.fail(w, r, err, "Book not found.")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// ---------- carrito ----------

func (s *Server) writeCart(w http.ResponseWriter, r *http.Request) {
	lines, err := s.repo.CartLines(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, common.CartView{Items: lines})
}

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) { s.writeCart(w, r) }

func (s *Server) handleAddCartItem(w http.ResponseWriter, r *http.Request) {
	var in common.AddItemRequest
	if !decode(w, r, &in) {
		return
	}
	if in.BookID <= 0 {
		writeMessage(w, http.StatusBadRequest, "Invalid book id.")
		return
	}
	if in.Qty < 1 {
		writeMessage(w, http.StatusBadRequest, "Quantity must be at least 1.")
		return
	}
	uid := userID(r)
	if err := s.repo.AddCartItem(r.Context(), uid, in.BookID, in.Qty); err != nil {
		s.fail(w, r, err, "Book not found.")
		return
	}
	s.publish(r, EvCartItemAdded, CartItemEvent{UserID: uid, BookID: in.BookID, Qty: in.Qty})
	s.writeCart(w, r)
}

func (s *Server) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in common.UpdateItemRequest
	if !decode(w, r, &in) {
		return
	}
	if in.Qty < 1 {
		writeMessage(w, http.StatusBadRequest, "Quantity must be at least 1.")
		return
	}
	uid := userID(r)
	if err := s.repo.SetCartQty(r.Context(), uid, id, in.Qty); err != nil {
		s.fail(w, r, err, "This book is not in your cart.")
		return
	}
	s.publish(r, EvCartItemUpdated, CartItemEvent{UserID: uid, BookID: id, Qty: in.Qty})
	s.writeCart(w, r)
}

func (s *Server) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	uid := userID(r)
	if err := s.repo.RemoveCartItem(r.Context(), uid, id); err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.publish(r, EvCartItemRemoved, CartItemEvent{UserID: uid, BookID: id})
	s.writeCart(w, r)
}

func (s *Server) handleClearCart(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if err := s.repo.ClearCart(r.Context(), uid); err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.publish(r, EvCartCleared, CartItemEvent{UserID: uid})
	w.WriteHeader(http.StatusNoContent)
}

// ---------- lista de deseos ----------

func (s *Server) writeWishlist(w http.ResponseWriter, r *http.Request) {
	entries, err := s.repo.WishlistEntries(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, common.WishlistView{Items: entries})
}

func (s *Server) handleGetWishlist(w http.ResponseWriter, r *http.Request) { s.writeWishlist(w, r) }

func (s *Server) handleAddWishlistItem(w http.ResponseWriter, r *http.Request) {
	var in common.WishlistAddRequest
	if !decode(w, r, &in) {
		return
	}
	if in.BookID <= 0 {
		writeMessage(w, http.StatusBadRequest, "Invalid book id.")
		return
	}
	uid := userID(r)
	added, err := s.repo.AddWishlistItem(r.Context(), uid, in.BookID)
	if err != nil {
		s.fail(w, r, err, "Book not found.")
		return
	}
	if added {
		s.publish(r, EvWishlistAdded, WishlistEvent{UserID: uid, BookID: in.BookID})
	}
	s.writeWishlist(w, r)
}

func (s *Server) handleRemoveWishlistItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	uid := userID(r)
	if err := s.repo.RemoveWishlistItem(r.Context(), uid, id); err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.publish(r, EvWishlistRemoved, WishlistEvent{UserID: uid, BookID: id})
	s.writeWishlist(w, r)
}

func (s *Server) handleClearWishlist(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if err := s.repo.ClearWishlist(r.Context(), uid); err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.publish(r, EvWishlistCleared, WishlistEvent{UserID: uid})
	w.WriteHeader(http.StatusNoContent)
}

// ---------- reseñas ----------

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := s.repo.GetBook(r.Context(), id); err != nil {
		s.fail(w, r, err, "Book not found.")
		return
	}
	list, err := s.repo.ListReviews(r.Context(), id)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, common.ReviewList{Items: list})
}

func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in common.ReviewInput
	if !decode(w, r, &in) {
		return
	}
	if !validRating(in.Rating) {
		writeMessage(w, http.StatusBadRequest, "Rating must be between 1 and 5 stars.")
		return
	}
	rev, err := s.repo.CreateReview(r.Context(), userID(r), id, in)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			s.fail(w, r, err, "You have already reviewed this book.")
			return
		}
		s.fail(w, r, err, "Book not found.")
		return
	}
	s.publish(r, EvReviewCreated, ReviewEvent{ReviewID: rev.ID, BookID: rev.BookID, UserID: rev.UserID, Rating: rev.Rating})
	writeJSON(w, http.StatusCreated, rev)
}

func (s *Server) handleUpdateReview(w http.ResponseWriter, r *http.Request) {
	var in common.ReviewInput
	if !decode(w, r, &in) {
		return
	}
	if !validRating(in.Rating) {
		writeMessage(w, http.StatusBadRequest, "Rating must be between 1 and 5 stars.")
		return
	}
	rev, err := s.repo.UpdateReview(r.Context(), userID(r), chi.URLParam(r, "id"), in)
	if err != nil {
		s.fail(w, r, err, "Review not found.")
		return
	}
	s.publish(r, EvReviewUpdated, ReviewEvent{ReviewID: rev.ID, BookID: rev.BookID, UserID: rev.UserID, Rating: rev.Rating})
	writeJSON(w, http.StatusOK, rev)
}

func (s *Server) handleDeleteReview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.repo.DeleteReview(r.Context(), userID(r), id); err != nil {
		s.fail(w, r, err, "Review not found.")
		return
	}
	s.publish(r, EvReviewDeleted, ReviewEvent{ReviewID: id, UserID: userID(r)})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkHelpful(w http.ResponseWriter, r *http.Request) {
	rev, err := s.repo.MarkHelpful(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, "Review not found.")
		return
	}
	s.publish(r, EvReviewHelpful, ReviewEvent{ReviewID: rev.ID, BookID: rev.BookID})
	writeJSON(w, http.StatusOK, rev)
}
