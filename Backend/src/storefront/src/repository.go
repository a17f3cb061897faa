// Persistencia del storefront: catálogo, usuarios, sesiones, carrito,
// lista de deseos y reseñas.
package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ahinestrog/bookshop/common"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrInsufficient = errors.New("insufficient stock")
)

const schema = `
CREATE TABLE IF NOT EXISTS books (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  title TEXT NOT NULL,
  author TEXT NOT NULL,
  price_cents INTEGER NOT NULL,
  stock INTEGER NOT NULL DEFAULT 0,
  cover_url TEXT NOT NULL DEFAULT '',
  created_unix INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS users (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  created_unix INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
  token TEXT PRIMARY KEY,
  user_id INTEGER NOT NULL REFERENCES users(id),
  expires_unix INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS cart_items (
  user_id INTEGER NOT NULL REFERENCES users(id),
  book_id INTEGER NOT NULL REFERENCES books(id),
  qty INTEGER NOT NULL CHECK (qty > 0),
  added_unix INTEGER NOT NULL,
  PRIMARY KEY (user_id, book_id)
);
CREATE TABLE IF NOT EXISTS wishlist_items (
  user_id INTEGER NOT NULL REFERENCES users(id),
  book_id INTEGER NOT NULL REFERENCES books(id),
  added_unix INTEGER NOT NULL,
  PRIMARY KEY (user_id, book_id)
);
CREATE TABLE IF NOT EXISTS reviews (
  id TEXT PRIMARY KEY,
  book_id INTEGER NOT NULL REFERENCES books(id),
  user_id INTEGER NOT NULL REFERENCES users(id),
  rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
  title TEXT NOT NULL DEFAULT '',
  body TEXT NOT NULL DEFAULT '',
  helpful INTEGER NOT NULL DEFAULT 0,
  created_unix INTEGER NOT NULL,
  updated_unix INTEGER NOT NULL,
  UNIQUE (user_id, book_id)
);
CREATE INDEX IF NOT EXISTS reviews_by_book ON reviews(book_id, created_unix);`

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func openSQLite(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	// Busy timeout + WAL para concurrencia
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout=5000&_pragma=journal_mode=WAL&_pragma=foreign_keys=on")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func NewRepository(path string) (*Repository, error) {
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	r := &Repository{db: db, now: time.Now}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) Close() error { return r.db.Close() }

func isUnique(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ---------- catálogo ----------

const bookCols = `id,title,author,price_cents,stock,cover_url`

func scanBook(row interface{ Scan(...any) error }) (common.Book, error) {
	var b common.Book
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.PriceCents, &b.Stock, &b.CoverURL)
	return b, err
}

func (r *Repository) ListBooks(ctx context.Context, q string, limit, offset int) ([]common.Book, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if strings.TrimSpace(q) == "" {
		rows, err = r.db.QueryContext(ctx, `SELECT `+bookCols+` FROM books ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	} else {
		qp := "%" + strings.ToLower(q) + "%"
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+bookCols+` FROM books
			WHERE lower(title) LIKE ? OR lower(author) LIKE ?
			ORDER BY id LIMIT ? OFFSET ?`, qp, qp, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []common.Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repository) GetBook(ctx context.Context, id int64) (common.Book, error) {
	b, err := scanBook(r.db.QueryRowContext(ctx, `SELECT `+bookCols+` FROM books WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return common.Book{}, ErrNotFound
	}
	return b, err
}

func (r *Repository) InsertBook(ctx context.Context, b common.Book) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO books(title,author,price_cents,stock,cover_url,created_unix)
		VALUES(?,?,?,?,?,?)`, b.Title, b.Author, b.PriceCents, b.Stock, b.CoverURL, r.now().Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *Repository) CountBooks(ctx context.Context) (int64, error) {
	var c int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM books`).Scan(&c)
	return c, err
}

// ---------- usuarios y sesiones ----------

func (r *Repository) CreateUser(ctx context.Context, name, email, hash string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users(name,email,password_hash,created_unix) VALUES(?,?,?,?)`,
		name, strings.ToLower(email), hash, r.now().Unix())
	if isUnique(err) {
		return 0, ErrConflict
	}
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *Repository) scanUser(row *sql.Row) (*User, error) {
	u := &User{}
	var created int64
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.CreatedAt = time.Unix(created, 0).UTC()
	return u, nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id,name,email,password_hash,created_unix FROM users WHERE email=?`, strings.ToLower(email)))
}

func (r *Repository) GetUser(ctx context.Context, id int64) (*User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id,name,email,password_hash,created_unix FROM users WHERE id=?`, id))
}

func (r *Repository) CreateSession(ctx context.Context, userID int64, ttl time.Duration) (Session, error) {
	s := Session{Token: uuid.NewString(), UserID: userID, ExpiresAt: r.now().Add(ttl).UTC()}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions(token,user_id,expires_unix) VALUES(?,?,?)`, s.Token, s.UserID, s.ExpiresAt.Unix())
	return s, err
}

// UserForToken resuelve un token vigente; expirado o desconocido es ErrUnauthorized.
func (r *Repository) UserForToken(ctx context.Context, token string) (int64, error) {
	var uid, exp int64
	err := r.db.QueryRowContext(ctx, `SELECT user_id, expires_unix FROM sessions WHERE token=?`, token).Scan(&uid, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUnauthorized
	}
	if err != nil {
		return 0, err
	}
	if r.now().Unix() >= exp {
		_, _ = r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token=?`, token)
		return 0, ErrUnauthorized
	}
	return uid, nil
}

func (r *Repository) DeleteSession(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token=?`, token)
	return err
}

// ---------- carrito ----------

func (r *Repository) CartLines(ctx context.Context, userID int64) ([]common.CartLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.qty, b.id, b.title, b.author, b.price_cents, b.stock, b.cover_url
		FROM cart_items c JOIN books b ON b.id = c.book_id
		WHERE c.user_id=? ORDER BY c.added_unix, c.rowid`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []common.CartLine{}
	for rows.Next() {
		var ln common.CartLine
		b := &ln.Book
		if err := rows.Scan(&ln.Qty, &b.ID, &b.Title, &b.Author, &b.PriceCents, &b.Stock, &b.CoverURL); err != nil {
			return nil, err
		}
		ln.BookID = b.ID
		out = append(out, ln)
	}
	return out, rows.Err()
}

func stockOf(ctx context.Context, tx *sql.Tx, bookID int64) (int32, error) {
	var stock int32
	err := tx.QueryRowContext(ctx, `SELECT stock FROM books WHERE id=?`, bookID).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return stock, err
}

// AddCartItem suma qty a la línea existente, validando contra el stock.
func (r *Repository) AddCartItem(ctx context.Context, userID, bookID int64, qty int32) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stock, err := stockOf(ctx, tx, bookID)
	if err != nil {
		return err
	}
	var cur int32
	err = tx.QueryRowContext(ctx, `SELECT qty FROM cart_items WHERE user_id=? AND book_id=?`, userID, bookID).Scan(&cur)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	// en int64: cur+qty puede desbordar int32
	if qty > stock || int64(cur)+int64(qty) > int64(stock) {
		return &StockError{BookID: bookID, Available: stock}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO cart_items(user_id, book_id, qty, added_unix)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, book_id)
		DO UPDATE SET qty = qty + excluded.qty`, userID, bookID, qty, r.now().Unix())
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repository) SetCartQty(ctx context.Context, userID, bookID int64, qty int32) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stock, err := stockOf(ctx, tx, bookID)
	if err != nil {
		return err
	}
	if qty > stock {
		return &StockError{BookID: bookID, Available: stock}
	}
	res, err := tx.ExecContext(ctx, `UPDATE cart_items SET qty=? WHERE user_id=? AND book_id=?`, qty, userID, bookID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (r *Repository) RemoveCartItem(ctx context.Context, userID, bookID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id=? AND book_id=?`, userID, bookID)
	return err
}

func (r *Repository) ClearCart(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id=?`, userID)
	return err
}

// ---------- lista de deseos ----------

func (r *Repository) WishlistEntries(ctx context.Context, userID int64) ([]common.WishlistEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT w.added_unix, b.id, b.title, b.author, b.price_cents, b.stock, b.cover_url
		FROM wishlist_items w JOIN books b ON b.id = w.book_id
		WHERE w.user_id=? ORDER BY w.added_unix, w.rowid`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []common.WishlistEntry{}
	for rows.Next() {
		var e common.WishlistEntry
		var added int64
		b := &e.Book
		if err := rows.Scan(&added, &b.ID, &b.Title, &b.Author, &b.PriceCents, &b.Stock, &b.CoverURL); err != nil {
			return nil, err
		}
		e.BookID = b.ID
		e.AddedAt = time.Unix(added, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// AddWishlistItem es idempotente; added reporta si la fila es nueva.
func (r *Repository) AddWishlistItem(ctx context.Context, userID, bookID int64) (added bool, err error) {
	if _, err := r.GetBook(ctx, bookID); err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO wishlist_items(user_id, book_id, added_unix) VALUES (?, ?, ?)
		ON CONFLICT(user_id, book_id) DO NOTHING`, userID, bookID, r.now().Unix())
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *Repository) RemoveWishlistItem(ctx context.Context, userID, bookID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM wishlist_items WHERE user_id=? AND book_id=?`, userID, bookID)
	return err
}

func (r *Repository) ClearWishlist(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM wishlist_items WHERE user_id=?`, userID)
	return err
}

// ---------- reseñas ----------

const reviewSelect = `
	SELECT r.id, r.book_id, r.user_id, u.name, r.rating, r.title, r.body, r.helpful, r.created_unix, r.updated_unix
	FROM reviews r JOIN users u ON u.id = r.user_id`

func scanReview(row interface{ Scan(...any) error }) (common.Review, error) {
	var rev common.Review
	var created, updated int64
	err := row.Scan(&rev.ID, &rev.BookID, &rev.UserID, &rev.UserName, &rev.Rating,
		&rev.Title, &rev.Body, &rev.Helpful, &created, &updated)
	rev.CreatedAt = time.Unix(created, 0).UTC()
	rev.UpdatedAt = time.Unix(updated, 0).UTC()
	return rev, err
}

func (r *Repository) ListReviews(ctx context.Context, bookID int64) ([]common.Review, error) {
	rows, err := r.db.QueryContext(ctx, reviewSelect+` WHERE r.book_id=? ORDER BY r.created_unix, r.rowid`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []common.Review{}
	for rows.Next() {
		rev, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rev)
	}
	return out, rows.Err()
}

func (r *Repository) GetReview(ctx context.Context, id string) (common.Review, error) {
	rev, err := scanReview(r.db.QueryRowContext(ctx, reviewSelect+` WHERE r.id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return common.Review{}, ErrNotFound
	}
	return rev, err
}

// CreateReview admite una reseña por usuario y libro; la segunda es ErrConflict.
func (r *Repository) CreateReview(ctx context.Context, userID, bookID int64, in common.ReviewInput) (common.Review, error) {
	if _, err := r.GetBook(ctx, bookID); err != nil {
		return common.Review{}, err
	}
	id := uuid.NewString()
	now := r.now().Unix()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reviews(id,book_id,user_id,rating,title,body,created_unix,updated_unix)
		VALUES(?,?,?,?,?,?,?,?)`, id, bookID, userID, in.Rating, in.Title, in.Body, now, now)
	if isUnique(err) {
		return common.Review{}, ErrConflict
	}
	if err != nil {
		return common.Review{}, err
	}
	return r.GetReview(ctx, id)
}

func (r *Repository) ownReview(ctx context.Context, userID int64, id string) error {
	rev, err := r.GetReview(ctx, id)
	if err != nil {
		return err
	}
	if rev.UserID != userID {
		return ErrForbidden
	}
	return nil
}

func (r *Repository) UpdateReview(ctx context.Context, userID int64, id string, in common.ReviewInput) (common.Review, error) {
	if err := r.ownReview(ctx, userID, id); err != nil {
		return common.Review{}, err
	}
	_, err := r.db.ExecContext(ctx, `UPDATE reviews SET rating=?, title=?, body=?, updated_unix=? WHERE id=?`,
		in.Rating, in.Title, in.Body, r.now().Unix(), id)
	if err != nil {
		return common.Review{}, err
	}
	return r.GetReview(ctx, id)
}

func (r *Repository) DeleteReview(ctx context.Context, userID int64, id string) error {
	if err := r.ownReview(ctx, userID, id); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM reviews WHERE id=?`, id)
	return err
}

func (r *Repository) MarkHelpful(ctx context.Context, id string) (common.Review, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE reviews SET helpful = helpful + 1 WHERE id=?`, id)
	if err != nil {
		return common.Review{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.Review{}, ErrNotFound
	}
	return r.GetReview(ctx, id)
}
