package main

import (
	"context"
	"errors"

	"github.com/ahinestrog/bookshop/common"
	"golang.org/x/crypto/bcrypt"
)

var seedBooks = []common.Book{
	{Title: "Cien años de soledad", Author: "Gabriel García Márquez", PriceCents: 5990000, Stock: 10},
	{Title: "Dune", Author: "Frank Herbert", PriceCents: 4500000, Stock: 5},
	{Title: "Ulysses", Author: "James Joyce", PriceCents: 7200000, Stock: 0},
	{Title: "Emma", Author: "Jane Austen", PriceCents: 3100000, Stock: 20},
	{Title: "La vorágine", Author: "José Eustasio Rivera", PriceCents: 2800000, Stock: 1},
}

const (
	demoEmail    = "demo@bookshop.local"
	demoPassword = "demo1234"
)

// Seed carga el catálogo y un usuario demo si la tabla de libros está vacía.
func (r *Repository) Seed(ctx context.Context) (bool, error) {
	n, err := r.CountBooks(ctx)
	if err != nil || n > 0 {
		return false, err
	}
	for _, b := range seedBooks {
		if _, err := r.InsertBook(ctx, b); err != nil {
			return false, err
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(demoPassword), bcrypt.DefaultCost)
	if err != nil {
		return false, err
	}
	if _, err := r.CreateUser(ctx, "Demo", demoEmail, string(hash)); err != nil && !errors.Is(err, ErrConflict) {
		return false, err
	}
	return true, nil
}
