package main

import "time"

type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type Session struct {
	Token     string
	UserID    int64
	ExpiresAt time.Time
}

// StockError se devuelve cuando la cantidad pedida supera el stock.
type StockError struct {
	BookID    int64
	Available int32
}

func (e *StockError) Error() string { return "insufficient stock" }

func (e *StockError) Is(target error) bool { return target == ErrInsufficient }
