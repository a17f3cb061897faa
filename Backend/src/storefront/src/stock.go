package main

import (
	"context"
	"encoding/json"
	"fmt"
)

const EvStockSet = "inventory.stock.set"

// StockUpdate llega desde inventario con el stock disponible de un libro.
type StockUpdate struct {
	BookID int64 `json:"book_id"`
	Stock  int32 `json:"stock"`
}

func (r *Repository) SetStock(ctx context.Context, bookID int64, stock int32) error {
	if stock < 0 {
		stock = 0
	}
	res, err := r.db.ExecContext(ctx, `UPDATE books SET stock=? WHERE id=?`, stock, bookID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// stockHandler aplica eventos de inventario al catálogo. Acepta el payload
// plano o dentro del sobre {type, payload}.
func stockHandler(repo *Repository) ConsumerHandler {
	return func(ctx context.Context, rk string, body []byte) error {
		var env struct {
			Payload *StockUpdate `json:"payload"`
		}
		var u StockUpdate
		if err := json.Unmarshal(body, &env); err == nil && env.Payload != nil {
			u = *env.Payload
		} else if err := json.Unmarshal(body, &u); err != nil {
			return fmt.Errorf("%s: invalid json: %w", rk, err)
		}
		if u.BookID <= 0 {
			return fmt.Errorf("%s: missing book_id", rk)
		}
		return repo.SetStock(ctx, u.BookID, u.Stock)
	}
}
