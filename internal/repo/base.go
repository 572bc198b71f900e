package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base carries the database handle shared by the ledger and order
// repositories. Transaction-scoped copies are built with NewBase over the tx
// handle, so a repository bound to a transaction is just a rebased value.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the handle with the caller's context applied for cancellation
// and logging. A nil context yields the raw handle.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}
