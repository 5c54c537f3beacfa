// Package repo holds the connection plumbing shared by gorm repositories.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Base binds a repository to its connection. Methods with a Tx suffix take
// the caller's transaction through Tx.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the repository connection bound to ctx.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Tx returns tx bound to ctx, or the repository connection when tx is nil.
func (b Base) Tx(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return b.DB(ctx)
	}
	if ctx == nil {
		return tx
	}
	return tx.WithContext(ctx)
}

// Locked is Tx with SELECT ... FOR UPDATE. The sqlite dialect drops the
// locking clause.
func (b Base) Locked(ctx context.Context, tx *gorm.DB) *gorm.DB {
	return b.Tx(ctx, tx).Clauses(clause.Locking{Strength: "UPDATE"})
}
