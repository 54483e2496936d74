package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// DB returns the bound transaction if one is present, otherwise db
// scoped to Ctx. Repos call this instead of deciding for themselves
// whether they're inside a caller-managed transaction.
func (c Context) DB(db *gorm.DB) *gorm.DB {
	if c.Tx != nil {
		return c.Tx
	}
	return db.WithContext(c.Ctx)
}

// WithTx returns a copy of c bound to tx, for nesting a unit of work
// inside a caller-managed transaction.
func (c Context) WithTx(tx *gorm.DB) Context {
	c.Tx = tx
	return c
}
