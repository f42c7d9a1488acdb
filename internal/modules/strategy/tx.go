package strategy

import (
	"gorm.io/gorm"

	"github.com/yungbote/contentplan-backend/internal/platform/dbctx"
)

// inTx runs fn in a transaction. Inside an existing transaction it uses a
// savepoint so a failing fn leaves the outer transaction usable.
func inTx(dbc dbctx.Context, db *gorm.DB, fn func(dbctx.Context) error) error {
	run := func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: dbc.Ctx, Tx: tx})
	}
	if dbc.Tx != nil {
		return dbc.Tx.Transaction(run)
	}
	return db.WithContext(dbc.Ctx).Transaction(run)
}
