package filters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/flyxxxxx/prototype-sub001/internal/advisor"
	"github.com/flyxxxxx/prototype-sub001/internal/index"
)

type txKey struct{}

// TxFromContext returns the transaction opened by a tx advisor further out.
func TxFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}

type txOptions struct {
	ReadOnly bool `mapstructure:"read_only"`

	// Isolation is one of "default", "read_committed", "repeatable_read"
	// or "serializable".
	Isolation string `mapstructure:"isolation"`
}

var isolationLevels = map[string]sql.IsolationLevel{
	"":                sql.LevelDefault,
	"default":         sql.LevelDefault,
	"read_committed":  sql.LevelReadCommitted,
	"repeatable_read": sql.LevelRepeatableRead,
	"serializable":    sql.LevelSerializable,
}

// buildTx runs each matched invocation inside a database transaction,
// committed when the inner layers succeed and rolled back otherwise. An
// invocation already inside a transaction joins it.
func buildTx(name string, options map[string]any, deps Deps) (matcher, error) {
	var opts txOptions
	if err := decode(options, &opts); err != nil {
		return nil, err
	}
	level, ok := isolationLevels[opts.Isolation]
	if !ok {
		return nil, fmt.Errorf("unknown isolation %q", opts.Isolation)
	}
	if deps.DB == nil {
		return nil, errors.New("tx requires a database")
	}

	db := deps.DB
	txOpts := &sql.TxOptions{Isolation: level, ReadOnly: opts.ReadOnly}
	logger := deps.logger()

	filter := advisor.FilterFunc(func(ctx context.Context, inv *advisor.Invocation, next advisor.Next) (any, error) {
		if _, ok := TxFromContext(ctx); ok {
			return next(ctx)
		}

		tx, err := db.BeginTx(ctx, txOpts)
		if err != nil {
			return nil, fmt.Errorf("begin transaction for %s: %w", inv.Key(), err)
		}
		v, err := next(context.WithValue(ctx, txKey{}, tx))
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				logger.Error("rollback failed",
					"advisor", name,
					"invocation_id", inv.ID,
					"error", rerr,
				)
			}
			return v, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit transaction for %s: %w", inv.Key(), err)
		}
		return v, nil
	})

	return func(*index.OperationDescriptor) (advisor.Filter, bool) {
		return filter, true
	}, nil
}
