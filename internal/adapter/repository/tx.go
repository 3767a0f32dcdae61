package repository

import (
	"context"
	"errors"

	"github.com/chiwei-platform/bkapp-engine/internal/port"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ port.TxManager = (*TxManager)(nil)

type txKey struct{}

// TxManager 把 gorm 事务放进 context，仓储通过 conn 取用。
type TxManager struct {
	db *gorm.DB
}

func NewTxManager(db *gorm.DB) *TxManager {
	return &TxManager{db: db}
}

// WithinTx 已在事务中时直接复用外层事务。
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// conn 返回当前事务连接，不在事务中时返回 db 本身。
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// lockRow 对 model 表中满足条件的一行加 FOR UPDATE 锁，锁随当前事务结束释放。
// 行不存在时返回 notFound。
func lockRow(ctx context.Context, db *gorm.DB, model any, notFound error, query string, args ...any) error {
	err := conn(ctx, db).Model(model).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where(query, args...).
		Take(model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return err
}
