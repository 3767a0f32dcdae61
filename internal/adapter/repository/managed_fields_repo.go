package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chiwei-platform/bkapp-engine/internal/domain"
	"github.com/chiwei-platform/bkapp-engine/internal/port"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ port.ManagedFieldsRepository = (*ManagedFieldsRepo)(nil)

type ManagedFieldsRepo struct {
	db *gorm.DB
}

func NewManagedFieldsRepo(db *gorm.DB) *ManagedFieldsRepo {
	return &ManagedFieldsRepo{db: db}
}

// LoadRows 加锁时先锁住模块行，模块尚无归属记录时并发的首次写入同样会串行化。
func (r *ManagedFieldsRepo) LoadRows(ctx context.Context, moduleID string, lock bool) ([]*domain.ManagedFieldsRow, error) {
	q := conn(ctx, r.db).Where("module_id = ?", moduleID).Order("id")
	if lock {
		if err := lockRow(ctx, r.db, &ModuleModel{}, domain.ErrModuleNotFound, "id = ?", moduleID); err != nil {
			return nil, err
		}
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var models []ManagedFieldsModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	rows := make([]*domain.ManagedFieldsRow, 0, len(models))
	for i := range models {
		var fields []domain.Field
		if len(models[i].Fields) > 0 {
			if err := json.Unmarshal(models[i].Fields, &fields); err != nil {
				return nil, fmt.Errorf("decode managed fields of %s/%s: %w", moduleID, models[i].Manager, err)
			}
		}
		rows = append(rows, domain.NewManagedFieldsRow(moduleID, domain.FieldMgrName(models[i].Manager), fields))
	}
	return rows, nil
}

// SaveRows 以 (module_id, manager) 为冲突键 upsert，空行也保留以记录管理者曾经出现过。
func (r *ManagedFieldsRepo) SaveRows(ctx context.Context, rows []*domain.ManagedFieldsRow) error {
	if len(rows) == 0 {
		return nil
	}
	now := time.Now()
	models := make([]ManagedFieldsModel, 0, len(rows))
	for _, row := range rows {
		fields := row.Fields()
		if fields == nil {
			fields = []domain.Field{}
		}
		raw, err := json.Marshal(fields)
		if err != nil {
			return err
		}
		models = append(models, ManagedFieldsModel{
			ModuleID:  row.ModuleID,
			Manager:   string(row.Manager),
			Fields:    raw,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "module_id"}, {Name: "manager"}},
		DoUpdates: clause.AssignmentColumns([]string{"fields", "updated_at"}),
	}).Create(&models).Error
}
