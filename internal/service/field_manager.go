package service

import (
	"context"

	"github.com/chiwei-platform/bkapp-engine/internal/domain"
	"github.com/chiwei-platform/bkapp-engine/internal/metrics"
	"github.com/chiwei-platform/bkapp-engine/internal/port"
)

// RowGroupStore 以模块为单位读写字段归属快照，只持久化发生变化的行。
type RowGroupStore struct {
	repo port.ManagedFieldsRepository
}

func NewRowGroupStore(repo port.ManagedFieldsRepository) *RowGroupStore {
	return &RowGroupStore{repo: repo}
}

// Load 读取模块全部行。在事务内调用时会锁住这些行，直到事务结束。
func (s *RowGroupStore) Load(ctx context.Context, moduleID string) (*domain.ManagedFieldsRowGroup, error) {
	rows, err := s.repo.LoadRows(ctx, moduleID, true)
	if err != nil {
		return nil, err
	}
	return domain.NewManagedFieldsRowGroup(moduleID, rows), nil
}

// Save 只写入变化过的行，成功后清除变更标记。
func (s *RowGroupStore) Save(ctx context.Context, g *domain.ManagedFieldsRowGroup) error {
	updated := g.UpdatedRows()
	if len(updated) == 0 {
		return nil
	}
	if err := s.repo.SaveRows(ctx, updated); err != nil {
		return err
	}
	for _, r := range updated {
		metrics.FieldOwnershipWrites.WithLabelValues(string(r.Manager)).Inc()
	}
	g.CleanUpdated()
	return nil
}

// mutate 在事务中加锁读取快照，于副本上执行 fn，成功后一次性保存。
func (s *RowGroupStore) mutate(ctx context.Context, tx port.TxManager, moduleID string, fn func(g *domain.ManagedFieldsRowGroup)) error {
	return tx.WithinTx(ctx, func(ctx context.Context) error {
		g, err := s.Load(ctx, moduleID)
		if err != nil {
			return err
		}
		working := g.Clone()
		fn(working)
		return s.Save(ctx, working)
	})
}

// canBeManagedBy 字段已有持有者时必须是 manager 本人；未被管理时由默认管理者接手。
func canBeManagedBy(g *domain.ManagedFieldsRowGroup, f domain.Field, manager, defaultManager domain.FieldMgrName) bool {
	if owner, ok := g.GetManager(f); ok {
		return owner == manager
	}
	return defaultManager != "" && defaultManager == manager
}

// FieldManager 管理单个字段的归属。
type FieldManager struct {
	store          *RowGroupStore
	tx             port.TxManager
	moduleID       string
	field          domain.Field
	defaultManager domain.FieldMgrName
}

// NewFieldManager 创建字段管理器，defaultManager 可为空。
func NewFieldManager(store *RowGroupStore, tx port.TxManager, moduleID string, field domain.Field, defaultManager domain.FieldMgrName) *FieldManager {
	return &FieldManager{store: store, tx: tx, moduleID: moduleID, field: field, defaultManager: defaultManager}
}

// Get 返回当前持有者，未被管理时 ok 为 false。
func (m *FieldManager) Get(ctx context.Context) (domain.FieldMgrName, bool, error) {
	rows, err := m.store.repo.LoadRows(ctx, m.moduleID, false)
	if err != nil {
		return "", false, err
	}
	mgr, ok := domain.NewManagedFieldsRowGroup(m.moduleID, rows).GetManager(m.field)
	return mgr, ok, nil
}

// CanBeManagedBy 判断 manager 是否可以修改该字段。
func (m *FieldManager) CanBeManagedBy(ctx context.Context, manager domain.FieldMgrName) (bool, error) {
	rows, err := m.store.repo.LoadRows(ctx, m.moduleID, false)
	if err != nil {
		return false, err
	}
	g := domain.NewManagedFieldsRowGroup(m.moduleID, rows)
	return canBeManagedBy(g, m.field, manager, m.defaultManager), nil
}

// Set 把字段交给 manager，原持有者被直接替换，不报冲突。
func (m *FieldManager) Set(ctx context.Context, manager domain.FieldMgrName) error {
	return m.store.mutate(ctx, m.tx, m.moduleID, func(g *domain.ManagedFieldsRowGroup) {
		g.SetManager(manager, m.field)
	})
}

// Reset 释放字段，使其回到未管理状态。
func (m *FieldManager) Reset(ctx context.Context) error {
	return m.store.mutate(ctx, m.tx, m.moduleID, func(g *domain.ManagedFieldsRowGroup) {
		g.ResetManager(m.field)
	})
}

// MultiFieldsManager 批量修改同一模块下多个字段的归属，全部成功或全部不生效。
type MultiFieldsManager struct {
	store    *RowGroupStore
	tx       port.TxManager
	moduleID string
}

func NewMultiFieldsManager(store *RowGroupStore, tx port.TxManager, moduleID string) *MultiFieldsManager {
	return &MultiFieldsManager{store: store, tx: tx, moduleID: moduleID}
}

func (m *MultiFieldsManager) SetMany(ctx context.Context, fields []domain.Field, manager domain.FieldMgrName) error {
	return m.store.mutate(ctx, m.tx, m.moduleID, func(g *domain.ManagedFieldsRowGroup) {
		for _, f := range fields {
			g.SetManager(manager, f)
		}
	})
}

func (m *MultiFieldsManager) ResetMany(ctx context.Context, fields []domain.Field) error {
	return m.store.mutate(ctx, m.tx, m.moduleID, func(g *domain.ManagedFieldsRowGroup) {
		for _, f := range fields {
			g.ResetManager(f)
		}
	})
}

// Snapshot 返回模块当前的字段归属，不加锁。
func (m *MultiFieldsManager) Snapshot(ctx context.Context) (*domain.ManagedFieldsRowGroup, error) {
	rows, err := m.store.repo.LoadRows(ctx, m.moduleID, false)
	if err != nil {
		return nil, err
	}
	return domain.NewManagedFieldsRowGroup(m.moduleID, rows), nil
}
