package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/chiwei-platform/bkapp-engine/internal/domain"
	"github.com/chiwei-platform/bkapp-engine/internal/port"
	"gorm.io/gorm"
)

var _ port.AppModelRepository = (*AppModelRepo)(nil)

type AppModelRepo struct {
	db *gorm.DB
}

func NewAppModelRepo(db *gorm.DB) *AppModelRepo {
	return &AppModelRepo{db: db}
}

func (r *AppModelRepo) SaveResource(ctx context.Context, res *domain.AppModelResource) error {
	result := conn(ctx, r.db).Create(&AppModelResourceModel{
		ID:            res.ID,
		ApplicationID: res.ApplicationID,
		ModuleID:      res.ModuleID,
		RevisionID:    res.RevisionID,
		CreatedAt:     res.CreatedAt,
		UpdatedAt:     res.UpdatedAt,
	})
	if result.Error != nil {
		if isUniqueConstraintError(result.Error) {
			return domain.ErrAlreadyExists
		}
		return result.Error
	}
	return nil
}

func (r *AppModelRepo) FindResource(ctx context.Context, moduleID string) (*domain.AppModelResource, error) {
	var m AppModelResourceModel
	result := conn(ctx, r.db).First(&m, "module_id = ?", moduleID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAppModelNotInitialized
		}
		return nil, result.Error
	}
	return &domain.AppModelResource{
		ID:            m.ID,
		ApplicationID: m.ApplicationID,
		ModuleID:      m.ModuleID,
		RevisionID:    m.RevisionID,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}, nil
}

func (r *AppModelRepo) Repoint(ctx context.Context, moduleID, revisionID string) error {
	result := conn(ctx, r.db).Model(&AppModelResourceModel{}).
		Where("module_id = ?", moduleID).
		Updates(map[string]any{"revision_id": revisionID, "updated_at": time.Now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrAppModelNotInitialized
	}
	return nil
}

func (r *AppModelRepo) SaveRevision(ctx context.Context, rev *domain.AppModelRevision) error {
	result := conn(ctx, r.db).Create(revisionToModel(rev))
	if result.Error != nil {
		if isUniqueConstraintError(result.Error) {
			return domain.ErrAlreadyExists
		}
		return result.Error
	}
	return nil
}

// UpdateRevision 只改写状态标记，快照内容不可变。
func (r *AppModelRepo) UpdateRevision(ctx context.Context, rev *domain.AppModelRevision) error {
	m := revisionToModel(rev)
	result := conn(ctx, r.db).Model(&AppModelRevisionModel{}).
		Where("id = ?", rev.ID).
		Select("deployed_value", "has_deployed", "is_draft", "is_deleted", "updated_at").
		Updates(m)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrRevisionNotFound
	}
	return nil
}

func (r *AppModelRepo) FindRevision(ctx context.Context, id string) (*domain.AppModelRevision, error) {
	var m AppModelRevisionModel
	result := conn(ctx, r.db).First(&m, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRevisionNotFound
		}
		return nil, result.Error
	}
	return modelToRevision(&m), nil
}

func (r *AppModelRepo) ListRevisions(ctx context.Context, moduleID string) ([]*domain.AppModelRevision, error) {
	var models []AppModelRevisionModel
	if err := conn(ctx, r.db).Where("module_id = ?", moduleID).Order("number DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	revs := make([]*domain.AppModelRevision, 0, len(models))
	for i := range models {
		revs = append(revs, modelToRevision(&models[i]))
	}
	return revs, nil
}

// NextRevisionNumber 先锁住模块的模型指针行，并发的更新会排队而不是撞上唯一索引。
func (r *AppModelRepo) NextRevisionNumber(ctx context.Context, moduleID string) (int, error) {
	if err := lockRow(ctx, r.db, &AppModelResourceModel{}, domain.ErrAppModelNotInitialized, "module_id = ?", moduleID); err != nil {
		return 0, err
	}
	var last int
	err := conn(ctx, r.db).Model(&AppModelRevisionModel{}).
		Where("module_id = ?", moduleID).
		Select("COALESCE(MAX(number), 0)").
		Scan(&last).Error
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

func revisionToModel(rev *domain.AppModelRevision) *AppModelRevisionModel {
	return &AppModelRevisionModel{
		ID:            rev.ID,
		ModuleID:      rev.ModuleID,
		Number:        rev.Number,
		Version:       rev.Version,
		JSONValue:     datatypesJSON(rev.JSONValue),
		YAMLValue:     rev.YAMLValue,
		Digest:        rev.Digest,
		DeployedValue: datatypesJSON(rev.DeployedValue),
		HasDeployed:   rev.HasDeployed,
		IsDraft:       rev.IsDraft,
		IsDeleted:     rev.IsDeleted,
		Manager:       string(rev.Manager),
		CreatedAt:     rev.CreatedAt,
		UpdatedAt:     rev.UpdatedAt,
	}
}

func modelToRevision(m *AppModelRevisionModel) *domain.AppModelRevision {
	rev := &domain.AppModelRevision{
		ID:          m.ID,
		ModuleID:    m.ModuleID,
		Number:      m.Number,
		Version:     m.Version,
		JSONValue:   json.RawMessage(m.JSONValue),
		YAMLValue:   m.YAMLValue,
		Digest:      m.Digest,
		HasDeployed: m.HasDeployed,
		IsDraft:     m.IsDraft,
		IsDeleted:   m.IsDeleted,
		Manager:     domain.FieldMgrName(m.Manager),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if len(m.DeployedValue) > 0 {
		rev.DeployedValue = json.RawMessage(m.DeployedValue)
	}
	return rev
}
