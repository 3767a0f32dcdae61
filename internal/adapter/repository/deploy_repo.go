package repository

import (
	"context"
	"errors"

	"github.com/chiwei-platform/bkapp-engine/internal/domain"
	"github.com/chiwei-platform/bkapp-engine/internal/port"
	"gorm.io/gorm"
)

var _ port.DeployRepository = (*DeployRepo)(nil)

type DeployRepo struct {
	db *gorm.DB
}

func NewDeployRepo(db *gorm.DB) *DeployRepo {
	return &DeployRepo{db: db}
}

func (r *DeployRepo) Save(ctx context.Context, d *domain.AppModelDeploy) error {
	return conn(ctx, r.db).Create(deployToModel(d)).Error
}

func (r *DeployRepo) Update(ctx context.Context, d *domain.AppModelDeploy) error {
	result := conn(ctx, r.db).Model(&AppModelDeployModel{}).
		Where("id = ?", d.ID).
		Select("status", "reason", "message", "last_transition_time", "updated_at").
		Updates(deployToModel(d))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrDeployNotFound
	}
	return nil
}

func (r *DeployRepo) FindByID(ctx context.Context, id string) (*domain.AppModelDeploy, error) {
	var m AppModelDeployModel
	result := conn(ctx, r.db).First(&m, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrDeployNotFound
		}
		return nil, result.Error
	}
	return modelToDeploy(&m), nil
}

func (r *DeployRepo) FilterByEnv(ctx context.Context, moduleID string, env domain.EnvName) ([]*domain.AppModelDeploy, error) {
	var models []AppModelDeployModel
	err := conn(ctx, r.db).
		Where("module_id = ? AND environment = ?", moduleID, string(env)).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	deploys := make([]*domain.AppModelDeploy, 0, len(models))
	for i := range models {
		deploys = append(deploys, modelToDeploy(&models[i]))
	}
	return deploys, nil
}

func (r *DeployRepo) LatestSucceeded(ctx context.Context, moduleID string, env domain.EnvName) (*domain.AppModelDeploy, error) {
	var m AppModelDeployModel
	result := conn(ctx, r.db).
		Where("module_id = ? AND environment = ? AND status = ?", moduleID, string(env), string(domain.DeployStatusReady)).
		Order("created_at DESC").
		First(&m)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrDeployNotFound
		}
		return nil, result.Error
	}
	return modelToDeploy(&m), nil
}

func deployToModel(d *domain.AppModelDeploy) *AppModelDeployModel {
	return &AppModelDeployModel{
		ID:                 d.ID,
		ApplicationID:      d.ApplicationID,
		ModuleID:           d.ModuleID,
		Environment:        string(d.Environment),
		Name:               d.Name,
		RevisionID:         d.RevisionID,
		Status:             string(d.Status),
		Reason:             d.Reason,
		Message:            d.Message,
		LastTransitionTime: d.LastTransitionTime,
		Operator:           d.Operator,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

func modelToDeploy(m *AppModelDeployModel) *domain.AppModelDeploy {
	return &domain.AppModelDeploy{
		ID:                 m.ID,
		ApplicationID:      m.ApplicationID,
		ModuleID:           m.ModuleID,
		Environment:        domain.EnvName(m.Environment),
		Name:               m.Name,
		RevisionID:         m.RevisionID,
		Status:             domain.DeployStatus(m.Status),
		Reason:             m.Reason,
		Message:            m.Message,
		LastTransitionTime: m.LastTransitionTime,
		Operator:           m.Operator,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}
