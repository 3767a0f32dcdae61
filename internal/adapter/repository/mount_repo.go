package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/chiwei-platform/bkapp-engine/internal/domain"
	"github.com/chiwei-platform/bkapp-engine/internal/port"
	"gorm.io/gorm"
)

var _ port.MountRepository = (*MountRepo)(nil)

type MountRepo struct {
	db *gorm.DB
}

func NewMountRepo(db *gorm.DB) *MountRepo {
	return &MountRepo{db: db}
}

func (r *MountRepo) Save(ctx context.Context, m *domain.Mount) error {
	model, err := mountToModel(m)
	if err != nil {
		return err
	}
	result := conn(ctx, r.db).Create(model)
	if result.Error != nil {
		if isUniqueConstraintError(result.Error) {
			return domain.ErrAlreadyExists
		}
		return result.Error
	}
	return nil
}

func (r *MountRepo) FindByID(ctx context.Context, id string) (*domain.Mount, error) {
	var m MountModel
	result := conn(ctx, r.db).First(&m, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMountNotFound
		}
		return nil, result.Error
	}
	return modelToMount(&m)
}

func (r *MountRepo) FindByModule(ctx context.Context, moduleID string) ([]*domain.Mount, error) {
	var models []MountModel
	if err := conn(ctx, r.db).Where("module_id = ?", moduleID).Order("mount_path").Find(&models).Error; err != nil {
		return nil, err
	}
	mounts := make([]*domain.Mount, 0, len(models))
	for i := range models {
		m, err := modelToMount(&models[i])
		if err != nil {
			return nil, err
		}
		mounts = append(mounts, m)
	}
	return mounts, nil
}

func (r *MountRepo) Delete(ctx context.Context, id string) error {
	return conn(ctx, r.db).Delete(&MountModel{}, "id = ?", id).Error
}

// SaveConfigMapSource 按主键整行覆盖，不存在时插入。
func (r *MountRepo) SaveConfigMapSource(ctx context.Context, src *domain.ConfigMapSource) error {
	data, err := json.Marshal(src.Data)
	if err != nil {
		return err
	}
	result := conn(ctx, r.db).Save(&ConfigMapSourceModel{
		ID:          src.ID,
		ModuleID:    src.ModuleID,
		Environment: string(src.Environment),
		Name:        src.Name,
		Data:        data,
		CreatedAt:   src.CreatedAt,
		UpdatedAt:   src.UpdatedAt,
	})
	if result.Error != nil {
		if isUniqueConstraintError(result.Error) {
			return domain.ErrAlreadyExists
		}
		return result.Error
	}
	return nil
}

func (r *MountRepo) FindConfigMapSource(ctx context.Context, moduleID string, env domain.MountEnvName, name string) (*domain.ConfigMapSource, error) {
	var m ConfigMapSourceModel
	result := conn(ctx, r.db).First(&m, "module_id = ? AND environment = ? AND name = ?", moduleID, string(env), name)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMountSourceNotFound
		}
		return nil, result.Error
	}
	src := &domain.ConfigMapSource{
		ID:          m.ID,
		ModuleID:    m.ModuleID,
		Environment: domain.MountEnvName(m.Environment),
		Name:        m.Name,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if len(m.Data) > 0 {
		if err := json.Unmarshal(m.Data, &src.Data); err != nil {
			return nil, err
		}
	}
	return src, nil
}

func mountToModel(m *domain.Mount) (*MountModel, error) {
	cfg, err := json.Marshal(m.SourceConfig)
	if err != nil {
		return nil, err
	}
	return &MountModel{
		ID:           m.ID,
		ModuleID:     m.ModuleID,
		Environment:  string(m.Environment),
		MountPath:    m.MountPath,
		Name:         m.Name,
		SourceType:   string(m.SourceType),
		SourceConfig: cfg,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}, nil
}

func modelToMount(m *MountModel) (*domain.Mount, error) {
	mount := &domain.Mount{
		ID:          m.ID,
		ModuleID:    m.ModuleID,
		Environment: domain.MountEnvName(m.Environment),
		Name:        m.Name,
		MountPath:   m.MountPath,
		SourceType:  domain.VolumeSourceType(m.SourceType),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if len(m.SourceConfig) > 0 {
		if err := json.Unmarshal(m.SourceConfig, &mount.SourceConfig); err != nil {
			return nil, err
		}
	}
	return mount, nil
}
