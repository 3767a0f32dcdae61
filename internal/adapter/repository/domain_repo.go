package repository

import (
	"context"
	"errors"

	"github.com/chiwei-platform/bkapp-engine/internal/domain"
	"github.com/chiwei-platform/bkapp-engine/internal/port"
	"gorm.io/gorm"
)

var (
	_ port.AppDomainRepository = (*AppDomainRepo)(nil)
	_ port.DomainRepository    = (*DomainRepo)(nil)
)

var reassignableSources = []string{
	string(domain.AppDomainSourceAutoGen),
	string(domain.AppDomainSourceCustom),
}

type AppDomainRepo struct {
	db *gorm.DB
}

func NewAppDomainRepo(db *gorm.DB) *AppDomainRepo {
	return &AppDomainRepo{db: db}
}

func (r *AppDomainRepo) FindByHosts(ctx context.Context, hosts []string) ([]*domain.AppDomain, error) {
	if len(hosts) == 0 {
		return nil, nil
	}
	var models []AppDomainModel
	if err := conn(ctx, r.db).Where("host IN ?", hosts).Order("host").Find(&models).Error; err != nil {
		return nil, err
	}
	return modelsToAppDomains(models), nil
}

func (r *AppDomainRepo) FindByModuleEnv(ctx context.Context, moduleID string, env domain.EnvName) ([]*domain.AppDomain, error) {
	var models []AppDomainModel
	err := conn(ctx, r.db).
		Where("module_id = ? AND environment = ?", moduleID, string(env)).
		Order("host").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return modelsToAppDomains(models), nil
}

func (r *AppDomainRepo) Create(ctx context.Context, d *domain.AppDomain) error {
	result := conn(ctx, r.db).Create(appDomainToModel(d))
	if result.Error != nil {
		if isUniqueConstraintError(result.Error) {
			return domain.ErrAlreadyExists
		}
		return result.Error
	}
	return nil
}

// Transfer 只改写归属与 HTTPS 开关，来源和证书保持不变。
func (r *AppDomainRepo) Transfer(ctx context.Context, d *domain.AppDomain) (int64, error) {
	result := conn(ctx, r.db).Model(&AppDomainModel{}).
		Where("host = ? AND source IN ?", d.Host, reassignableSources).
		Updates(map[string]any{
			"application_id": d.ApplicationID,
			"module_id":      d.ModuleID,
			"environment":    string(d.Environment),
			"https_enabled":  d.HTTPSEnabled,
			"updated_at":     d.UpdatedAt,
		})
	return result.RowsAffected, result.Error
}

func (r *AppDomainRepo) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return conn(ctx, r.db).Delete(&AppDomainModel{}, "id IN ?", ids).Error
}

func appDomainToModel(d *domain.AppDomain) *AppDomainModel {
	return &AppDomainModel{
		ID:            d.ID,
		Host:          d.Host,
		PathPrefix:    d.PathPrefix,
		HTTPSEnabled:  d.HTTPSEnabled,
		Source:        string(d.Source),
		ApplicationID: d.ApplicationID,
		ModuleID:      d.ModuleID,
		Environment:   string(d.Environment),
		CertID:        d.CertID,
		SharedCertID:  d.SharedCertID,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func modelsToAppDomains(models []AppDomainModel) []*domain.AppDomain {
	out := make([]*domain.AppDomain, 0, len(models))
	for i := range models {
		m := &models[i]
		out = append(out, &domain.AppDomain{
			ID:            m.ID,
			Host:          m.Host,
			PathPrefix:    m.PathPrefix,
			HTTPSEnabled:  m.HTTPSEnabled,
			Source:        domain.AppDomainSource(m.Source),
			ApplicationID: m.ApplicationID,
			ModuleID:      m.ModuleID,
			Environment:   domain.EnvName(m.Environment),
			CertID:        m.CertID,
			SharedCertID:  m.SharedCertID,
			CreatedAt:     m.CreatedAt,
			UpdatedAt:     m.UpdatedAt,
		})
	}
	return out
}

type DomainRepo struct {
	db *gorm.DB
}

func NewDomainRepo(db *gorm.DB) *DomainRepo {
	return &DomainRepo{db: db}
}

func (r *DomainRepo) Save(ctx context.Context, d *domain.Domain) error {
	result := conn(ctx, r.db).Create(&DomainModel{
		ID:            d.ID,
		Name:          d.Name,
		PathPrefix:    d.PathPrefix,
		HTTPSEnabled:  d.HTTPSEnabled,
		ApplicationID: d.ApplicationID,
		ModuleID:      d.ModuleID,
		Environment:   string(d.Environment),
		CertID:        d.CertID,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	})
	if result.Error != nil {
		if isUniqueConstraintError(result.Error) {
			return domain.ErrAlreadyExists
		}
		return result.Error
	}
	return nil
}

func (r *DomainRepo) FindByID(ctx context.Context, id string) (*domain.Domain, error) {
	var m DomainModel
	result := conn(ctx, r.db).First(&m, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrDomainNotFound
		}
		return nil, result.Error
	}
	return modelToDomain(&m), nil
}

func (r *DomainRepo) FindByModuleEnv(ctx context.Context, moduleID string, env domain.EnvName) ([]*domain.Domain, error) {
	var models []DomainModel
	err := conn(ctx, r.db).
		Where("module_id = ? AND environment = ?", moduleID, string(env)).
		Order("name, path_prefix").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Domain, 0, len(models))
	for i := range models {
		out = append(out, modelToDomain(&models[i]))
	}
	return out, nil
}

func (r *DomainRepo) Delete(ctx context.Context, id string) error {
	return conn(ctx, r.db).Delete(&DomainModel{}, "id = ?", id).Error
}

func modelToDomain(m *DomainModel) *domain.Domain {
	return &domain.Domain{
		ID:            m.ID,
		Name:          m.Name,
		PathPrefix:    m.PathPrefix,
		HTTPSEnabled:  m.HTTPSEnabled,
		ApplicationID: m.ApplicationID,
		ModuleID:      m.ModuleID,
		Environment:   domain.EnvName(m.Environment),
		CertID:        m.CertID,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
