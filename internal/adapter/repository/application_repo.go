package repository

import (
	"context"
	"errors"

	"github.com/chiwei-platform/bkapp-engine/internal/domain"
	"github.com/chiwei-platform/bkapp-engine/internal/port"
	"gorm.io/gorm"
)

var (
	_ port.ApplicationRepository = (*ApplicationRepo)(nil)
	_ port.ModuleRepository      = (*ModuleRepo)(nil)
)

type ApplicationRepo struct {
	db *gorm.DB
}

func NewApplicationRepo(db *gorm.DB) *ApplicationRepo {
	return &ApplicationRepo{db: db}
}

func (r *ApplicationRepo) Save(ctx context.Context, app *domain.Application) error {
	result := conn(ctx, r.db).Create(applicationToModel(app))
	if result.Error != nil {
		if isUniqueConstraintError(result.Error) {
			return domain.ErrAlreadyExists
		}
		return result.Error
	}
	return nil
}

func (r *ApplicationRepo) FindByCode(ctx context.Context, code string) (*domain.Application, error) {
	return r.findOne(ctx, "code = ?", code)
}

func (r *ApplicationRepo) FindByID(ctx context.Context, id string) (*domain.Application, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *ApplicationRepo) findOne(ctx context.Context, query string, arg any) (*domain.Application, error) {
	var m ApplicationModel
	result := conn(ctx, r.db).First(&m, query, arg)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAppNotFound
		}
		return nil, result.Error
	}
	return modelToApplication(&m), nil
}

func (r *ApplicationRepo) FindAll(ctx context.Context) ([]*domain.Application, error) {
	var models []ApplicationModel
	if err := conn(ctx, r.db).Order("code").Find(&models).Error; err != nil {
		return nil, err
	}
	apps := make([]*domain.Application, 0, len(models))
	for i := range models {
		apps = append(apps, modelToApplication(&models[i]))
	}
	return apps, nil
}

func (r *ApplicationRepo) Delete(ctx context.Context, id string) error {
	return conn(ctx, r.db).Delete(&ApplicationModel{}, "id = ?", id).Error
}

func applicationToModel(a *domain.Application) *ApplicationModel {
	return &ApplicationModel{
		ID:        a.ID,
		Code:      a.Code,
		Name:      a.Name,
		Region:    a.Region,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func modelToApplication(m *ApplicationModel) *domain.Application {
	return &domain.Application{
		ID:        m.ID,
		Code:      m.Code,
		Name:      m.Name,
		Region:    m.Region,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

type ModuleRepo struct {
	db *gorm.DB
}

func NewModuleRepo(db *gorm.DB) *ModuleRepo {
	return &ModuleRepo{db: db}
}

func (r *ModuleRepo) Save(ctx context.Context, module *domain.Module) error {
	result := conn(ctx, r.db).Create(&ModuleModel{
		ID:            module.ID,
		ApplicationID: module.ApplicationID,
		Name:          module.Name,
		IsDefault:     module.IsDefault,
		CreatedAt:     module.CreatedAt,
	})
	if result.Error != nil {
		if isUniqueConstraintError(result.Error) {
			return domain.ErrAlreadyExists
		}
		return result.Error
	}
	return nil
}

func (r *ModuleRepo) FindByName(ctx context.Context, applicationID, name string) (*domain.Module, error) {
	var m ModuleModel
	result := conn(ctx, r.db).First(&m, "application_id = ? AND name = ?", applicationID, name)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrModuleNotFound
		}
		return nil, result.Error
	}
	return modelToModule(&m), nil
}

func (r *ModuleRepo) FindByID(ctx context.Context, id string) (*domain.Module, error) {
	var m ModuleModel
	result := conn(ctx, r.db).First(&m, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrModuleNotFound
		}
		return nil, result.Error
	}
	return modelToModule(&m), nil
}

func (r *ModuleRepo) FindByApplication(ctx context.Context, applicationID string) ([]*domain.Module, error) {
	var models []ModuleModel
	if err := conn(ctx, r.db).Where("application_id = ?", applicationID).Order("name").Find(&models).Error; err != nil {
		return nil, err
	}
	modules := make([]*domain.Module, 0, len(models))
	for i := range models {
		modules = append(modules, modelToModule(&models[i]))
	}
	return modules, nil
}

func (r *ModuleRepo) DeleteByApplication(ctx context.Context, applicationID string) error {
	return conn(ctx, r.db).Delete(&ModuleModel{}, "application_id = ?", applicationID).Error
}

func modelToModule(m *ModuleModel) *domain.Module {
	return &domain.Module{
		ID:            m.ID,
		ApplicationID: m.ApplicationID,
		Name:          m.Name,
		IsDefault:     m.IsDefault,
		CreatedAt:     m.CreatedAt,
	}
}
