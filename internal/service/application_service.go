package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/chiwei-platform/bkapp-engine/internal/domain"
	"github.com/chiwei-platform/bkapp-engine/internal/port"
	"github.com/google/uuid"
)

type ApplicationService struct {
	appRepo    port.ApplicationRepository
	moduleRepo port.ModuleRepository
	modelRepo  port.AppModelRepository
	tx         port.TxManager
	region     string
}

func NewApplicationService(
	appRepo port.ApplicationRepository,
	moduleRepo port.ModuleRepository,
	modelRepo port.AppModelRepository,
	tx port.TxManager,
	region string,
) *ApplicationService {
	return &ApplicationService{appRepo: appRepo, moduleRepo: moduleRepo, modelRepo: modelRepo, tx: tx, region: region}
}

type CreateApplicationRequest struct {
	Code    string   `json:"code"`
	Name    string   `json:"name"`
	Modules []string `json:"modules"`
}

type ApplicationDetail struct {
	*domain.Application
	Modules []*domain.Module `json:"modules"`
}

// CreateApplication 创建应用及其模块，default 模块总是存在。
func (s *ApplicationService) CreateApplication(ctx context.Context, req CreateApplicationRequest) (*ApplicationDetail, error) {
	if err := domain.ValidateAppCode(req.Code); err != nil {
		return nil, err
	}
	names := []string{domain.DefaultModuleName}
	for _, m := range req.Modules {
		if err := domain.ValidateModuleName(m); err != nil {
			return nil, err
		}
		if !slices.Contains(names, m) {
			names = append(names, m)
		}
	}
	name := req.Name
	if name == "" {
		name = req.Code
	}

	now := time.Now()
	app := &domain.Application{
		ID:        uuid.NewString(),
		Code:      req.Code,
		Name:      name,
		Region:    s.region,
		CreatedAt: now,
		UpdatedAt: now,
	}
	detail := &ApplicationDetail{Application: app}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.appRepo.Save(ctx, app); err != nil {
			return err
		}
		for _, n := range names {
			m := &domain.Module{
				ID:            uuid.NewString(),
				ApplicationID: app.ID,
				Name:          n,
				IsDefault:     n == domain.DefaultModuleName,
				CreatedAt:     now,
			}
			if err := s.moduleRepo.Save(ctx, m); err != nil {
				return err
			}
			detail.Modules = append(detail.Modules, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *ApplicationService) GetApplication(ctx context.Context, code string) (*ApplicationDetail, error) {
	app, err := s.appRepo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	modules, err := s.moduleRepo.FindByApplication(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	return &ApplicationDetail{Application: app, Modules: modules}, nil
}

func (s *ApplicationService) ListApplications(ctx context.Context) ([]*domain.Application, error) {
	return s.appRepo.FindAll(ctx)
}

// AddModule 为已有应用追加模块。
func (s *ApplicationService) AddModule(ctx context.Context, code, name string) (*domain.Module, error) {
	if err := domain.ValidateModuleName(name); err != nil {
		return nil, err
	}
	app, err := s.appRepo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	m := &domain.Module{
		ID:            uuid.NewString(),
		ApplicationID: app.ID,
		Name:          name,
		CreatedAt:     time.Now(),
	}
	if err := s.moduleRepo.Save(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetModule 按应用 code 与模块名定位模块。
func (s *ApplicationService) GetModule(ctx context.Context, code, module string) (*domain.Application, *domain.Module, error) {
	app, err := s.appRepo.FindByCode(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	m, err := s.moduleRepo.FindByName(ctx, app.ID, module)
	if err != nil {
		return nil, nil, err
	}
	return app, m, nil
}

func (s *ApplicationService) ModuleEnv(ctx context.Context, code, module string, env domain.EnvName) (domain.ModuleEnv, error) {
	app, m, err := s.GetModule(ctx, code, module)
	if err != nil {
		return domain.ModuleEnv{}, err
	}
	return domain.ModuleEnv{Application: app, Module: m, Environment: env}, nil
}

// ModuleEnvByID 用于从域名记录反查其所属的模块环境。
func (s *ApplicationService) ModuleEnvByID(ctx context.Context, moduleID string, env domain.EnvName) (domain.ModuleEnv, error) {
	m, err := s.moduleRepo.FindByID(ctx, moduleID)
	if err != nil {
		return domain.ModuleEnv{}, err
	}
	app, err := s.appRepo.FindByID(ctx, m.ApplicationID)
	if err != nil {
		return domain.ModuleEnv{}, err
	}
	return domain.ModuleEnv{Application: app, Module: m, Environment: env}, nil
}

// DeleteApplication 任一模块已初始化模型时拒绝删除。
func (s *ApplicationService) DeleteApplication(ctx context.Context, code string) error {
	app, err := s.appRepo.FindByCode(ctx, code)
	if err != nil {
		return err
	}
	modules, err := s.moduleRepo.FindByApplication(ctx, app.ID)
	if err != nil {
		return err
	}
	for _, m := range modules {
		_, err := s.modelRepo.FindResource(ctx, m.ID)
		if err == nil {
			return domain.ErrCannotDelete
		}
		if !errors.Is(err, domain.ErrAppModelNotInitialized) {
			return err
		}
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.moduleRepo.DeleteByApplication(ctx, app.ID); err != nil {
			return err
		}
		return s.appRepo.Delete(ctx, app.ID)
	})
}
