package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/chiwei-platform/bkapp-engine/internal/domain"
	"github.com/chiwei-platform/bkapp-engine/internal/port"
	"github.com/google/uuid"
	slogctx "github.com/veqryn/slog-context"
)

type MountService struct {
	apps    *ApplicationService
	mounts  port.MountRepository
	secrets port.SecretStore
}

func NewMountService(apps *ApplicationService, mounts port.MountRepository, secrets port.SecretStore) *MountService {
	return &MountService{apps: apps, mounts: mounts, secrets: secrets}
}

type CreateMountRequest struct {
	Name         string              `json:"name"`
	MountPath    string              `json:"mount_path"`
	Environment  string              `json:"environment_name"`
	SourceType   string              `json:"source_type"`
	SourceConfig domain.VolumeSource `json:"source_config"`
}

// Create 新建挂载。未指定配置源名称时使用挂载名。
func (s *MountService) Create(ctx context.Context, code, module string, req CreateMountRequest) (*domain.Mount, error) {
	env, err := domain.ParseMountEnvName(req.Environment)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateK8sName(req.Name); err != nil {
		return nil, err
	}
	if err := domain.ValidateMountPath(req.MountPath); err != nil {
		return nil, err
	}
	sourceType := domain.VolumeSourceType(req.SourceType)
	if sourceType == "" {
		sourceType = domain.VolumeSourceConfigMap
	}
	if sourceType != domain.VolumeSourceConfigMap {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedSourceType, sourceType)
	}
	src := req.SourceConfig
	if src.ConfigMap == nil || src.ConfigMap.Name == "" {
		src.ConfigMap = &domain.ConfigMapRef{Name: req.Name}
	}

	_, mod, err := s.apps.GetModule(ctx, code, module)
	if err != nil {
		return nil, err
	}
	existing, err := s.mounts.FindByModule(ctx, mod.ID)
	if err != nil {
		return nil, err
	}
	for _, m := range existing {
		if m.MountPath == req.MountPath && m.Environment == env {
			return nil, fmt.Errorf("mount path %s in %s: %w", req.MountPath, env, domain.ErrAlreadyExists)
		}
	}

	now := time.Now()
	m := &domain.Mount{
		ID:           uuid.NewString(),
		ModuleID:     mod.ID,
		Environment:  env,
		Name:         req.Name,
		MountPath:    req.MountPath,
		SourceType:   sourceType,
		SourceConfig: src,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.mounts.Save(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *MountService) List(ctx context.Context, code, module string) ([]*domain.Mount, error) {
	_, mod, err := s.apps.GetModule(ctx, code, module)
	if err != nil {
		return nil, err
	}
	return s.mounts.FindByModule(ctx, mod.ID)
}

func (s *MountService) Delete(ctx context.Context, code, module, id string) error {
	_, mod, err := s.apps.GetModule(ctx, code, module)
	if err != nil {
		return err
	}
	m, err := s.mounts.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if m.ModuleID != mod.ID {
		return domain.ErrMountNotFound
	}
	return s.mounts.Delete(ctx, id)
}

type UpsertSourceRequest struct {
	Environment string            `json:"environment_name"`
	Name        string            `json:"name"`
	Data        map[string]string `json:"data"`
}

// UpsertConfigMapSource 写入 ConfigMap 配置源的数据，已存在时整体覆盖。
func (s *MountService) UpsertConfigMapSource(ctx context.Context, code, module string, req UpsertSourceRequest) (*domain.ConfigMapSource, error) {
	env, err := domain.ParseMountEnvName(req.Environment)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateK8sName(req.Name); err != nil {
		return nil, err
	}
	_, mod, err := s.apps.GetModule(ctx, code, module)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	src, err := s.mounts.FindConfigMapSource(ctx, mod.ID, env, req.Name)
	switch {
	case err == nil:
		src.Data = req.Data
		src.UpdatedAt = now
	case errors.Is(err, domain.ErrMountSourceNotFound):
		src = &domain.ConfigMapSource{
			ID:          uuid.NewString(),
			ModuleID:    mod.ID,
			Environment: env,
			Name:        req.Name,
			Data:        req.Data,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	default:
		return nil, err
	}
	if err := s.mounts.SaveConfigMapSource(ctx, src); err != nil {
		return nil, err
	}
	return src, nil
}

// ResolveSource 查出挂载引用的配置源，未知类型直接失败。
func (s *MountService) ResolveSource(ctx context.Context, m *domain.Mount) (*domain.ConfigMapSource, error) {
	switch m.SourceType {
	case domain.VolumeSourceConfigMap:
		name := m.SourceName()
		if name == "" {
			return nil, fmt.Errorf("mount %s has no configmap: %w", m.Name, domain.ErrMountSourceNotFound)
		}
		return s.mounts.FindConfigMapSource(ctx, m.ModuleID, m.Environment, name)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedSourceType, m.SourceType)
	}
}

// clusterConfigMapName 同一命名空间下可能有多个模块，因此带上资源名前缀。
func clusterConfigMapName(menv domain.ModuleEnv, source string) string {
	return menv.BkAppName() + "-mount-" + source
}

// MountsForEnv 返回对目标环境生效的挂载，并确保对应的 ConfigMap 已写入命名空间。
func (s *MountService) MountsForEnv(ctx context.Context, menv domain.ModuleEnv) ([]domain.MountSpec, error) {
	mounts, err := s.mounts.FindByModule(ctx, menv.Module.ID)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(mounts, func(a, b *domain.Mount) int { return cmp.Compare(a.MountPath, b.MountPath) })

	var specs []domain.MountSpec
	for _, m := range mounts {
		if !m.Environment.AppliesTo(menv.Environment) {
			continue
		}
		src, err := s.ResolveSource(ctx, m)
		if err != nil {
			return nil, err
		}
		name := clusterConfigMapName(menv, src.Name)
		if err := s.secrets.EnsureConfigMap(ctx, menv.Namespace(), name, src.Data); err != nil {
			return nil, fmt.Errorf("ensure configmap %s: %w", name, err)
		}
		specs = append(specs, domain.MountSpec{
			Name:      m.Name,
			MountPath: m.MountPath,
			Source:    &domain.VolumeSource{ConfigMap: &domain.ConfigMapRef{Name: name}},
		})
	}
	slogctx.FromCtx(ctx).Debug("mounts resolved", "target", menv.String(), "count", len(specs))
	return specs, nil
}
