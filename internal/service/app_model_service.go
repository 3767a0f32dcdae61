package service

import (
	"context"
	"errors"
	"time"

	"github.com/chiwei-platform/bkapp-engine/internal/domain"
	"github.com/chiwei-platform/bkapp-engine/internal/metrics"
	"github.com/chiwei-platform/bkapp-engine/internal/port"
	"github.com/google/uuid"
	slogctx "github.com/veqryn/slog-context"
)

// AppModelService 负责模型的初始化、整体更新与版本查询。
type AppModelService struct {
	apps   *ApplicationService
	models port.AppModelRepository
	store  *RowGroupStore
	tx     port.TxManager
	policy ConflictPolicy
}

func NewAppModelService(apps *ApplicationService, models port.AppModelRepository, store *RowGroupStore, tx port.TxManager, policy ConflictPolicy) *AppModelService {
	if policy == "" {
		policy = ConflictPolicyIgnore
	}
	return &AppModelService{apps: apps, models: models, store: store, tx: tx, policy: policy}
}

type InitAppModelRequest struct {
	Image      string   `json:"image"`
	APIVersion string   `json:"api_version"`
	Command    []string `json:"command"`
	Args       []string `json:"args"`
	TargetPort *int32   `json:"target_port"`
}

// InitAppModel 为模块创建初始模型与第一个版本。
func (s *AppModelService) InitAppModel(ctx context.Context, code, module string, req InitAppModelRequest) (*domain.AppModelResource, error) {
	app, mod, err := s.apps.GetModule(ctx, code, module)
	if err != nil {
		return nil, err
	}
	res := domain.NewBkAppResource(domain.GenerateBkAppName(app.Code, mod.Name), req.Image, domain.NewBkAppResourceOptions{
		APIVersion: req.APIVersion,
		Command:    req.Command,
		Args:       req.Args,
		TargetPort: req.TargetPort,
	})
	if err := domain.ValidateBkAppResource(res); err != nil {
		return nil, err
	}

	var out *domain.AppModelResource
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.models.FindResource(ctx, mod.ID); err == nil {
			return domain.ErrAlreadyExists
		} else if !errors.Is(err, domain.ErrAppModelNotInitialized) {
			return err
		}
		rev, err := domain.NewAppModelRevision(uuid.NewString(), mod.ID, 1, res, domain.FieldMgrDefault)
		if err != nil {
			return err
		}
		if err := s.models.SaveRevision(ctx, rev); err != nil {
			return err
		}
		now := time.Now()
		out = &domain.AppModelResource{
			ID:            uuid.NewString(),
			ApplicationID: app.ID,
			ModuleID:      mod.ID,
			RevisionID:    rev.ID,
			Revision:      rev,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return s.models.SaveResource(ctx, out)
	})
	if err != nil {
		return nil, err
	}
	metrics.RevisionsCreated.WithLabelValues(string(domain.FieldMgrDefault)).Inc()
	slogctx.FromCtx(ctx).Info("app model initialized", "app", app.Code, "module", mod.Name, "revision", out.RevisionID)
	return out, nil
}

// UpdateAppModel 用完整的模型替换当前版本。名称总是由 code 与模块名推导。
// 发生变化的扩缩容字段与局部合并走同样的归属仲裁：被更高优先级持有的字段
// 保留当前值（reject 策略下整体失败），其余字段归 manager 所有。
func (s *AppModelService) UpdateAppModel(ctx context.Context, code, module string, payload map[string]any, manager domain.FieldMgrName) (*domain.AppModelRevision, error) {
	app, mod, err := s.apps.GetModule(ctx, code, module)
	if err != nil {
		return nil, err
	}
	if _, err := s.models.FindResource(ctx, mod.ID); err != nil {
		return nil, err
	}
	res, err := domain.DecodeBkAppPayload(payload, domain.GenerateBkAppName(app.Code, mod.Name))
	if err != nil {
		return nil, err
	}
	logger := slogctx.FromCtx(ctx).With("app", app.Code, "module", mod.Name, "manager", manager)

	var (
		rev     *domain.AppModelRevision
		ignored []domain.FieldOwnership
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, _, err := s.currentModel(ctx, mod.ID)
		if err != nil {
			return err
		}
		changed := changedTrackedFields(&current.Spec, &res.Spec)
		if len(changed) > 0 {
			g, err := s.store.Load(ctx, mod.ID)
			if err != nil {
				return err
			}
			working := g.Clone()
			var claimed []domain.Field
			for _, f := range changed {
				ok, owner := mayWrite(working, f, manager)
				if !ok {
					ignored = append(ignored, domain.FieldOwnership{Field: f, Manager: owner})
					metrics.FieldConflicts.WithLabelValues(string(manager), string(owner)).Inc()
					restoreTrackedField(&res.Spec, &current.Spec, f)
					continue
				}
				claimed = append(claimed, f)
			}
			if len(ignored) > 0 && s.policy == ConflictPolicyReject {
				return &domain.FieldConflictError{Manager: manager, Conflicts: ignored}
			}
			if len(ignored) > 0 {
				if err := domain.ValidateBkAppResource(res); err != nil {
					return err
				}
			}
			for _, f := range claimed {
				working.SetManager(manager, f)
			}
			if err := s.store.Save(ctx, working); err != nil {
				return err
			}
		}
		rev, err = s.useResource(ctx, mod.ID, res, manager)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(ignored) > 0 {
		logger.Warn("fields owned by higher-precedence managers were kept", "ignored", len(ignored))
	}
	logger.Info("app model updated", "revision", rev.Number)
	return rev, nil
}

// useResource 生成新版本并把模块指针指向它，指针更新是事务中的最后一步。
func (s *AppModelService) useResource(ctx context.Context, moduleID string, res *domain.BkAppResource, manager domain.FieldMgrName) (*domain.AppModelRevision, error) {
	var rev *domain.AppModelRevision
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		n, err := s.models.NextRevisionNumber(ctx, moduleID)
		if err != nil {
			return err
		}
		rev, err = domain.NewAppModelRevision(uuid.NewString(), moduleID, n, res, manager)
		if err != nil {
			return err
		}
		if err := s.models.SaveRevision(ctx, rev); err != nil {
			return err
		}
		return s.models.Repoint(ctx, moduleID, rev.ID)
	})
	if err != nil {
		return nil, err
	}
	metrics.RevisionsCreated.WithLabelValues(string(manager)).Inc()
	return rev, nil
}

// currentModel 返回模块当前生效的模型及其版本。
func (s *AppModelService) currentModel(ctx context.Context, moduleID string) (*domain.BkAppResource, *domain.AppModelRevision, error) {
	res, err := s.models.FindResource(ctx, moduleID)
	if err != nil {
		return nil, nil, err
	}
	rev := res.Revision
	if rev == nil {
		if rev, err = s.models.FindRevision(ctx, res.RevisionID); err != nil {
			return nil, nil, err
		}
	}
	model, err := rev.Resource()
	if err != nil {
		return nil, nil, err
	}
	return model, rev, nil
}

// GetCurrent 返回模块的当前模型指针及版本内容。
func (s *AppModelService) GetCurrent(ctx context.Context, code, module string) (*domain.AppModelResource, error) {
	_, mod, err := s.apps.GetModule(ctx, code, module)
	if err != nil {
		return nil, err
	}
	res, err := s.models.FindResource(ctx, mod.ID)
	if err != nil {
		return nil, err
	}
	if res.Revision == nil {
		if res.Revision, err = s.models.FindRevision(ctx, res.RevisionID); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (s *AppModelService) ListRevisions(ctx context.Context, code, module string) ([]*domain.AppModelRevision, error) {
	_, mod, err := s.apps.GetModule(ctx, code, module)
	if err != nil {
		return nil, err
	}
	return s.models.ListRevisions(ctx, mod.ID)
}

func (s *AppModelService) GetRevision(ctx context.Context, code, module, id string) (*domain.AppModelRevision, error) {
	_, mod, err := s.apps.GetModule(ctx, code, module)
	if err != nil {
		return nil, err
	}
	rev, err := s.models.FindRevision(ctx, id)
	if err != nil {
		return nil, err
	}
	if rev.ModuleID != mod.ID {
		return nil, domain.ErrRevisionNotFound
	}
	return rev, nil
}
