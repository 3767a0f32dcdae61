package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chiwei-platform/bkapp-engine/internal/domain"
	"github.com/chiwei-platform/bkapp-engine/internal/metrics"
	"github.com/chiwei-platform/bkapp-engine/internal/port"
	"github.com/google/uuid"
	slogctx "github.com/veqryn/slog-context"
)

// DeployService 下发当前版本并跟踪集群上报的部署状态。
type DeployService struct {
	apps    *ApplicationService
	models  *AppModelService
	deploys port.DeployRepository
	mounts  *MountService
	applier port.BkAppApplier
	tx      port.TxManager
}

func NewDeployService(
	apps *ApplicationService,
	models *AppModelService,
	deploys port.DeployRepository,
	mounts *MountService,
	applier port.BkAppApplier,
	tx port.TxManager,
) *DeployService {
	return &DeployService{apps: apps, models: models, deploys: deploys, mounts: mounts, applier: applier, tx: tx}
}

// Deploy 以当前版本生成部署记录并下发到目标环境。下发失败时记录直接进入 error。
func (s *DeployService) Deploy(ctx context.Context, code, module string, env domain.EnvName, operator string) (*domain.AppModelDeploy, error) {
	menv, err := s.apps.ModuleEnv(ctx, code, module, env)
	if err != nil {
		return nil, err
	}
	current, rev, err := s.models.currentModel(ctx, menv.Module.ID)
	if err != nil {
		return nil, err
	}
	logger := slogctx.FromCtx(ctx).With("target", menv.String(), "revision", rev.Number)

	id := uuid.NewString()
	manifest, err := s.renderManifest(ctx, menv, current, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	d := &domain.AppModelDeploy{
		ID:            id,
		ApplicationID: menv.Application.ID,
		ModuleID:      menv.Module.ID,
		Environment:   env,
		Name:          fmt.Sprintf("%s-%s", menv.BkAppName(), id[:8]),
		RevisionID:    rev.ID,
		Status:        domain.DeployStatusPending,
		Operator:      operator,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.deploys.Save(ctx, d); err != nil {
		return nil, err
	}

	if err := s.applier.Apply(ctx, menv.Namespace(), manifest); err != nil {
		logger.Error("apply bkapp failed", "deploy", d.ID, "error", err)
		d.Transition(domain.Condition{Reason: "Failed", Message: err.Error(), LastTransitionTime: time.Now()})
		metrics.DeployTransitions.WithLabelValues(string(d.Status)).Inc()
		if uerr := s.deploys.Update(ctx, d); uerr != nil {
			logger.Error("update deploy failed", "deploy", d.ID, "error", uerr)
		}
		return nil, fmt.Errorf("apply bkapp %s: %w", manifest.Metadata.Name, err)
	}

	deployed, err := domain.CanonicalJSON(manifest)
	if err != nil {
		return nil, err
	}
	rev.MarkDeployed(deployed)
	if err := s.models.models.UpdateRevision(ctx, rev); err != nil {
		return nil, err
	}
	logger.Info("bkapp applied", "deploy", d.ID, "operator", operator)
	return d, nil
}

// renderManifest 在当前模型上叠加环境挂载与部署标记，不修改已存的版本。
func (s *DeployService) renderManifest(ctx context.Context, menv domain.ModuleEnv, current *domain.BkAppResource, deployID string) (*domain.BkAppResource, error) {
	manifest := current.DeepCopy()
	mounts, err := s.mounts.MountsForEnv(ctx, menv)
	if err != nil {
		return nil, err
	}
	declared := map[string]bool{}
	for _, m := range manifest.Spec.Mounts {
		declared[m.Name] = true
	}
	for _, m := range mounts {
		if !declared[m.Name] {
			manifest.Spec.Mounts = append(manifest.Spec.Mounts, m)
		}
	}
	if manifest.Metadata.Annotations == nil {
		manifest.Metadata.Annotations = map[string]string{}
	}
	manifest.Metadata.Annotations[domain.AnnotationDeployID] = deployID
	return manifest, nil
}

// IngestCondition 根据一条集群条件推进部署状态，返回最新的记录。
func (s *DeployService) IngestCondition(ctx context.Context, deployID string, cond domain.Condition) (*domain.AppModelDeploy, error) {
	var d *domain.AppModelDeploy
	changed := false
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		d, err = s.deploys.FindByID(ctx, deployID)
		if err != nil {
			return err
		}
		if !d.Transition(cond) {
			return nil
		}
		changed = true
		return s.deploys.Update(ctx, d)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		metrics.DeployTransitions.WithLabelValues(string(d.Status)).Inc()
		slogctx.FromCtx(ctx).Info("deploy status changed", "deploy", d.ID, "status", d.Status, "reason", d.Reason)
	}
	return d, nil
}

// OnBkAppStatusChange 供 Informer 回调使用，错误只记录不返回。
func (s *DeployService) OnBkAppStatusChange(ctx context.Context, deployID string, cond domain.Condition) {
	if _, err := s.IngestCondition(ctx, deployID, cond); err != nil {
		if errors.Is(err, domain.ErrDeployNotFound) {
			slogctx.FromCtx(ctx).Debug("status for unknown deploy ignored", "deploy", deployID)
			return
		}
		slogctx.FromCtx(ctx).Error("ingest bkapp status failed", "deploy", deployID, "error", err)
	}
}

func (s *DeployService) ListDeploys(ctx context.Context, code, module string, env domain.EnvName) ([]*domain.AppModelDeploy, error) {
	_, mod, err := s.apps.GetModule(ctx, code, module)
	if err != nil {
		return nil, err
	}
	return s.deploys.FilterByEnv(ctx, mod.ID, env)
}

// LatestSucceeded 返回该环境最近一次成功的部署。
func (s *DeployService) LatestSucceeded(ctx context.Context, code, module string, env domain.EnvName) (*domain.AppModelDeploy, error) {
	_, mod, err := s.apps.GetModule(ctx, code, module)
	if err != nil {
		return nil, err
	}
	return s.deploys.LatestSucceeded(ctx, mod.ID, env)
}

// AnySuccessful 判断该环境是否有过成功部署。
func (s *DeployService) AnySuccessful(ctx context.Context, code, module string, env domain.EnvName) (bool, error) {
	_, err := s.LatestSucceeded(ctx, code, module, env)
	if errors.Is(err, domain.ErrDeployNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Offline 从集群中删除该环境的 BkApp，部署记录保留。从未部署过的环境不能下线。
func (s *DeployService) Offline(ctx context.Context, code, module string, env domain.EnvName) error {
	menv, err := s.apps.ModuleEnv(ctx, code, module, env)
	if err != nil {
		return err
	}
	deploys, err := s.deploys.FilterByEnv(ctx, menv.Module.ID, env)
	if err != nil {
		return err
	}
	if len(deploys) == 0 {
		return fmt.Errorf("%s has never been deployed: %w", menv, domain.ErrCannotDelete)
	}
	if err := s.applier.Delete(ctx, menv.Namespace(), menv.BkAppName()); err != nil {
		return fmt.Errorf("delete bkapp %s: %w", menv.BkAppName(), err)
	}
	slogctx.FromCtx(ctx).Info("bkapp offline", "target", menv.String())
	return nil
}
