package port

import (
	"context"

	"github.com/chiwei-platform/bkapp-engine/internal/domain"
)

// TxManager 把一组仓储操作包进同一个事务，fn 返回错误时整体回滚。
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type ApplicationRepository interface {
	Save(ctx context.Context, app *domain.Application) error
	FindByCode(ctx context.Context, code string) (*domain.Application, error)
	FindByID(ctx context.Context, id string) (*domain.Application, error)
	FindAll(ctx context.Context) ([]*domain.Application, error)
	Delete(ctx context.Context, id string) error
}

type ModuleRepository interface {
	Save(ctx context.Context, module *domain.Module) error
	FindByName(ctx context.Context, applicationID, name string) (*domain.Module, error)
	FindByID(ctx context.Context, id string) (*domain.Module, error)
	FindByApplication(ctx context.Context, applicationID string) ([]*domain.Module, error)
	DeleteByApplication(ctx context.Context, applicationID string) error
}

// ManagedFieldsRepository 以模块为单位整体读取、按行差量保存字段归属。
type ManagedFieldsRepository interface {
	// LoadRows 读取模块全部行；lock 为 true 时在当前事务中加行锁。
	LoadRows(ctx context.Context, moduleID string, lock bool) ([]*domain.ManagedFieldsRow, error)
	// SaveRows 按 (module, manager) 覆盖写入给定行。
	SaveRows(ctx context.Context, rows []*domain.ManagedFieldsRow) error
}

type AppModelRepository interface {
	SaveResource(ctx context.Context, res *domain.AppModelResource) error
	FindResource(ctx context.Context, moduleID string) (*domain.AppModelResource, error)
	// Repoint 把模块的当前版本指向 revisionID。
	Repoint(ctx context.Context, moduleID, revisionID string) error
	SaveRevision(ctx context.Context, rev *domain.AppModelRevision) error
	UpdateRevision(ctx context.Context, rev *domain.AppModelRevision) error
	FindRevision(ctx context.Context, id string) (*domain.AppModelRevision, error)
	ListRevisions(ctx context.Context, moduleID string) ([]*domain.AppModelRevision, error)
	// NextRevisionNumber 返回模块下一个版本号，从 1 开始。
	NextRevisionNumber(ctx context.Context, moduleID string) (int, error)
}

type DeployRepository interface {
	Save(ctx context.Context, d *domain.AppModelDeploy) error
	Update(ctx context.Context, d *domain.AppModelDeploy) error
	FindByID(ctx context.Context, id string) (*domain.AppModelDeploy, error)
	// FilterByEnv 按创建时间倒序返回某环境的部署记录。
	FilterByEnv(ctx context.Context, moduleID string, env domain.EnvName) ([]*domain.AppModelDeploy, error)
	LatestSucceeded(ctx context.Context, moduleID string, env domain.EnvName) (*domain.AppModelDeploy, error)
}

type MountRepository interface {
	Save(ctx context.Context, m *domain.Mount) error
	FindByID(ctx context.Context, id string) (*domain.Mount, error)
	FindByModule(ctx context.Context, moduleID string) ([]*domain.Mount, error)
	Delete(ctx context.Context, id string) error
	SaveConfigMapSource(ctx context.Context, src *domain.ConfigMapSource) error
	FindConfigMapSource(ctx context.Context, moduleID string, env domain.MountEnvName, name string) (*domain.ConfigMapSource, error)
}

// AppDomainRepository 域名按 host 全局唯一，不按应用分区。
type AppDomainRepository interface {
	FindByHosts(ctx context.Context, hosts []string) ([]*domain.AppDomain, error)
	FindByModuleEnv(ctx context.Context, moduleID string, env domain.EnvName) ([]*domain.AppDomain, error)
	Create(ctx context.Context, d *domain.AppDomain) error
	// Transfer 是条件更新：只有来源可重新分配的记录才会被改写，返回实际更新的行数。
	Transfer(ctx context.Context, d *domain.AppDomain) (int64, error)
	DeleteByIDs(ctx context.Context, ids []string) error
}

type DomainRepository interface {
	Save(ctx context.Context, d *domain.Domain) error
	FindByID(ctx context.Context, id string) (*domain.Domain, error)
	FindByModuleEnv(ctx context.Context, moduleID string, env domain.EnvName) ([]*domain.Domain, error)
	Delete(ctx context.Context, id string) error
}

type CertRepository interface {
	FindCert(ctx context.Context, id string) (*domain.AppDomainCert, error)
	FindSharedCert(ctx context.Context, id string) (*domain.AppDomainSharedCert, error)
	ListSharedCerts(ctx context.Context) ([]*domain.AppDomainSharedCert, error)
}
