package repository

import (
	"time"

	"gorm.io/datatypes"
)

// ApplicationModel 是 Application 的数据库持久化模型。
type ApplicationModel struct {
	ID        string `gorm:"primaryKey"`
	Code      string `gorm:"uniqueIndex"`
	Name      string
	Region    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ApplicationModel) TableName() string { return "applications" }

// ModuleModel 是 Module 的数据库持久化模型。
type ModuleModel struct {
	ID            string `gorm:"primaryKey"`
	ApplicationID string `gorm:"uniqueIndex:idx_module_app_name"`
	Name          string `gorm:"uniqueIndex:idx_module_app_name"`
	IsDefault     bool
	CreatedAt     time.Time
}

func (ModuleModel) TableName() string { return "modules" }

// ManagedFieldsModel 每个 (模块, 管理者) 一行。
type ManagedFieldsModel struct {
	ID        uint           `gorm:"primaryKey"`
	ModuleID  string         `gorm:"uniqueIndex:idx_managed_fields_module_manager"`
	Manager   string         `gorm:"uniqueIndex:idx_managed_fields_module_manager"`
	Fields    datatypes.JSON `gorm:"type:jsonb"` // JSON 序列化的 []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ManagedFieldsModel) TableName() string { return "managed_fields" }

// AppModelResourceModel 是模块当前版本指针的数据库持久化模型。
type AppModelResourceModel struct {
	ID            string `gorm:"primaryKey"`
	ApplicationID string `gorm:"index"`
	ModuleID      string `gorm:"uniqueIndex"`
	RevisionID    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (AppModelResourceModel) TableName() string { return "app_model_resources" }

// AppModelRevisionModel 是 AppModelRevision 的数据库持久化模型。
type AppModelRevisionModel struct {
	ID            string `gorm:"primaryKey"`
	ModuleID      string `gorm:"uniqueIndex:idx_revision_module_number"`
	Number        int    `gorm:"uniqueIndex:idx_revision_module_number"`
	Version       string
	JSONValue     datatypes.JSON `gorm:"type:jsonb"`
	YAMLValue     string         `gorm:"type:text"`
	Digest        string
	DeployedValue datatypes.JSON `gorm:"type:jsonb"`
	HasDeployed   bool
	IsDraft       bool
	IsDeleted     bool
	Manager       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (AppModelRevisionModel) TableName() string { return "app_model_revisions" }

// AppModelDeployModel 是 AppModelDeploy 的数据库持久化模型。
type AppModelDeployModel struct {
	ID                 string `gorm:"primaryKey"`
	ApplicationID      string
	ModuleID           string `gorm:"index:idx_deploy_module_env"`
	Environment        string `gorm:"index:idx_deploy_module_env"`
	Name               string
	RevisionID         string
	Status             string
	Reason             string
	Message            string `gorm:"type:text"`
	LastTransitionTime *time.Time
	Operator           string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (AppModelDeployModel) TableName() string { return "app_model_deploys" }

// MountModel 是 Mount 的数据库持久化模型。
type MountModel struct {
	ID           string `gorm:"primaryKey"`
	ModuleID     string `gorm:"uniqueIndex:idx_mount_module_path_env"`
	Environment  string `gorm:"uniqueIndex:idx_mount_module_path_env"`
	MountPath    string `gorm:"uniqueIndex:idx_mount_module_path_env"`
	Name         string
	SourceType   string
	SourceConfig datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (MountModel) TableName() string { return "mounts" }

// ConfigMapSourceModel 是 ConfigMapSource 的数据库持久化模型。
type ConfigMapSourceModel struct {
	ID          string         `gorm:"primaryKey"`
	ModuleID    string         `gorm:"uniqueIndex:idx_configmap_source_module_env_name"`
	Environment string         `gorm:"uniqueIndex:idx_configmap_source_module_env_name"`
	Name        string         `gorm:"uniqueIndex:idx_configmap_source_module_env_name"`
	Data        datatypes.JSON `gorm:"type:jsonb"` // JSON 序列化的 map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (ConfigMapSourceModel) TableName() string { return "configmap_sources" }

// AppDomainModel 是 AppDomain 的数据库持久化模型，host 全局唯一。
type AppDomainModel struct {
	ID            string `gorm:"primaryKey"`
	Host          string `gorm:"uniqueIndex"`
	PathPrefix    string
	HTTPSEnabled  bool
	Source        string
	ApplicationID string
	ModuleID      string `gorm:"index:idx_app_domain_module_env"`
	Environment   string `gorm:"index:idx_app_domain_module_env"`
	CertID        string
	SharedCertID  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (AppDomainModel) TableName() string { return "app_domains" }

// DomainModel 是独立域名的数据库持久化模型。
type DomainModel struct {
	ID            string `gorm:"primaryKey"`
	Name          string `gorm:"uniqueIndex:idx_domain_name_prefix"`
	PathPrefix    string `gorm:"uniqueIndex:idx_domain_name_prefix"`
	HTTPSEnabled  bool
	ApplicationID string
	ModuleID      string `gorm:"index:idx_domain_module_env"`
	Environment   string `gorm:"index:idx_domain_module_env"`
	CertID        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (DomainModel) TableName() string { return "domains" }

// AppDomainCertModel 是应用独享证书的数据库持久化模型。
type AppDomainCertModel struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex"`
	Cert      string `gorm:"type:text"`
	Key       string `gorm:"type:text"`
	CreatedAt time.Time
}

func (AppDomainCertModel) TableName() string { return "app_domain_certs" }

// AppDomainSharedCertModel 是共享证书的数据库持久化模型。
type AppDomainSharedCertModel struct {
	ID           string `gorm:"primaryKey"`
	Name         string `gorm:"uniqueIndex"`
	Cert         string `gorm:"type:text"`
	Key          string `gorm:"type:text"`
	AutoMatchCNs string // 分号分隔的通配模式
	CreatedAt    time.Time
}

func (AppDomainSharedCertModel) TableName() string { return "app_domain_shared_certs" }
