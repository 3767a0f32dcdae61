package repository

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func OpenDB(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
}

// Migrate 建表或补齐缺失的列与索引。
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&ApplicationModel{},
		&ModuleModel{},
		&ManagedFieldsModel{},
		&AppModelResourceModel{},
		&AppModelRevisionModel{},
		&AppModelDeployModel{},
		&MountModel{},
		&ConfigMapSourceModel{},
		&AppDomainModel{},
		&DomainModel{},
		&AppDomainCertModel{},
		&AppDomainSharedCertModel{},
	)
}
