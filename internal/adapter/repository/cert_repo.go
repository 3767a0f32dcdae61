package repository

import (
	"context"
	"errors"

	"github.com/chiwei-platform/bkapp-engine/internal/domain"
	"github.com/chiwei-platform/bkapp-engine/internal/port"
	"gorm.io/gorm"
)

var _ port.CertRepository = (*CertRepo)(nil)

// CertRepo 只读，证书由平台侧录入。
type CertRepo struct {
	db *gorm.DB
}

func NewCertRepo(db *gorm.DB) *CertRepo {
	return &CertRepo{db: db}
}

func (r *CertRepo) FindCert(ctx context.Context, id string) (*domain.AppDomainCert, error) {
	var m AppDomainCertModel
	result := conn(ctx, r.db).First(&m, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCertNotFound
		}
		return nil, result.Error
	}
	return &domain.AppDomainCert{ID: m.ID, Name: m.Name, Cert: m.Cert, Key: m.Key, CreatedAt: m.CreatedAt}, nil
}

func (r *CertRepo) FindSharedCert(ctx context.Context, id string) (*domain.AppDomainSharedCert, error) {
	var m AppDomainSharedCertModel
	result := conn(ctx, r.db).First(&m, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCertNotFound
		}
		return nil, result.Error
	}
	return modelToSharedCert(&m), nil
}

func (r *CertRepo) ListSharedCerts(ctx context.Context) ([]*domain.AppDomainSharedCert, error) {
	var models []AppDomainSharedCertModel
	if err := conn(ctx, r.db).Order("name").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.AppDomainSharedCert, 0, len(models))
	for i := range models {
		out = append(out, modelToSharedCert(&models[i]))
	}
	return out, nil
}

func modelToSharedCert(m *AppDomainSharedCertModel) *domain.AppDomainSharedCert {
	return &domain.AppDomainSharedCert{
		ID:           m.ID,
		Name:         m.Name,
		Cert:         m.Cert,
		Key:          m.Key,
		AutoMatchCNs: m.AutoMatchCNs,
		CreatedAt:    m.CreatedAt,
	}
}
