package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/javajoker/catalog-backend/internal/database"
	"github.com/javajoker/catalog-backend/internal/models"
	"github.com/javajoker/catalog-backend/internal/utils"
	"github.com/javajoker/catalog-backend/internal/vendors"
)

// CredentialService stores feed credentials per vendor and optionally per
// tenant. Secrets are sealed at rest.
type CredentialService struct {
	db  *gorm.DB
	box *utils.SecretBox
}

type SaveCredentialsRequest struct {
	TenantID  string `json:"tenant_id" validate:"max=64"`
	Username  string `json:"username" validate:"max=255"`
	Password  string `json:"password"`
	APIKey    string `json:"api_key"`
	AccountID string `json:"account_id" validate:"max=100"`
}

func NewCredentialService(db *gorm.DB, box *utils.SecretBox) *CredentialService {
	return &CredentialService{db: db, box: box}
}

// SaveCredentials replaces the credentials for (slug, tenant).
func (s *CredentialService) SaveCredentials(ctx context.Context, slug string, req *SaveCredentialsRequest, actor string) (*models.VendorCredential, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	passwordCipher, err := s.box.Seal(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to seal password: %w", err)
	}
	apiKeyCipher, err := s.box.Seal(req.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to seal api key: %w", err)
	}

	var cred models.VendorCredential
	err = database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Vendor{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
			return fmt.Errorf("database error: %w", err)
		}
		if count == 0 {
			return ErrVendorNotFound
		}

		err := tx.Where("vendor_slug = ? AND tenant_id = ?", slug, req.TenantID).Take(&cred).Error
		created := errors.Is(err, gorm.ErrRecordNotFound)
		if err != nil && !created {
			return fmt.Errorf("database error: %w", err)
		}

		cred.VendorSlug = slug
		cred.TenantID = req.TenantID
		cred.Username = req.Username
		cred.PasswordCipher = passwordCipher
		cred.APIKeyCipher = apiKeyCipher
		cred.AccountID = req.AccountID

		if created {
			err = tx.Create(&cred).Error
		} else {
			err = tx.Save(&cred).Error
		}
		if err != nil {
			return fmt.Errorf("failed to save credentials: %w", err)
		}

		return recordAudit(tx, actor, "UPDATE_VENDOR_CREDENTIALS", "vendor", slug, nil,
			models.JSONB{"tenant_id": req.TenantID, "username": req.Username, "account_id": req.AccountID})
	})
	if err != nil {
		return nil, err
	}

	cred.HasPassword = cred.PasswordCipher != ""
	cred.HasAPIKey = cred.APIKeyCipher != ""
	return &cred, nil
}

// GetCredentials returns the stored row for display; secrets stay sealed.
func (s *CredentialService) GetCredentials(ctx context.Context, slug, tenantID string) (*models.VendorCredential, error) {
	cred, err := s.find(ctx, slug, tenantID)
	if err != nil {
		return nil, err
	}
	return cred, nil
}

// Resolve returns usable credentials for a feed, preferring the tenant's
// own and falling back to the vendor-wide default.
func (s *CredentialService) Resolve(ctx context.Context, slug, tenantID string) (vendors.Credentials, error) {
	cred, err := s.find(ctx, slug, tenantID)
	if err != nil {
		return vendors.Credentials{}, err
	}

	password, err := s.box.Open(cred.PasswordCipher)
	if err != nil {
		return vendors.Credentials{}, fmt.Errorf("vendor %s password: %w", slug, err)
	}
	apiKey, err := s.box.Open(cred.APIKeyCipher)
	if err != nil {
		return vendors.Credentials{}, fmt.Errorf("vendor %s api key: %w", slug, err)
	}

	return vendors.Credentials{
		Username:  cred.Username,
		Password:  password,
		APIKey:    apiKey,
		AccountID: cred.AccountID,
	}, nil
}

func (s *CredentialService) find(ctx context.Context, slug, tenantID string) (*models.VendorCredential, error) {
	scopes := []string{tenantID}
	if tenantID != "" {
		scopes = append(scopes, "")
	}

	for _, scope := range scopes {
		var cred models.VendorCredential
		err := s.db.WithContext(ctx).Where("vendor_slug = ? AND tenant_id = ?", slug, scope).Take(&cred).Error
		if err == nil {
			return &cred, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("database error: %w", err)
		}
	}
	return nil, ErrCredentialsNotFound
}
