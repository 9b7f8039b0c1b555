// internal/models/credential.go
package models

import "gorm.io/gorm"

// VendorCredential holds feed authentication material. Secrets are stored
// encrypted; TenantID is empty for the vendor-wide default.
type VendorCredential struct {
	BaseModel
	VendorSlug     string `json:"vendor_slug" gorm:"size:50;not null;uniqueIndex:idx_vendor_credentials_scope"`
	TenantID       string `json:"tenant_id" gorm:"size:64;not null;default:'';uniqueIndex:idx_vendor_credentials_scope"`
	Username       string `json:"username" gorm:"size:255"`
	PasswordCipher string `json:"-" gorm:"type:text"`
	APIKeyCipher   string `json:"-" gorm:"type:text"`
	AccountID      string `json:"account_id" gorm:"size:100"`
	HasPassword    bool   `json:"has_password" gorm:"-"`
	HasAPIKey      bool   `json:"has_api_key" gorm:"-"`
}

func (c *VendorCredential) AfterFind(tx *gorm.DB) error {
	c.HasPassword = c.PasswordCipher != ""
	c.HasAPIKey = c.APIKeyCipher != ""
	return nil
}
