// internal/models/admin.go
package models

// AuditLog records operator changes to vendor configuration and catalog state.
type AuditLog struct {
	BaseModel
	Actor        string `json:"actor" gorm:"size:100;index"`
	Action       string `json:"action" gorm:"size:100;not null;index"`
	ResourceType string `json:"resource_type" gorm:"size:50;not null;index"`
	ResourceID   string `json:"resource_id" gorm:"size:100;index"`
	OldValues    JSONB  `json:"old_values" gorm:"type:jsonb"`
	NewValues    JSONB  `json:"new_values" gorm:"type:jsonb"`
	IPAddress    string `json:"ip_address" gorm:"size:45"`
	UserAgent    string `json:"user_agent" gorm:"type:text"`
	StatusCode   int    `json:"status_code"`
}
