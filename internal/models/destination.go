package models

// Destination is one bookable property known to the platform. The directory
// is loaded from config and treated as read-only at runtime; a refresh key
// whose destination is no longer listed is skipped during sync.
type Destination struct {
	ID         int64  `yaml:"id" json:"id"`
	CompanyID  int64  `yaml:"company_id" json:"company_id"`
	ExternalID string `yaml:"external_id" json:"external_id"`
	Name       string `yaml:"name" json:"name"`
	Timezone   string `yaml:"timezone,omitempty" json:"timezone,omitempty"`
	IsActive   bool   `yaml:"is_active" json:"is_active"`
}
