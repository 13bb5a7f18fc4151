package models

import "time"

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusExpired   SubscriptionStatus = "EXPIRED"
	SubscriptionStatusPending   SubscriptionStatus = "PENDING"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
)

type Subscription struct {
	ID            string
	UserID        string
	PackageCode   string
	Status        SubscriptionStatus
	IsActive      bool
	StartDate     time.Time
	EndDate       time.Time
	DocumentsUsed int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PackageFeatures is the static quota definition of a purchasable tier.
type PackageFeatures struct {
	Code                 string   `mapstructure:"code" json:"code"`
	Name                 string   `mapstructure:"name" json:"name"`
	MaxDocuments         int      `mapstructure:"maxdocuments" json:"maxDocuments"`
	MaxFileSizeMB        int64    `mapstructure:"maxfilesizemb" json:"maxFileSizeMb"`
	MaxPages             int      `mapstructure:"maxpages" json:"maxPages"`
	RequiresApproval     bool     `mapstructure:"requiresapproval" json:"requiresApproval"`
	AllowedDocumentTypes []string `mapstructure:"alloweddocumenttypes" json:"allowedDocumentTypes"`
}

func (p PackageFeatures) MaxFileSizeBytes() int64 {
	return p.MaxFileSizeMB * 1024 * 1024
}

func (p PackageFeatures) AllowsType(mime string) bool {
	if len(p.AllowedDocumentTypes) == 0 {
		return true
	}
	for _, t := range p.AllowedDocumentTypes {
		if t == mime {
			return true
		}
	}
	return false
}
