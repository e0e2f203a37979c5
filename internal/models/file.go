package models

import "github.com/google/uuid"

type File struct {
	BaseModel
	OwnerID      uuid.UUID `json:"ownerID" gorm:"type:uuid;not null;index"`
	OriginalName string    `json:"originalName" gorm:"type:varchar(255);not null"`
	MimeType     string    `json:"mimeType" gorm:"type:varchar(255);not null"`
	Size         int64     `json:"size" gorm:"not null;default:0"`
	StorageURL   string    `json:"storageURL" gorm:"type:text;not null"`
	StorageKey   string    `json:"-" gorm:"type:text;not null"`
	Format       string    `json:"format,omitempty" gorm:"type:varchar(20)"`

	Owner User `json:"-" gorm:"foreignKey:OwnerID;references:ID"`
}
