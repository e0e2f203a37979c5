package models

// StorageLimitBytes is the fixed per-user quota. It is not configurable per
// user; Reconcile force-resets any drifted value back to this constant.
const StorageLimitBytes int64 = 5 * 1024 * 1024

type User struct {
	BaseModel
	Username     string `json:"username" gorm:"type:varchar(20);uniqueIndex;not null"`
	Email        string `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string `json:"-" gorm:"type:text;not null"`
	AvatarURL    string `json:"avatarURL,omitempty" gorm:"type:text"`
	AvatarKey    string `json:"-" gorm:"type:text"`
	StorageUsed  int64  `json:"storageUsed" gorm:"not null;default:0"`
	StorageLimit int64  `json:"storageLimit" gorm:"not null;default:5242880"`

	Files    []File    `json:"-" gorm:"foreignKey:OwnerID"`
	Sessions []Session `json:"-" gorm:"foreignKey:UserID"`
}
