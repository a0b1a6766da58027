package docstore

import (
	"time"

	"gorm.io/datatypes"
)

type ProfileDocument struct {
	OwnerID   string                      `gorm:"primaryKey;size:128" json:"owner_id"`
	OrderIDs  datatypes.JSONSlice[string] `gorm:"type:json;not null" json:"order_ids"`
	CreatedAt time.Time                   `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time                   `gorm:"not null" json:"updated_at"`
}

func (ProfileDocument) TableName() string { return "profiles" }

type OrderDocument struct {
	ID        string            `gorm:"primaryKey;size:128" json:"id"`
	OwnerID   string            `gorm:"size:128;index" json:"owner_id"`
	Fields    datatypes.JSONMap `gorm:"type:json;not null" json:"fields"`
	CreatedAt time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null" json:"updated_at"`
}

func (OrderDocument) TableName() string { return "order_documents" }

// Models lists the tables owned by the document store, for AutoMigrate.
func Models() []any {
	return []any{&ProfileDocument{}, &OrderDocument{}}
}
