package docstore

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	FindProfile(ctx context.Context, db *gorm.DB, ownerID string) (*ProfileDocument, error)
	UpsertProfile(ctx context.Context, db *gorm.DB, profile *ProfileDocument) error
	FindOrders(ctx context.Context, db *gorm.DB, ids []string) ([]OrderDocument, error)
	UpsertOrder(ctx context.Context, db *gorm.DB, order *OrderDocument) error
	DeleteOrder(ctx context.Context, db *gorm.DB, id string) (bool, error)
}

type repo struct{}

func NewRepository() Repository {
	return &repo{}
}

func (r *repo) FindProfile(ctx context.Context, db *gorm.DB, ownerID string) (*ProfileDocument, error) {
	var profile ProfileDocument
	err := db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *repo) UpsertProfile(ctx context.Context, db *gorm.DB, profile *ProfileDocument) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"order_ids", "updated_at"}),
		}).
		Create(profile).Error
}

func (r *repo) FindOrders(ctx context.Context, db *gorm.DB, ids []string) ([]OrderDocument, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var orders []OrderDocument
	err := db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id asc").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) UpsertOrder(ctx context.Context, db *gorm.DB, order *OrderDocument) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"owner_id", "fields", "updated_at"}),
		}).
		Create(order).Error
}

func (r *repo) DeleteOrder(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	res := db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&OrderDocument{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
