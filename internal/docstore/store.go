// Package docstore is the document store the order engine reads from: owner
// profiles carrying an order id list, and free-form order documents. Reads
// come in two shapes, point reads and live watches; a watch re-delivers the
// complete result every time one of its documents changes.
package docstore

import (
	"context"
	"strings"
	"time"

	"github.com/smallbiznis/orderfeed/internal/clock"
	"github.com/smallbiznis/orderfeed/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  Repository
	Hub   *Hub
	Bus   *RedisBus `optional:"true"`
}

type Store struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  Repository
	hub   *Hub
	bus   Notifier
}

var _ domain.DocumentStore = (*Store)(nil)

func New(p Params) *Store {
	s := &Store{
		db:    p.DB,
		log:   p.Log.Named("docstore"),
		clock: p.Clock,
		repo:  p.Repo,
		hub:   p.Hub,
	}
	if s.clock == nil {
		s.clock = clock.System()
	}
	if s.repo == nil {
		s.repo = NewRepository()
	}
	if s.hub == nil {
		s.hub = NewHub()
	}
	if p.Bus != nil {
		s.bus = p.Bus
	}
	return s
}

func (s *Store) GetProfile(ctx context.Context, ownerID string) (domain.Profile, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return domain.Profile{}, domain.ErrInvalidOwner
	}
	row, err := s.repo.FindProfile(ctx, s.db, ownerID)
	if err != nil {
		return domain.Profile{}, err
	}
	if row == nil {
		return domain.Profile{}, domain.ErrProfileNotFound
	}
	return toProfile(row), nil
}

// GetOrders returns the documents for ids that exist, in id order.
func (s *Store) GetOrders(ctx context.Context, ids []string) ([]domain.OrderDocument, error) {
	rows, err := s.repo.FindOrders(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	out := make([]domain.OrderDocument, 0, len(rows))
	for i := range rows {
		out = append(out, toOrderDocument(&rows[i]))
	}
	return out, nil
}

func (s *Store) WatchProfile(ctx context.Context, ownerID string) (domain.Subscription[domain.ProfileSnapshot], error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, domain.ErrInvalidOwner
	}

	listener := s.hub.Listen(ProfileTopic(ownerID))
	return startWatch(ctx, listener, func(ctx context.Context) domain.ProfileSnapshot {
		row, err := s.repo.FindProfile(ctx, s.db, ownerID)
		if err != nil {
			return domain.ProfileSnapshot{Err: err}
		}
		if row == nil {
			return domain.ProfileSnapshot{Profile: domain.Profile{OwnerID: ownerID}}
		}
		return domain.ProfileSnapshot{Profile: toProfile(row), Exists: true}
	}), nil
}

func (s *Store) WatchOrders(ctx context.Context, ids []string) (domain.Subscription[domain.OrdersSnapshot], error) {
	if len(ids) == 0 {
		return nil, domain.ErrEmptyIDs
	}
	if len(ids) > domain.MaxIn {
		return nil, domain.ErrTooManyIDs
	}

	query := make([]string, 0, len(ids))
	topics := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, domain.ErrInvalidOrderID
		}
		query = append(query, id)
		topics = append(topics, OrderTopic(id))
	}

	listener := s.hub.Listen(topics...)
	return startWatch(ctx, listener, func(ctx context.Context) domain.OrdersSnapshot {
		docs, err := s.GetOrders(ctx, query)
		if err != nil {
			return domain.OrdersSnapshot{Err: err}
		}
		return domain.OrdersSnapshot{Documents: docs}
	}), nil
}

// SaveProfile replaces the owner's order id list.
func (s *Store) SaveProfile(ctx context.Context, profile domain.Profile) error {
	ownerID := strings.TrimSpace(profile.OwnerID)
	if ownerID == "" {
		return domain.ErrInvalidOwner
	}
	now := s.clock.Now()
	row := &ProfileDocument{
		OwnerID:   ownerID,
		OrderIDs:  datatypes.JSONSlice[string](cleanIDs(profile.OrderIDs)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.UpsertProfile(ctx, s.db, row); err != nil {
		return err
	}
	s.notify(ctx, ProfileTopic(ownerID))
	return nil
}

// AttachOrder appends id to the owner's list unless already present,
// creating the profile on first use.
func (s *Store) AttachOrder(ctx context.Context, ownerID, id string) error {
	ownerID = strings.TrimSpace(ownerID)
	id = strings.TrimSpace(id)
	if ownerID == "" {
		return domain.ErrInvalidOwner
	}
	if id == "" {
		return domain.ErrInvalidOrderID
	}

	changed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.repo.FindProfile(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if row == nil {
			row = &ProfileDocument{OwnerID: ownerID, CreatedAt: now}
		}
		for _, existing := range row.OrderIDs {
			if existing == id {
				return nil
			}
		}
		row.OrderIDs = append(row.OrderIDs, id)
		row.UpdatedAt = now
		changed = true
		return s.repo.UpsertProfile(ctx, tx, row)
	})
	if err != nil {
		return err
	}
	if changed {
		s.notify(ctx, ProfileTopic(ownerID))
	}
	return nil
}

// PutOrder creates or replaces an order document.
func (s *Store) PutOrder(ctx context.Context, ownerID string, doc domain.OrderDocument) error {
	id := strings.TrimSpace(doc.ID)
	if id == "" {
		return domain.ErrInvalidOrderID
	}
	fields := datatypes.JSONMap{}
	for k, v := range doc.Fields {
		fields[k] = v
	}
	now := s.clock.Now()
	row := &OrderDocument{
		ID:        id,
		OwnerID:   strings.TrimSpace(ownerID),
		Fields:    fields,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.UpsertOrder(ctx, s.db, row); err != nil {
		return err
	}
	s.notify(ctx, OrderTopic(id))
	return nil
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ErrInvalidOrderID
	}
	deleted, err := s.repo.DeleteOrder(ctx, s.db, id)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrOrderNotFound
	}
	s.notify(ctx, OrderTopic(id))
	return nil
}

func (s *Store) notify(ctx context.Context, topic string) {
	s.hub.Notify(topic)
	if s.bus == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.bus.Publish(pubCtx, topic); err != nil {
		s.log.Warn("change broadcast failed", zap.String("topic", topic), zap.Error(err))
	}
}

func toProfile(row *ProfileDocument) domain.Profile {
	return domain.Profile{
		OwnerID:  row.OwnerID,
		OrderIDs: append([]string(nil), row.OrderIDs...),
	}
}

func toOrderDocument(row *OrderDocument) domain.OrderDocument {
	fields := make(map[string]any, len(row.Fields)+1)
	for k, v := range row.Fields {
		fields[k] = v
	}
	if _, ok := fields["userId"]; !ok && row.OwnerID != "" {
		fields["userId"] = row.OwnerID
	}
	return domain.OrderDocument{ID: row.ID, Fields: fields}
}

func cleanIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
