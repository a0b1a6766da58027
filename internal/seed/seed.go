package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/orderfeed/internal/clock"
	"github.com/smallbiznis/orderfeed/internal/docstore"
	"github.com/smallbiznis/orderfeed/pkg/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const DefaultOwnerID = "demo"

var (
	demoItems    = []string{"86 Diamonds", "172 Diamonds", "Weekly Diamond Pass", "Twilight Pass", "Starlight Member"}
	demoStatuses = []string{"completed", "completed", "pending", "failed", "success"}
	demoPayments = []string{"QRIS", "DANA", "OVO", "GoPay", "Bank Transfer"}
)

// EnsureDemoOrders gives ownerID a profile with n generated orders. An
// owner whose profile already lists orders is left alone.
func EnsureDemoOrders(ctx context.Context, conn *gorm.DB, node *snowflake.Node, clk clock.Clock, ownerID string, n int) (int, error) {
	if conn == nil {
		return 0, errors.New("seed database handle is required")
	}
	if node == nil {
		return 0, errors.New("seed id generator is required")
	}
	if n <= 0 {
		return 0, nil
	}
	if clk == nil {
		clk = clock.System()
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		ownerID = DefaultOwnerID
	}

	created := 0
	err := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing docstore.ProfileDocument
		err := tx.Where("owner_id = ?", ownerID).First(&existing).Error
		if err == nil && len(existing.OrderIDs) > 0 {
			return nil
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := clk.Now()
		ids := make([]string, 0, n)
		for i := 0; i < n; i++ {
			id := node.Generate().String()
			row := &docstore.OrderDocument{
				ID:        id,
				OwnerID:   ownerID,
				Fields:    demoFields(ownerID, id, i, now),
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.Create(row).Error; err != nil {
				if db.IsDuplicateKeyErr(err) {
					continue
				}
				return err
			}
			ids = append(ids, id)
			created++
		}

		return tx.Save(&docstore.ProfileDocument{
			OwnerID:   ownerID,
			OrderIDs:  datatypes.JSONSlice[string](ids),
			CreatedAt: now,
			UpdatedAt: now,
		}).Error
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

// demoFields mimics the checkout's document shape, including the legacy
// dd-mm-yyyy date text. Every seventh entry is a wallet top-up.
func demoFields(ownerID, id string, i int, now time.Time) datatypes.JSONMap {
	item := demoItems[i%len(demoItems)]
	at := now.Add(-time.Duration(i) * 7 * time.Hour)
	fields := datatypes.JSONMap{
		"userId":          ownerID,
		"item":            item,
		"status":          demoStatuses[i%len(demoStatuses)],
		"cost":            float64(15000 + (i%len(demoItems))*12500),
		"paymentMethod":   demoPayments[(i/2)%len(demoPayments)],
		"gameUserId":      fmt.Sprintf("%09d", 100000000+i*7919),
		"gameServerId":    fmt.Sprintf("%04d", 2000+i%37),
		"gameDisplayName": fmt.Sprintf("Player%03d", i),
		"orderReference":  slug.Make(item) + "-" + id,
		"transactionId":   "TX" + id,
		"date":            at.Format("02-01-2006"),
		"time":            at.Format("15:04"),
	}
	if i%7 == 6 {
		fields["isTopUp"] = true
		fields["item"] = "Wallet Top Up"
	}
	return fields
}
