package domain

import (
	"strings"
	"time"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusCompleted OrderStatus = "completed"
	StatusFailed    OrderStatus = "failed"
	StatusUnknown   OrderStatus = "unknown"
)

// StatusAll is the filter sentinel that matches every status.
const StatusAll = "all"

const UnknownItemLabel = "Unknown item"

// ParseStatus maps free-text status values written by the storefront and the
// payment callbacks onto the closed status set.
func ParseStatus(raw string) OrderStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "processing", "waiting", "unpaid":
		return StatusPending
	case "completed", "complete", "success", "succeeded", "paid", "settled":
		return StatusCompleted
	case "failed", "failure", "cancelled", "canceled", "expired", "rejected":
		return StatusFailed
	default:
		return StatusUnknown
	}
}

// OccurredAtRaw keeps the date and time text exactly as stored, for display.
type OccurredAtRaw struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type OrderRecord struct {
	ID                   string        `json:"id"`
	OwnerID              string        `json:"owner_id"`
	ItemLabel            string        `json:"item_label"`
	Status               OrderStatus   `json:"status"`
	Cost                 float64       `json:"cost"`
	PaymentMethod        string        `json:"payment_method,omitempty"`
	GameUserID           string        `json:"game_user_id,omitempty"`
	GameServerID         string        `json:"game_server_id,omitempty"`
	GameDisplayName      string        `json:"game_display_name,omitempty"`
	OrderReference       string        `json:"order_reference,omitempty"`
	TransactionReceiptID *string       `json:"transaction_receipt_id,omitempty"`
	OccurredAtRaw        OccurredAtRaw `json:"occurred_at_raw"`
	OccurredAt           time.Time     `json:"occurred_at"`
	IsTopUp              bool          `json:"is_top_up"`
}

// Profile is the subset of the owner's profile document the engine reads.
type Profile struct {
	OwnerID  string   `json:"owner_id"`
	OrderIDs []string `json:"order_ids"`
}

// OrderDocument is an order as held by the document store: a key plus the
// free-form fields written by the storefront.
type OrderDocument struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}
