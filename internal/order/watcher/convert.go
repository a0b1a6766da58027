package watcher

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/smallbiznis/orderfeed/internal/order/domain"
	"github.com/smallbiznis/orderfeed/internal/order/timestamp"
)

// Document field names as written by the storefront checkout.
const (
	fieldOwner           = "userId"
	fieldItem            = "item"
	fieldStatus          = "status"
	fieldCost            = "cost"
	fieldAmount          = "amount"
	fieldPaymentMethod   = "paymentMethod"
	fieldGameUserID      = "gameUserId"
	fieldGameServerID    = "gameServerId"
	fieldGameDisplayName = "gameDisplayName"
	fieldOrderReference  = "orderReference"
	fieldTransactionID   = "transactionId"
	fieldDate            = "date"
	fieldTime            = "time"
	fieldIsTopUp         = "isTopUp"
	fieldType            = "type"
)

// ToRecord converts a raw order document. Missing fields are defaulted,
// never rejected.
func ToRecord(doc domain.OrderDocument, norm *timestamp.Normalizer) domain.OrderRecord {
	f := doc.Fields
	rec := domain.OrderRecord{
		ID:              doc.ID,
		OwnerID:         text(f, fieldOwner),
		ItemLabel:       text(f, fieldItem),
		Status:          domain.ParseStatus(text(f, fieldStatus)),
		PaymentMethod:   text(f, fieldPaymentMethod),
		GameUserID:      text(f, fieldGameUserID),
		GameServerID:    text(f, fieldGameServerID),
		GameDisplayName: text(f, fieldGameDisplayName),
		OrderReference:  text(f, fieldOrderReference),
		OccurredAtRaw: domain.OccurredAtRaw{
			Date: text(f, fieldDate),
			Time: text(f, fieldTime),
		},
		IsTopUp: isTopUp(f),
	}
	if rec.ItemLabel == "" {
		rec.ItemLabel = domain.UnknownItemLabel
	}
	if receipt := text(f, fieldTransactionID); receipt != "" {
		rec.TransactionReceiptID = &receipt
	}

	cost, ok := number(f[fieldCost])
	if !ok {
		cost, _ = number(f[fieldAmount])
	}
	rec.Cost = cost

	if norm == nil {
		rec.OccurredAt = timestamp.Normalize(rec.OccurredAtRaw.Date, rec.OccurredAtRaw.Time, timestamp.Epoch)
	} else {
		rec.OccurredAt = norm.Normalize(rec.OccurredAtRaw.Date, rec.OccurredAtRaw.Time, timestamp.Epoch)
	}
	return rec
}

// ToRecords converts a full batch delivery in document order.
func ToRecords(docs []domain.OrderDocument, norm *timestamp.Normalizer) []domain.OrderRecord {
	out := make([]domain.OrderRecord, 0, len(docs))
	for _, doc := range docs {
		if strings.TrimSpace(doc.ID) == "" {
			continue
		}
		out = append(out, ToRecord(doc, norm))
	}
	return out
}

func text(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// number reads a non-negative amount. Negative or non-finite values
// count as 0.
func number(raw any) (float64, bool) {
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int64:
		v = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		v = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(n), ",", ""), 64)
		if err != nil {
			return 0, false
		}
		v = parsed
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, true
	}
	return v, true
}

func isTopUp(fields map[string]any) bool {
	switch v := fields[fieldIsTopUp].(type) {
	case bool:
		if v {
			return true
		}
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil && parsed {
			return true
		}
	}
	switch strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(text(fields, fieldType))) {
	case "topup", "walletfunding":
		return true
	}
	return false
}
