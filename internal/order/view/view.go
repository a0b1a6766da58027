// Package view applies the user's search text and status filter to the
// aggregate.
package view

import (
	"slices"
	"strconv"
	"strings"

	"github.com/smallbiznis/orderfeed/internal/order/domain"
)

type Query struct {
	Search string
	Status string
}

// Normalized returns the query with the search trimmed and folded and the
// status folded, "all" mapped to empty.
func (q Query) Normalized() Query {
	status := strings.ToLower(strings.TrimSpace(q.Status))
	if status == domain.StatusAll {
		status = ""
	}
	return Query{
		Search: strings.ToLower(strings.TrimSpace(q.Search)),
		Status: status,
	}
}

// Apply returns the records matching q, newest first. The input is not
// modified. Ties keep their input order.
func Apply(orders []domain.OrderRecord, q Query) []domain.OrderRecord {
	q = q.Normalized()
	out := make([]domain.OrderRecord, 0, len(orders))
	for _, rec := range orders {
		if rec.IsTopUp {
			continue
		}
		if q.Status != "" && strings.ToLower(string(rec.Status)) != q.Status {
			continue
		}
		if q.Search != "" && !matches(rec, q.Search) {
			continue
		}
		out = append(out, rec)
	}
	slices.SortStableFunc(out, func(a, b domain.OrderRecord) int {
		return b.OccurredAt.Compare(a.OccurredAt)
	})
	return out
}

func matches(rec domain.OrderRecord, needle string) bool {
	for _, field := range searchable(rec) {
		if field != "" && strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func searchable(rec domain.OrderRecord) [10]string {
	return [10]string{
		string(rec.Status),
		rec.ItemLabel,
		rec.OccurredAtRaw.Date,
		rec.OrderReference,
		rec.GameUserID,
		rec.GameServerID,
		strconv.FormatFloat(rec.Cost, 'f', -1, 64),
		rec.GameDisplayName,
		rec.ID,
		rec.OwnerID,
	}
}
