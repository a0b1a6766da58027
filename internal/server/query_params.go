package server

import (
	"strings"

	"github.com/smallbiznis/orderfeed/internal/order/domain"
)

var filterStatuses = map[string]struct{}{
	domain.StatusAll:               {},
	string(domain.StatusPending):   {},
	string(domain.StatusCompleted): {},
	string(domain.StatusFailed):    {},
	string(domain.StatusUnknown):   {},
}

// parseStatusFilter accepts the filter kinds the view understands. Empty
// means "all".
func parseStatusFilter(value string) (string, bool) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return domain.StatusAll, true
	}
	_, ok := filterStatuses[trimmed]
	return trimmed, ok
}
