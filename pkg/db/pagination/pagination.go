package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 250
)

var ErrInvalidPageToken = errors.New("invalid_page_token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size,default=10"`
}

// Normalized clamps PageSize into [1, MaxPageSize].
func (p Pagination) Normalized() Pagination {
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	p.PageToken = strings.TrimSpace(p.PageToken)
	return p
}

type Cursor struct {
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil, ErrInvalidPageToken
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, ErrInvalidPageToken
	}
	return &cursor, nil
}

// Slice pages through an in-memory, already ordered list. The cursor names
// the last item of the previous page; a token whose item is no longer in
// items is rejected with ErrInvalidPageToken.
func Slice[T any](items []T, p Pagination, idOf func(T) string) ([]T, PageInfo, error) {
	p = p.Normalized()

	start := 0
	if p.PageToken != "" {
		cursor, err := DecodeCursor(p.PageToken)
		if err != nil {
			return nil, PageInfo{}, err
		}
		start = -1
		for i, item := range items {
			if idOf(item) == cursor.ID {
				start = i + 1
				break
			}
		}
		if start < 0 {
			return nil, PageInfo{}, ErrInvalidPageToken
		}
	}

	end := start + p.PageSize
	if end > len(items) {
		end = len(items)
	}
	page := items[start:end]

	info := PageInfo{HasMore: end < len(items)}
	if info.HasMore && len(page) > 0 {
		token, err := EncodeCursor(Cursor{ID: idOf(page[len(page)-1])})
		if err != nil {
			return nil, PageInfo{}, err
		}
		info.NextPageToken = token
	}
	return page, info, nil
}
