package firestore

import (
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/Hero-Alpha/KrishiSetu/internal/domain"
	"github.com/Hero-Alpha/KrishiSetu/internal/platform/pagination"
)

const (
	fieldCreatedAt = "createdAt"
	// maxDisjunction bounds array-contains-any and in filters.
	maxDisjunction = 30
)

// newestFirst orders by creation time then document id, both descending, and applies the
// cursor and a look-ahead limit of one extra document.
func newestFirst(query firestore.Query, pager domain.Pagination) (firestore.Query, error) {
	query = query.OrderBy(fieldCreatedAt, firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
	cursor, err := pagination.DecodeToken(pager.PageToken)
	if err != nil {
		return query, err
	}
	if !cursor.IsZero() {
		query = query.StartAfter(cursor.CreatedAt, cursor.ID)
	}
	if pager.PageSize > 0 {
		query = query.Limit(pager.PageSize + 1)
	}
	return query, nil
}

// trimPage cuts the look-ahead document and encodes the next page token.
func trimPage[T any](items []T, pageSize int, key func(T) (time.Time, string)) (domain.CursorPage[T], error) {
	if pageSize <= 0 || len(items) <= pageSize {
		return domain.CursorPage[T]{Items: items}, nil
	}
	items = items[:pageSize]
	createdAt, id := key(items[len(items)-1])
	token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: createdAt, ID: id})
	if err != nil {
		return domain.CursorPage[T]{}, err
	}
	return domain.CursorPage[T]{Items: items, NextPageToken: token}, nil
}

func chunk(values []string, size int) [][]string {
	var out [][]string
	for len(values) > size {
		out = append(out, values[:size])
		values = values[size:]
	}
	if len(values) > 0 {
		out = append(out, values)
	}
	return out
}
