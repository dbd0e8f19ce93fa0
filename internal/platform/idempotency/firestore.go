package idempotency

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/Hero-Alpha/KrishiSetu/internal/platform/firestore"
)

const defaultCollection = "idempotency_keys"

type keyDocument struct {
	Key             string              `firestore:"key"`
	Fingerprint     string              `firestore:"fingerprint"`
	Status          string              `firestore:"status"`
	ResponseStatus  int                 `firestore:"responseStatus"`
	ResponseHeaders map[string][]string `firestore:"responseHeaders"`
	ResponseBody    []byte              `firestore:"responseBody"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	ExpiresAt       time.Time           `firestore:"expiresAt"`
}

func newKeyDocument(r Record) keyDocument {
	return keyDocument{
		Key:             r.Key,
		Fingerprint:     r.Fingerprint,
		Status:          string(r.Status),
		ResponseStatus:  r.ResponseStatus,
		ResponseHeaders: r.ResponseHeaders,
		ResponseBody:    r.ResponseBody,
		CreatedAt:       r.CreatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}

func (d keyDocument) record() Record {
	return Record{
		Key:             d.Key,
		Fingerprint:     d.Fingerprint,
		Status:          Status(d.Status),
		ResponseStatus:  d.ResponseStatus,
		ResponseHeaders: d.ResponseHeaders,
		ResponseBody:    d.ResponseBody,
		CreatedAt:       d.CreatedAt,
		ExpiresAt:       d.ExpiresAt,
	}
}

// FirestoreStore keeps records in the idempotency_keys collection. Reserve and Complete run as
// transactions so concurrent retries observe a single owner.
type FirestoreStore struct {
	provider *pfirestore.Provider
	keys     *pfirestore.BaseRepository[keyDocument]
}

var _ Store = (*FirestoreStore)(nil)

// NewFirestoreStore constructs the store on the shared provider.
func NewFirestoreStore(provider *pfirestore.Provider) (*FirestoreStore, error) {
	if provider == nil {
		return nil, errors.New("idempotency: firestore provider is required")
	}
	return &FirestoreStore{
		provider: provider,
		keys:     pfirestore.NewBaseRepository[keyDocument](provider, defaultCollection, nil),
	}, nil
}

// Reserve implements Store.
func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	id := documentID(key)

	var result Reservation
	err := s.provider.RunInTx(ctx, func(txCtx context.Context) error {
		doc, err := s.keys.Get(txCtx, id)
		switch {
		case pfirestore.IsNotFound(err):
		case err != nil:
			return err
		default:
			existing := doc.Data.record()
			if !existing.expired(now) {
				if existing.Fingerprint != fingerprint {
					return ErrFingerprintMismatch
				}
				result = Reservation{State: ReservationStatePending, Record: existing}
				if existing.Status == StatusCompleted {
					result.State = ReservationStateCompleted
				}
				return nil
			}
		}
		record := pendingRecord(key, fingerprint, now, ttl)
		result = Reservation{State: ReservationStateNew, Record: record}
		return s.keys.Set(txCtx, id, newKeyDocument(record))
	})
	return result, err
}

// Complete implements Store.
func (s *FirestoreStore) Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	id := documentID(key)

	return s.provider.RunInTx(ctx, func(txCtx context.Context) error {
		record := pendingRecord(key, fingerprint, now, ttl)
		doc, err := s.keys.Get(txCtx, id)
		switch {
		case pfirestore.IsNotFound(err):
		case err != nil:
			return err
		case doc.Data.Fingerprint != fingerprint:
			return ErrFingerprintMismatch
		default:
			record.CreatedAt = doc.Data.CreatedAt
		}
		record.Status = StatusCompleted
		record.ResponseStatus = resp.Status
		record.ResponseHeaders = storableHeaders(resp.Headers)
		record.ResponseBody = append([]byte(nil), resp.Body...)
		return s.keys.Set(txCtx, id, newKeyDocument(record))
	})
}

// Release implements Store.
func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	return s.keys.Delete(ctx, documentID(key))
}

// Purge implements Store.
func (s *FirestoreStore) Purge(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	docs, err := s.keys.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("expiresAt", "<=", now.UTC()).Limit(limit)
	})
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	client, err := s.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	writer := client.BulkWriter(ctx)
	coll := client.Collection(defaultCollection)
	for _, doc := range docs {
		if _, err := writer.Delete(coll.Doc(doc.ID)); err != nil {
			writer.End()
			return 0, pfirestore.WrapError("idempotency.purge", err)
		}
	}
	writer.End()
	return len(docs), nil
}
