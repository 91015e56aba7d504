package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/coop-member-import/internal/domain"
)

const previewKeySegment = "import:preview:"

// PreviewPayload is the validated content of an upload awaiting confirmation.
type PreviewPayload struct {
	FileName  string             `json:"fileName"`
	TotalRows int                `json:"totalRows"`
	Batch     domain.ImportBatch `json:"batch"`
	AdminID   string             `json:"adminId"`
	CreatedAt time.Time          `json:"createdAt"`
}

// PreviewStore caches previews between upload and confirm.
type PreviewStore interface {
	Save(ctx context.Context, token string, payload PreviewPayload, ttl time.Duration) error
	Get(ctx context.Context, token string) (*PreviewPayload, error)
	Take(ctx context.Context, token string) (*PreviewPayload, error)
}

type redisPreviewStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisPreviewStore returns a Redis-backed store whose keys live under
// namespace.
func NewRedisPreviewStore(client redis.Cmdable, namespace string) PreviewStore {
	return &redisPreviewStore{client: client, prefix: namespace + previewKeySegment}
}

func (s *redisPreviewStore) key(token string) string {
	return s.prefix + token
}

func (s *redisPreviewStore) Save(ctx context.Context, token string, payload PreviewPayload, ttl time.Duration) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(token), body, ttl).Err()
}

// Get returns the payload without consuming it.
func (s *redisPreviewStore) Get(ctx context.Context, token string) (*PreviewPayload, error) {
	return decodePreview(s.client.Get(ctx, s.key(token)).Bytes())
}

// Take returns the payload and deletes it so a preview can be confirmed once.
func (s *redisPreviewStore) Take(ctx context.Context, token string) (*PreviewPayload, error) {
	return decodePreview(s.client.GetDel(ctx, s.key(token)).Bytes())
}

func decodePreview(body []byte, err error) (*PreviewPayload, error) {
	if errors.Is(err, redis.Nil) {
		return nil, ErrPreviewNotFound
	}
	if err != nil {
		return nil, err
	}

	var payload PreviewPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
