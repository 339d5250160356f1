package voiceRepository

import (
	"context"
	"errors"
	"time"

	"VoiceAssistant/internal/entity"
	contextPkg "VoiceAssistant/pkg/context"
	"VoiceAssistant/pkg/redis"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

const (
	snapshotKeyPrefix = "voice:session:"
	// DefaultSnapshotTTL bounds how long an idle user's session survives.
	DefaultSnapshotTTL = 24 * time.Hour
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SnapshotStore keeps session snapshots in Redis, one key per user.
type SnapshotStore struct {
	redis redis.IRedis
	ttl   time.Duration
	log   *logrus.Logger
}

func NewSnapshotStore(client redis.IRedis, ttl time.Duration, log *logrus.Logger) *SnapshotStore {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &SnapshotStore{redis: client, ttl: ttl, log: log}
}

func snapshotKey(userID string) string {
	return snapshotKeyPrefix + userID
}

// Load returns nil without error when the user has no snapshot.
func (s *SnapshotStore) Load(ctx context.Context, userID string) (*entity.SessionSnapshot, error) {
	raw, err := s.redis.Get(ctx, snapshotKey(userID))
	if errors.Is(err, redis.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snapshot entity.SessionSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"user_id":    userID,
			"error":      err.Error(),
		}).Warn("Discarding unreadable session snapshot")
		return nil, nil
	}

	return &snapshot, nil
}

func (s *SnapshotStore) Save(ctx context.Context, userID string, snapshot entity.SessionSnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, snapshotKey(userID), raw, s.ttl)
}

func (s *SnapshotStore) Delete(ctx context.Context, userID string) error {
	return s.redis.Delete(ctx, snapshotKey(userID))
}
