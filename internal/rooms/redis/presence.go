package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-voyage/internal/logger"
	"ms-voyage/internal/models"
)

const currentStayTTL = 5 * time.Minute

// PresenceCache keeps each user's current stay in Redis so the "where am I"
// endpoint doesn't hit the database on every poll. Misses and Redis errors
// both fall through to the database; writers invalidate on every transition.
type PresenceCache struct {
	Client *redis.Client
	Logger *logger.Logger
}

func NewPresenceCache(client *redis.Client, log *logger.Logger) *PresenceCache {
	return &PresenceCache{Client: client, Logger: log}
}

func stayKey(userID string) string {
	return fmt.Sprintf("voyage:current_stay:%s", userID)
}

func (c *PresenceCache) GetCurrentStay(ctx context.Context, userID string) (*models.Stay, bool) {
	if c.Client == nil {
		return nil, false
	}

	raw, err := c.Client.Get(ctx, stayKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.Logger.Error("REDIS", fmt.Sprintf("presence read failed for %s: %v", userID, err))
		return nil, false
	}

	var stay models.Stay
	if err := json.Unmarshal(raw, &stay); err != nil {
		c.Logger.Error("REDIS", fmt.Sprintf("presence entry for %s is corrupt, dropping: %v", userID, err))
		c.Client.Del(ctx, stayKey(userID))
		return nil, false
	}
	return &stay, true
}

func (c *PresenceCache) SetCurrentStay(ctx context.Context, stay *models.Stay) {
	if c.Client == nil || stay == nil {
		return
	}

	raw, err := json.Marshal(stay)
	if err != nil {
		return
	}

	// Never outlive the stay itself.
	ttl := currentStayTTL
	if until := time.Until(stay.ScheduledCheckOutAt); until > 0 && until < ttl {
		ttl = until
	}
	if err := c.Client.Set(ctx, stayKey(stay.UserID), raw, ttl).Err(); err != nil {
		c.Logger.Error("REDIS", fmt.Sprintf("presence write failed for %s: %v", stay.UserID, err))
	}
}

func (c *PresenceCache) Invalidate(ctx context.Context, userID string) {
	if c.Client == nil {
		return
	}
	if err := c.Client.Del(ctx, stayKey(userID)).Err(); err != nil {
		c.Logger.Error("REDIS", fmt.Sprintf("presence invalidate failed for %s: %v", userID, err))
	}
}
