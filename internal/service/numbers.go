package service

import (
	"context"
	"fmt"
	"time"

	"loan-workflow/internal/common/logger"
	"loan-workflow/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	numberKeyPrefix   = "loan:number:"
	maxNumberAttempts = 5
)

// NumberGenerator hands out application numbers and reserves each one in redis
// so two instances cannot issue the same number. Redis being unavailable does
// not block intake: the generated number is used unreserved.
type NumberGenerator struct {
	redis    *redis.Client
	ttl      time.Duration
	generate func() string
	logger   logger.Logger
}

func NewNumberGenerator(client *redis.Client, ttl time.Duration, log logger.Logger) *NumberGenerator {
	return &NumberGenerator{
		redis:    client,
		ttl:      ttl,
		generate: func() string { return models.NewApplicationNumber(time.Now()) },
		logger:   log,
	}
}

func (g *NumberGenerator) Next(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		number := g.generate()
		ok, err := g.redis.SetNX(ctx, numberKeyPrefix+number, attempt, g.ttl).Result()
		if err != nil {
			g.logger.WithError(err).Warn("application number not reserved", map[string]interface{}{
				"applicationNumber": number,
			})
			return number, nil
		}
		if ok {
			return number, nil
		}
		g.logger.Debug("application number collision", map[string]interface{}{
			"applicationNumber": number,
			"attempt":           attempt,
		})
	}
	return "", fmt.Errorf("no free application number after %d attempts", maxNumberAttempts)
}
