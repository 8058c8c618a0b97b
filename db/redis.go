// db/redis.go
package db

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	logger "github.com/aegis-authz/aegis/logging"
	pdp_model "github.com/aegis-authz/aegis/pdp/model"
)

var (
	RedisClient   *redis.Client
	encryptionKey []byte
)

func InitRedis() error {
	RedisClient = redis.NewClient(&redis.Options{
		Addr:         viper.GetString("redis.addr"),
		Password:     viper.GetString("redis.password"),
		DB:           viper.GetInt("redis.db"),
		DialTimeout:  viper.GetDuration("redis.dialTimeout"),
		ReadTimeout:  viper.GetDuration("redis.readTimeout"),
		WriteTimeout: viper.GetDuration("redis.writeTimeout"),
		PoolSize:     viper.GetInt("redis.poolSize"),
		PoolTimeout:  viper.GetDuration("redis.poolTimeout"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := RedisClient.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	encryptionKey = []byte(viper.GetString("redis.encryptionKey"))
	if len(encryptionKey) != 32 {
		return fmt.Errorf("invalid encryption key length: must be 32 bytes")
	}

	logger.Info("Successfully connected to Redis")
	return nil
}

func CloseRedis() {
	if RedisClient != nil {
		if err := RedisClient.Close(); err != nil {
			logger.Error("Error closing Redis connection", zap.Error(err))
		}
	}
}

func encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decrypt(ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// CacheDecision stores an evaluated decision under the given key. Decisions
// embed principal and resource identifiers, so values are encrypted at rest.
func CacheDecision(ctx context.Context, key string, decision *pdp_model.Decision) error {
	decisionJSON, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("failed to marshal decision: %w", err)
	}

	encryptedDecision, err := encrypt(decisionJSON)
	if err != nil {
		return fmt.Errorf("failed to encrypt decision: %w", err)
	}

	defaultTTL := viper.GetDuration("redis.defaultCacheTTL")
	err = RedisClient.Set(ctx, key, base64.StdEncoding.EncodeToString(encryptedDecision), defaultTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to cache decision: %w", err)
	}

	logger.Debug("Decision cached successfully", zap.String("key", key))
	return nil
}

// GetCachedDecision returns the cached decision for key, or nil on a miss.
func GetCachedDecision(ctx context.Context, key string) (*pdp_model.Decision, error) {
	encryptedDecisionStr, err := RedisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get decision from cache: %w", err)
	}

	encryptedDecision, err := base64.StdEncoding.DecodeString(encryptedDecisionStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode decision: %w", err)
	}

	decisionJSON, err := decrypt(encryptedDecision)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt decision: %w", err)
	}

	var decision pdp_model.Decision
	err = json.Unmarshal(decisionJSON, &decision)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal decision: %w", err)
	}

	logger.Debug("Decision retrieved from cache", zap.String("key", key))
	return &decision, nil
}

// RedisDecisionCache adapts the redis helpers to the evaluator's cache
// interface.
type RedisDecisionCache struct{}

func NewRedisDecisionCache() *RedisDecisionCache {
	return &RedisDecisionCache{}
}

func (c *RedisDecisionCache) Get(ctx context.Context, key string) (*pdp_model.Decision, error) {
	return GetCachedDecision(ctx, key)
}

func (c *RedisDecisionCache) Set(ctx context.Context, key string, decision *pdp_model.Decision) error {
	return CacheDecision(ctx, key, decision)
}

// RateLimit counts a hit for key and reports whether it stays within limit
// for the current window.
func RateLimit(ctx context.Context, key string, limit int, per time.Duration) (bool, error) {
	bucket := fmt.Sprintf("ratelimit:%s", key)
	count, err := RedisClient.Incr(ctx, bucket).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	if count == 1 {
		if err := RedisClient.Expire(ctx, bucket, per).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}
	return count <= int64(limit), nil
}
