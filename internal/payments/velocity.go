package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/accessmod/lead-marketplace/pkg/logging"
)

var velocityTracer = otel.Tracer("leadmarket.internal.payments.velocity")

// VelocityChecker limits purchase attempts per contractor for fraud prevention.
type VelocityChecker struct {
	redis  redis.Cmdable
	logger *logging.Logger
	config VelocityConfig
}

// VelocityConfig contains velocity check configuration.
type VelocityConfig struct {
	MaxPurchasesPerContractor int
	PurchaseWindow            time.Duration
	Enabled                   bool
}

// DefaultVelocityConfig returns default velocity limits.
func DefaultVelocityConfig() VelocityConfig {
	return VelocityConfig{
		MaxPurchasesPerContractor: 10,
		PurchaseWindow:            time.Hour,
		Enabled:                   true,
	}
}

// VelocityResult contains the result of a velocity check.
type VelocityResult struct {
	Allowed      bool
	CurrentCount int
	MaxAllowed   int
	WindowExpiry time.Time
	Message      string
}

func NewVelocityChecker(redisClient redis.Cmdable, config VelocityConfig, logger *logging.Logger) *VelocityChecker {
	if logger == nil {
		logger = logging.Default()
	}
	if config.PurchaseWindow <= 0 {
		config.PurchaseWindow = time.Hour
	}
	return &VelocityChecker{
		redis:  redisClient,
		logger: logger,
		config: config,
	}
}

func purchaseKey(contractorID string) string {
	return fmt.Sprintf("velocity:purchase:%s", contractorID)
}

// CheckPurchaseVelocity counts an attempt and reports whether it is within limits.
// Redis failures fail open.
func (v *VelocityChecker) CheckPurchaseVelocity(ctx context.Context, contractorID string) (*VelocityResult, error) {
	ctx, span := velocityTracer.Start(ctx, "velocity.check_purchase")
	defer span.End()
	span.SetAttributes(attribute.String("leadmarket.contractor_id", contractorID))

	if !v.config.Enabled || v.redis == nil {
		return &VelocityResult{Allowed: true}, nil
	}

	key := purchaseKey(contractorID)
	count, expiry, err := v.incrementAndGet(ctx, key, v.config.PurchaseWindow)
	if err != nil {
		v.logger.Error("velocity check failed", "error", err, "key", key)
		return &VelocityResult{Allowed: true, Message: "velocity check unavailable"}, nil
	}

	result := &VelocityResult{
		Allowed:      count <= v.config.MaxPurchasesPerContractor,
		CurrentCount: count,
		MaxAllowed:   v.config.MaxPurchasesPerContractor,
		WindowExpiry: expiry,
	}
	if !result.Allowed {
		result.Message = fmt.Sprintf("exceeded %d purchase attempts in %s", v.config.MaxPurchasesPerContractor, v.config.PurchaseWindow)
		v.logger.Warn("purchase velocity exceeded",
			"contractor_id", contractorID,
			"count", count,
			"max", v.config.MaxPurchasesPerContractor,
		)
		span.SetAttributes(attribute.Bool("velocity.exceeded", true))
	}
	return result, nil
}

// Allow adapts CheckPurchaseVelocity to a yes/no answer.
func (v *VelocityChecker) Allow(ctx context.Context, contractorID string) (bool, error) {
	res, err := v.CheckPurchaseVelocity(ctx, contractorID)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

func (v *VelocityChecker) incrementAndGet(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	count, err := v.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if count == 1 {
		v.redis.Expire(ctx, key, window)
	}
	ttl, err := v.redis.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return int(count), time.Now().Add(ttl), nil
}

// ResetPurchaseVelocity clears a contractor's counter (admin use).
func (v *VelocityChecker) ResetPurchaseVelocity(ctx context.Context, contractorID string) error {
	return v.redis.Del(ctx, purchaseKey(contractorID)).Err()
}

// GetPurchaseStats reports the current counter without incrementing it.
func (v *VelocityChecker) GetPurchaseStats(ctx context.Context, contractorID string) (*VelocityResult, error) {
	key := purchaseKey(contractorID)
	count, err := v.redis.Get(ctx, key).Int()
	if err == redis.Nil {
		return &VelocityResult{Allowed: true, MaxAllowed: v.config.MaxPurchasesPerContractor}, nil
	}
	if err != nil {
		return nil, err
	}
	ttl, _ := v.redis.TTL(ctx, key).Result()
	return &VelocityResult{
		Allowed:      count < v.config.MaxPurchasesPerContractor,
		CurrentCount: count,
		MaxAllowed:   v.config.MaxPurchasesPerContractor,
		WindowExpiry: time.Now().Add(ttl),
	}, nil
}
