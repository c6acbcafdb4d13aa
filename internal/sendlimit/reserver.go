package sendlimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DenialReason says which window blocked a reservation.
type DenialReason string

const (
	DenialNone   DenialReason = ""
	DenialHourly DenialReason = "hourly_limit"
	DenialDaily  DenialReason = "daily_limit"
)

// Reservation is the outcome of one atomic reserve attempt.
type Reservation struct {
	Allowed   bool
	Reason    DenialReason
	DailyUsed int64
	RetryIn   time.Duration
}

// reserveLuaScript checks both counters before incrementing either, so
// concurrent senders cannot race past the limit with a GET then INCR
// sequence.
const reserveLuaScript = `
local hourKey = KEYS[1]
local dayKey = KEYS[2]
local increment = tonumber(ARGV[1])
local hourLimit = tonumber(ARGV[2])
local dayLimit = tonumber(ARGV[3])
local hourTTL = tonumber(ARGV[4])
local dayTTL = tonumber(ARGV[5])

local hourCurrent = tonumber(redis.call("GET", hourKey) or "0")
local dayCurrent = tonumber(redis.call("GET", dayKey) or "0")

if hourLimit > 0 and hourCurrent + increment > hourLimit then
    return {0, 1, dayCurrent}
end
if dayLimit > 0 and dayCurrent + increment > dayLimit then
    return {0, 2, dayCurrent}
end

local newHour = redis.call("INCRBY", hourKey, increment)
if newHour == increment then
    redis.call("EXPIRE", hourKey, hourTTL)
end

local newDay = redis.call("INCRBY", dayKey, increment)
if newDay == increment then
    redis.call("EXPIRE", dayKey, dayTTL)
end

return {1, 0, newDay}
`

// Reserver grants send slots against an account's hourly and daily
// allowance using Redis counters. The Postgres event counts are the
// source of truth for reporting; these counters exist so concurrent
// senders get an atomic admission decision.
type Reserver struct {
	redis         *redis.Client
	reserveScript *redis.Script
}

// NewReserver creates a reserver with its pre-compiled Lua script.
func NewReserver(client *redis.Client) *Reserver {
	return &Reserver{
		redis:         client,
		reserveScript: redis.NewScript(reserveLuaScript),
	}
}

// NewReserverFromURL connects to Redis and verifies the connection.
func NewReserverFromURL(redisURL string) (*Reserver, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return NewReserver(client), nil
}

// Reserve atomically claims count send slots for the account under the
// given limits. A zero limit means that window is unlimited.
func (r *Reserver) Reserve(ctx context.Context, accountID string, count, hourlyLimit, dailyLimit int) (*Reservation, error) {
	now := time.Now().UTC()
	hourKey := fmt.Sprintf("sendlimit:%s:hour:%d", accountID, now.Unix()/3600)
	dayKey := fmt.Sprintf("sendlimit:%s:day:%s", accountID, now.Format("2006-01-02"))

	result, err := r.reserveScript.Run(ctx, r.redis,
		[]string{hourKey, dayKey},
		count,
		hourlyLimit,
		dailyLimit,
		7200,  // hour key TTL
		90000, // day key TTL, 25 hours
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("reserve send slots: %w", err)
	}

	res := &Reservation{
		Allowed:   result[0].(int64) == 1,
		DailyUsed: result[2].(int64),
	}
	if res.Allowed {
		return res, nil
	}

	switch result[1].(int64) {
	case 1:
		res.Reason = DenialHourly
		nextHour := now.Truncate(time.Hour).Add(time.Hour)
		res.RetryIn = nextHour.Sub(now)
	case 2:
		res.Reason = DenialDaily
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
		res.RetryIn = midnight.Sub(now)
	}
	return res, nil
}

// Release returns previously reserved slots, for sends that failed
// before reaching the wire.
func (r *Reserver) Release(ctx context.Context, accountID string, count int) error {
	now := time.Now().UTC()
	hourKey := fmt.Sprintf("sendlimit:%s:hour:%d", accountID, now.Unix()/3600)
	dayKey := fmt.Sprintf("sendlimit:%s:day:%s", accountID, now.Format("2006-01-02"))

	pipe := r.redis.Pipeline()
	pipe.DecrBy(ctx, hourKey, int64(count))
	pipe.DecrBy(ctx, dayKey, int64(count))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("release send slots: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *Reserver) Close() error {
	return r.redis.Close()
}
