package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Script status codes.
const (
	statusOK           = 0
	statusSubscription = 1
	statusInsufficient = 2
	statusExists       = 3
	statusNotFound     = -1
)

// debitScript checks and deducts in one step.
// KEYS[1] = account hash
// ARGV[1] = cost
// ARGV[2] = unix seconds
// Returns {status, balance, version}.
var debitScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
    return {-1, 0, 0}
end
local state = redis.call("HMGET", KEYS[1], "balance", "subscription", "version")
local balance = tonumber(state[1])
local version = tonumber(state[3])
if state[2] == "1" then
    return {1, balance, version}
end
local cost = tonumber(ARGV[1])
if balance < cost then
    return {2, balance, version}
end
balance = balance - cost
version = version + 1
redis.call("HSET", KEYS[1], "balance", balance, "version", version, "updated_at", ARGV[2])
return {0, balance, version}
`)

// creditScript adds tokens to an existing account.
// KEYS[1] = account hash
// ARGV[1] = amount
// ARGV[2] = unix seconds
var creditScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
    return {-1, 0, 0}
end
local balance = redis.call("HINCRBY", KEYS[1], "balance", ARGV[1])
local version = redis.call("HINCRBY", KEYS[1], "version", 1)
redis.call("HSET", KEYS[1], "updated_at", ARGV[2])
return {0, balance, version}
`)

// subscriptionScript sets the subscription flag on an existing account.
// KEYS[1] = account hash
// ARGV[1] = "1" or "0"
// ARGV[2] = unix seconds
var subscriptionScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
    return {-1, 0, 0}
end
redis.call("HSET", KEYS[1], "subscription", ARGV[1], "updated_at", ARGV[2])
local version = redis.call("HINCRBY", KEYS[1], "version", 1)
local balance = tonumber(redis.call("HGET", KEYS[1], "balance"))
return {0, balance, version}
`)

// openScript creates an account unless it already exists.
// KEYS[1] = account hash
// ARGV[1] = initial balance
// ARGV[2] = unix seconds
var openScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
    return {3, 0, 0}
end
redis.call("HSET", KEYS[1], "balance", ARGV[1], "subscription", "0", "version", 0, "updated_at", ARGV[2])
return {0, tonumber(ARGV[1]), 0}
`)

// RedisStore keeps accounts as Redis hashes. Every mutation runs as a Lua
// script, which Redis executes atomically.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a store using the given client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "ledger:account:", now: time.Now}
}

// ConnectRedis parses a redis:// URL, connects and pings.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + userID
}

type scriptResult struct {
	status  int64
	balance int64
	version int64
}

func (s *RedisStore) run(ctx context.Context, script *redis.Script, userID string, args ...any) (scriptResult, error) {
	res, err := script.Run(ctx, s.client, []string{s.key(userID)}, args...).Result()
	if err != nil {
		return scriptResult{}, err
	}
	vals, ok := res.([]any)
	if !ok || len(vals) != 3 {
		return scriptResult{}, errors.New("invalid response from ledger script")
	}
	var out scriptResult
	out.status, _ = vals[0].(int64)
	out.balance, _ = vals[1].(int64)
	out.version, _ = vals[2].(int64)
	return out, nil
}

func (s *RedisStore) account(userID string, r scriptResult, subscribed bool) *Account {
	return &Account{
		UserID:             userID,
		Balance:            r.balance,
		SubscriptionActive: subscribed,
		Version:            r.version,
		UpdatedAt:          time.Unix(s.now().Unix(), 0).UTC(),
	}
}

func (s *RedisStore) Open(ctx context.Context, userID string, balance int64) (*Account, error) {
	if balance < 0 {
		return nil, ErrInvalidAmount
	}
	r, err := s.run(ctx, openScript, userID, balance, s.now().Unix())
	if err != nil {
		return nil, fmt.Errorf("opening token account: %w", err)
	}
	if r.status == statusExists {
		return nil, ErrAccountExists
	}
	return s.account(userID, r, false), nil
}

func (s *RedisStore) Get(ctx context.Context, userID string) (*Account, error) {
	vals, err := s.client.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting token account: %w", err)
	}
	if len(vals) == 0 {
		return nil, ErrAccountNotFound
	}
	a := &Account{UserID: userID, SubscriptionActive: vals["subscription"] == "1"}
	if a.Balance, err = strconv.ParseInt(vals["balance"], 10, 64); err != nil {
		return nil, fmt.Errorf("parsing balance: %w", err)
	}
	if a.Version, err = strconv.ParseInt(vals["version"], 10, 64); err != nil {
		return nil, fmt.Errorf("parsing version: %w", err)
	}
	if ts, err := strconv.ParseInt(vals["updated_at"], 10, 64); err == nil {
		a.UpdatedAt = time.Unix(ts, 0).UTC()
	}
	return a, nil
}

func (s *RedisStore) Debit(ctx context.Context, userID string, cost int64) (*Account, error) {
	r, err := s.run(ctx, debitScript, userID, cost, s.now().Unix())
	if err != nil {
		return nil, fmt.Errorf("debiting token account: %w", err)
	}
	switch r.status {
	case statusOK:
		return s.account(userID, r, false), nil
	case statusSubscription:
		return s.account(userID, r, true), ErrSubscriptionActive
	case statusInsufficient:
		return nil, &InsufficientTokensError{Balance: r.balance, Required: cost}
	case statusNotFound:
		return nil, ErrAccountNotFound
	default:
		return nil, fmt.Errorf("debiting token account: unexpected status %d", r.status)
	}
}

func (s *RedisStore) Credit(ctx context.Context, userID string, amount int64) (*Account, error) {
	r, err := s.run(ctx, creditScript, userID, amount, s.now().Unix())
	if err != nil {
		return nil, fmt.Errorf("crediting token account: %w", err)
	}
	if r.status == statusNotFound {
		return nil, ErrAccountNotFound
	}
	// HGET after the credit gives the live flag; the script does not return it.
	sub, err := s.client.HGet(ctx, s.key(userID), "subscription").Result()
	if err != nil {
		return nil, fmt.Errorf("reading subscription flag: %w", err)
	}
	return s.account(userID, r, sub == "1"), nil
}

func (s *RedisStore) SetSubscription(ctx context.Context, userID string, active bool) (*Account, error) {
	flag := "0"
	if active {
		flag = "1"
	}
	r, err := s.run(ctx, subscriptionScript, userID, flag, s.now().Unix())
	if err != nil {
		return nil, fmt.Errorf("setting subscription: %w", err)
	}
	if r.status == statusNotFound {
		return nil, ErrAccountNotFound
	}
	return s.account(userID, r, active), nil
}
