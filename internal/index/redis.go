package index

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
)

// Redis keeps one set per account plus a set of all accounts, so several
// gateway processes can share one index.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "anchor:active"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) accountsKey() string { return r.prefix + ":accounts" }

func (r *Redis) accountKey(account string) string { return r.prefix + ":account:" + account }

func (r *Redis) Add(ctx context.Context, account, transferID string) error {
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, r.accountKey(account), transferID)
	pipe.SAdd(ctx, r.accountsKey(), account)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("Add: %w", err)
	}
	return nil
}

var removeScript = redis.NewScript(`
redis.call("SREM", KEYS[1], ARGV[1])
if redis.call("SCARD", KEYS[1]) == 0 then
  redis.call("SREM", KEYS[2], ARGV[2])
end
return 1
`)

func (r *Redis) Remove(ctx context.Context, account, transferID string) error {
	err := removeScript.Run(ctx, r.client, []string{r.accountKey(account), r.accountsKey()}, transferID, account).Err()
	if err != nil {
		return fmt.Errorf("Remove: %w", err)
	}
	return nil
}

func (r *Redis) Lookup(ctx context.Context, account string) ([]string, error) {
	ids, err := r.client.SMembers(ctx, r.accountKey(account)).Result()
	if err != nil {
		return nil, fmt.Errorf("Lookup: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *Redis) Accounts(ctx context.Context) ([]string, error) {
	accounts, err := r.client.SMembers(ctx, r.accountsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("Accounts: %w", err)
	}
	sort.Strings(accounts)
	return accounts, nil
}

func (r *Redis) Rebuild(ctx context.Context, transfers []domain.Transfer) error {
	existing, err := r.client.SMembers(ctx, r.accountsKey()).Result()
	if err != nil {
		return fmt.Errorf("Rebuild: list accounts: %w", err)
	}

	pipe := r.client.TxPipeline()
	for _, account := range existing {
		pipe.Del(ctx, r.accountKey(account))
	}
	pipe.Del(ctx, r.accountsKey())
	for account, ids := range entries(transfers) {
		members := make([]any, 0, len(ids))
		for id := range ids {
			members = append(members, id)
		}
		pipe.SAdd(ctx, r.accountKey(account), members...)
		pipe.SAdd(ctx, r.accountsKey(), account)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("Rebuild: %w", err)
	}
	return nil
}
