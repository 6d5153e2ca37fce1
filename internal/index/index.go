// Package index maps watched ledger accounts to the transfers waiting on them.
package index

import (
	"context"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
)

type Index interface {
	Add(ctx context.Context, account, transferID string) error
	Remove(ctx context.Context, account, transferID string) error
	Lookup(ctx context.Context, account string) ([]string, error)
	Accounts(ctx context.Context) ([]string, error)
	// Rebuild replaces the whole index with the watched accounts of the given transfers.
	Rebuild(ctx context.Context, transfers []domain.Transfer) error
}

// Sync adds or removes a transfer so the index matches its current state.
// previous may be nil for a transfer seen for the first time.
func Sync(ctx context.Context, idx Index, previous, current *domain.Transfer) error {
	var prevAccount string
	if previous != nil {
		prevAccount, _ = previous.WatchedAccount()
	}
	account, watched := current.WatchedAccount()

	if prevAccount != "" && prevAccount != account {
		if err := idx.Remove(ctx, prevAccount, current.ID); err != nil {
			return err
		}
	}
	if watched {
		return idx.Add(ctx, account, current.ID)
	}
	return nil
}

func entries(transfers []domain.Transfer) map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{})
	for i := range transfers {
		account, ok := transfers[i].WatchedAccount()
		if !ok {
			continue
		}
		if out[account] == nil {
			out[account] = make(map[string]struct{})
		}
		out[account][transfers[i].ID] = struct{}{}
	}
	return out
}
