package cardsync

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/keefcreative/designworks/internal/cache"
	"github.com/keefcreative/designworks/internal/client"
	"github.com/keefcreative/designworks/internal/trello"
)

// listResolver picks the list a new card goes into.  In order:
//
//  1. trello_config.list_id, then default_list_id;
//  2. the open list named trello_config.default_list_name;
//  3. the first open list the provider returns.
//
// Board lists are fetched once per board per TTL; concurrent misses for the
// same board share one provider call.  The shared call runs detached from the
// first caller's cancellation so one abandoned request cannot fail the rest.
type listResolver struct {
	provider Provider
	cache    *cache.LRU[string, []trello.List] // nil disables caching
	group    singleflight.Group
}

func newListResolver(p Provider, size int, ttl time.Duration) *listResolver {
	r := &listResolver{provider: p}
	if ttl > 0 && size > 0 {
		r.cache = cache.New[string, []trello.List](size, ttl)
	}
	return r
}

func (r *listResolver) resolve(ctx context.Context, cr trello.Credentials, cfg client.TrelloConfig) (string, error) {
	if id := cfg.TargetListID(); id != "" {
		return id, nil
	}
	lists, err := r.lists(ctx, cr, cfg.BoardID)
	if err != nil {
		return "", err
	}
	if len(lists) == 0 {
		return "", errNoLists
	}
	if want := strings.TrimSpace(cfg.DefaultListName); want != "" {
		for _, l := range lists {
			if strings.EqualFold(strings.TrimSpace(l.Name), want) {
				return l.ID, nil
			}
		}
	}
	return lists[0].ID, nil
}

func (r *listResolver) lists(ctx context.Context, cr trello.Credentials, boardID string) ([]trello.List, error) {
	if r.cache != nil {
		if ls, ok := r.cache.Get(boardID); ok {
			return ls, nil
		}
	}
	v, err, _ := r.group.Do(boardID, func() (any, error) {
		ls, err := r.provider.ListLists(context.WithoutCancel(ctx), cr, boardID)
		if err != nil {
			return nil, err
		}
		open := make([]trello.List, 0, len(ls))
		for _, l := range ls {
			if !l.Closed {
				open = append(open, l)
			}
		}
		if r.cache != nil && len(open) > 0 {
			r.cache.Add(boardID, open)
		}
		return open, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]trello.List), nil
}

// forget drops a board from the cache, for example after a reset.
func (r *listResolver) forget(boardID string) {
	if r.cache != nil {
		r.cache.Remove(boardID)
	}
}
