package storage

import (
	"context"
	"fmt"
)

// ListAllKeys walks every page of the store listing and returns the
// accumulated key set. Keys are returned in first-seen order and a key
// reported by more than one page is kept once.
func ListAllKeys(ctx context.Context, store ObjectStore) ([]string, error) {
	keys := make([]string, 0)
	seenKeys := make(map[string]struct{})
	seenTokens := make(map[string]struct{})

	token := ""
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		page, err := store.ListObjects(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}

		for _, k := range page.Keys {
			if _, dup := seenKeys[k]; dup {
				continue
			}
			seenKeys[k] = struct{}{}
			keys = append(keys, k)
		}

		if page.NextToken == "" {
			return keys, nil
		}
		if _, again := seenTokens[page.NextToken]; again {
			return nil, fmt.Errorf("%w: %q", ErrPaginationLoop, page.NextToken)
		}
		seenTokens[page.NextToken] = struct{}{}
		token = page.NextToken
	}
}
