package vector

import (
	"context"
	"fmt"

	"github.com/murachan/murachan/internal/log"
)

// DefaultSweepPageSize is the default page size for deletion sweeps. It
// matches MaxTopK, the cap on a fully-metadata query.
const DefaultSweepPageSize = 50

// Sweeper removes all vectors matching a source filter (or all vectors) by
// repeatedly querying with a dummy vector and deleting the returned page,
// until a query comes back empty. The loop is required because the query API
// cannot enumerate past its page cap and the index has no native
// delete-by-filter.
//
// Termination: each iteration deletes every id it just fetched and deleted
// ids are not returned again, so the loop ends after at most
// ceil(matching / pageSize) iterations — assuming no concurrent writer adds
// matching vectors mid-sweep. Two sweeps for the same source must not run
// concurrently; sweeps for different sources are safe together.
type Sweeper struct {
	index    Index
	pageSize int
	logger   log.Logger
}

// NewSweeper creates a Sweeper. pageSize <= 0 or above MaxTopK falls back to
// DefaultSweepPageSize.
func NewSweeper(index Index, pageSize int, logger log.Logger) *Sweeper {
	if pageSize <= 0 || pageSize > MaxTopK {
		pageSize = DefaultSweepPageSize
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Sweeper{index: index, pageSize: pageSize, logger: logger}
}

// DeleteBySource removes every vector whose metadata source equals source
// and returns the number deleted.
func (s *Sweeper) DeleteBySource(ctx context.Context, source string) (int, error) {
	deleted, err := s.sweep(ctx, source)
	if err != nil {
		return deleted, fmt.Errorf("sweeping source %q: %w", source, err)
	}
	s.logger.Debug("swept source", "source", source, "deleted", deleted)
	return deleted, nil
}

// DeleteAll removes every vector in the index and returns the number
// deleted.
func (s *Sweeper) DeleteAll(ctx context.Context) (int, error) {
	deleted, err := s.sweep(ctx, "")
	if err != nil {
		return deleted, fmt.Errorf("sweeping all: %w", err)
	}
	s.logger.Info("swept index", "deleted", deleted)
	return deleted, nil
}

func (s *Sweeper) sweep(ctx context.Context, source string) (int, error) {
	// The query needs some vector; similarity is irrelevant since every
	// returned id is deleted.
	dummy := make([]float32, s.index.Dimension())

	total := 0
	for {
		matches, err := s.index.Query(ctx, dummy, QueryOptions{
			TopK:   s.pageSize,
			Source: source,
		})
		if err != nil {
			return total, err
		}
		if len(matches) == 0 {
			return total, nil
		}

		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}

		n, err := s.index.DeleteByIDs(ctx, ids)
		if err != nil {
			return total, err
		}
		total += n
	}
}
