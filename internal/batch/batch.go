// Package batch runs a task over a list in fixed-size chunks: members of a
// chunk run concurrently, chunks run one after another.
package batch

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// DefaultSize bounds the number of concurrent tasks per chunk.
const DefaultSize = 50

// Run partitions items into chunks of size (DefaultSize when size <= 0) and
// runs task for every member of a chunk concurrently. onBatchComplete, when
// set, is called with the chunk index and chunk count after every member of
// the chunk finished. The first task error cancels the chunk's context, Run
// waits for the chunk's other tasks, and no later chunk starts.
func Run[T any](
	ctx context.Context,
	task func(ctx context.Context, item T) error,
	items []T,
	size int,
	onBatchComplete func(index, total int),
) error {
	if size <= 0 {
		size = DefaultSize
	}
	chunks := lo.Chunk(items, size)
	total := len(chunks)

	for index, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("batch %d/%d: %w", index+1, total, err)
		}

		group, groupCtx := errgroup.WithContext(ctx)
		for _, item := range chunk {
			group.Go(func() error {
				return task(groupCtx, item)
			})
		}
		if err := group.Wait(); err != nil {
			return fmt.Errorf("batch %d/%d: %w", index+1, total, err)
		}

		if onBatchComplete != nil {
			onBatchComplete(index, total)
		}
	}
	return nil
}
