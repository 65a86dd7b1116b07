package engagement

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// runBatches 按固定大小分批并发执行 fn，批内互不取消，批间等待 delay。
// fn 的失败由调用方在 fn 内部处理；ctx 取消时停止调度后续批次。
func runBatches[T any](ctx context.Context, items []T, size int, delay time.Duration, sleep func(context.Context, time.Duration) error, fn func(context.Context, int, T), afterBatch func()) error {
	if size <= 0 {
		size = 1
	}
	for start := 0; start < len(items); start += size {
		if start > 0 && delay > 0 {
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		end := min(start+size, len(items))
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				fn(ctx, i, items[i])
				return nil
			})
		}
		_ = g.Wait()

		if afterBatch != nil {
			afterBatch()
		}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
