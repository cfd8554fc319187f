package utils

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout は処理が制限時間内に終わらなかったことを表します
// context.DeadlineExceededとしても判定できます
var ErrTimeout = fmt.Errorf("operation timed out: %w", context.DeadlineExceeded)

// RunWithTimeout はfnを制限時間付きのcontextで実行します
// 制限時間を超えた場合はfnの終了を待たずにErrTimeoutを返します
// 呼び出し元のcontextが先に終わった場合はそのエラーを返します
// timeoutが0以下の場合は制限なしでfnを実行します
func RunWithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// fnが戻らなくても送信でブロックしないようにバッファを1つ持つ
	done := make(chan error, 1)
	go func() {
		done <- fn(runCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-runCtx.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		if !errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return runCtx.Err()
		}
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
}
