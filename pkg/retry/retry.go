package retry

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net"
	"time"
)

// ErrExhausted は試行回数を使い切ったことを表す
var ErrExhausted = errors.New("retry attempts exhausted")

// Action はリトライループで次に取る動作
type Action int

const (
	Abort   Action = iota // 中止
	Wait                  // 待機してから再判定
	Execute               // 実行
)

// Config はリトライの設定
type Config struct {
	Attempts     int
	BaseInterval time.Duration
	MaxBackoff   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Attempts:     6,
		BaseInterval: 20 * time.Millisecond,
		MaxBackoff:   500 * time.Millisecond,
	}
}

// Backoff は attempt 回目の待機時間を指数バックオフと±10%のジッターで返す
func Backoff(attempt int, baseInterval, maxBackoff time.Duration) time.Duration {
	d := baseInterval << attempt
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	return time.Duration(int64(d) * int64(9+rand.IntN(3)) / 10)
}

// ShouldRetry は閉じた接続やキャンセル以外のエラーを再試行対象とする
func ShouldRetry(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}

// Executor はリトライ可能な処理
type Executor interface {
	// DetermineAction は次の動作を決める
	DetermineAction() Action
	// Execute は成功またはリトライ不要のとき true を返す
	Execute(attempt int) bool
}

// Run は Executor を最大 cfg.Attempts 回まわす。ctx が終わると待機を打ち切る
func Run(ctx context.Context, cfg Config, executor Executor) error {
	for i := 0; i < cfg.Attempts; i++ {
		switch executor.DetermineAction() {
		case Abort:
			return nil
		case Wait:
			if err := Sleep(ctx, Backoff(i, cfg.BaseInterval, cfg.MaxBackoff)); err != nil {
				return err
			}
		case Execute:
			if executor.Execute(i) {
				return nil
			}
		}
	}

	return ErrExhausted
}

// Do は fn が成功するか再試行できないエラーを返すまで繰り返す
func Do(ctx context.Context, cfg Config, fn func(attempt int) error) error {
	var last error

	for i := 0; i < cfg.Attempts; i++ {
		if i > 0 {
			if err := Sleep(ctx, Backoff(i-1, cfg.BaseInterval, cfg.MaxBackoff)); err != nil {
				return err
			}
		}

		last = fn(i)
		if !ShouldRetry(last) {
			return last
		}
	}

	return errors.Join(ErrExhausted, last)
}

// Sleep は d だけ待つ。ctx が先に終われば ctx.Err() を返す
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
