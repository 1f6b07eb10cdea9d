package retry_test

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/HMasataka/duet/pkg/retry"
	"github.com/stretchr/testify/assert"
)

var fast = retry.Config{
	Attempts:     4,
	BaseInterval: time.Millisecond,
	MaxBackoff:   4 * time.Millisecond,
}

func TestBackoff(t *testing.T) {
	t.Run("上限を超えない", func(t *testing.T) {
		for attempt := range 10 {
			d := retry.Backoff(attempt, 20*time.Millisecond, 500*time.Millisecond)
			assert.LessOrEqual(t, d, 550*time.Millisecond)
			assert.Greater(t, d, time.Duration(0))
		}
	})

	t.Run("指数的に増える", func(t *testing.T) {
		first := retry.Backoff(0, 10*time.Millisecond, time.Second)
		third := retry.Backoff(2, 10*time.Millisecond, time.Second)
		assert.Greater(t, third, first)
	})
}

func TestShouldRetry(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"nil":       {nil, false},
		"EOF":       {io.EOF, false},
		"closed":    {net.ErrClosed, false},
		"canceled":  {context.Canceled, false},
		"wrapped":   {errors.Join(errors.New("write"), io.ErrClosedPipe), false},
		"transient": {errors.New("connection refused"), true},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, retry.ShouldRetry(tc.err))
		})
	}
}

func TestDo(t *testing.T) {
	t.Run("成功するまで繰り返す", func(t *testing.T) {
		calls := 0
		err := retry.Do(context.Background(), fast, func(int) error {
			calls++
			if calls < 3 {
				return errors.New("refused")
			}
			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("再試行できないエラーはそのまま返す", func(t *testing.T) {
		calls := 0
		err := retry.Do(context.Background(), fast, func(int) error {
			calls++
			return net.ErrClosed
		})

		assert.ErrorIs(t, err, net.ErrClosed)
		assert.Equal(t, 1, calls)
	})

	t.Run("使い切ったらErrExhausted", func(t *testing.T) {
		boom := errors.New("refused")
		err := retry.Do(context.Background(), fast, func(int) error {
			return boom
		})

		assert.ErrorIs(t, err, retry.ErrExhausted)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("キャンセルで待機を打ち切る", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cfg := retry.Config{Attempts: 3, BaseInterval: time.Hour, MaxBackoff: time.Hour}

		err := retry.Do(ctx, cfg, func(int) error {
			cancel()
			return errors.New("refused")
		})

		assert.ErrorIs(t, err, context.Canceled)
	})
}

type executor struct {
	actions []retry.Action
	calls   int
}

func (e *executor) DetermineAction() retry.Action {
	a := e.actions[0]
	if len(e.actions) > 1 {
		e.actions = e.actions[1:]
	}
	return a
}

func (e *executor) Execute(int) bool {
	e.calls++
	return e.calls == 2
}

func TestRun(t *testing.T) {
	t.Run("待機を挟んで実行する", func(t *testing.T) {
		e := &executor{actions: []retry.Action{retry.Wait, retry.Execute}}
		assert.NoError(t, retry.Run(context.Background(), fast, e))
		assert.Equal(t, 2, e.calls)
	})

	t.Run("中止", func(t *testing.T) {
		e := &executor{actions: []retry.Action{retry.Abort}}
		assert.NoError(t, retry.Run(context.Background(), fast, e))
		assert.Zero(t, e.calls)
	})

	t.Run("使い切ったらErrExhausted", func(t *testing.T) {
		e := &executor{actions: []retry.Action{retry.Wait}}
		assert.ErrorIs(t, retry.Run(context.Background(), fast, e), retry.ErrExhausted)
	})
}
