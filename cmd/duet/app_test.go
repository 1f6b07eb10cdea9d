package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/HMasataka/duet/internal/negotiation"
	"github.com/HMasataka/duet/payload/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"壊れたトークン", fmt.Errorf("decode: %w", signal.ErrMalformed), true},
		{"種別違いのトークン", fmt.Errorf("decode: %w", signal.ErrUnexpectedKind), true},
		{"状態エラー", negotiation.ErrInvalidState, false},
		{"キャンセル", context.Canceled, false},
		{"その他", errors.New("boom"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, retryable(tc.err))
		})
	}
}

func TestNewApp(t *testing.T) {
	t.Run("設定ファイルからコントローラーを組み立てる", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "duet.toml")
		body := fmt.Sprintf("[log]\nfile = %q\n\n[negotiation]\ndebounce = 100\n", filepath.Join(dir, "duet.log"))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

		a, err := newApp(context.Background(), Options{Config: path, Debug: true})
		require.NoError(t, err)
		t.Cleanup(a.close)

		assert.Equal(t, "debug", a.config.Log.Level)
		assert.Equal(t, 100, a.config.Negotiation.Debounce)
		assert.Equal(t, negotiation.StateIdle, a.controller.State())
		assert.NotEmpty(t, a.controller.Identity())
	})

	t.Run("存在しない設定ファイルはエラー", func(t *testing.T) {
		_, err := newApp(context.Background(), Options{Config: filepath.Join(t.TempDir(), "missing.toml")})

		assert.Error(t, err)
	})

	t.Run("未知のキーはエラー", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "duet.toml")
		require.NoError(t, os.WriteFile(path, []byte("[gather]\nunknown = 1\n"), 0o600))

		_, err := newApp(context.Background(), Options{Config: path})

		assert.Error(t, err)
	})
}
