package control_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/HMasataka/duet/internal/control"
	"github.com/HMasataka/duet/internal/control/controltest"
	"github.com/HMasataka/duet/payload/signal"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

type recorder struct {
	mu       sync.Mutex
	messages []*signal.ControlMessage
	notify   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 64)}
}

func (r *recorder) handler() control.HandlerFunc {
	return func(ctx context.Context, msg *signal.ControlMessage) (*signal.ControlMessage, error) {
		r.mu.Lock()
		r.messages = append(r.messages, msg)
		r.mu.Unlock()
		r.notify <- struct{}{}
		return nil, nil
	}
}

func (r *recorder) wait(t *testing.T, n int) []*signal.ControlMessage {
	t.Helper()

	deadline := time.After(waitTimeout)
	for {
		r.mu.Lock()
		if len(r.messages) >= n {
			out := append([]*signal.ControlMessage(nil), r.messages...)
			r.mu.Unlock()
			return out
		}
		r.mu.Unlock()

		select {
		case <-r.notify:
		case <-deadline:
			t.Fatalf("waited for %d messages", n)
		}
	}
}

func waitOpen(t *testing.T, opened <-chan struct{}) {
	t.Helper()

	select {
	case <-opened:
	case <-time.After(waitTimeout):
		t.Fatal("channel did not open")
	}
}

func openSignal() (chan struct{}, func()) {
	ch := make(chan struct{})
	var once sync.Once
	return ch, func() { once.Do(func() { close(ch) }) }
}

func TestChannel_Send(t *testing.T) {
	t.Run("開く前の送信はエラー", func(t *testing.T) {
		a, _ := controltest.NewPipe(control.Label)
		ch := control.NewChannel(context.Background(), a, control.NewRouter(), control.ChannelOptions{})
		defer ch.Close()

		err := ch.Send(context.Background(), signal.NewCandidateMessage(webrtc.ICECandidateInit{Candidate: "candidate:1"}))

		assert.ErrorIs(t, err, control.ErrChannelNotOpen)
		assert.False(t, ch.IsOpen())
	})

	t.Run("送信順に配送される", func(t *testing.T) {
		a, b := controltest.NewPipe(control.Label)

		rec := newRecorder()
		router := control.NewRouter()
		router.Register(signal.KindCandidate, rec.handler())

		opened, markOpen := openSignal()
		sender := control.NewChannel(context.Background(), a, control.NewRouter(), control.ChannelOptions{OnOpen: markOpen})
		receiver := control.NewChannel(context.Background(), b, router, control.ChannelOptions{})
		defer sender.Close()
		defer receiver.Close()

		a.Open()
		waitOpen(t, opened)

		const n = 20
		for i := range n {
			msg := signal.NewCandidateMessage(webrtc.ICECandidateInit{Candidate: fmt.Sprintf("candidate:%d", i)})
			require.NoError(t, sender.Send(context.Background(), msg))
		}

		got := rec.wait(t, n)
		for i, msg := range got {
			assert.Equal(t, fmt.Sprintf("candidate:%d", i), msg.Candidate.Candidate)
		}
	})

	t.Run("不正なメッセージは送信しない", func(t *testing.T) {
		a, _ := controltest.NewPipe(control.Label)
		ch := control.NewChannel(context.Background(), a, control.NewRouter(), control.ChannelOptions{})
		defer ch.Close()
		a.Open()

		err := ch.Send(context.Background(), &signal.ControlMessage{Kind: signal.KindOffer})

		assert.ErrorIs(t, err, signal.ErrInvalidControlMessage)
		assert.Empty(t, a.Sent())
	})
}

func TestChannel_Response(t *testing.T) {
	a, b := controltest.NewPipe(control.Label)

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}

	answerer := control.NewRouter()
	answerer.Register(signal.KindOffer, control.HandlerFunc(func(ctx context.Context, msg *signal.ControlMessage) (*signal.ControlMessage, error) {
		return signal.NewAnswerMessage(answer), nil
	}))

	rec := newRecorder()
	offerer := control.NewRouter()
	offerer.Register(signal.KindAnswer, rec.handler())

	var dispatched sync.WaitGroup
	dispatch := func(task func()) bool {
		dispatched.Add(1)
		go func() {
			defer dispatched.Done()
			task()
		}()
		return true
	}

	opened, markOpen := openSignal()
	local := control.NewChannel(context.Background(), a, offerer, control.ChannelOptions{OnOpen: markOpen, Dispatch: dispatch})
	remote := control.NewChannel(context.Background(), b, answerer, control.ChannelOptions{Dispatch: dispatch})
	defer local.Close()
	defer remote.Close()

	a.Open()
	waitOpen(t, opened)

	require.NoError(t, local.Send(context.Background(), signal.NewOfferMessage(offer)))

	got := rec.wait(t, 1)
	require.Len(t, got, 1)
	assert.Equal(t, signal.KindAnswer, got[0].Kind)
	assert.Equal(t, answer, *got[0].Description)

	dispatched.Wait()
}

func TestChannel_Errors(t *testing.T) {
	t.Run("ハンドラーのエラーが通知される", func(t *testing.T) {
		a, b := controltest.NewPipe(control.Label)

		want := errors.New("cannot apply")
		router := control.NewRouter()
		router.Register(signal.KindAnswer, control.HandlerFunc(func(ctx context.Context, msg *signal.ControlMessage) (*signal.ControlMessage, error) {
			return nil, want
		}))

		errs := make(chan error, 1)
		opened, markOpen := openSignal()
		sender := control.NewChannel(context.Background(), a, control.NewRouter(), control.ChannelOptions{OnOpen: markOpen})
		receiver := control.NewChannel(context.Background(), b, router, control.ChannelOptions{OnError: func(err error) { errs <- err }})
		defer sender.Close()
		defer receiver.Close()

		a.Open()
		waitOpen(t, opened)

		require.NoError(t, sender.Send(context.Background(), signal.NewAnswerMessage(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"})))

		select {
		case err := <-errs:
			assert.ErrorIs(t, err, want)
		case <-time.After(waitTimeout):
			t.Fatal("error not reported")
		}
		assert.True(t, receiver.IsOpen())
	})

	t.Run("未登録の種別はエラーとして通知される", func(t *testing.T) {
		a, b := controltest.NewPipe(control.Label)

		errs := make(chan error, 1)
		opened, markOpen := openSignal()
		sender := control.NewChannel(context.Background(), a, control.NewRouter(), control.ChannelOptions{OnOpen: markOpen})
		receiver := control.NewChannel(context.Background(), b, control.NewRouter(), control.ChannelOptions{OnError: func(err error) { errs <- err }})
		defer sender.Close()
		defer receiver.Close()

		a.Open()
		waitOpen(t, opened)

		require.NoError(t, sender.Send(context.Background(), signal.NewCandidateMessage(webrtc.ICECandidateInit{Candidate: "candidate:1"})))

		select {
		case err := <-errs:
			assert.ErrorIs(t, err, control.ErrNoHandler)
		case <-time.After(waitTimeout):
			t.Fatal("error not reported")
		}
	})

	t.Run("壊れたフレームは読み飛ばされる", func(t *testing.T) {
		a, b := controltest.NewPipe(control.Label)

		rec := newRecorder()
		router := control.NewRouter()
		router.Register(signal.KindCandidate, rec.handler())

		opened, markOpen := openSignal()
		sender := control.NewChannel(context.Background(), a, control.NewRouter(), control.ChannelOptions{OnOpen: markOpen})
		receiver := control.NewChannel(context.Background(), b, router, control.ChannelOptions{})
		defer sender.Close()
		defer receiver.Close()

		a.Open()
		waitOpen(t, opened)

		b.Inject([]byte("{not json"))
		require.NoError(t, sender.Send(context.Background(), signal.NewCandidateMessage(webrtc.ICECandidateInit{Candidate: "candidate:ok"})))

		got := rec.wait(t, 1)
		assert.Equal(t, "candidate:ok", got[0].Candidate.Candidate)
		assert.True(t, receiver.IsOpen())
	})

	t.Run("受け付けられなかったタスクは破棄される", func(t *testing.T) {
		a, b := controltest.NewPipe(control.Label)

		rec := newRecorder()
		router := control.NewRouter()
		router.Register(signal.KindCandidate, rec.handler())

		rejected := make(chan struct{}, 1)
		opened, markOpen := openSignal()
		sender := control.NewChannel(context.Background(), a, control.NewRouter(), control.ChannelOptions{OnOpen: markOpen})
		receiver := control.NewChannel(context.Background(), b, router, control.ChannelOptions{
			Dispatch: func(task func()) bool {
				rejected <- struct{}{}
				return false
			},
		})
		defer sender.Close()
		defer receiver.Close()

		a.Open()
		waitOpen(t, opened)

		require.NoError(t, sender.Send(context.Background(), signal.NewCandidateMessage(webrtc.ICECandidateInit{Candidate: "candidate:1"})))

		select {
		case <-rejected:
		case <-time.After(waitTimeout):
			t.Fatal("dispatch not called")
		}

		rec.mu.Lock()
		defer rec.mu.Unlock()
		assert.Empty(t, rec.messages)
	})
}

func TestChannel_Close(t *testing.T) {
	a, b := controltest.NewPipe(control.Label)

	closed := make(chan struct{}, 2)
	opened, markOpen := openSignal()
	local := control.NewChannel(context.Background(), a, control.NewRouter(), control.ChannelOptions{
		OnOpen:  markOpen,
		OnClose: func() { closed <- struct{}{} },
	})
	remote := control.NewChannel(context.Background(), b, control.NewRouter(), control.ChannelOptions{})

	a.Open()
	waitOpen(t, opened)
	require.True(t, local.IsOpen())

	require.NoError(t, local.Close())
	require.NoError(t, local.Close())

	assert.False(t, local.IsOpen())

	select {
	case <-remote.Done():
	case <-time.After(waitTimeout):
		t.Fatal("remote end did not observe close")
	}

	assert.Len(t, closed, 1)
	assert.ErrorIs(t, local.Send(context.Background(), signal.NewCandidateMessage(webrtc.ICECandidateInit{Candidate: "candidate:1"})), control.ErrChannelNotOpen)
}
