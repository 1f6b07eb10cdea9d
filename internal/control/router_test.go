package control_test

import (
	"context"
	"testing"

	"github.com/HMasataka/duet/internal/control"
	mock_handler "github.com/HMasataka/duet/internal/control/handler/mock"
	"github.com/HMasataka/duet/payload/signal"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestHandlerRegistry(t *testing.T) {
	t.Run("種別ごとにハンドラーが呼ばれる", func(t *testing.T) {
		r := control.NewHandlerRegistry()

		var called signal.Kind
		r.Register(signal.KindCandidate, control.HandlerFunc(func(ctx context.Context, msg *signal.ControlMessage) (*signal.ControlMessage, error) {
			called = msg.Kind
			return nil, nil
		}))

		_, err := r.Handle(context.Background(), signal.NewCandidateMessage(webrtc.ICECandidateInit{Candidate: "candidate:1"}))

		require.NoError(t, err)
		assert.Equal(t, signal.KindCandidate, called)
	})

	t.Run("nilメッセージはエラー", func(t *testing.T) {
		r := control.NewHandlerRegistry()

		_, err := r.Handle(context.Background(), nil)

		assert.ErrorIs(t, err, control.ErrNilMessage)
	})

	t.Run("未登録の種別はエラー", func(t *testing.T) {
		r := control.NewHandlerRegistry()

		_, err := r.Handle(context.Background(), signal.NewOfferMessage(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}))

		assert.ErrorIs(t, err, control.ErrNoHandler)
	})

	t.Run("nilハンドラーはエラー", func(t *testing.T) {
		r := control.NewHandlerRegistry()
		r.Register(signal.KindAnswer, nil)

		_, err := r.Handle(context.Background(), signal.NewAnswerMessage(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}))

		assert.ErrorIs(t, err, control.ErrHandlerIsNil)
	})
}

func TestNewControlRouter(t *testing.T) {
	ctrl := gomock.NewController(t)
	n := mock_handler.NewMockNegotiator(ctrl)

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}
	candidate := webrtc.ICECandidateInit{Candidate: "candidate:1"}

	gomock.InOrder(
		n.EXPECT().AnswerRemoteOffer(gomock.Any(), offer).Return(answer, nil),
		n.EXPECT().ApplyRemoteAnswer(gomock.Any(), answer).Return(nil),
		n.EXPECT().AddRemoteCandidate(gomock.Any(), candidate).Return(nil),
	)

	router := control.NewControlRouter(n)
	ctx := context.Background()

	resp, err := router.Handle(ctx, signal.NewOfferMessage(offer))
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, signal.KindAnswer, resp.Kind)

	resp, err = router.Handle(ctx, signal.NewAnswerMessage(answer))
	require.NoError(t, err)
	assert.Nil(t, resp)

	resp, err = router.Handle(ctx, signal.NewCandidateMessage(candidate))
	require.NoError(t, err)
	assert.Nil(t, resp)
}
