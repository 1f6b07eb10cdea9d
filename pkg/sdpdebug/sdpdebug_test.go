package sdpdebug_test

import (
	"os"
	"strings"
	"testing"

	"github.com/HMasataka/duet/pkg/sdpdebug"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var offer = webrtc.SessionDescription{
	Type: webrtc.SDPTypeOffer,
	SDP: strings.Join([]string{
		"v=0",
		"o=- 123 2 IN IP4 127.0.0.1",
		"s=-",
		"t=0 0",
		"a=group:BUNDLE 0 1",
		"m=application 9 UDP/DTLS/SCTP webrtc-datachannel",
		"c=IN IP4 0.0.0.0",
		"a=mid:0",
		"a=candidate:1 1 udp 2130706431 10.0.0.1 5000 typ host",
		"a=candidate:2 1 udp 1694498815 203.0.113.7 6000 typ srflx raddr 10.0.0.1 rport 5000",
		"m=video 9 UDP/TLS/RTP/SAVPF 96",
		"c=IN IP4 0.0.0.0",
		"a=mid:1",
		"a=rtpmap:96 VP8/90000",
		"a=sendonly",
		"",
	}, "\r\n"),
}

func TestSummarize(t *testing.T) {
	t.Run("メディアセクションを要約する", func(t *testing.T) {
		summaries, err := sdpdebug.Summarize(offer)
		require.NoError(t, err)
		require.Len(t, summaries, 2)

		assert.Equal(t, "0", summaries[0].Mid)
		assert.Equal(t, "application", summaries[0].Kind)
		assert.Equal(t, 2, summaries[0].Candidates)
		assert.Empty(t, summaries[0].Direction)

		assert.Equal(t, "1", summaries[1].Mid)
		assert.Equal(t, "video", summaries[1].Kind)
		assert.Equal(t, "sendonly", summaries[1].Direction)
		assert.Equal(t, []string{"VP8/90000"}, summaries[1].Codecs)
	})

	t.Run("不正なSDPはエラー", func(t *testing.T) {
		_, err := sdpdebug.Summarize(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "garbage"})

		assert.Error(t, err)
	})
}

func TestSaveSDP(t *testing.T) {
	dir := t.TempDir()

	path, err := sdpdebug.SaveSDP(dir, "local offer/1", offer)
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(path, "_local-offer-1_offer.sdp"))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, offer.SDP, string(b))
}
