package webrtc

import (
	"log/slog"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
)

// readRTCP drains RTCP for a sender so interceptors keep running. It returns
// when the sender is stopped.
func readRTCP(sender *webrtc.RTPSender, logger *slog.Logger) {
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}

		for _, packet := range packets {
			switch p := packet.(type) {
			case *rtcp.PictureLossIndication:
				logger.Debug("picture loss indication", "media_ssrc", p.MediaSSRC)
			case *rtcp.FullIntraRequest:
				logger.Debug("full intra request", "media_ssrc", p.MediaSSRC)
			case *rtcp.ReceiverReport:
				for _, r := range p.Reports {
					logger.Debug("receiver report",
						"ssrc", r.SSRC,
						"fraction_lost", r.FractionLost,
						"jitter", r.Jitter,
					)
				}
			}
		}
	}
}
