package sdpdebug

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/samber/lo"
)

var directions = []string{
	sdp.AttrKeySendRecv,
	sdp.AttrKeySendOnly,
	sdp.AttrKeyRecvOnly,
	sdp.AttrKeyInactive,
}

// MediaSummary describes one m= section of a session description.
type MediaSummary struct {
	Mid        string
	Kind       string
	Direction  string
	Codecs     []string
	Candidates int
}

// Summarize parses sd and returns one entry per media section.
func Summarize(sd webrtc.SessionDescription) ([]MediaSummary, error) {
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(sd.SDP)); err != nil {
		return nil, fmt.Errorf("failed to parse sdp: %w", err)
	}

	summaries := make([]MediaSummary, 0, len(parsed.MediaDescriptions))
	for _, md := range parsed.MediaDescriptions {
		s := MediaSummary{
			Kind:      md.MediaName.Media,
			Direction: sdp.AttrKeySendRecv,
		}

		if mid, ok := md.Attribute(sdp.AttrKeyMID); ok {
			s.Mid = mid
		}

		for _, attr := range md.Attributes {
			switch {
			case attr.Key == "rtpmap":
				if _, codec, ok := strings.Cut(attr.Value, " "); ok {
					s.Codecs = append(s.Codecs, codec)
				}
			case attr.Key == sdp.AttrKeyCandidate:
				s.Candidates++
			case lo.Contains(directions, attr.Key):
				s.Direction = attr.Key
			}
		}

		summaries = append(summaries, s)
	}

	return summaries, nil
}

// LogSDP logs a one line summary per media section of sd.
func LogSDP(logger *slog.Logger, label string, sd webrtc.SessionDescription) {
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	summaries, err := Summarize(sd)
	if err != nil {
		logger.Warn("unparsable sdp", "label", label, "type", sd.Type.String(), "err", err)
		return
	}

	logger.Debug("sdp",
		slog.String("label", label),
		slog.String("type", sd.Type.String()),
		slog.Int("media_sections", len(summaries)),
	)

	for _, s := range summaries {
		logger.Debug("sdp media",
			slog.String("label", label),
			slog.String("mid", s.Mid),
			slog.String("kind", s.Kind),
			slog.String("direction", s.Direction),
			slog.Any("codecs", s.Codecs),
			slog.Int("candidates", s.Candidates),
		)
	}
}

// SaveSDP writes sd to dir for offline inspection and returns the path.
func SaveSDP(dir, label string, sd webrtc.SessionDescription) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create sdp dump dir: %w", err)
	}

	// Sanitize label for filename
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '-'
		}
	}, label)

	ts := time.Now().Format("20060102-150405.000")
	fname := fmt.Sprintf("%s_%s_%s.sdp", ts, sanitized, strings.ToLower(sd.Type.String()))
	path := filepath.Join(dir, fname)

	if err := os.WriteFile(path, []byte(sd.SDP), 0o644); err != nil {
		return "", fmt.Errorf("failed to write sdp dump: %w", err)
	}

	return path, nil
}
