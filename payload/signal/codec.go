package signal

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	// ErrMalformed is returned when a token is not a valid encoded envelope.
	ErrMalformed = errors.New("malformed token")
	// ErrUnexpectedKind is returned when a token decodes to a kind the caller
	// was not expecting at this point of the negotiation.
	ErrUnexpectedKind = errors.New("unexpected token kind")
)

// decodings are tried in order; tokens pasted through chat clients sometimes
// lose padding or get converted to the URL alphabet.
var decodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// Encode serializes the envelope into a token made only of base64 characters.
func Encode(envelope Envelope) (Token, error) {
	if _, ok := sdpTypeFor(envelope.Kind); !ok {
		return "", fmt.Errorf("encode envelope: invalid kind %q", envelope.Kind)
	}

	b, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}

	return Token(base64.StdEncoding.EncodeToString(b)), nil
}

// Decode parses a token and checks that it carries the expected kind.
func Decode(token Token, expected Kind) (Envelope, error) {
	raw, err := decodeBase64(string(token))
	if err != nil {
		return Envelope{}, err
	}

	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	sdpType, ok := sdpTypeFor(envelope.Kind)
	if !ok {
		return Envelope{}, fmt.Errorf("%w: unknown kind %q", ErrMalformed, envelope.Kind)
	}

	if envelope.Description.Type != sdpType {
		return Envelope{}, fmt.Errorf("%w: %s envelope carries %s description", ErrMalformed, envelope.Kind, envelope.Description.Type)
	}

	if strings.TrimSpace(envelope.Description.SDP) == "" {
		return Envelope{}, fmt.Errorf("%w: empty session description", ErrMalformed)
	}

	if envelope.Kind != expected {
		return Envelope{}, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedKind, envelope.Kind, expected)
	}

	return envelope, nil
}

func decodeBase64(token string) ([]byte, error) {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, token)

	if compact == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformed)
	}

	var lastErr error
	for _, enc := range decodings {
		b, err := enc.DecodeString(compact)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w: %v", ErrMalformed, lastErr)
}
