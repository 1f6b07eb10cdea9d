package media

// Config is the [media] section of the configuration file. Local capture is
// fed as RTP on UDP, for example by ffmpeg or gstreamer.
type Config struct {
	VideoAddr       string `toml:"video"`
	SystemAudioAddr string `toml:"systemaudio"`
	MicrophoneAddr  string `toml:"microphone"`
	// IdleTimeout in seconds ends a source that stopped sending. Zero disables it.
	IdleTimeout int `toml:"idletimeout"`
	// SinkVideoAddr and SinkAudioAddr receive the remote peer's media as RTP.
	SinkVideoAddr string `toml:"sinkvideo"`
	SinkAudioAddr string `toml:"sinkaudio"`
}

func DefaultConfig() Config {
	return Config{
		VideoAddr:       "127.0.0.1:5004",
		SystemAudioAddr: "127.0.0.1:5006",
		MicrophoneAddr:  "127.0.0.1:5008",
		IdleTimeout:     5,
		SinkVideoAddr:   "127.0.0.1:6004",
		SinkAudioAddr:   "127.0.0.1:6006",
	}
}
