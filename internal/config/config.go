package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Addr     string
		LogLevel string
	}
	Auth struct {
		Secret   string
		TokenTTL time.Duration
	}
	Session struct {
		Timeout          time.Duration
		ListenAfterSpeak bool
	}
	Segmenter struct {
		StartThreshold float64
		EndThreshold   float64
		MinStartBlocks int
		SilenceHold    time.Duration
		PreRoll        time.Duration
		BlockDuration  time.Duration
	}
	Interrupt struct {
		Enabled   bool
		Threshold float64
		GuardMs   int
	}
	Transport struct {
		BackoffBase   time.Duration
		BackoffFactor float64
		BackoffCap    time.Duration
		MaxAttempts   int
		SeqTolerance  int
	}
	Providers struct {
		ASR   string
		Agent string
		TTS   string

		ASRURL   string
		ASRKey   string
		AgentURL string
		AgentKey string
		TTSURL   string
		TTSKey   string
		Voice    string
	}
}

func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.log_level", "info")

	v.SetDefault("auth.token_ttl_min", 720)

	v.SetDefault("session.timeout_s", 300)
	v.SetDefault("session.listen_after_speak", true)

	v.SetDefault("segmenter.start_threshold", 1200.0)
	v.SetDefault("segmenter.end_threshold", 700.0)
	v.SetDefault("segmenter.min_start_blocks", 2)
	v.SetDefault("segmenter.silence_hold_ms", 600)
	v.SetDefault("segmenter.pre_roll_ms", 250)
	v.SetDefault("segmenter.block_ms", 20)

	v.SetDefault("interrupt.enabled", true)
	v.SetDefault("interrupt.threshold", 0.0) // 0 = inherit segmenter threshold
	v.SetDefault("interrupt.guard_ms", 500)

	v.SetDefault("transport.backoff_base_ms", 1000)
	v.SetDefault("transport.backoff_factor", 2.0)
	v.SetDefault("transport.backoff_cap_ms", 30000)
	v.SetDefault("transport.max_attempts", 3)
	v.SetDefault("transport.seq_tolerance", 64)

	v.SetDefault("providers.asr", "sim")
	v.SetDefault("providers.agent", "sim")
	v.SetDefault("providers.tts", "sim")

	// Map envs
	v.BindEnv("server.addr", "VOICE_ADDR")
	v.BindEnv("server.log_level", "LOG_LEVEL")

	v.BindEnv("auth.secret", "VOICE_AUTH_SECRET")
	v.BindEnv("auth.token_ttl_min", "VOICE_TOKEN_TTL_MIN")

	v.BindEnv("session.timeout_s", "VOICE_SESSION_TIMEOUT_S")
	v.BindEnv("session.listen_after_speak", "VOICE_LISTEN_AFTER_SPEAK")

	v.BindEnv("segmenter.start_threshold", "VAD_START_THRESHOLD")
	v.BindEnv("segmenter.end_threshold", "VAD_END_THRESHOLD")
	v.BindEnv("segmenter.min_start_blocks", "VAD_MIN_START_BLOCKS")
	v.BindEnv("segmenter.silence_hold_ms", "VAD_SILENCE_HOLD_MS")
	v.BindEnv("segmenter.pre_roll_ms", "VAD_PRE_ROLL_MS")
	v.BindEnv("segmenter.block_ms", "VAD_BLOCK_MS")

	v.BindEnv("interrupt.enabled", "INTERRUPT_ENABLED")
	v.BindEnv("interrupt.threshold", "INTERRUPT_THRESHOLD")
	v.BindEnv("interrupt.guard_ms", "INTERRUPT_GUARD_MS")

	v.BindEnv("transport.backoff_base_ms", "TRANSPORT_BACKOFF_BASE_MS")
	v.BindEnv("transport.backoff_factor", "TRANSPORT_BACKOFF_FACTOR")
	v.BindEnv("transport.backoff_cap_ms", "TRANSPORT_BACKOFF_CAP_MS")
	v.BindEnv("transport.max_attempts", "TRANSPORT_MAX_ATTEMPTS")
	v.BindEnv("transport.seq_tolerance", "TRANSPORT_SEQ_TOLERANCE")

	v.BindEnv("providers.asr", "VOICE_ASR_PROVIDER")
	v.BindEnv("providers.agent", "VOICE_AGENT_PROVIDER")
	v.BindEnv("providers.tts", "VOICE_TTS_PROVIDER")
	v.BindEnv("providers.asr_url", "VOICE_ASR_URL")
	v.BindEnv("providers.asr_key", "VOICE_ASR_KEY")
	v.BindEnv("providers.agent_url", "VOICE_AGENT_URL")
	v.BindEnv("providers.agent_key", "VOICE_AGENT_KEY")
	v.BindEnv("providers.tts_url", "VOICE_TTS_URL")
	v.BindEnv("providers.tts_key", "VOICE_TTS_KEY")
	v.BindEnv("providers.voice", "VOICE_TTS_VOICE")

	var c Config
	c.Server.Addr = v.GetString("server.addr")
	c.Server.LogLevel = v.GetString("server.log_level")

	c.Auth.Secret = v.GetString("auth.secret")
	c.Auth.TokenTTL = time.Duration(v.GetInt("auth.token_ttl_min")) * time.Minute

	c.Session.Timeout = time.Duration(v.GetInt("session.timeout_s")) * time.Second
	c.Session.ListenAfterSpeak = v.GetBool("session.listen_after_speak")

	c.Segmenter.StartThreshold = v.GetFloat64("segmenter.start_threshold")
	c.Segmenter.EndThreshold = v.GetFloat64("segmenter.end_threshold")
	c.Segmenter.MinStartBlocks = v.GetInt("segmenter.min_start_blocks")
	c.Segmenter.SilenceHold = time.Duration(v.GetInt("segmenter.silence_hold_ms")) * time.Millisecond
	c.Segmenter.PreRoll = time.Duration(v.GetInt("segmenter.pre_roll_ms")) * time.Millisecond
	c.Segmenter.BlockDuration = time.Duration(v.GetInt("segmenter.block_ms")) * time.Millisecond

	c.Interrupt.Enabled = v.GetBool("interrupt.enabled")
	c.Interrupt.Threshold = v.GetFloat64("interrupt.threshold")
	if c.Interrupt.Threshold == 0 {
		c.Interrupt.Threshold = c.Segmenter.StartThreshold
	}
	c.Interrupt.GuardMs = v.GetInt("interrupt.guard_ms")

	c.Transport.BackoffBase = time.Duration(v.GetInt("transport.backoff_base_ms")) * time.Millisecond
	c.Transport.BackoffFactor = v.GetFloat64("transport.backoff_factor")
	c.Transport.BackoffCap = time.Duration(v.GetInt("transport.backoff_cap_ms")) * time.Millisecond
	c.Transport.MaxAttempts = v.GetInt("transport.max_attempts")
	c.Transport.SeqTolerance = v.GetInt("transport.seq_tolerance")

	c.Providers.ASR = v.GetString("providers.asr")
	c.Providers.Agent = v.GetString("providers.agent")
	c.Providers.TTS = v.GetString("providers.tts")
	c.Providers.ASRURL = v.GetString("providers.asr_url")
	c.Providers.ASRKey = v.GetString("providers.asr_key")
	c.Providers.AgentURL = v.GetString("providers.agent_url")
	c.Providers.AgentKey = v.GetString("providers.agent_key")
	c.Providers.TTSURL = v.GetString("providers.tts_url")
	c.Providers.TTSKey = v.GetString("providers.tts_key")
	c.Providers.Voice = v.GetString("providers.voice")

	return c
}
