package config

// Config is the full on-disk configuration. Decoding is strict: unknown
// fields are rejected so typos fail loudly at startup.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Web      WebConfig      `json:"web"`
	ESI      ESIConfig      `json:"esi"`
	Monitor  MonitorConfig  `json:"monitor"`
	History  HistoryConfig  `json:"history"`
	Digest   DigestConfig   `json:"digest"`
	Logging  LoggingConfig  `json:"logging"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// GuildChatID is the forum supergroup where per-character topics live.
	GuildChatID int64  `json:"guild_chat_id"`
	PollTimeout string `json:"poll_timeout"`
}

type WebConfig struct {
	Listen string `json:"listen"`
	// PublicURL is the externally reachable base URL of the OAuth
	// webserver, without trailing slash.
	PublicURL string `json:"public_url"`
}

type ESIConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RatePerSec   int    `json:"rate_per_sec"`
}

type MonitorConfig struct {
	StorageDir     string `json:"storage_dir"`
	RotationPeriod string `json:"rotation_period"`
	RetryLimit     int    `json:"retry_limit"`
}

// HistoryConfig selects the change-event log backend.
// Driver values: "file", "sqlite", or "none"/empty to disable.
type HistoryConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout"`
}

// DigestConfig schedules the daily training digest. An empty schedule
// disables the digest.
type DigestConfig struct {
	Schedule string `json:"schedule"`
}

type LoggingConfig struct {
	Level string            `json:"level"`
	File  LoggingFileConfig `json:"file"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}
