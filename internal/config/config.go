// Package config loads relaybot's runtime configuration from the
// environment, the same unadorned read-validate-build style minimega's
// main.go uses for its flag.String/flag.Int table, but sourced from
// env vars per the bot's original environment-driven configuration
// (original_source/src/config.h, src/insobot.c).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	defaultNick        = "fake-relaybot"
	defaultPort        = 6667
	defaultControlChar = "!"
	defaultRateLimitMS = 1500
	defaultQueueMax    = 32
	defaultBotOwner    = "relaybot-owner"
)

// Config is the fully resolved, validated runtime configuration.
type Config struct {
	Nick         string
	Pass         string
	Server       string
	Port         int
	Channels     []string
	Admin        string
	NickservPass string
	IsTwitch     bool
	InstanceID   string

	ControlChar  string
	ControlChar2 string
	BotOwner     string
	ScheduleURL  string

	RateLimitMS int
	QueueMax    int

	ModuleDir string
	DataDir   string
	LogLevel  string
	LogFile   string

	NoStdin bool

	// IPCPeers maps peer id -> unix datagram socket path, parsed from
	// "id1=/path/to/sock,id2=/path" in IPC_PEERS.
	IPCPeers map[string]string
}

// Load reads the environment and returns a validated Config, or a
// startup-fatal error describing the first missing/invalid setting.
func Load() (*Config, error) {
	c := &Config{
		Nick:         getenv("IRC_USER", defaultNick),
		Pass:         os.Getenv("IRC_PASS"),
		Server:       os.Getenv("IRC_SERV"),
		Admin:        os.Getenv("IRC_ADMIN"),
		NickservPass: os.Getenv("IRC_NICKSERV_PASS"),
		IsTwitch:     os.Getenv("IRC_IS_TWITCH") != "",
		InstanceID:   os.Getenv("INSOBOT_ID"),

		ControlChar:  getenv("CONTROL_CHAR", defaultControlChar),
		ControlChar2: getenv("CONTROL_CHAR_2", defaultControlChar),
		BotOwner:     getenv("BOT_OWNER", defaultBotOwner),
		ScheduleURL:  os.Getenv("SCHEDULE_URL"),

		ModuleDir: getenv("MODULE_DIR", "./modules"),
		DataDir:   getenv("DATA_DIR", "./data"),
		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFile:   os.Getenv("LOG_FILE"),
	}

	if c.Server == "" {
		return nil, fmt.Errorf("IRC_SERV is required")
	}

	port, err := intEnv("IRC_PORT", defaultPort)
	if err != nil {
		return nil, err
	}
	c.Port = port

	if raw := os.Getenv("IRC_CHAN"); raw != "" {
		c.Channels = splitChannels(raw)
	}

	rate, err := intEnv("RATE_LIMIT_MS", defaultRateLimitMS)
	if err != nil {
		return nil, err
	}
	c.RateLimitMS = rate

	qmax, err := intEnv("QUEUE_MAX", defaultQueueMax)
	if err != nil {
		return nil, err
	}
	c.QueueMax = qmax

	c.IPCPeers = parsePeers(os.Getenv("IPC_PEERS"))

	return c, nil
}

func parsePeers(raw string) map[string]string {
	peers := make(map[string]string)
	if raw == "" {
		return peers
	}
	for _, entry := range strings.Split(raw, ",") {
		kv := strings.SplitN(entry, "=", 2)
		if len(kv) == 2 && kv[0] != "" {
			peers[kv[0]] = kv[1]
		}
	}
	return peers
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// splitChannels accepts comma and/or space separated channel lists.
func splitChannels(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' '
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
