package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	IrisBaseURL string
	IrisWSURL   string
	// IrisReadAttempts bounds retries of idempotent bridge reads such as GET /config.
	IrisReadAttempts int

	BotPrefix string

	XUserID    string
	XUserEmail string
	XSessionID string

	RedisURL    string
	DatabaseURL string

	AllowedRooms []string
	AdminUsers   []string

	// POTDRoom is the home community: the POTD is announced there and its members are polled.
	POTDRoom     string
	AnnounceRoom string

	CodeforcesBaseURL string
	SolvePollInterval time.Duration
	SubmissionLimit   int
	VerifyWindow      time.Duration
	Timezone          *time.Location

	EgressMode       string
	EgressDryRun     bool
	LeaderboardImage bool
	MessageDir       string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		CodeforcesBaseURL: "https://codeforces.com/api",
		SolvePollInterval: time.Minute,
		SubmissionLimit:   50,
		VerifyWindow:      30 * time.Second,
		EgressMode:        "http",
		IrisReadAttempts:  3,
	}

	cfg.IrisBaseURL = strings.TrimSpace(os.Getenv("IRIS_BASE_URL"))
	cfg.IrisWSURL = strings.TrimSpace(os.Getenv("IRIS_WS_URL"))
	cfg.BotPrefix = strings.TrimSpace(os.Getenv("BOT_PREFIX"))
	if v := strings.TrimSpace(os.Getenv("IRIS_READ_ATTEMPTS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.IrisReadAttempts = n
		}
	}

	cfg.XUserID = strings.TrimSpace(os.Getenv("X_USER_ID"))
	cfg.XUserEmail = strings.TrimSpace(os.Getenv("X_USER_EMAIL"))
	cfg.XSessionID = strings.TrimSpace(os.Getenv("X_SESSION_ID"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	cfg.AllowedRooms = splitList(os.Getenv("ALLOWED_ROOMS"))
	cfg.AdminUsers = splitList(os.Getenv("ADMIN_USERS"))

	cfg.POTDRoom = strings.TrimSpace(os.Getenv("POTD_ROOM"))
	cfg.AnnounceRoom = strings.TrimSpace(os.Getenv("ANNOUNCE_ROOM"))
	if cfg.AnnounceRoom == "" {
		cfg.AnnounceRoom = cfg.POTDRoom
	}

	if v := strings.TrimSpace(os.Getenv("CODEFORCES_BASE_URL")); v != "" {
		cfg.CodeforcesBaseURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(os.Getenv("SOLVE_POLL_INTERVAL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.SolvePollInterval = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("SUBMISSION_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SubmissionLimit = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("VERIFY_WINDOW")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.VerifyWindow = d
		}
	}

	tz := strings.TrimSpace(os.Getenv("BOT_TIMEZONE"))
	if tz == "" {
		tz = "Asia/Seoul"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, errors.New("BOT_TIMEZONE is not a valid IANA zone: " + tz)
	}
	cfg.Timezone = loc

	if v := strings.ToLower(strings.TrimSpace(os.Getenv("EGRESS_MODE"))); v != "" {
		cfg.EgressMode = v
	}
	cfg.EgressDryRun = parseBool(os.Getenv("EGRESS_DRYRUN"), false)
	cfg.LeaderboardImage = parseBool(os.Getenv("LEADERBOARD_IMAGE"), false)
	cfg.MessageDir = strings.TrimSpace(os.Getenv("MESSAGE_DIR"))

	if cfg.IrisBaseURL == "" {
		return nil, errors.New("IRIS_BASE_URL is required")
	}
	if cfg.IrisWSURL == "" {
		return nil, errors.New("IRIS_WS_URL is required")
	}
	if cfg.BotPrefix == "" {
		return nil, errors.New("BOT_PREFIX is required")
	}
	if cfg.POTDRoom == "" {
		return nil, errors.New("POTD_ROOM is required")
	}

	return cfg, nil
}

// IsAdmin reports whether userID may run admin-only commands.
func (c *AppConfig) IsAdmin(userID string) bool {
	userID = strings.TrimSpace(userID)
	if c == nil || userID == "" {
		return false
	}
	for _, a := range c.AdminUsers {
		if a == userID {
			return true
		}
	}
	return false
}

// RoomAllowed reports whether commands from room are handled. An empty allow list admits every room.
func (c *AppConfig) RoomAllowed(room string) bool {
	if c == nil || len(c.AllowedRooms) == 0 {
		return true
	}
	for _, r := range c.AllowedRooms {
		if r == room {
			return true
		}
	}
	return false
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseBool(v string, def bool) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
