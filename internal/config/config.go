// Package config loads all bot configuration from environment variables,
// with an optional .env file for local development.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the bot. Role tables use a
// "threshold:Role Name" comma-separated format.
type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN,required,notEmpty"`
	GuildID      string `env:"GUILD_ID"`

	// DatabaseDSN selects the PostgreSQL store when set; empty means the
	// JSON file store at DataFile.
	DatabaseDSN string `env:"DATABASE_DSN"`
	DataFile    string `env:"DATA_FILE" envDefault:"data/levels.json"`
	MarkerFile  string `env:"MARKER_FILE" envDefault:"data/rotation.marker"`

	NotifyChannelID string `env:"NOTIFY_CHANNEL_ID"`
	KeepAliveAddr   string `env:"KEEPALIVE_ADDR" envDefault:":5000"`

	CooldownSeconds      int `env:"COOLDOWN_SECONDS" envDefault:"10"`
	DailyBonusXP         int `env:"DAILY_BONUS_XP" envDefault:"100"`
	MessageXPMin         int `env:"MESSAGE_XP_MIN" envDefault:"5"`
	MessageXPMax         int `env:"MESSAGE_XP_MAX" envDefault:"20"`
	VoiceXP              int `env:"VOICE_XP" envDefault:"10"`
	VoiceIntervalSeconds int `env:"VOICE_INTERVAL_SECONDS" envDefault:"300"`

	RotationWeekday  string `env:"ROTATION_WEEKDAY" envDefault:"Monday"`
	RotationHour     int    `env:"ROTATION_HOUR" envDefault:"18"`
	RotationMinute   int    `env:"ROTATION_MINUTE" envDefault:"0"`
	RotationTimezone string `env:"ROTATION_TIMEZONE" envDefault:"UTC"`

	TierRoles        string `env:"TIER_ROLES" envDefault:"1:MEMBER Lite,10:MEMBER,30:CORE,50:SELECT,75:PREMIUM,100:VIP Lite,200:VIP"`
	AchievementRoles string `env:"ACHIEVEMENT_ROLES" envDefault:"3:PHOTO+"`
	ChampionRoles    string `env:"CHAMPION_ROLES" envDefault:"1:Weekly Champion,2:Weekly Runner-up,3:Weekly Third"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// .env file is optional, continue with environment variables
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MessageXPMin < 0 || c.MessageXPMax < c.MessageXPMin {
		return fmt.Errorf("invalid message xp range %d-%d", c.MessageXPMin, c.MessageXPMax)
	}
	if c.VoiceXP < 0 || c.DailyBonusXP < 0 {
		return fmt.Errorf("xp amounts must be non-negative")
	}
	if c.CooldownSeconds < 0 || c.VoiceIntervalSeconds <= 0 {
		return fmt.Errorf("invalid cooldown or voice interval")
	}
	if c.RotationHour < 0 || c.RotationHour > 23 || c.RotationMinute < 0 || c.RotationMinute > 59 {
		return fmt.Errorf("invalid rotation time %02d:%02d", c.RotationHour, c.RotationMinute)
	}
	if _, err := ParseWeekday(c.RotationWeekday); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.RotationTimezone); err != nil {
		return fmt.Errorf("invalid rotation timezone %q: %w", c.RotationTimezone, err)
	}
	for _, table := range []string{c.TierRoles, c.AchievementRoles, c.ChampionRoles} {
		if _, err := ParseRoleTable(table); err != nil {
			return err
		}
	}
	return nil
}

// Cooldown returns the chat XP cooldown interval.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// VoiceInterval returns the presence-loop grant interval.
func (c *Config) VoiceInterval() time.Duration {
	return time.Duration(c.VoiceIntervalSeconds) * time.Second
}

// RotationLocation returns the rotation timezone, validated at load time.
func (c *Config) RotationLocation() *time.Location {
	loc, err := time.LoadLocation(c.RotationTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TierTable returns the parsed level-to-tier-role table.
func (c *Config) TierTable() map[int]string {
	table, _ := ParseRoleTable(c.TierRoles)
	return table
}

// AchievementTable returns the parsed level-to-achievement-role table.
func (c *Config) AchievementTable() map[int]string {
	table, _ := ParseRoleTable(c.AchievementRoles)
	return table
}

// ChampionTable returns the parsed rank-to-champion-role table.
func (c *Config) ChampionTable() map[int]string {
	table, _ := ParseRoleTable(c.ChampionRoles)
	return table
}

// ParseWeekday parses an English weekday name.
func ParseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(s, d.String()) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}

// ParseRoleTable parses a "threshold:Role Name,threshold:Role Name" table.
func ParseRoleTable(s string) (map[int]string, error) {
	table := make(map[int]string)
	if strings.TrimSpace(s) == "" {
		return table, nil
	}
	for _, pair := range strings.Split(s, ",") {
		threshold, name, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("invalid role table entry %q", pair)
		}
		n, err := strconv.Atoi(strings.TrimSpace(threshold))
		if err != nil {
			return nil, fmt.Errorf("invalid role table threshold %q: %w", threshold, err)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("empty role name in entry %q", pair)
		}
		table[n] = name
	}
	return table, nil
}
