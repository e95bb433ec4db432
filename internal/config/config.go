package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	cp "github.com/otiai10/copy"
	"gopkg.in/yaml.v3"
)

var (
	cfgMux  sync.RWMutex
	Raidbot *RaidbotCfg
	Version = "dev"
)

const (
	ModeHandsOff = "hands-off"
	ModePerTurn  = "per-turn"

	defaultConfigPath = "config/raidbot.yaml"
	defaultServerPort = 8087
)

type RaidbotCfg struct {
	Debug struct {
		Log bool `yaml:"log"`
	} `yaml:"debug"`
	LogSaveDirectory string     `yaml:"logSaveDirectory"`
	Browser          BrowserCfg `yaml:"browser"`
	Battle           BattleCfg  `yaml:"battle"`
	Runner           RunnerCfg  `yaml:"runner"`
	Markers          Markers    `yaml:"markers"`
	Server           struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"server"`
	Discord struct {
		Enabled    bool   `yaml:"enabled"`
		ChannelID  string `yaml:"channelId"`
		Token      string `yaml:"token"`
		UseWebhook bool   `yaml:"useWebhook"`
		WebhookURL string `yaml:"webhookUrl"`
		// BotAdmins are the user IDs allowed to send commands.
		BotAdmins       []string `yaml:"botAdmins"`
		NotifyVictories bool     `yaml:"notifyVictories"`
	} `yaml:"discord"`
	Telegram struct {
		Enabled         bool   `yaml:"enabled"`
		ChatID          int64  `yaml:"chatId"`
		Token           string `yaml:"token"`
		NotifyVictories bool   `yaml:"notifyVictories"`
	} `yaml:"telegram"`
	Ngrok struct {
		Enabled       bool   `yaml:"enabled"`
		SendURL       bool   `yaml:"sendUrl"`
		Authtoken     string `yaml:"authtoken"`
		Region        string `yaml:"region"`
		Domain        string `yaml:"domain"`
		BasicAuthUser string `yaml:"basicAuthUser"`
		BasicAuthPass string `yaml:"basicAuthPass"`
	} `yaml:"ngrok"`
}

type BrowserCfg struct {
	// ControlURL attaches to an already running browser (DevTools websocket).
	// When empty a browser is launched.
	ControlURL  string `yaml:"controlUrl"`
	Headless    bool   `yaml:"headless"`
	UserDataDir string `yaml:"userDataDir"`
	BattleURL   string `yaml:"battleUrl"`
}

type BattleCfg struct {
	Mode             string `yaml:"mode"`
	MaxBattleMinutes int    `yaml:"maxBattleMinutes"`
	HonorTarget      int    `yaml:"honorTarget"`
	TrackHonors      bool   `yaml:"trackHonors"`
	FastRefresh      bool   `yaml:"fastRefresh"`
	StallThresholdMs int    `yaml:"stallThresholdMs"`
}

type RunnerCfg struct {
	MaxEncounters int `yaml:"maxEncounters"` // 0 = until stopped
	IdleBetweenMs int `yaml:"idleBetweenMs"`
}

func Load() error {
	cfg, err := LoadFile(getAbsPath(defaultConfigPath))
	if err != nil {
		return err
	}

	cfgMux.Lock()
	Raidbot = cfg
	cfgMux.Unlock()
	return nil
}

// LoadFile reads, defaults and validates one configuration file. Secrets left
// empty in the file are taken from the environment (and a .env file next to
// the binary, when present).
func LoadFile(path string) (*RaidbotCfg, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error loading %s: %w", filepath.Base(path), err)
	}
	defer r.Close()

	cfg := &RaidbotCfg{}
	d := yaml.NewDecoder(r)
	if err = d.Decode(cfg); err != nil {
		return nil, fmt.Errorf("error reading config %s: %w", path, err)
	}

	if err = godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env: %w", err)
	}
	applyEnv(cfg)
	applyDefaults(cfg)

	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *RaidbotCfg) {
	if cfg.Discord.Token == "" {
		cfg.Discord.Token = os.Getenv("RAIDBOT_DISCORD_TOKEN")
	}
	if cfg.Discord.WebhookURL == "" {
		cfg.Discord.WebhookURL = os.Getenv("RAIDBOT_DISCORD_WEBHOOK_URL")
	}
	if cfg.Telegram.Token == "" {
		cfg.Telegram.Token = os.Getenv("RAIDBOT_TELEGRAM_TOKEN")
	}
	if cfg.Browser.ControlURL == "" {
		cfg.Browser.ControlURL = os.Getenv("RAIDBOT_BROWSER_CONTROL_URL")
	}
}

func applyDefaults(cfg *RaidbotCfg) {
	if cfg.Battle.Mode == "" {
		cfg.Battle.Mode = ModeHandsOff
	}
	if cfg.Battle.MaxBattleMinutes <= 0 {
		cfg.Battle.MaxBattleMinutes = 15
	}
	if cfg.Battle.StallThresholdMs <= 0 {
		cfg.Battle.StallThresholdMs = 12000
	}
	if cfg.Battle.HonorTarget > 0 {
		cfg.Battle.TrackHonors = true
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = defaultServerPort
	}
	if cfg.LogSaveDirectory == "" {
		cfg.LogSaveDirectory = "logs"
	}
	cfg.Discord.ChannelID = strings.TrimSpace(cfg.Discord.ChannelID)
	cfg.Discord.WebhookURL = strings.TrimSpace(cfg.Discord.WebhookURL)
	cfg.Markers = cfg.Markers.withDefaults()
}

func (c *RaidbotCfg) Validate() error {
	switch c.Battle.Mode {
	case ModeHandsOff, ModePerTurn:
	default:
		return fmt.Errorf("invalid battle mode %q, expected %q or %q", c.Battle.Mode, ModeHandsOff, ModePerTurn)
	}
	if c.Battle.HonorTarget < 0 {
		return fmt.Errorf("honorTarget must be >= 0, got %d", c.Battle.HonorTarget)
	}
	if c.Discord.Enabled && c.Discord.UseWebhook && c.Discord.WebhookURL == "" {
		return errors.New("discord webhook mode requires webhookUrl")
	}
	if c.Discord.Enabled && !c.Discord.UseWebhook && c.Discord.Token == "" {
		return errors.New("discord bot mode requires a token")
	}
	if c.Telegram.Enabled && (c.Telegram.Token == "" || c.Telegram.ChatID == 0) {
		return errors.New("telegram requires token and chatId")
	}
	return nil
}

// CreateFromTemplate seeds the config folder from config/template when no
// raidbot.yaml exists yet. It reports whether anything was copied.
func CreateFromTemplate() (bool, error) {
	target := getAbsPath(defaultConfigPath)
	if _, err := os.Stat(target); err == nil {
		return false, nil
	}

	configDir := filepath.Dir(target)
	if err := cp.Copy(filepath.Join(configDir, "template"), configDir); err != nil {
		return false, fmt.Errorf("error copying config template: %w", err)
	}
	return true, nil
}

func getAbsPath(relPath string) string {
	if filepath.IsAbs(relPath) {
		return relPath
	}
	exe, err := os.Executable()
	if err != nil {
		return relPath
	}
	candidate := filepath.Join(filepath.Dir(exe), relPath)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return relPath
}
