// Package config loads server configuration from a JSON file, overlaying the
// defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Rule is one endpoint's rate limit: max requests per sliding window.
type Rule struct {
	MaxRequests   int `json:"max_requests"`
	WindowSeconds int `json:"window_seconds"`
}

// Config is the full server configuration.
type Config struct {
	Server struct {
		Port    int `json:"port"`
		Threads int `json:"threads"`
	} `json:"server"`

	Game struct {
		MapWidth         int `json:"map_width"`
		MapHeight        int `json:"map_height"`
		RoundTimeMs      int `json:"round_time_ms"`
		InitialLength    int `json:"initial_length"`
		InvincibleRounds int `json:"invincible_rounds"`
		SafeRadius       int `json:"safe_radius"`
		TargetFoodCount  int `json:"target_food_count"`
	} `json:"game"`

	Auth struct {
		ValidationText      string `json:"validation_text"`
		UniversalPaste      string `json:"universal_paste"`
		AllowUniversalPaste bool   `json:"allow_universal_paste"`
		LuoguBaseURL        string `json:"luogu_base_url"`
		FetchTimeoutMs      int    `json:"fetch_timeout_ms"`
	} `json:"auth"`

	RateLimit struct {
		Login    Rule `json:"login"`
		Join     Rule `json:"join"`
		Move     Rule `json:"move"`
		Map      Rule `json:"map"`
		MapDelta Rule `json:"map_delta"`
	} `json:"rate_limit"`

	Database struct {
		Path string `json:"path"`
	} `json:"database"`

	Snapshot struct {
		Enabled     bool   `json:"enabled"`
		OutDir      string `json:"out_dir"`
		FlushRounds int    `json:"flush_rounds"`
	} `json:"snapshot"`
}

// Default returns the built-in configuration.
func Default() Config {
	var c Config
	c.Server.Port = 8080
	c.Server.Threads = 0 // 0 = leave GOMAXPROCS alone

	c.Game.MapWidth = 40
	c.Game.MapHeight = 30
	c.Game.RoundTimeMs = 500
	c.Game.InitialLength = 3
	c.Game.InvincibleRounds = 10
	c.Game.SafeRadius = 2
	c.Game.TargetFoodCount = 30

	c.Auth.ValidationText = "I am joining the snake arena"
	c.Auth.FetchTimeoutMs = 10000

	c.RateLimit.Login = Rule{MaxRequests: 5, WindowSeconds: 60}
	c.RateLimit.Join = Rule{MaxRequests: 10, WindowSeconds: 60}
	c.RateLimit.Move = Rule{MaxRequests: 20, WindowSeconds: 1}
	c.RateLimit.Map = Rule{MaxRequests: 30, WindowSeconds: 10}
	c.RateLimit.MapDelta = Rule{MaxRequests: 100, WindowSeconds: 10}

	c.Database.Path = "snake.db"

	c.Snapshot.Enabled = false
	c.Snapshot.OutDir = "snapshots"
	c.Snapshot.FlushRounds = 256
	return c
}

// Load reads a JSON config file over the defaults. A missing file is an
// error; pass "" to use the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
