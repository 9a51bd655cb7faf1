package chat

import (
	"strings"

	"github.com/samber/lo"
)

// Config holds the engine settings: seed rooms, default room and history bounds.
type Config struct {
	Rooms         []string
	DefaultRoom   string
	HistoryCap    int
	HistoryWindow int
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Rooms:         []string{"general", "random", "help"},
		DefaultRoom:   "general",
		HistoryCap:    100,
		HistoryWindow: 50,
	}
}

func sanitizeConfig(cfg Config) Config {
	defaults := DefaultConfig()

	rooms := lo.Uniq(lo.Compact(lo.Map(cfg.Rooms, func(r string, _ int) string {
		return strings.TrimSpace(r)
	})))
	if len(rooms) == 0 {
		rooms = defaults.Rooms
	}

	cfg.DefaultRoom = strings.TrimSpace(cfg.DefaultRoom)
	if cfg.DefaultRoom == "" {
		cfg.DefaultRoom = rooms[0]
	}
	if !lo.Contains(rooms, cfg.DefaultRoom) {
		rooms = append([]string{cfg.DefaultRoom}, rooms...)
	}
	cfg.Rooms = rooms

	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = defaults.HistoryCap
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = defaults.HistoryWindow
	}
	if cfg.HistoryWindow > cfg.HistoryCap {
		cfg.HistoryWindow = cfg.HistoryCap
	}
	return cfg
}
