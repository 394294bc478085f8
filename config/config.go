package config

import (
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Game    GameConfig    `mapstructure:"game"`
	Saves   SavesConfig   `mapstructure:"saves"`
	Archive ArchiveConfig `mapstructure:"archive"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	MonitorAddress string `mapstructure:"monitor_address"`
}

type GameConfig struct {
	DefaultTurnSeconds int `mapstructure:"default_turn_seconds"`
	MinPlayers         int `mapstructure:"min_players"`
	MaxPlayers         int `mapstructure:"max_players"`
}

type SavesConfig struct {
	Dir        string `mapstructure:"dir"`
	HistoryCap int    `mapstructure:"history_cap"`
}

// ArchiveConfig configures the optional finished-game archive. The archive
// is disabled when Host is empty.
type ArchiveConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

func setDefaults() {
	viper.SetDefault("server.http_address", ":8000")
	viper.SetDefault("server.monitor_address", ":9100")
	viper.SetDefault("game.default_turn_seconds", 60)
	viper.SetDefault("game.min_players", 3)
	viper.SetDefault("game.max_players", 4)
	viper.SetDefault("saves.dir", "saves")
	viper.SetDefault("saves.history_cap", 64)
	viper.SetDefault("archive.port", 5432)
}

func LoadConfig(path string) (config *Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()
	setDefaults()

	err = viper.ReadInConfig()
	if err != nil {
		// A missing config file is fine, defaults apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	err = viper.Unmarshal(&config)
	return
}
