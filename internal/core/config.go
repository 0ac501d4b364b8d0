package core

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains all of the configuration options available to the server.
// It is constructed once at startup and injected into every component that
// needs it; nothing reads viper directly after loading.
type Config struct {
	// Hostname or IP address on which the server will listen for connections.
	Hostname string `mapstructure:"hostname"`
	// Maximum number of concurrent connections the server will allow.
	MaxConnections int `mapstructure:"max_connections"`
	// Base URL of the external authentication/profile service.
	AuthServerURL string `mapstructure:"auth_server"`
	// Base URL of the external deck inventory service.
	DeckServerURL string `mapstructure:"deck_server"`

	GameServer struct {
		// Port on which the game server will listen.
		Port int `mapstructure:"port"`
		// Interval between game state broadcast ticks.
		BroadcastInterval time.Duration `mapstructure:"broadcast_interval"`
		// How long a disconnected player's record is retained before the
		// seat is released.
		DisconnectedRetention time.Duration `mapstructure:"disconnected_retention"`
	} `mapstructure:"game_server"`

	Logging struct {
		// Minimum level of a log required to be written. Options: debug, info, warn, error
		LogLevel string `mapstructure:"log_level"`
		// Full path to file to which logs will be written. Blank will write to stdout.
		LogFilePath string `mapstructure:"log_file_path"`
	} `mapstructure:"logging"`

	Database struct {
		// Path to the sqlite file backing the session store.
		Filename string `mapstructure:"filename"`
	} `mapstructure:"database"`

	Debugging struct {
		// Log decoded packets to stdout.
		PacketLoggingEnabled bool `mapstructure:"packet_logging_enabled"`
	} `mapstructure:"debugging"`
}

const envVarPrefix = "ARCANA"

// LoadConfig initializes Viper with the contents of the config file under configPath.
func LoadConfig(configPath string) *Config {
	viper.AddConfigPath(configPath)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix(envVarPrefix)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("error reading config file: %v\n", err)
		os.Exit(1)
	}

	// This allows us to set nested yaml config options through environment
	// variables. For example, game_server.port can be set using: <envVarPrefix>_GAME_SERVER_PORT
	for _, k := range viper.AllKeys() {
		envVar := strings.ReplaceAll(strings.ToUpper(k), ".", "_")
		if err := viper.BindEnv(k, envVarPrefix+"_"+envVar); err != nil {
			fmt.Printf("error binding %s to %s\n", k, envVarPrefix+"_"+envVar)
			os.Exit(1)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		fmt.Printf("error unmarshaling config object: %v\n", err)
		os.Exit(1)
	}

	if config.GameServer.BroadcastInterval == 0 {
		config.GameServer.BroadcastInterval = time.Second
	}
	if config.GameServer.DisconnectedRetention == 0 {
		config.GameServer.DisconnectedRetention = 5 * time.Minute
	}

	return config
}

// GameServerAddress returns the full listen address for the game server.
func (c *Config) GameServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Hostname, c.GameServer.Port)
}
