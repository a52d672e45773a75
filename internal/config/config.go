package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env       string          `yaml:"env" env:"ENV" env-default:"local"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Presence  PresenceConfig  `yaml:"presence"`
	Janitor   JanitorConfig   `yaml:"janitor"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Notify    NotifyConfig    `yaml:"notify"`
	WebRTC    WebRTCConfig    `yaml:"webrtc"`
}

type HTTPConfig struct {
	Address         string        `yaml:"address" env:"HTTP_ADDRESS" env-default:""`
	AllowOrigins    []string      `yaml:"allow_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"30s"`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver" env:"DB_DRIVER" env-default:"postgres"`
	DSN             string        `yaml:"dsn" env:"DB_DSN"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env-default:"10"`
	MaxOpenConns    int           `yaml:"max_open_conns" env-default:"25"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env-default:"30m"`
}

type PresenceConfig struct {
	// ExpiryWindow is how long an empty room survives before it is reclaimed.
	ExpiryWindow time.Duration `yaml:"expiry_window" env-default:"15m"`
}

type JanitorConfig struct {
	Schedule     string        `yaml:"schedule" env-default:"@every 5m"`
	SweepTimeout time.Duration `yaml:"sweep_timeout" env-default:"1m"`
}

type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" env-default:"1024"`
	WriteBufferSize int           `yaml:"write_buffer_size" env-default:"1024"`
	SendQueueSize   int           `yaml:"send_queue_size" env-default:"64"`
	MaxMessageSize  int64         `yaml:"max_message_size" env-default:"65536"`
	PongWait        time.Duration `yaml:"pong_wait" env-default:"2m"`
	PingPeriod      time.Duration `yaml:"ping_period" env-default:"1m"`
	WriteWait       time.Duration `yaml:"write_wait" env-default:"10s"`
}

type NotifyConfig struct {
	Workers   int `yaml:"workers" env-default:"2"`
	QueueSize int `yaml:"queue_size" env-default:"128"`
}

type WebRTCConfig struct {
	STUNServers []string `yaml:"stun_servers" env-default:""`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	cfg.setDefaults()

	return &cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	if res == "" {
		res = "config/local.yaml"
	}

	return res
}

func (c *Config) setDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if len(c.HTTP.AllowOrigins) == 0 {
		c.HTTP.AllowOrigins = []string{"http://localhost:3000"}
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 30 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Presence.ExpiryWindow <= 0 {
		c.Presence.ExpiryWindow = 15 * time.Minute
	}
	if c.Janitor.Schedule == "" {
		c.Janitor.Schedule = "@every 5m"
	}
	if c.Janitor.SweepTimeout <= 0 {
		c.Janitor.SweepTimeout = time.Minute
	}
	if c.WebSocket.SendQueueSize <= 0 {
		c.WebSocket.SendQueueSize = 64
	}
	if c.WebSocket.PongWait <= 0 {
		c.WebSocket.PongWait = 2 * time.Minute
	}
	// pings must arrive before the peer's read deadline expires
	if c.WebSocket.PingPeriod <= 0 || c.WebSocket.PingPeriod >= c.WebSocket.PongWait {
		c.WebSocket.PingPeriod = c.WebSocket.PongWait * 9 / 10
	}
	if c.WebSocket.WriteWait <= 0 {
		c.WebSocket.WriteWait = 10 * time.Second
	}
	if c.Notify.Workers <= 0 {
		c.Notify.Workers = 1
	}
	if c.Notify.QueueSize <= 0 {
		c.Notify.QueueSize = 128
	}
	if len(c.WebRTC.STUNServers) == 0 {
		c.WebRTC.STUNServers = []string{"stun:stun.l.google.com:19302"}
	}
}
