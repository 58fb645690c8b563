package config

import (
	"time"

	"github.com/pion/webrtc/v4"
	pkgconfig "github.com/weiawesome/wes-io-live/peer-relay/pkg/config"
)

type Config struct {
	Relay  RelayConfig
	User   UserConfig
	WebRTC WebRTCConfig
	Peers  PeersConfig
	Log    LogConfig
}

type RelayConfig struct {
	URL           string        `mapstructure:"url"`
	ReconnectBase time.Duration `mapstructure:"-"`
	ReconnectMax  time.Duration `mapstructure:"-"`
}

type UserConfig struct {
	Name string `mapstructure:"name"`
}

type WebRTCConfig struct {
	ICEServers []ICEServerConfig `mapstructure:"ice_servers"`
}

type ICEServerConfig struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type PeersConfig struct {
	Max                int           `mapstructure:"max"`
	NegotiationTimeout time.Duration `mapstructure:"-"`
	ReapInterval       time.Duration `mapstructure:"-"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// Load reads peer configuration from ./config/peer.yaml (optional) and the
// environment.
func Load(file string) (*Config, error) {
	v, err := pkgconfig.Load("./config", "peer", pkgconfig.WithFile(file))
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("relay.url", "ws://localhost:5000/ws")
	v.SetDefault("relay.reconnect_base", "3s")
	v.SetDefault("relay.reconnect_max", "30s")
	v.SetDefault("user.name", "anon")
	v.SetDefault("webrtc.ice_servers", []map[string]interface{}{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})
	v.SetDefault("peers.max", 50)
	v.SetDefault("peers.negotiation_timeout", "30s")
	v.SetDefault("peers.reap_interval", "5s")
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.pretty", true)

	// Override from environment
	v.BindEnv("relay.url", "RELAY_URL")
	v.BindEnv("user.name", "PEER_NAME")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Relay.ReconnectBase = pkgconfig.Duration(v, "relay.reconnect_base", 3*time.Second)
	cfg.Relay.ReconnectMax = pkgconfig.Duration(v, "relay.reconnect_max", 30*time.Second)
	cfg.Peers.NegotiationTimeout = pkgconfig.Duration(v, "peers.negotiation_timeout", 30*time.Second)
	cfg.Peers.ReapInterval = pkgconfig.Duration(v, "peers.reap_interval", 5*time.Second)

	return &cfg, nil
}

// GetICEServers converts the configured servers for pion.
func (c *WebRTCConfig) GetICEServers() []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		if len(s.URLs) == 0 {
			continue
		}
		server := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
		}
		servers = append(servers, server)
	}
	return servers
}
