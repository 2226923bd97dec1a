package rtc

import (
	"fmt"

	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// DefaultICEServers is used when no ICE servers are configured.
var DefaultICEServers = []string{"stun:stun.l.google.com:19302"}

// ICEConfig is the peer connection configuration handed to clients before
// they start negotiating with each other.
type ICEConfig struct {
	servers []webrtc.ICEServer
}

// NewICEConfig validates every URL. TURN servers get the shared credentials;
// STUN servers never carry any.
func NewICEConfig(urls []string, username, credential string) (*ICEConfig, error) {
	if len(urls) == 0 {
		urls = DefaultICEServers
	}
	cfg := &ICEConfig{}
	for _, raw := range urls {
		u, err := stun.ParseURI(raw)
		if err != nil {
			return nil, fmt.Errorf("ice server %q: %w", raw, err)
		}
		srv := webrtc.ICEServer{URLs: []string{raw}}
		if u.Scheme == stun.SchemeTypeTURN || u.Scheme == stun.SchemeTypeTURNS {
			if username == "" || credential == "" {
				return nil, fmt.Errorf("ice server %q: turn requires username and credential", raw)
			}
			srv.Username = username
			srv.Credential = credential
		}
		cfg.servers = append(cfg.servers, srv)
	}
	log.Info().Str("module", "rtc").Int("servers", len(cfg.servers)).Msg("ice config")
	return cfg, nil
}

func (c *ICEConfig) Configuration() webrtc.Configuration {
	servers := make([]webrtc.ICEServer, len(c.servers))
	copy(servers, c.servers)
	return webrtc.Configuration{ICEServers: servers}
}
