package relay

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// Well-known peer names the bot expects to find in the directory file.
const (
	PeerService  = "servicio_vip"
	PeerCodes    = "codigos_netflix"
	PeerReplacer = "vip_reemplazar"
)

// PeerConfig is one entry in the peers.yaml directory: a logical name, the
// peer's Telegram username (informational) and its chat id.
type PeerConfig struct {
	Name     string `yaml:"name"`
	Username string `yaml:"username"`
	ChatId   int64  `yaml:"chat_id"`
}

type PeersConfig struct {
	Peers []PeerConfig `yaml:"peers"`
}

func LoadPeerDirectory(peersFile string) ([]PeerConfig, error) {
	var peersPath string
	if filepath.IsAbs(peersFile) {
		peersPath = peersFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		peersPath = filepath.Join(wd, peersFile)
	}

	data, err := os.ReadFile(peersPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", peersFile, err)
	}

	var config PeersConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", peersFile, err)
	}

	for i, peer := range config.Peers {
		if peer.Name == "" {
			return nil, fmt.Errorf("peer at index %d missing name", i)
		}
		if peer.ChatId == 0 {
			return nil, fmt.Errorf("peer %q missing chat_id", peer.Name)
		}
	}

	return config.Peers, nil
}
