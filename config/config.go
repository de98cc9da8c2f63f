package config

import (
	"fmt"
	"os"
	"strings"
)

// TLSConfig carries PEM material for chaincode-as-a-service TLS.
type TLSConfig struct {
	Disabled     bool
	Key          []byte
	Cert         []byte
	ClientCACert []byte
}

// Config holds the process configuration of the chaincode binary.
// Contract runtime toggles live on the ledger (Params), not here.
type Config struct {
	// ServerAddress switches the binary to chaincode-as-a-service mode when set.
	ServerAddress string
	ChaincodeID   string
	TLS           TLSConfig
	LogLevel      string
}

// External reports whether the chaincode runs as an external service
// rather than being launched by the peer.
func (cfg Config) External() bool { return cfg.ServerAddress != "" }

// Load reads the environment and returns a populated Config.
func Load() (Config, error) {
	cfg := Config{
		ServerAddress: strings.TrimSpace(os.Getenv("CHAINCODE_SERVER_ADDRESS")),
		ChaincodeID:   strings.TrimSpace(os.Getenv("CHAINCODE_ID")),
		LogLevel:      strings.TrimSpace(os.Getenv("LOG_LEVEL")),
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if !cfg.External() {
		return cfg, nil
	}
	if cfg.ChaincodeID == "" {
		return cfg, fmt.Errorf("CHAINCODE_ID must be set with CHAINCODE_SERVER_ADDRESS")
	}

	cfg.TLS.Disabled = parseBool(os.Getenv("CHAINCODE_TLS_DISABLED"), true)
	if cfg.TLS.Disabled {
		return cfg, nil
	}

	var err error
	if cfg.TLS.Key, err = readPEM("CHAINCODE_TLS_KEY_FILE"); err != nil {
		return cfg, err
	}
	if cfg.TLS.Cert, err = readPEM("CHAINCODE_TLS_CERT_FILE"); err != nil {
		return cfg, err
	}
	if path := strings.TrimSpace(os.Getenv("CHAINCODE_TLS_CLIENT_CA_FILE")); path != "" {
		if cfg.TLS.ClientCACert, err = os.ReadFile(path); err != nil {
			return cfg, fmt.Errorf("read CHAINCODE_TLS_CLIENT_CA_FILE: %w", err)
		}
	}
	return cfg, nil
}

func readPEM(env string) ([]byte, error) {
	path := strings.TrimSpace(os.Getenv(env))
	if path == "" {
		return nil, fmt.Errorf("%s must be set when TLS is enabled", env)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", env, err)
	}
	return b, nil
}

func parseBool(v string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	case "0", "false", "off", "no":
		return false
	default:
		return def
	}
}
