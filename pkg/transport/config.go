package transport

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sensiasoft/atomix/pkg/transport/errs"
)

// TLSConfig configures mutual TLS for the service's listener and outbound
// connections. CertFile/KeyFile are this node's identity; KeyPassword, if
// set, decrypts an encrypted PEM private key. CAFile is the trust store
// used to verify peer certificates on both sides of the handshake.
type TLSConfig struct {
	Enabled     bool   `yaml:"enabled"`
	CertFile    string `yaml:"certFile"`
	KeyFile     string `yaml:"keyFile"`
	KeyPassword string `yaml:"keyPassword,omitempty"`
	CAFile      string `yaml:"caFile"`
}

// Config is the full set of knobs a deployed node reads from its config
// file to stand up a Service.
type Config struct {
	ClusterName     string        `yaml:"clusterName"`
	BindAddresses   []string      `yaml:"bindAddresses"`
	ConnectTimeout  time.Duration `yaml:"connectTimeout"`
	ReadBufferSize  int           `yaml:"readBufferSize"`
	WriteBufferSize int           `yaml:"writeBufferSize"`
	KeepAlive       time.Duration `yaml:"keepAlive"`
	SweepInterval   time.Duration `yaml:"sweepInterval"`
	TLS             TLSConfig     `yaml:"tls"`
}

// DefaultConfig returns the configuration used when a node is started
// without an explicit config file: one unencrypted listener on an
// ephemeral port, conservative socket timeouts, and TLS disabled.
func DefaultConfig() Config {
	return Config{
		BindAddresses:   []string{"127.0.0.1:0"},
		ConnectTimeout:  5 * time.Second,
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		KeepAlive:       30 * time.Second,
		SweepInterval:   50 * time.Millisecond,
	}
}

// LoadConfig reads and parses a YAML config file. Fields the file omits
// keep their DefaultConfig values; a zero or negative SweepInterval,
// ConnectTimeout or KeepAlive is reset to its default, while other fields
// set explicitly to zero stay zero.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errs.Wrap(errs.KindStartupError, "read config file", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errs.Wrap(errs.KindStartupError, "parse config file", err)
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 50 * time.Millisecond
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 30 * time.Second
	}
	return cfg, nil
}
