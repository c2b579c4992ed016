package cunner

import (
	"errors"
	"fmt"
	"time"

	"github.com/cmwaters/cunner/consensus"
	"github.com/cmwaters/cunner/consensus/avalanche"
	"github.com/cmwaters/cunner/consensus/solo"
	"github.com/rs/zerolog"
)

const (
	DefaultNamespace    = "cunner"
	DefaultEmitInterval = 5 * time.Second
	DefaultLocalNodes   = 10
	DefaultLogLevel     = "info"
)

// Config is everything a node needs to join a network and run an engine.
// The mapstructure tags match the flag names of the command line.
type Config struct {
	// Engine selects the consensus engine, see consensus.Kind
	Engine string `mapstructure:"engine"`

	// Port is the TCP port the host listens on. Zero picks a free one.
	Port int `mapstructure:"port"`

	// Key is the private key of the node in the libp2p config encoding. An
	// empty key generates a fresh identity on every start.
	Key string `mapstructure:"key"`

	// DataDir is where decisions and blocks are persisted. Empty keeps
	// everything in memory.
	DataDir string `mapstructure:"data-dir"`

	// Namespace is the gossip topic shared by the network
	Namespace string `mapstructure:"namespace"`

	// EmitInterval is how often the node creates a transaction of its own
	// while it has peers. Zero disables emission.
	EmitInterval time.Duration `mapstructure:"emit-interval"`

	// BlockInterval is how often the solo engine produces a block
	BlockInterval time.Duration `mapstructure:"block-interval"`

	// Nodes is the amount of voting nodes the avalanche engine runs locally
	Nodes int `mapstructure:"nodes"`

	Avalanche avalanche.Parameters `mapstructure:"avalanche"`

	LogLevel string `mapstructure:"log-level"`

	// MetricsAddr serves prometheus metrics when not empty
	MetricsAddr string `mapstructure:"metrics-addr"`
}

func DefaultConfig() Config {
	return Config{
		Engine:        string(consensus.Solo),
		Namespace:     DefaultNamespace,
		EmitInterval:  DefaultEmitInterval,
		BlockInterval: solo.DefaultBlockInterval,
		Nodes:         DefaultLocalNodes,
		Avalanche:     avalanche.DefaultParameters(),
		LogLevel:      DefaultLogLevel,
	}
}

func (c Config) Validate() error {
	kind, err := consensus.ParseKind(c.Engine)
	if err != nil {
		return err
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Namespace == "" {
		return errors.New("namespace can not be empty")
	}
	if c.EmitInterval < 0 {
		return fmt.Errorf("emit interval can not be negative, got %v", c.EmitInterval)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	switch kind {
	case consensus.Solo:
		if c.BlockInterval <= 0 {
			return fmt.Errorf("block interval must be positive, got %v", c.BlockInterval)
		}
	case consensus.Avalanche:
		if c.Nodes <= 0 {
			return fmt.Errorf("avalanche engine needs at least one node, got %d", c.Nodes)
		}
		if err := c.Avalanche.Validate(); err != nil {
			return fmt.Errorf("avalanche parameters: %w", err)
		}
	}
	return nil
}
