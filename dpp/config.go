package dpp

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/comalice/activex/internal/core"
	"github.com/comalice/activex/internal/primitives"
)

// Config sizes the dining philosophers application. Times are in clock ticks.
type Config struct {
	Philosophers int    `json:"philosophers" yaml:"philosophers"`
	ThinkTicks   uint32 `json:"think_ticks" yaml:"think_ticks"`
	EatTicks     uint32 `json:"eat_ticks" yaml:"eat_ticks"`
	// Jitter adds up to this many ticks to every think and eat period.
	Jitter uint32 `json:"jitter" yaml:"jitter"`
	Seed   uint64 `json:"seed" yaml:"seed"`

	TableQueue int `json:"table_queue" yaml:"table_queue"`
	PhiloQueue int `json:"philo_queue" yaml:"philo_queue"`
	// MaxGrantsPerRelease limits how many EATs the table grants per event
	// it handles. Zero means no limit.
	MaxGrantsPerRelease int `json:"max_grants_per_release" yaml:"max_grants_per_release"`

	Runtime core.Config `json:"runtime" yaml:"runtime"`
}

var ErrInvalidConfig = errors.New("invalid dpp configuration")

// MaxTicks bounds think_ticks, eat_ticks and jitter so a jittered duration
// always fits a time event counter.
const MaxTicks = 1 << 30

// DefaultConfig returns the classic five philosopher table: queues of N
// events and a pool of 2N table events.
func DefaultConfig() Config {
	const n = 5
	return Config{
		Philosophers:        n,
		ThinkTicks:          7,
		EatTicks:            5,
		Jitter:              5,
		Seed:                1,
		TableQueue:          n,
		PhiloQueue:          n,
		MaxGrantsPerRelease: 1,
		Runtime: core.Config{
			MaxPubSignal: MaxPubSig,
			Pools: []primitives.PoolConfig{
				{BlockSize: 4, Blocks: 2 * n},
			},
		},
	}
}

// ParseConfig overlays YAML data on DefaultConfig and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return ParseConfig(data)
}

func (c Config) Validate() error {
	// The table takes priority N+1, so at most MaxActive-1 philosophers.
	if c.Philosophers < 2 || c.Philosophers > core.MaxActive-1 {
		return fmt.Errorf("%w: philosophers must be in 2..%d, got %d", ErrInvalidConfig, core.MaxActive-1, c.Philosophers)
	}
	if c.ThinkTicks == 0 || c.EatTicks == 0 {
		return fmt.Errorf("%w: think_ticks and eat_ticks must be positive", ErrInvalidConfig)
	}
	if c.ThinkTicks > MaxTicks || c.EatTicks > MaxTicks || c.Jitter > MaxTicks {
		return fmt.Errorf("%w: think_ticks, eat_ticks and jitter must be at most %d", ErrInvalidConfig, MaxTicks)
	}
	if c.TableQueue < c.Philosophers {
		return fmt.Errorf("%w: table_queue %d is smaller than the number of philosophers", ErrInvalidConfig, c.TableQueue)
	}
	if c.PhiloQueue < c.Philosophers {
		return fmt.Errorf("%w: philo_queue %d is smaller than the number of philosophers", ErrInvalidConfig, c.PhiloQueue)
	}
	if c.MaxGrantsPerRelease < 0 {
		return fmt.Errorf("%w: max_grants_per_release must not be negative", ErrInvalidConfig)
	}
	if c.Runtime.MaxPubSignal < MaxPubSig {
		return fmt.Errorf("%w: runtime.max_pub_signal must be at least %d", ErrInvalidConfig, MaxPubSig)
	}
	if err := c.Runtime.Validate(); err != nil {
		return fmt.Errorf("%w: runtime: %w", ErrInvalidConfig, err)
	}
	return nil
}
