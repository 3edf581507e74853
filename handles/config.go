package handles

import "fmt"

// Config tunes a Registry.
type Config struct {
	// BlockSize is the number of slots allocated together.
	BlockSize int
	// DebugChecks turns protocol violations into panics. With checks off a
	// violating slot is destroyed and the violation logged.
	DebugChecks bool
}

// DefaultBlockSize is the number of slots per block unless configured.
const DefaultBlockSize = 1<<12 - 1

// DefaultConfig returns the standard settings.
func DefaultConfig() Config {
	return Config{
		BlockSize:   DefaultBlockSize,
		DebugChecks: true,
	}
}

// Validate reports an unusable setting.
func (c Config) Validate() error {
	if c.BlockSize < 1 {
		return fmt.Errorf("handle block size %d must be positive", c.BlockSize)
	}
	return nil
}
