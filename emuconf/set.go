//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Keyed configuration mutation.
//

package emuconf

import (
	"fmt"
	"strconv"
	"strings"
)

// Recognized configuration keys. See the package documentation
// for the meaning and unit of each parameter.
const (
	KeyRxThroughput = "rx.throughput"
	KeyRxThruput    = "rx.thruput"
	KeyTxThroughput = "tx.throughput"
	KeyTxThruput    = "tx.thruput"
	KeyDelay        = "delay"
	KeyJitter       = "jitter"
	KeyBufferSize   = "rx.bufsz"
	KeyDebug        = "debug"

	// KeyTrue is a no-op placeholder key. Assignments to it are
	// accepted and change nothing, so harnesses can keep a slot
	// in an option list without affecting the configuration.
	KeyTrue = "true"
)

// UnknownKeyError reports a configuration key outside the
// recognized key table.
type UnknownKeyError struct {
	// Key is the offending key.
	Key string
}

// Error implements error.
func (e *UnknownKeyError) Error() string {
	return fmt.Sprintf("unknown configuration key: %q", e.Key)
}

// InvalidValueError reports a configuration value that does not
// parse as an integer.
type InvalidValueError struct {
	// Key is the key whose value is malformed.
	Key string

	// Value is the malformed value.
	Value string
}

// Error implements error.
func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value %q for configuration key: %q", e.Value, e.Key)
}

// Set assigns a value to a single configuration key.
//
// A key containing "=" is treated as a comma-separated batch of
// key=value pairs and expanded recursively with the same validation;
// in that case the value argument is ignored. The empty key is an
// empty batch and changes nothing.
//
// On failure the configuration retains every assignment that
// succeeded before the failing entry.
func (c *Config) Set(key string, value int) error {
	switch key {
	case KeyRxThroughput, KeyRxThruput:
		c.RxThroughput = value
	case KeyTxThroughput, KeyTxThruput:
		c.TxThroughput = value
	case KeyDelay:
		c.Delay = value
	case KeyJitter:
		c.Jitter = value
	case KeyBufferSize:
		c.BufferSize = value
	case KeyDebug:
		c.Debug = value
	case KeyTrue:
		// accepted and ignored
	case "":
		// empty batch
	default:
		if strings.ContainsRune(key, '=') {
			return c.applyBatch(key)
		}
		return &UnknownKeyError{Key: key}
	}
	return nil
}

// applyBatch expands a comma-separated key=value batch, applying
// each pair as it is parsed. Unlike [ParseOptions], which validates
// the whole string before returning, a batch that fails midway
// leaves the pairs before the failure applied.
func (c *Config) applyBatch(batch string) error {
	for _, pair := range strings.Split(batch, ",") {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return &UnknownKeyError{Key: pair}
		}
		number, err := strconv.Atoi(value)
		if err != nil {
			return &InvalidValueError{Key: key, Value: value}
		}
		if err := c.Set(key, number); err != nil {
			return err
		}
	}
	return nil
}

// Apply applies each option in order, stopping at the first invalid
// one. Options applied before the failing one remain applied.
func (c *Config) Apply(options ...Option) error {
	for _, opt := range options {
		if err := c.Set(opt.Key, opt.Value); err != nil {
			return err
		}
	}
	return nil
}
