//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Ordered configuration options.
//

package emuconf

import (
	"fmt"
	"strconv"
	"strings"
)

// Option is a single configuration assignment. Options are applied
// in order, so later options override earlier ones for the same key.
type Option struct {
	// Key is the parameter name, one of the keys documented in
	// the package documentation, or a comma-separated batch of
	// key=value pairs.
	Key string

	// Value is the integer value to assign. It is ignored when
	// Key is a batch or the no-op placeholder.
	Value int
}

// String returns the option in key=value form.
func (o Option) String() string {
	return fmt.Sprintf("%s=%d", o.Key, o.Value)
}

// ParseOptions parses the "key=value[,key=value...]" grammar into an
// ordered option list. It validates the form of each pair, including
// that every value is an integer, but does not check keys against the
// recognized key table; that happens when the options are applied.
//
// The empty string parses to an empty list.
func ParseOptions(s string) ([]Option, error) {
	if s == "" {
		return nil, nil
	}
	var options []Option
	for _, pair := range strings.Split(s, ",") {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return nil, &UnknownKeyError{Key: pair}
		}
		number, err := strconv.Atoi(value)
		if err != nil {
			return nil, &InvalidValueError{Key: key, Value: value}
		}
		options = append(options, Option{Key: key, Value: number})
	}
	return options, nil
}
