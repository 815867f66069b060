//go:build windows

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Windows retryable errno classification.
//

package emucore

import (
	"errors"

	"golang.org/x/sys/windows"
)

// retryableReadError reports whether a read failed with an errno
// meaning that no data was available yet, in which case the relay
// cycle should simply try again.
func retryableReadError(err error) bool {
	return errors.Is(err, windows.WSAEWOULDBLOCK) ||
		errors.Is(err, windows.WSAEINTR)
}
