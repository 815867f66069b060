//go:build unix

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// UNIX retryable errno classification.
//

package emucore

import (
	"errors"

	"golang.org/x/sys/unix"
)

// retryableReadError reports whether a read failed with an errno
// meaning that no data was available yet, in which case the relay
// cycle should simply try again.
func retryableReadError(err error) bool {
	return errors.Is(err, unix.EAGAIN) ||
		errors.Is(err, unix.EWOULDBLOCK) ||
		errors.Is(err, unix.EINTR)
}
