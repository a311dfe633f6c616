// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package linuxerr contains the errno values returned by the ivc packages,
// exported as *errors.Error pointers. This allows for fast comparison and
// return operations comparable to unix.Errno constants.
package linuxerr

import (
	"fmt"

	"github.com/tegra-ivc/ivc/pkg/errors"
	"golang.org/x/sys/unix"
)

// The following errors are semantically identical to the unix.Errno of the
// same name. Since the types are distinct they are not directly comparable;
// use Equals, or errors.Is with either form.
var (
	noError *errors.Error = nil

	EAGAIN     = errors.New(unix.EAGAIN, "try again")
	EBUSY      = errors.New(unix.EBUSY, "device or resource busy")
	ECONNRESET = errors.New(unix.ECONNRESET, "connection reset by peer")
	EFAULT     = errors.New(unix.EFAULT, "bad address")
	EINTR      = errors.New(unix.EINTR, "interrupted system call")
	EINVAL     = errors.New(unix.EINVAL, "invalid argument")
	EMSGSIZE   = errors.New(unix.EMSGSIZE, "message too long")
	ENOENT     = errors.New(unix.ENOENT, "no such file or directory")
	ENOMEM     = errors.New(unix.ENOMEM, "out of memory")
	ENOSPC     = errors.New(unix.ENOSPC, "no space left on device")
	ETIMEDOUT  = errors.New(unix.ETIMEDOUT, "connection timed out")

	// Errors equivalent to other errors.
	EWOULDBLOCK = EAGAIN
)

var errorMap = map[unix.Errno]*errors.Error{
	unix.EAGAIN:     EAGAIN,
	unix.EBUSY:      EBUSY,
	unix.ECONNRESET: ECONNRESET,
	unix.EFAULT:     EFAULT,
	unix.EINTR:      EINTR,
	unix.EINVAL:     EINVAL,
	unix.EMSGSIZE:   EMSGSIZE,
	unix.ENOENT:     ENOENT,
	unix.ENOMEM:     ENOMEM,
	unix.ENOSPC:     ENOSPC,
	unix.ETIMEDOUT:  ETIMEDOUT,
}

// ErrorFromUnix returns a linuxerr from a unix.Errno. Errnos without a
// linuxerr counterpart are returned unchanged.
func ErrorFromUnix(err unix.Errno) error {
	if err == unix.Errno(0) {
		return nil
	}
	if e, ok := errorMap[err]; ok {
		return e
	}
	return err
}

// ToError converts a linuxerr to an error type.
func ToError(err *errors.Error) error {
	if err == noError {
		return nil
	}
	return err
}

// ToUnix converts a linuxerr to a unix.Errno.
func ToUnix(e *errors.Error) unix.Errno {
	var unixErr unix.Errno
	if e != noError {
		unixErr = e.Errno()
	}
	return unixErr
}

// Equals compares a linuxerr to a given error.
func Equals(e *errors.Error, err error) bool {
	var unixErr unix.Errno
	if e != noError {
		unixErr = e.Errno()
	}
	if err == nil {
		err = noError
	}
	return e == err || unixErr == err
}

// Wrapf returns an error that annotates e with a formatted message while
// still matching e under errors.Is.
func Wrapf(e *errors.Error, format string, v ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, v...), e)
}
