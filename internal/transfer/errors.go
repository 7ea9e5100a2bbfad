package transfer

import (
	"errors"
	"net"
	"strings"

	"github.com/gonzalop/ftp"
)

// errClass partitions transfer failures for retry purposes.
type errClass int

const (
	// classTransient covers timeouts, resets, and other conditions worth
	// retrying promptly.
	classTransient errClass = iota

	// classServerBusy covers server-side rejection (connection limits,
	// service unavailable); retried with longer waits than plain network
	// blips.
	classServerBusy

	// classPermanent covers authentication failures, missing paths, and
	// permission errors. Never retried.
	classPermanent
)

// PermanentError marks a failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanent reports whether err (anywhere in its chain) is permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// classify decides how a failure should be retried. Reply codes follow the
// FTP spec: 530 not logged in, 550 unavailable/denied are permanent; 421
// service not available and 425/426 data-connection failures are server-side
// and worth a longer wait.
func classify(err error) errClass {
	var pe *ftp.ProtocolError
	if errors.As(err, &pe) {
		switch pe.Code {
		case 530, 532, 550, 553:
			return classPermanent
		case 421, 425, 426:
			return classServerBusy
		}
		if pe.Code >= 500 {
			return classPermanent
		}
		return classTransient
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return classTransient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "too many connections"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "service unavailable"),
		strings.Contains(msg, "busy"):
		return classServerBusy
	case strings.Contains(msg, "login"),
		strings.Contains(msg, "authentication"),
		strings.Contains(msg, "not logged in"),
		strings.Contains(msg, "no such file"),
		strings.Contains(msg, "permission denied"):
		return classPermanent
	}

	return classTransient
}
