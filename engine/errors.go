// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/containerd/errdefs"
)

// TransportError indicates that an exchange with the engine failed below the
// JSON level: the API socket is unreachable, the connection got reset, the
// HTTP framing was garbled, or the engine answered with an error status.
type TransportError struct {
	Op       string // operation, such as "list containers".
	Endpoint string // API endpoint path, without version prefix.
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s (%s): transport failure: %s", e.Op, e.Endpoint, e.Err.Error())
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError indicates that the engine answered, but the answer didn't have
// the expected shape.
type DecodeError struct {
	Op       string
	Endpoint string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s (%s): cannot decode response: %s", e.Op, e.Endpoint, e.Err.Error())
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TimeoutError indicates that an exchange didn't complete within its deadline.
type TimeoutError struct {
	Op       string
	Endpoint string
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s (%s): timed out: %s", e.Op, e.Endpoint, e.Err.Error())
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// IsNotFound returns true if the engine reported that the queried object
// doesn't exist (anymore). This happens when a container vanishes between
// enumeration and query.
func IsNotFound(err error) bool {
	return errdefs.IsNotFound(err)
}

// classify wraps an error returned by the engine client into one of the
// TransportError, DecodeError, or TimeoutError types. Errors that already have
// been classified are passed through unchanged.
func classify(ctx context.Context, op, endpoint string, err error) error {
	if err == nil {
		return nil
	}
	var terr *TransportError
	var derr *DecodeError
	var toerr *TimeoutError
	if errors.As(err, &terr) || errors.As(err, &derr) || errors.As(err, &toerr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Endpoint: endpoint, Err: err}
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &TimeoutError{Op: op, Endpoint: endpoint, Err: err}
	}
	var syntaxerr *json.SyntaxError
	var typeerr *json.UnmarshalTypeError
	if errors.As(err, &syntaxerr) || errors.As(err, &typeerr) {
		return &DecodeError{Op: op, Endpoint: endpoint, Err: err}
	}
	// Anything else is about not getting a proper answer from the engine in
	// the first place: connection failures, error status codes, ...
	return &TransportError{Op: op, Endpoint: endpoint, Err: err}
}
