// Package transport moves binary file content across the isolation
// boundary and wraps decoded bytes in short-lived, revocable handles the
// rendering engine consumes as pseudo-files.
package transport

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrMalformedPayload indicates text that is not valid base64. Callers
// surface it as a load error; it must never crash the sandbox.
var ErrMalformedPayload = errors.New("malformed payload")

// Encode converts raw bytes to boundary-safe text. Deterministic,
// reversible, side-effect free.
func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Decode converts boundary text back to raw bytes.
func Decode(text string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return data, nil
}

// Handle is an ephemeral sandbox-local reference to a block of bytes.
// Exactly one unreleased handle exists per live session; the session
// manager owns it exclusively.
type Handle struct {
	id string

	mu       sync.Mutex
	data     []byte
	released bool
}

// NewHandle allocates a fresh handle over a copy of data. The copy
// matters: decoded buffers may be views into codec-owned memory that is
// unsafe to alias after the call returns.
func NewHandle(data []byte) *Handle {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Handle{
		id:   uuid.New().String(),
		data: buf,
	}
}

// ID returns the handle's stable identifier.
func (h *Handle) ID() string {
	if h == nil {
		return ""
	}
	return h.id
}

// Bytes returns the referenced bytes, or nil once released.
func (h *Handle) Bytes() []byte {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.data
}

// Released reports whether the handle has been revoked.
func (h *Handle) Released() bool {
	if h == nil {
		return true
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Release revokes the handle. Idempotent: releasing a nil or
// already-released handle is a no-op, never an error.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return
	}
	h.released = true
	h.data = nil
}
