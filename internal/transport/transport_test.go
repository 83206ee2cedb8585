package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEncodeDecodeRoundTrip tests that decode inverts encode.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		{0x00},
		{0x4d, 0x54, 0x68, 0x64, 0x00, 0x00, 0x00, 0x06},
		[]byte("not actually midi but bytes all the same"),
		{0xff, 0xfe, 0x00, 0x01, 0x80},
	}

	for _, original := range cases {
		decoded, err := Decode(Encode(original))
		require.NoError(t, err)
		assert.Equal(t, len(original), len(decoded))
		assert.Equal(t, []byte(original), append([]byte{}, decoded...))
	}
}

// TestDecodeMalformed tests that invalid text fails with ErrMalformedPayload.
func TestDecodeMalformed(t *testing.T) {
	for _, text := range []string{"%%%", "not base64!", "abc", "====", "a"} {
		_, err := Decode(text)
		require.Error(t, err, "input %q", text)
		assert.ErrorIs(t, err, ErrMalformedPayload)
	}
}

// TestHandleCopiesBytes tests that a handle does not alias its input.
func TestHandleCopiesBytes(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	h := NewHandle(data)

	data[0] = 99
	assert.Equal(t, []byte{1, 2, 3, 4}, h.Bytes())
	assert.NotEmpty(t, h.ID())
}

func TestHandleRelease(t *testing.T) {
	h := NewHandle([]byte{1, 2, 3})
	assert.False(t, h.Released())

	h.Release()
	assert.True(t, h.Released())
	assert.Nil(t, h.Bytes())

	// Releasing twice never raises.
	h.Release()
	assert.True(t, h.Released())
}

func TestNilHandleIsSafe(t *testing.T) {
	var h *Handle
	assert.NotPanics(t, func() { h.Release() })
	assert.True(t, h.Released())
	assert.Nil(t, h.Bytes())
	assert.Equal(t, "", h.ID())
}

func TestHandleIDsAreDistinct(t *testing.T) {
	a := NewHandle([]byte("a"))
	b := NewHandle([]byte("a"))
	assert.NotEqual(t, a.ID(), b.ID())
}
