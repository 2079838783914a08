package iec104

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrameIFrame(t *testing.T) {
	raw := []byte{startByte, 0x06, 0x0A, 0x00, 0x04, 0x00, 0xAA, 0xBB}
	f, err := DecodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, FormatI, f.Format)
	assert.EqualValues(t, 5, f.SendSN)
	assert.EqualValues(t, 2, f.RecvSN)
	assert.Equal(t, []byte{0xAA, 0xBB}, f.ASDU)
}

func TestDecodeFrameSFrame(t *testing.T) {
	raw := []byte{startByte, 0x04, 0x01, 0x00, 0x0A, 0x00}
	f, err := DecodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, FormatS, f.Format)
	assert.EqualValues(t, 5, f.RecvSN)
}

func TestDecodeFrameSFrameMalformed(t *testing.T) {
	raw := []byte{startByte, 0x04, 0x01, 0x01, 0x00, 0x00}
	_, err := DecodeFrame(raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedSFrame)
}

func TestDecodeFrameUFrame(t *testing.T) {
	raw := []byte{startByte, 0x04, byte(UStartDTAct), 0x00, 0x00, 0x00}
	f, err := DecodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, FormatU, f.Format)
	assert.Equal(t, UStartDTAct, f.UFunc)
}

func TestDecodeFrameUnknownUFunction(t *testing.T) {
	raw := []byte{startByte, 0x04, 0xFF, 0x00, 0x00, 0x00}
	_, err := DecodeFrame(raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownUFunction)
}

func TestDecodeFrameBadStartByte(t *testing.T) {
	raw := []byte{0x00, 0x04, 0x01, 0x00, 0x00, 0x00}
	_, err := DecodeFrame(raw)
	assert.ErrorIs(t, err, ErrBadStartByte)
}

func TestDecodeFrameTruncated(t *testing.T) {
	raw := []byte{startByte, 0x06, 0x00, 0x00}
	_, err := DecodeFrame(raw)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	cases := []Frame{
		newIFrame(5, 2, []byte{0xAA, 0xBB, 0xCC}),
		newSFrame(7),
		newUFrame(UTestFRAct),
	}
	for _, f := range cases {
		encoded := EncodeFrame(f)
		decoded, err := DecodeFrame(encoded)
		require.NoError(t, err)
		assert.Equal(t, f, decoded)
	}
}
