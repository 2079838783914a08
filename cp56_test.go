package iec104

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCp56RoundTrip(t *testing.T) {
	c := Cp56Time2a{
		Millisecond: 12345,
		Minute:      30,
		Hour:        14,
		Day:         15,
		DayOfWeek:   3,
		Month:       7,
		Year:        26,
	}
	encoded := EncodeCp56(c)
	require.Len(t, encoded, 7)
	decoded, err := DecodeCp56(encoded)
	require.NoError(t, err)
	assert.Equal(t, c, decoded)
}

func TestCp56InvalidBit(t *testing.T) {
	c := Cp56Time2a{Minute: 10, Invalid: true}
	encoded := EncodeCp56(c)
	decoded, err := DecodeCp56(encoded)
	require.NoError(t, err)
	assert.True(t, decoded.Invalid)
}

func TestCp56FromTimeRoundTrip(t *testing.T) {
	tm := time.Date(2026, 7, 30, 9, 41, 12, 500_000_000, time.UTC)
	c := Cp56FromTime(tm)
	assert.Equal(t, 26, c.Year)
	assert.Equal(t, 7, c.Month)
	assert.Equal(t, 30, c.Day)
	assert.Equal(t, 9, c.Hour)
	assert.Equal(t, 41, c.Minute)
	assert.Equal(t, 12_500, c.Millisecond)
}

func TestDecodeCp56WrongLength(t *testing.T) {
	_, err := DecodeCp56([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrTruncated)
}
