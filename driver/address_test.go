package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scada-io/iec104"
)

func TestParseAddressThreeFields(t *testing.T) {
	a, err := ParseAddress("1.100.13")
	require.NoError(t, err)
	assert.EqualValues(t, 1, a.CA)
	assert.EqualValues(t, 100, a.IOA)
	assert.Equal(t, iec104.MFloat, a.TypeID)
	assert.Equal(t, -1, a.ElementIndex)
}

func TestParseAddressFourFields(t *testing.T) {
	a, err := ParseAddress("1.100.13.2")
	require.NoError(t, err)
	assert.Equal(t, 2, a.ElementIndex)
}

func TestParseAddressRejectsWrongFieldCount(t *testing.T) {
	_, err := ParseAddress("1.100")
	assert.Error(t, err)
	_, err = ParseAddress("1.100.13.2.3")
	assert.Error(t, err)
}

func TestParseAddressRejectsOutOfRangeCA(t *testing.T) {
	_, err := ParseAddress("0.100.13")
	assert.Error(t, err)
	_, err = ParseAddress("65535.100.13")
	assert.Error(t, err)
}

func TestParseAddressRejectsOutOfRangeIOA(t *testing.T) {
	_, err := ParseAddress("1.0.13")
	assert.Error(t, err)
	_, err = ParseAddress("1.16777216.13")
	assert.Error(t, err)
}

func TestParseAddressRejectsOutOfRangeTypeID(t *testing.T) {
	_, err := ParseAddress("1.100.0")
	assert.Error(t, err)
	_, err = ParseAddress("1.100.128")
	assert.Error(t, err)
}

func TestAddressString(t *testing.T) {
	a := Address{CA: 1, IOA: 100, TypeID: iec104.MFloat, ElementIndex: -1}
	assert.Equal(t, "1.100.13", a.String())
	a.ElementIndex = 2
	assert.Equal(t, "1.100.13.2", a.String())
}
