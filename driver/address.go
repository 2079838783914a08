// Package driver implements the driver facade (C6): device/tag
// registration, the tag address and block configuration string grammars,
// and read-tag/write-tag dispatch to the right session.
package driver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/scada-io/iec104"
)

// Address is the parsed form of a tag address string "CA.IOA.TypeID[.ElementIndex]".
type Address struct {
	CA           uint16
	IOA          uint32
	TypeID       iec104.TypeID
	ElementIndex int // -1 if not present
}

// ParseAddress parses the tag address grammar of §6. Ranges: CA 1-65534,
// IOA 1-16777215, TypeID 1-127, ElementIndex 0-255.
func ParseAddress(s string) (Address, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 && len(parts) != 4 {
		return Address{}, fmt.Errorf("iec104/driver: address %q: want CA.IOA.TypeID[.ElementIndex]", s)
	}

	ca, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil || ca < 1 || ca > 65534 {
		return Address{}, fmt.Errorf("iec104/driver: address %q: CA out of range", s)
	}
	ioa, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil || ioa < 1 || ioa > 16777215 {
		return Address{}, fmt.Errorf("iec104/driver: address %q: IOA out of range", s)
	}
	t, err := strconv.ParseUint(parts[2], 10, 8)
	if err != nil || t < 1 || t > 127 {
		return Address{}, fmt.Errorf("iec104/driver: address %q: TypeID out of range", s)
	}

	addr := Address{CA: uint16(ca), IOA: uint32(ioa), TypeID: iec104.TypeID(t), ElementIndex: -1}
	if len(parts) == 4 {
		ei, err := strconv.ParseUint(parts[3], 10, 8)
		if err != nil || ei > 255 {
			return Address{}, fmt.Errorf("iec104/driver: address %q: ElementIndex out of range", s)
		}
		addr.ElementIndex = int(ei)
	}
	return addr, nil
}

func (a Address) String() string {
	if a.ElementIndex < 0 {
		return fmt.Sprintf("%d.%d.%d", a.CA, a.IOA, a.TypeID)
	}
	return fmt.Sprintf("%d.%d.%d.%d", a.CA, a.IOA, a.TypeID, a.ElementIndex)
}
