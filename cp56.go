package iec104

import (
	"fmt"
	"time"
)

// Cp56Time2a is the 7-octet absolute timestamp of §3. It decodes even when
// Invalid is set; Invalid is then propagated into the owning element's
// quality rather than rejecting the timestamp itself.
type Cp56Time2a struct {
	Millisecond int    // 0-59999
	Minute      int    // 0-59
	Invalid     bool
	Hour        int // 0-23
	Day         int // 1-31
	DayOfWeek   int // 1-7, ignored on decode
	Month       int // 1-12
	Year        int // 0-99, offset from 2000
}

func (c Cp56Time2a) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d.%03d",
		2000+c.Year, c.Month, c.Day, c.Hour, c.Minute, c.Millisecond/1000, c.Millisecond%1000)
}

// Time converts to a time.Time in the given location. Sub-second precision
// is limited to milliseconds, as on the wire.
func (c Cp56Time2a) Time(loc *time.Location) time.Time {
	sec := c.Millisecond / 1000
	ns := (c.Millisecond % 1000) * int(time.Millisecond)
	return time.Date(2000+c.Year, time.Month(c.Month), c.Day, c.Hour, c.Minute, sec, ns, loc)
}

// Cp56FromTime builds a CP56Time2a from a wall-clock time, with Invalid
// clear and DayOfWeek filled in (ISO weekday, Monday=1).
func Cp56FromTime(t time.Time) Cp56Time2a {
	wd := int(t.Weekday())
	if wd == 0 {
		wd = 7
	}
	return Cp56Time2a{
		Millisecond: t.Second()*1000 + t.Nanosecond()/int(time.Millisecond),
		Minute:      t.Minute(),
		Invalid:     false,
		Hour:        t.Hour(),
		Day:         t.Day(),
		DayOfWeek:   wd,
		Month:       int(t.Month()),
		Year:        t.Year() - 2000,
	}
}

// DecodeCp56 parses the 7-octet wire form of §3.
func DecodeCp56(b []byte) (Cp56Time2a, error) {
	if len(b) != 7 {
		return Cp56Time2a{}, newErr(CodeTruncated, "CP56Time2a needs 7 bytes, got %d", len(b))
	}
	ms := int(parseLittleEndianUint16(b[0:2]))
	return Cp56Time2a{
		Millisecond: ms,
		Minute:      int(b[2] & 0x3F),
		Invalid:     b[2]&0x80 != 0,
		Hour:        int(b[3] & 0x1F),
		Day:         int(b[4] & 0x1F),
		DayOfWeek:   int(b[4]>>5) & 0x07,
		Month:       int(b[5] & 0x0F),
		Year:        int(b[6] & 0x7F),
	}, nil
}

// EncodeCp56 is the inverse of DecodeCp56. The day-of-week octet bits are
// written from DayOfWeek but may legitimately be re-encoded as 0 by a
// decode-then-encode round trip (§8), since decode ignores them.
func EncodeCp56(c Cp56Time2a) []byte {
	b := make([]byte, 7)
	msBytes := serializeLittleEndianUint16(uint16(c.Millisecond))
	b[0], b[1] = msBytes[0], msBytes[1]
	b[2] = byte(c.Minute & 0x3F)
	if c.Invalid {
		b[2] |= 0x80
	}
	b[3] = byte(c.Hour & 0x1F)
	b[4] = byte(c.Day&0x1F) | byte((c.DayOfWeek&0x07)<<5)
	b[5] = byte(c.Month & 0x0F)
	b[6] = byte(c.Year & 0x7F)
	return b
}
