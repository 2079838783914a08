package iec104

/*
ASDU (Application Service Data Unit).

  | Octet | Field  | Meaning                        |
  |-------|--------|--------------------------------|
  |   0   | TypeID | 1..127, identifies value layout|
  |   1   | VSQ    | bit7=SQ, bits6-0=N             |
  |   2   | COT    | bit7=Test,bit6=Neg,bits5-0=cause|
  |   3   | OA     | Originator address             |
  |  4-5  | CA     | Common address, little-endian  |

followed by 1..127 information objects (§3).
*/

// Cause is the 6-bit Cause-of-Transmission code (§3, §4.1).
type Cause uint8

const (
	CausePeriodic              Cause = 1
	CauseBackground            Cause = 2
	CauseSpontaneous           Cause = 3
	CauseInitialized           Cause = 4
	CauseRequest               Cause = 5
	CauseActivation            Cause = 6
	CauseActivationConfirm     Cause = 7
	CauseDeactivation          Cause = 8
	CauseDeactivationConfirm   Cause = 9
	CauseActivationTermination Cause = 10
	CauseReturnRemote          Cause = 11
	CauseReturnLocal           Cause = 12
	CauseFileTransfer          Cause = 13
	CauseInterrogatedStation   Cause = 20
	// CauseInterrogatedGroup1..16 occupy 21..36; use CauseInterrogatedStation+G.
	CauseCounterGeneral Cause = 37
	// CauseCounterGroup1..4 occupy 38..41.
	CauseUnknownType       Cause = 44
	CauseUnknownCause      Cause = 45
	CauseUnknownCommonAddr Cause = 46
	CauseUnknownIOA        Cause = 47
)

// InformationObject is one addressed value within an ASDU. Quality and
// Qualifier are only meaningful for the TypeID groups that carry them
// (monitoring values vs. commands/system messages, respectively); both are
// simply zero otherwise.
type InformationObject struct {
	IOA       uint32
	Value     Value
	Quality   QualityDescriptor // monitoring types
	Time      *Cp56Time2a       // non-nil iff TypeID.IsTimeTagged() (or clock-sync's own time value, carried in Value instead)
	Qualifier uint8             // raw QOI/QCC/QRP/QOC/QOS/S-E byte for commands and system messages
}

// ASDU is the decoded application payload of an I-frame.
type ASDU struct {
	TypeID TypeID
	SQ     bool
	Test   bool
	Neg    bool
	Cause  Cause
	OA     byte
	CA     uint16

	Objects []InformationObject

	// Partial is set when decode_asdu ran out of bytes mid-object (I5); the
	// ASDU must then be treated as invalid even though Objects holds
	// whatever was parsed before the overrun, for diagnostics.
	Partial bool
}

const asduHeaderLen = 6

// DecodeASDU implements decode_asdu from §4.1.
func DecodeASDU(data []byte) (*ASDU, error) {
	if len(data) < asduHeaderLen {
		return nil, newErr(CodeTruncated, "asdu header needs %d bytes, got %d", asduHeaderLen, len(data))
	}

	typeID := TypeID(data[0])
	if _, err := elementSize(typeID); err != nil {
		return nil, err
	}

	vsq := data[1]
	sq := vsq&0x80 != 0
	n := int(vsq & 0x7F)
	if n < 1 || n > 127 {
		return nil, newErr(CodeBadElementCount, "N=%d out of range [1,127]", n)
	}

	cotByte := data[2]
	cause := Cause(cotByte & 0x3F)
	if cause > 47 {
		return nil, newErr(CodeBadCOT, "cause %d > 47", cause)
	}

	ca := parseLittleEndianUint16(data[4:6])
	if ca == 0 || ca == 0xFFFF {
		return nil, newErr(CodeBadCommonAddress, "common address %d is not used", ca)
	}

	a := &ASDU{
		TypeID: typeID,
		SQ:     sq,
		Test:   cotByte&0x80 != 0,
		Neg:    cotByte&0x40 != 0,
		Cause:  cause,
		OA:     data[3],
		CA:     ca,
	}

	elemLen, _ := elementSize(typeID) // already validated above
	body := data[asduHeaderLen:]
	pos := 0
	var firstIOA uint32

	for i := 0; i < n; i++ {
		needIOA := !sq || i == 0
		need := elemLen
		if needIOA {
			need += 3
		}
		if pos+need > len(body) {
			a.Partial = true
			return a, newErr(CodePartialInfoObject, "object %d/%d needs %d bytes, %d remain", i, n, need, len(body)-pos)
		}

		var ioa uint32
		if needIOA {
			ioa = parseLittleEndianUint24(body[pos : pos+3])
			pos += 3
			if i == 0 {
				firstIOA = ioa
			}
		} else {
			ioa = firstIOA + uint32(i)
		}

		if ioa > 0xFFFFFF {
			a.Partial = true
			return a, newErr(CodeBadIOA, "ioa %d exceeds 24 bits", ioa)
		}

		elemData := body[pos : pos+elemLen]
		pos += elemLen

		val, quality, tm, qual, err := decodeElement(typeID, elemData)
		if err != nil {
			a.Partial = true
			return a, err
		}
		a.Objects = append(a.Objects, InformationObject{
			IOA: ioa, Value: val, Quality: quality, Time: tm, Qualifier: qual,
		})
	}

	return a, nil
}

// EncodeASDU implements encode_asdu from §4.1. The element count is
// truncated to min(len(a.Objects), 127).
func EncodeASDU(a *ASDU) ([]byte, error) {
	n := len(a.Objects)
	if n > 127 {
		n = 127
	}
	if n == 0 {
		return nil, newErr(CodeBadElementCount, "asdu has no information objects")
	}

	elemLen, err := elementSize(a.TypeID)
	if err != nil {
		return nil, err
	}

	out := make([]byte, asduHeaderLen, asduHeaderLen+32)
	out[0] = byte(a.TypeID)
	vsq := byte(n)
	if a.SQ {
		vsq |= 0x80
	}
	out[1] = vsq
	cotByte := byte(a.Cause)
	if a.Test {
		cotByte |= 0x80
	}
	if a.Neg {
		cotByte |= 0x40
	}
	out[2] = cotByte
	out[3] = a.OA
	caBytes := serializeLittleEndianUint16(a.CA)
	out[4], out[5] = caBytes[0], caBytes[1]

	for i := 0; i < n; i++ {
		obj := a.Objects[i]
		if !a.SQ || i == 0 {
			out = append(out, serializeLittleEndianUint24(obj.IOA)...)
		}
		elemBytes, err := encodeElement(a.TypeID, obj)
		if err != nil {
			return nil, err
		}
		if len(elemBytes) != elemLen {
			return nil, newErr(CodeValueTypeMismatch, "type %s wants %d element bytes, got %d", a.TypeID, elemLen, len(elemBytes))
		}
		out = append(out, elemBytes...)
	}

	return out, nil
}

func signExtend7(raw byte) int8 {
	v := raw & 0x7F
	if v&0x40 != 0 {
		return int8(v | 0x80)
	}
	return int8(v)
}

// decodeElement parses one information element's value bytes (excluding the
// IOA) per the TypeID-keyed layout of §3/§4.1 and Design Note (a)-(e).
func decodeElement(t TypeID, b []byte) (val Value, quality QualityDescriptor, tm *Cp56Time2a, qualifier uint8, err error) {
	readTime := func(off int) (*Cp56Time2a, error) {
		c, err := DecodeCp56(b[off : off+7])
		if err != nil {
			return nil, err
		}
		return &c, nil
	}

	switch t {
	case MSingle, MSingleTime:
		val = BoolValue(b[0]&0x01 != 0)
		quality = QualityDescriptor(b[0] & 0xF0)
		if t == MSingleTime {
			if tm, err = readTime(1); err != nil {
				return
			}
			if tm.Invalid {
				quality |= QDInvalid
			}
		}

	case MDouble, MDoubleTime:
		val = DoublePointValue(DoublePointState(b[0] & 0x03))
		quality = QualityDescriptor(b[0] & 0xF0)
		if t == MDoubleTime {
			if tm, err = readTime(1); err != nil {
				return
			}
			if tm.Invalid {
				quality |= QDInvalid
			}
		}

	case MStep, MStepTime:
		val = StepValue(signExtend7(b[0]))
		quality = QualityDescriptor(b[1])
		if t == MStepTime {
			if tm, err = readTime(2); err != nil {
				return
			}
			if tm.Invalid {
				quality |= QDInvalid
			}
		}

	case MBitstring32, MBitstring32Time:
		val = Bits32Value(parseLittleEndianUint32(b[0:4]))
		quality = QualityDescriptor(b[4])
		if t == MBitstring32Time {
			if tm, err = readTime(5); err != nil {
				return
			}
			if tm.Invalid {
				quality |= QDInvalid
			}
		}

	case MNormalized, MNormalizedTime:
		raw := parseLittleEndianInt16(b[0:2])
		val = NormalizedValue(float32(raw) / 32768.0)
		quality = QualityDescriptor(b[2])
		if t == MNormalizedTime {
			if tm, err = readTime(3); err != nil {
				return
			}
			if tm.Invalid {
				quality |= QDInvalid
			}
		}

	case MScaled, MScaledTime:
		val = ScaledValue(parseLittleEndianInt16(b[0:2]))
		quality = QualityDescriptor(b[2])
		if t == MScaledTime {
			if tm, err = readTime(3); err != nil {
				return
			}
			if tm.Invalid {
				quality |= QDInvalid
			}
		}

	case MFloat, MFloatTime:
		val = FloatValue(parseFloat32(b[0:4]))
		quality = QualityDescriptor(b[4])
		if t == MFloatTime {
			if tm, err = readTime(5); err != nil {
				return
			}
			if tm.Invalid {
				quality |= QDInvalid
			}
		}

	case MCounter, MCounterTime:
		val = CounterValue(parseLittleEndianInt32(b[0:4]))
		quality = QualityDescriptor(b[4] & 0xE0)
		qualifier = b[4] & 0x1F // sequence notation
		if t == MCounterTime {
			if tm, err = readTime(5); err != nil {
				return
			}
			if tm.Invalid {
				quality |= QDInvalid
			}
		}

	case CSingleCmd:
		val = BoolValue(b[0]&0x01 != 0)
		qualifier = b[0]

	case CDoubleCmd:
		val = DoublePointValue(DoublePointState(b[0] & 0x03))
		qualifier = b[0]

	case CStepCmd:
		val = StepValue(int8(b[0] & 0x03))
		qualifier = b[0]

	case CSetpointN:
		raw := parseLittleEndianInt16(b[0:2])
		val = NormalizedValue(float32(raw) / 32768.0)
		qualifier = b[2]

	case CSetpointS:
		val = ScaledValue(parseLittleEndianInt16(b[0:2]))
		qualifier = b[2]

	case CSetpointF:
		val = FloatValue(parseFloat32(b[0:4]))
		qualifier = b[4]

	case CBitstringCmd:
		val = Bits32Value(parseLittleEndianUint32(b[0:4]))

	case CInterrogation:
		qualifier = b[0]
		val = QualifierValue(b[0])

	case CCounterInterr:
		qualifier = b[0]
		val = QualifierValue(b[0])

	case CRead:
		// no information element payload.

	case CClockSync:
		c, e := DecodeCp56(b[0:7])
		if e != nil {
			err = e
			return
		}
		val = TimeValue(c)

	case CTest:
		val = Bits32Value(uint32(parseLittleEndianUint16(b[0:2])))

	case CResetProcess:
		qualifier = b[0]
		val = QualifierValue(b[0])

	case CDelayAcquire:
		val = ScaledValue(int16(parseLittleEndianUint16(b[0:2])))

	default:
		err = newErr(CodeUnsupportedType, "type %s", t)
	}
	return
}

// encodeElement is the inverse of decodeElement.
func encodeElement(t TypeID, obj InformationObject) ([]byte, error) {
	mismatch := func(want ValueKind) error {
		return newErr(CodeValueTypeMismatch, "type %s wants value kind %d, got %d", t, want, obj.Value.Kind)
	}

	switch t {
	case MSingle, MSingleTime:
		if obj.Value.Kind != KindBool {
			return nil, mismatch(KindBool)
		}
		b0 := byte(obj.Quality & 0xF0)
		if obj.Value.Bool {
			b0 |= 0x01
		}
		out := []byte{b0}
		if t == MSingleTime {
			out = append(out, EncodeCp56(timeOrZero(obj))...)
		}
		return out, nil

	case MDouble, MDoubleTime:
		if obj.Value.Kind != KindDoublePoint {
			return nil, mismatch(KindDoublePoint)
		}
		b0 := byte(obj.Quality&0xF0) | byte(obj.Value.DoublePoint&0x03)
		out := []byte{b0}
		if t == MDoubleTime {
			out = append(out, EncodeCp56(timeOrZero(obj))...)
		}
		return out, nil

	case MStep, MStepTime:
		if obj.Value.Kind != KindStep {
			return nil, mismatch(KindStep)
		}
		out := []byte{byte(obj.Value.Step) & 0x7F, byte(obj.Quality)}
		if t == MStepTime {
			out = append(out, EncodeCp56(timeOrZero(obj))...)
		}
		return out, nil

	case MBitstring32, MBitstring32Time:
		if obj.Value.Kind != KindBits32 {
			return nil, mismatch(KindBits32)
		}
		out := append(serializeLittleEndianUint32(obj.Value.Bits32), byte(obj.Quality))
		if t == MBitstring32Time {
			out = append(out, EncodeCp56(timeOrZero(obj))...)
		}
		return out, nil

	case MNormalized, MNormalizedTime:
		if obj.Value.Kind != KindNormalized {
			return nil, mismatch(KindNormalized)
		}
		raw := clampInt16(int64(obj.Value.Normalized * 32768.0))
		out := append(serializeLittleEndianUint16(uint16(raw)), byte(obj.Quality))
		if t == MNormalizedTime {
			out = append(out, EncodeCp56(timeOrZero(obj))...)
		}
		return out, nil

	case MScaled, MScaledTime:
		if obj.Value.Kind != KindScaled {
			return nil, mismatch(KindScaled)
		}
		out := append(serializeLittleEndianUint16(uint16(obj.Value.Scaled)), byte(obj.Quality))
		if t == MScaledTime {
			out = append(out, EncodeCp56(timeOrZero(obj))...)
		}
		return out, nil

	case MFloat, MFloatTime:
		if obj.Value.Kind != KindFloat {
			return nil, mismatch(KindFloat)
		}
		out := append(serializeFloat32(obj.Value.Float), byte(obj.Quality))
		if t == MFloatTime {
			out = append(out, EncodeCp56(timeOrZero(obj))...)
		}
		return out, nil

	case MCounter, MCounterTime:
		if obj.Value.Kind != KindCounter {
			return nil, mismatch(KindCounter)
		}
		b4 := byte(obj.Quality&0xE0) | (obj.Qualifier & 0x1F)
		out := append(serializeLittleEndianUint32(uint32(obj.Value.Counter)), b4)
		if t == MCounterTime {
			out = append(out, EncodeCp56(timeOrZero(obj))...)
		}
		return out, nil

	case CSingleCmd:
		if obj.Value.Kind != KindBool {
			return nil, mismatch(KindBool)
		}
		b0 := obj.Qualifier &^ 0x01
		if obj.Value.Bool {
			b0 |= 0x01
		}
		return []byte{b0}, nil

	case CDoubleCmd:
		if obj.Value.Kind != KindDoublePoint {
			return nil, mismatch(KindDoublePoint)
		}
		b0 := (obj.Qualifier &^ 0x03) | byte(obj.Value.DoublePoint&0x03)
		return []byte{b0}, nil

	case CStepCmd:
		if obj.Value.Kind != KindStep {
			return nil, mismatch(KindStep)
		}
		b0 := (obj.Qualifier &^ 0x03) | (byte(obj.Value.Step) & 0x03)
		return []byte{b0}, nil

	case CSetpointN:
		if obj.Value.Kind != KindNormalized {
			return nil, mismatch(KindNormalized)
		}
		raw := clampInt16(int64(obj.Value.Normalized * 32768.0))
		return append(serializeLittleEndianUint16(uint16(raw)), obj.Qualifier), nil

	case CSetpointS:
		if obj.Value.Kind != KindScaled {
			return nil, mismatch(KindScaled)
		}
		return append(serializeLittleEndianUint16(uint16(obj.Value.Scaled)), obj.Qualifier), nil

	case CSetpointF:
		if obj.Value.Kind != KindFloat {
			return nil, mismatch(KindFloat)
		}
		return append(serializeFloat32(obj.Value.Float), obj.Qualifier), nil

	case CBitstringCmd:
		if obj.Value.Kind != KindBits32 {
			return nil, mismatch(KindBits32)
		}
		return serializeLittleEndianUint32(obj.Value.Bits32), nil

	case CInterrogation, CCounterInterr, CResetProcess:
		return []byte{obj.Qualifier}, nil

	case CRead:
		return nil, nil

	case CClockSync:
		if obj.Value.Kind != KindTime {
			return nil, mismatch(KindTime)
		}
		return EncodeCp56(obj.Value.Time), nil

	case CTest:
		if obj.Value.Kind != KindBits32 {
			return nil, mismatch(KindBits32)
		}
		return serializeLittleEndianUint16(uint16(obj.Value.Bits32)), nil

	case CDelayAcquire:
		if obj.Value.Kind != KindScaled {
			return nil, mismatch(KindScaled)
		}
		return serializeLittleEndianUint16(uint16(obj.Value.Scaled)), nil

	default:
		return nil, newErr(CodeUnsupportedType, "type %s", t)
	}
}

func timeOrZero(obj InformationObject) Cp56Time2a {
	if obj.Time != nil {
		return *obj.Time
	}
	return Cp56Time2a{}
}
