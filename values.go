package iec104

import "fmt"

// TypeID identifies the layout of an ASDU's information objects (1-127).
type TypeID uint8

// The subset of IEC 101/104 type identifications this core emits or accepts,
// named after companion standard 101 table 8 the way the pascaldekloe/part5
// and marrasen/go-iecp5 reference packages do.
const (
	MSingle       TypeID = 1  // M_SP_NA_1 single-point information
	MDouble       TypeID = 3  // M_DP_NA_1 double-point information
	MStep         TypeID = 5  // M_ST_NA_1 step position information
	MBitstring32  TypeID = 7  // M_BO_NA_1 bitstring of 32 bit
	MNormalized   TypeID = 9  // M_ME_NA_1 measured value, normalized
	MScaled       TypeID = 11 // M_ME_NB_1 measured value, scaled
	MFloat        TypeID = 13 // M_ME_NC_1 measured value, short float
	MCounter      TypeID = 15 // M_IT_NA_1 integrated totals

	MSingleTime       TypeID = 30 // M_SP_TB_1
	MDoubleTime       TypeID = 31 // M_DP_TB_1
	MStepTime         TypeID = 32 // M_ST_TB_1
	MBitstring32Time  TypeID = 33 // M_BO_TB_1
	MNormalizedTime   TypeID = 34 // M_ME_TD_1
	MScaledTime       TypeID = 35 // M_ME_TE_1
	MFloatTime        TypeID = 36 // M_ME_TF_1
	MCounterTime      TypeID = 37 // M_IT_TB_1

	CSingleCmd    TypeID = 45 // C_SC_NA_1
	CDoubleCmd    TypeID = 46 // C_DC_NA_1
	CStepCmd      TypeID = 47 // C_RC_NA_1
	CSetpointN    TypeID = 48 // C_SE_NA_1
	CSetpointS    TypeID = 49 // C_SE_NB_1
	CSetpointF    TypeID = 50 // C_SE_NC_1
	CBitstringCmd TypeID = 51 // C_BO_NA_1

	CInterrogation  TypeID = 100 // C_IC_NA_1
	CCounterInterr  TypeID = 101 // C_CI_NA_1
	CRead           TypeID = 102 // C_RD_NA_1
	CClockSync      TypeID = 103 // C_CS_NA_1
	CTest           TypeID = 104 // C_TS_NA_1
	CResetProcess   TypeID = 105 // C_RP_NA_1
	CDelayAcquire   TypeID = 106 // C_CD_NA_1
)

func (t TypeID) String() string {
	if n, ok := typeIDNames[t]; ok {
		return n
	}
	return fmt.Sprintf("TypeID(%d)", uint8(t))
}

var typeIDNames = map[TypeID]string{
	MSingle: "M_SP_NA_1", MDouble: "M_DP_NA_1", MStep: "M_ST_NA_1",
	MBitstring32: "M_BO_NA_1", MNormalized: "M_ME_NA_1", MScaled: "M_ME_NB_1",
	MFloat: "M_ME_NC_1", MCounter: "M_IT_NA_1",
	MSingleTime: "M_SP_TB_1", MDoubleTime: "M_DP_TB_1", MStepTime: "M_ST_TB_1",
	MBitstring32Time: "M_BO_TB_1", MNormalizedTime: "M_ME_TD_1", MScaledTime: "M_ME_TE_1",
	MFloatTime: "M_ME_TF_1", MCounterTime: "M_IT_TB_1",
	CSingleCmd: "C_SC_NA_1", CDoubleCmd: "C_DC_NA_1", CStepCmd: "C_RC_NA_1",
	CSetpointN: "C_SE_NA_1", CSetpointS: "C_SE_NB_1", CSetpointF: "C_SE_NC_1",
	CBitstringCmd: "C_BO_NA_1",
	CInterrogation: "C_IC_NA_1", CCounterInterr: "C_CI_NA_1", CRead: "C_RD_NA_1",
	CClockSync: "C_CS_NA_1", CTest: "C_TS_NA_1", CResetProcess: "C_RP_NA_1",
	CDelayAcquire: "C_CD_NA_1",
}

// IsMonitoring reports whether t identifies monitor-direction process
// information (command dispatch rejects writes to these, per §4.6).
func (t TypeID) IsMonitoring() bool {
	return t <= 44
}

// IsTimeTagged reports whether t carries a trailing CP56Time2a.
func (t TypeID) IsTimeTagged() bool {
	switch t {
	case MSingleTime, MDoubleTime, MStepTime, MBitstring32Time,
		MNormalizedTime, MScaledTime, MFloatTime, MCounterTime:
		return true
	default:
		return false
	}
}

// elementSizes is the table backing element_size(TypeID): the octet count
// of one information element (value + optional time tag), excluding the
// 3-octet IOA that precedes it. Every TypeID this engine may emit or accept
// is listed; anything else is CodeUnsupportedType.
var elementSizes = map[TypeID]int{
	MSingle:      1,
	MDouble:      1,
	MStep:        2,
	MBitstring32: 5,
	MNormalized:  3,
	MScaled:      3,
	MFloat:       5,
	MCounter:     5,

	MSingleTime:      1 + 7,
	MDoubleTime:      1 + 7,
	MStepTime:        2 + 7,
	MBitstring32Time: 5 + 7,
	MNormalizedTime:  3 + 7,
	MScaledTime:      3 + 7,
	MFloatTime:       5 + 7,
	MCounterTime:     5 + 7,

	CSingleCmd:    1,
	CDoubleCmd:    1,
	CStepCmd:      1,
	CSetpointN:    3,
	CSetpointS:    3,
	CSetpointF:    5,
	CBitstringCmd: 4,

	CInterrogation: 1,
	CCounterInterr: 1,
	CRead:          0,
	CClockSync:     7,
	CTest:          2,
	CResetProcess:  1,
	CDelayAcquire:  2,
}

// elementSize implements element_size(TypeID) from §4.1.
func elementSize(t TypeID) (int, error) {
	n, ok := elementSizes[t]
	if !ok {
		return 0, newErr(CodeUnsupportedType, "type %s", t)
	}
	return n, nil
}

// QualityDescriptor is the QDS bit set of §3.
type QualityDescriptor byte

const (
	QDOverflow    QualityDescriptor = 0x01
	QDBlocked     QualityDescriptor = 0x10
	QDSubstituted QualityDescriptor = 0x20
	QDNotTopical  QualityDescriptor = 0x40
	QDInvalid     QualityDescriptor = 0x80
)

// Good reports whether both Invalid and Not-Topical are clear.
func (q QualityDescriptor) Good() bool {
	return q&(QDInvalid|QDNotTopical) == 0
}

func (q QualityDescriptor) String() string {
	if q == 0 {
		return "good"
	}
	s := ""
	add := func(bit QualityDescriptor, name string) {
		if q&bit != 0 {
			if s != "" {
				s += "|"
			}
			s += name
		}
	}
	add(QDOverflow, "OV")
	add(QDBlocked, "BL")
	add(QDSubstituted, "SB")
	add(QDNotTopical, "NT")
	add(QDInvalid, "IV")
	return s
}

// DoublePointState enumerates the DIQ value bits.
type DoublePointState uint8

const (
	DPIndeterminateA DoublePointState = 0
	DPOff            DoublePointState = 1
	DPOn             DoublePointState = 2
	DPIndeterminateB DoublePointState = 3
)

func (d DoublePointState) String() string {
	switch d {
	case DPIndeterminateA:
		return "IndeterminateA"
	case DPOff:
		return "Off"
	case DPOn:
		return "On"
	case DPIndeterminateB:
		return "IndeterminateB"
	default:
		return "?"
	}
}

// ValueKind discriminates Value's active field. The engine and codec switch
// exhaustively on Kind (and, for decoding, on TypeID); nothing ever probes a
// Value's runtime Go type (Design Note, §9).
type ValueKind int

const (
	KindBool ValueKind = iota
	KindDoublePoint
	KindStep
	KindBits32
	KindNormalized
	KindScaled
	KindFloat
	KindCounter
	KindTime
	KindQualifier
)

// Value is the tagged-union payload of one information element.
type Value struct {
	Kind ValueKind

	Bool        bool
	DoublePoint DoublePointState
	Step        int8 // VTI, range [-64,63]
	Bits32      uint32
	Normalized  float32 // decoded NVA, range [-1, 1)
	Scaled      int16
	Float       float32
	Counter     int32
	Time        Cp56Time2a
	Qualifier   uint8
}

func BoolValue(b bool) Value               { return Value{Kind: KindBool, Bool: b} }
func DoublePointValue(d DoublePointState) Value { return Value{Kind: KindDoublePoint, DoublePoint: d} }
func StepValue(v int8) Value               { return Value{Kind: KindStep, Step: v} }
func Bits32Value(v uint32) Value           { return Value{Kind: KindBits32, Bits32: v} }
func NormalizedValue(v float32) Value      { return Value{Kind: KindNormalized, Normalized: v} }
func ScaledValue(v int16) Value            { return Value{Kind: KindScaled, Scaled: v} }
func FloatValue(v float32) Value           { return Value{Kind: KindFloat, Float: v} }
func CounterValue(v int32) Value           { return Value{Kind: KindCounter, Counter: v} }
func TimeValue(v Cp56Time2a) Value         { return Value{Kind: KindTime, Time: v} }
func QualifierValue(v uint8) Value         { return Value{Kind: KindQualifier, Qualifier: v} }

func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindDoublePoint:
		return v.DoublePoint.String()
	case KindStep:
		return fmt.Sprintf("step(%d)", v.Step)
	case KindBits32:
		return fmt.Sprintf("0x%08x", v.Bits32)
	case KindNormalized:
		return fmt.Sprintf("%.6f", v.Normalized)
	case KindScaled:
		return fmt.Sprintf("%d", v.Scaled)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindCounter:
		return fmt.Sprintf("count(%d)", v.Counter)
	case KindTime:
		return v.Time.String()
	case KindQualifier:
		return fmt.Sprintf("qualifier(0x%02x)", v.Qualifier)
	default:
		return "?"
	}
}
