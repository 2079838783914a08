package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scada-io/iec104"
)

func TestBlockFeedCachesMatchingCA(t *testing.T) {
	sess := iec104.NewSession(iec104.DefaultSessionConfig("127.0.0.1:2404"))
	b := NewBlock(sess, Config{CA: 1, QOI: InterrogationStation, Period: time.Minute})

	b.Feed(&iec104.ASDU{
		TypeID: iec104.MSingle,
		Cause:  iec104.CauseSpontaneous,
		CA:     1,
		Objects: []iec104.InformationObject{
			{IOA: 10, Value: iec104.BoolValue(true)},
		},
	})

	obj, ok := b.Get(10)
	require.True(t, ok)
	assert.True(t, obj.Value.Bool)
}

func TestBlockFeedIgnoresOtherCommonAddress(t *testing.T) {
	sess := iec104.NewSession(iec104.DefaultSessionConfig("127.0.0.1:2404"))
	b := NewBlock(sess, Config{CA: 1, QOI: InterrogationStation, Period: time.Minute})

	b.Feed(&iec104.ASDU{
		TypeID:  iec104.MSingle,
		Cause:   iec104.CauseSpontaneous,
		CA:      2,
		Objects: []iec104.InformationObject{{IOA: 10, Value: iec104.BoolValue(true)}},
	})

	_, ok := b.Get(10)
	assert.False(t, ok)
}

func TestBlockFeedAppliesIOAAndTypeIDFilters(t *testing.T) {
	sess := iec104.NewSession(iec104.DefaultSessionConfig("127.0.0.1:2404"))
	b := NewBlock(sess, Config{
		CA:           1,
		QOI:          InterrogationStation,
		Period:       time.Minute,
		IOAFilter:    map[uint32]bool{10: true},
		TypeIDFilter: map[iec104.TypeID]bool{iec104.MSingle: true},
	})

	b.Feed(&iec104.ASDU{
		TypeID: iec104.MSingle,
		Cause:  iec104.CauseSpontaneous,
		CA:     1,
		Objects: []iec104.InformationObject{
			{IOA: 10, Value: iec104.BoolValue(true)},
			{IOA: 11, Value: iec104.BoolValue(false)}, // filtered by IOA
		},
	})
	b.Feed(&iec104.ASDU{
		TypeID:  iec104.MDouble,
		Cause:   iec104.CauseSpontaneous,
		CA:      1,
		Objects: []iec104.InformationObject{{IOA: 10, Value: iec104.DoublePointValue(iec104.DPOn)}}, // filtered by type
	})

	_, ok := b.Get(11)
	assert.False(t, ok)
	obj, ok := b.Get(10)
	require.True(t, ok)
	assert.True(t, obj.Value.Bool, "the M_DP write to IOA 10 must be rejected by the TypeID filter, leaving the M_SP value cached")
}

func TestBlockFeedClearsAwaitingOnActivationTermination(t *testing.T) {
	sess := iec104.NewSession(iec104.DefaultSessionConfig("127.0.0.1:2404"))
	b := NewBlock(sess, Config{CA: 1, QOI: InterrogationStation, Period: time.Minute})
	b.awaiting = true
	b.awaitDeadline = time.Now().Add(time.Hour)

	b.Feed(&iec104.ASDU{
		TypeID:  iec104.CInterrogation,
		Cause:   iec104.CauseActivationTermination,
		CA:      1,
		Objects: []iec104.InformationObject{{IOA: 0, Qualifier: InterrogationStation}},
	})

	assert.False(t, b.awaiting)
	assert.False(t, b.lastSuccessful.IsZero())
}

func TestBlockTickSkipsDisabledBlock(t *testing.T) {
	sess := iec104.NewSession(iec104.DefaultSessionConfig("127.0.0.1:2404"))
	b := NewBlock(sess, Config{CA: 1, QOI: InterrogationStation, Period: time.Nanosecond, Enabled: false})
	b.tick(time.Now())
	assert.False(t, b.awaiting)
}

func TestBlockTickSkipsWhenSessionNotActive(t *testing.T) {
	sess := iec104.NewSession(iec104.DefaultSessionConfig("127.0.0.1:2404"))
	b := NewBlock(sess, Config{CA: 1, QOI: InterrogationStation, Period: time.Nanosecond, Enabled: true})
	b.tick(time.Now())
	assert.False(t, b.awaiting, "session is never connected in this test, so tick must not mark an interrogation in flight")
}

func TestBlockTickExpiresTimedOutInterrogation(t *testing.T) {
	sess := iec104.NewSession(iec104.DefaultSessionConfig("127.0.0.1:2404"))
	b := NewBlock(sess, Config{CA: 1, QOI: InterrogationStation, Period: time.Minute, Enabled: true})
	b.awaiting = true
	b.awaitDeadline = time.Now().Add(-time.Second)

	b.tick(time.Now())
	assert.False(t, b.awaiting)
}

func TestBlockClear(t *testing.T) {
	sess := iec104.NewSession(iec104.DefaultSessionConfig("127.0.0.1:2404"))
	b := NewBlock(sess, Config{CA: 1, QOI: InterrogationStation, Period: time.Minute})
	b.Feed(&iec104.ASDU{
		TypeID:  iec104.MSingle,
		Cause:   iec104.CauseSpontaneous,
		CA:      1,
		Objects: []iec104.InformationObject{{IOA: 1, Value: iec104.BoolValue(true)}},
	})
	b.Clear()
	_, ok := b.Get(1)
	assert.False(t, ok)
}
