package driver

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/scada-io/iec104"
	"github.com/scada-io/iec104/scheduler"
)

// ParseBlockConfigs parses the block configuration string grammar of §6:
// "CA-QOI-IOAfrom-IOAto/TypeID[,TypeID...]/enabled", multiple blocks joined
// by "|", e.g. "1-20-1-1000/1,3,9/true".
func ParseBlockConfigs(s string, period time.Duration) ([]scheduler.Config, error) {
	if s == "" {
		return nil, nil
	}
	var out []scheduler.Config
	for _, part := range strings.Split(s, "|") {
		cfg, err := parseOneBlockConfig(part, period)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

func parseOneBlockConfig(s string, period time.Duration) (scheduler.Config, error) {
	segs := strings.Split(s, "/")
	if len(segs) != 3 {
		return scheduler.Config{}, fmt.Errorf("iec104/driver: block %q: want CA-QOI-IOAfrom-IOAto/TypeID,.../enabled", s)
	}

	head := strings.Split(segs[0], "-")
	if len(head) != 4 {
		return scheduler.Config{}, fmt.Errorf("iec104/driver: block %q: head wants CA-QOI-IOAfrom-IOAto", s)
	}
	ca, err := strconv.ParseUint(head[0], 10, 16)
	if err != nil {
		return scheduler.Config{}, fmt.Errorf("iec104/driver: block %q: bad CA: %v", s, err)
	}
	qoi, err := strconv.ParseUint(head[1], 10, 8)
	if err != nil {
		return scheduler.Config{}, fmt.Errorf("iec104/driver: block %q: bad QOI: %v", s, err)
	}
	ioaFrom, err := strconv.ParseUint(head[2], 10, 32)
	if err != nil {
		return scheduler.Config{}, fmt.Errorf("iec104/driver: block %q: bad IOAfrom: %v", s, err)
	}
	ioaTo, err := strconv.ParseUint(head[3], 10, 32)
	if err != nil {
		return scheduler.Config{}, fmt.Errorf("iec104/driver: block %q: bad IOAto: %v", s, err)
	}
	if ioaTo < ioaFrom {
		return scheduler.Config{}, fmt.Errorf("iec104/driver: block %q: IOAto < IOAfrom", s)
	}

	ioaFilter := make(map[uint32]bool, ioaTo-ioaFrom+1)
	for i := ioaFrom; i <= ioaTo; i++ {
		ioaFilter[uint32(i)] = true
	}

	typeFilter := make(map[iec104.TypeID]bool)
	for _, ts := range strings.Split(segs[1], ",") {
		t, err := strconv.ParseUint(strings.TrimSpace(ts), 10, 8)
		if err != nil {
			return scheduler.Config{}, fmt.Errorf("iec104/driver: block %q: bad TypeID %q: %v", s, ts, err)
		}
		typeFilter[iec104.TypeID(t)] = true
	}

	enabled, err := strconv.ParseBool(segs[2])
	if err != nil {
		return scheduler.Config{}, fmt.Errorf("iec104/driver: block %q: bad enabled flag: %v", s, err)
	}

	return scheduler.Config{
		CA:           uint16(ca),
		QOI:          uint8(qoi),
		Period:       period,
		IOAFilter:    ioaFilter,
		TypeIDFilter: typeFilter,
		Enabled:      enabled,
	}, nil
}
