// Package config is an ambient, out-of-core collaborator: it loads session
// and block configuration from INI or YAML files into the types the core
// and the driver facade consume. The core never imports this package.
package config

import (
	"time"

	"gopkg.in/ini.v1"

	"github.com/scada-io/iec104/driver"
)

// LoadINI parses a file shaped like:
//
//	[session]
//	ip = 192.0.2.10
//	port = 2404
//	common_address = 1
//	k = 12
//	w = 8
//	poll_period_ms = 5000
//
//	[block main]
//	spec = 1-20-1-1000/1,3,9/true
//
// into a DeviceConfig, following the gocanopen example's use of ini.v1 for
// per-section device configuration.
func LoadINI(path string) (driver.DeviceConfig, error) {
	f, err := ini.Load(path)
	if err != nil {
		return driver.DeviceConfig{}, err
	}

	sessionSec := f.Section("session")
	dc := driver.DeviceConfig{
		Name:          sessionSec.Key("name").MustString("default"),
		IP:            sessionSec.Key("ip").String(),
		Port:          sessionSec.Key("port").MustInt(2404),
		CommonAddress: uint16(sessionSec.Key("common_address").MustUint(1)),
		K:             sessionSec.Key("k").MustInt(0),
		W:             sessionSec.Key("w").MustInt(0),
	}

	pollPeriod := time.Duration(sessionSec.Key("poll_period_ms").MustInt(5000)) * time.Millisecond

	for _, sec := range f.Sections() {
		if !isBlockSection(sec.Name()) {
			continue
		}
		spec := sec.Key("spec").String()
		blocks, err := driver.ParseBlockConfigs(spec, pollPeriod)
		if err != nil {
			return driver.DeviceConfig{}, err
		}
		dc.Blocks = append(dc.Blocks, blocks...)
	}

	return dc, nil
}

func isBlockSection(name string) bool {
	return (len(name) > 6 && name[:6] == "block ") || name == "block"
}
