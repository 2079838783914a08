package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scada-io/iec104/driver"
)

// yamlDevice mirrors DeviceConfig's fields in a structured, YAML-friendly
// shape; block specs stay as raw grammar strings so one loader can share
// ParseBlockConfigs with LoadINI.
type yamlDevice struct {
	Name          string   `yaml:"name"`
	IP            string   `yaml:"ip"`
	Port          int      `yaml:"port"`
	CommonAddress uint16   `yaml:"common_address"`
	K             int      `yaml:"k"`
	W             int      `yaml:"w"`
	PollPeriodMs  int      `yaml:"poll_period_ms"`
	Blocks        []string `yaml:"blocks"`
}

// LoadYAML parses a file shaped like:
//
//	name: substation-a
//	ip: 192.0.2.10
//	port: 2404
//	common_address: 1
//	k: 12
//	w: 8
//	poll_period_ms: 5000
//	blocks:
//	  - "1-20-1-1000/1,3,9/true"
//
// into a driver.DeviceConfig. This is an alternative structured form to
// LoadINI, not a replacement — both are thin, outside the core.
func LoadYAML(path string) (driver.DeviceConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return driver.DeviceConfig{}, err
	}
	var yd yamlDevice
	if err := yaml.Unmarshal(raw, &yd); err != nil {
		return driver.DeviceConfig{}, err
	}

	pollPeriod := time.Duration(yd.PollPeriodMs) * time.Millisecond
	if pollPeriod == 0 {
		pollPeriod = 5 * time.Second
	}

	dc := driver.DeviceConfig{
		Name:          yd.Name,
		IP:            yd.IP,
		Port:          yd.Port,
		CommonAddress: yd.CommonAddress,
		K:             yd.K,
		W:             yd.W,
	}
	for _, spec := range yd.Blocks {
		blocks, err := driver.ParseBlockConfigs(spec, pollPeriod)
		if err != nil {
			return driver.DeviceConfig{}, err
		}
		dc.Blocks = append(dc.Blocks, blocks...)
	}
	return dc, nil
}
