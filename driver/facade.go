package driver

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/scada-io/iec104"
	"github.com/scada-io/iec104/scheduler"
)

// DeviceConfig is the external collaborator tuple of §4.6: one row per
// controlled station, as a configuration source (INI/YAML loader, or
// programmatic) would supply it.
type DeviceConfig struct {
	Name          string
	IP            string
	Port          int
	CommonAddress uint16
	K, W          int
	Blocks        []scheduler.Config
}

// device bundles one configured station's live session, scheduler and the
// blocks covering it.
type device struct {
	cfg       DeviceConfig
	session   *iec104.Session
	scheduler *scheduler.Scheduler
}

// Facade is the driver-facing entry point (C6): it maps tag names to
// addresses, addresses to the session covering their common address, and
// serves typed reads/writes against the per-block cache.
type Facade struct {
	lg *logrus.Logger

	mu      sync.RWMutex
	devices map[string]*device   // keyed by name
	byCA    map[uint16]*device   // keyed by common address
	tags    map[string]Address   // tag name -> address
}

// NewFacade constructs an empty Facade.
func NewFacade(lg *logrus.Logger) *Facade {
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	return &Facade{
		lg:      lg,
		devices: make(map[string]*device),
		byCA:    make(map[uint16]*device),
		tags:    make(map[string]Address),
	}
}

// RegisterDevice constructs a Session and Scheduler for cfg and starts them.
func (f *Facade) RegisterDevice(cfg DeviceConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.devices[cfg.Name]; exists {
		return fmt.Errorf("iec104/driver: device %q already registered", cfg.Name)
	}

	sessCfg := iec104.DefaultSessionConfig(fmt.Sprintf("%s:%d", cfg.IP, cfg.Port))
	sessCfg.CommonAddress = cfg.CommonAddress
	sessCfg.Logger = f.lg
	if cfg.K > 0 {
		sessCfg.K = cfg.K
	}
	if cfg.W > 0 {
		sessCfg.W = cfg.W
	}

	sess := iec104.NewSession(sessCfg)
	sched := scheduler.New(sess, f.lg)
	for _, bc := range cfg.Blocks {
		sched.AddBlock(bc)
	}

	d := &device{cfg: cfg, session: sess, scheduler: sched}
	f.devices[cfg.Name] = d
	f.byCA[cfg.CommonAddress] = d
	for _, bc := range cfg.Blocks {
		f.byCA[bc.CA] = d
	}
	return nil
}

// RegisterTag maps a tag name to an address string of the grammar parsed by
// ParseAddress.
func (f *Facade) RegisterTag(name, address string) error {
	addr, err := ParseAddress(address)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags[name] = addr
	return nil
}

// device returns the named device. It only looks the name up; starting the
// session and scheduler is Connect's job.
func (f *Facade) device(name string) (*device, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	d, ok := f.devices[name]
	return d, ok
}

func (f *Facade) deviceForCA(ca uint16) (*device, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	d, ok := f.byCA[ca]
	return d, ok
}

// Connect dials the named device's session, starts data transfer, and
// starts its scheduler.
func (f *Facade) Connect(ctx context.Context, name string) error {
	d, ok := f.device(name)
	if !ok {
		return iec104.ErrNoSession
	}
	if err := d.session.Connect(ctx); err != nil {
		return err
	}
	if err := d.session.StartDataTransfer(); err != nil {
		return err
	}
	d.scheduler.Run()
	return nil
}

// ReadTag implements read_tag(name) of §4.6.
func (f *Facade) ReadTag(name string) (iec104.Value, error) {
	f.mu.RLock()
	addr, ok := f.tags[name]
	f.mu.RUnlock()
	if !ok {
		return iec104.Value{}, iec104.ErrTagNotFound
	}

	d, ok := f.deviceForCA(addr.CA)
	if !ok {
		return iec104.Value{}, iec104.ErrNoSession
	}
	if d.session.State() != iec104.StateActive {
		return iec104.Value{}, iec104.ErrStale
	}

	for _, b := range d.scheduler.Blocks() {
		if obj, ok := b.Get(addr.IOA); ok {
			return obj.Value, nil
		}
	}
	return iec104.Value{}, iec104.ErrStale
}

// WriteTag implements write_tag(name, value) of §4.6: monitoring TypeIDs
// (<=44) are rejected, everything else dispatches to SendCommand.
func (f *Facade) WriteTag(name string, value iec104.Value) error {
	f.mu.RLock()
	addr, ok := f.tags[name]
	f.mu.RUnlock()
	if !ok {
		return iec104.ErrTagNotFound
	}
	if addr.TypeID.IsMonitoring() {
		return iec104.ErrTagReadOnly
	}

	d, ok := f.deviceForCA(addr.CA)
	if !ok {
		return iec104.ErrNoSession
	}
	return d.session.SendCommand(addr.CA, addr.IOA, addr.TypeID, value, false)
}
