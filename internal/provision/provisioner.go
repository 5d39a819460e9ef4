package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	config "github.com/tupyy/camsetup/configuration"
	"github.com/tupyy/camsetup/internal/devices"
	"github.com/tupyy/camsetup/internal/system"
	"github.com/tupyy/camsetup/internal/systemd"
	"go.uber.org/zap"
)

// UnitManager is the systemd surface the provisioner needs.
// *systemd.Manager satisfies it.
type UnitManager interface {
	DiscoverUnit(ctx context.Context, busName string) (string, systemd.Scope, error)
	IsMasked(ctx context.Context, scope systemd.Scope, unit string) bool
	IsActive(ctx context.Context, scope systemd.Scope, unit string) (bool, string)
	Unmask(ctx context.Context, scope systemd.Scope, unit string) error
	Reload(ctx context.Context, scope systemd.Scope) error
	Start(ctx context.Context, scope systemd.Scope, unit string) error
	Restart(ctx context.Context, scope systemd.Scope, unit string) error
	Enable(ctx context.Context, scope systemd.Scope, unit string) error
}

// busServices are the D-Bus services the desktop portal stack depends on.
// They end up masked on some installs and block camera enumeration in OBS.
var busServices = []string{
	"org.freedesktop.impl.portal.PermissionStore",
	"org.a11y.Bus",
}

type Options struct {
	SkipPackages    bool
	SkipModuleBuild bool
	LogFile         string
}

// Provisioner executes the remediation sequence. Steps are idempotent and
// tolerant: a failing step is recorded and the run continues.
type Provisioner struct {
	runner system.Runner
	units  UnitManager
	opts   Options

	results []Result
}

func New(runner system.Runner, units UnitManager, opts Options) *Provisioner {
	return &Provisioner{
		runner: runner,
		units:  units,
		opts:   opts,
	}
}

func (p *Provisioner) record(r Result) {
	switch r.Status {
	case StatusOK:
		zap.S().Infow("step finished", "step", r.Name, "detail", r.Detail)
	case StatusSkip:
		zap.S().Infow("step skipped", "step", r.Name, "detail", r.Detail)
	default:
		zap.S().Warnw("step finished with issues", "step", r.Name, "status", r.Status.String(), "detail", r.Detail)
	}
	p.results = append(p.results, r)
}

// Run executes the full provisioning sequence and returns the report. The
// returned error aggregates hard step failures; a non-nil error still comes
// with a complete report.
func (p *Provisioner) Run(ctx context.Context) (*Report, error) {
	zap.S().Info("starting multimedia stack provisioning")

	p.results = nil

	if p.opts.SkipPackages {
		p.record(skip("install packages", "skipped on request"))
	} else {
		p.record(p.installPackages(ctx))
	}

	for _, busName := range busServices {
		p.record(p.ensureBusService(ctx, busName))
	}

	p.record(p.ensurePortal(ctx))

	groupResult, reloginNeeded := p.ensureVideoGroup(ctx)
	p.record(groupResult)

	if p.opts.SkipModuleBuild {
		p.record(skip("v4l2loopback module", "build skipped on request"))
	} else {
		p.record(p.ensureModule(ctx))
	}

	virtualOK := false
	loadResult := p.loadVirtualCamera(ctx)
	p.record(loadResult)
	if loadResult.Status == StatusOK {
		virtualOK = true
	}

	p.record(p.ensurePipewire(ctx))
	_, firstNodes := p.waitForVideoNodes(ctx)
	p.record(firstNodes)

	// a restart after module load and unit unmasking gives PipeWire a clean
	// slate to enumerate the new device
	p.record(p.restartPipewire(ctx))
	pipewireOK, secondNodes := p.waitForVideoNodes(ctx)
	p.record(secondNodes)

	p.record(p.checkSessionManagerConflict(ctx))

	for _, r := range p.scanJournals(ctx) {
		p.record(r)
	}

	physical := devices.List(config.GetVirtualDevicePath())

	report := &Report{
		Timestamp:       time.Now(),
		HostID:          config.GetHostID(),
		VirtualDevice:   config.GetVirtualDevicePath(),
		VirtualDeviceOK: virtualOK,
		PipeWireOK:      pipewireOK,
		ReloginNeeded:   reloginNeeded,
		PhysicalDevices: physical,
		Results:         p.results,
		LogFile:         p.opts.LogFile,
	}

	var runErr error
	for _, r := range p.results {
		if r.Status == StatusFail {
			runErr = multierror.Append(runErr, fmt.Errorf("%s: %s", r.Name, r.Detail))
		}
	}

	zap.S().Infow("provisioning finished",
		"virtual device", report.VirtualDeviceOK,
		"pipewire nodes", report.PipeWireOK,
		"physical devices", len(report.PhysicalDevices),
	)

	return report, runErr
}

// Diagnose runs the read-only checks: device enumeration, PipeWire node
// state, session manager conflicts and journal scans. Nothing is mutated.
func (p *Provisioner) Diagnose(ctx context.Context) *Report {
	p.results = nil

	pipewireOK, nodes := p.waitForVideoNodes(ctx)
	p.record(nodes)

	p.record(p.checkSessionManagerConflict(ctx))

	for _, r := range p.scanJournals(ctx) {
		p.record(r)
	}

	groupResult, reloginNeeded := p.checkVideoGroup()
	p.record(groupResult)

	virtual := config.GetVirtualDevicePath()
	virtualOK := deviceExists(virtual)
	if virtualOK {
		p.record(ok("virtual device", virtual+" present"))
	} else {
		p.record(warn("virtual device", virtual+" missing",
			fmt.Sprintf("load manually: sudo modprobe v4l2loopback devices=1 video_nr=%d card_label=%s exclusive_caps=1",
				config.GetVirtualVideoNr(), config.GetCardLabel())))
	}

	return &Report{
		Timestamp:       time.Now(),
		HostID:          config.GetHostID(),
		VirtualDevice:   virtual,
		VirtualDeviceOK: virtualOK,
		PipeWireOK:      pipewireOK,
		ReloginNeeded:   reloginNeeded,
		PhysicalDevices: devices.List(virtual),
		Results:         p.results,
	}
}
