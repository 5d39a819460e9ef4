package devices

import (
	"context"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tupyy/camsetup/internal/system"
	"go.uber.org/zap"
)

var deviceNumberRe = regexp.MustCompile(`video(\d+)$`)

// List returns the /dev/video* nodes present on the system, sorted by
// device number, excluding the virtual device path.
func List(exclude string) []string {
	matches, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil
	}

	var devs []string
	for _, m := range matches {
		if m == exclude {
			continue
		}
		if deviceNumberRe.MatchString(m) {
			devs = append(devs, m)
		}
	}

	sort.Slice(devs, func(i, j int) bool {
		return Number(devs[i]) < Number(devs[j])
	})

	return devs
}

// Number extracts the device number from a /dev/videoN path.
func Number(path string) int {
	m := deviceNumberRe.FindStringSubmatch(path)
	if len(m) < 2 {
		return 0
	}

	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}

	return n
}

// Prober runs the V4L2 diagnostic tools against devices.
type Prober struct {
	runner system.Runner
}

func NewProber(runner system.Runner) *Prober {
	return &Prober{runner: runner}
}

// CardName returns the camera name reported by v4l2-ctl, empty when
// unavailable.
func (p *Prober) CardName(ctx context.Context, device string) string {
	if !p.runner.Exists("v4l2-ctl") {
		return ""
	}

	res := p.runner.Run(ctx, "v4l2-ctl", "--device", device, "--info")
	if !res.Ok() {
		return ""
	}

	return parseCardName(res.Output)
}

// parseCardName extracts the "Card type" field from v4l2-ctl --info output.
func parseCardName(out string) string {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Card type") {
			continue
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) == 2 {
			return strings.TrimSpace(parts[1])
		}
	}
	return ""
}

// ListDevices returns the v4l2-ctl device listing for the report.
func (p *Prober) ListDevices(ctx context.Context) string {
	if !p.runner.Exists("v4l2-ctl") {
		return "v4l2-ctl not found"
	}

	res := p.runner.Run(ctx, "v4l2-ctl", "--list-devices")
	if !res.Ok() {
		return "v4l2-ctl failed"
	}

	return res.Output
}

// USBDevices returns the lsusb listing for the report.
func (p *Prober) USBDevices(ctx context.Context) string {
	if !p.runner.Exists("lsusb") {
		return "lsusb not found"
	}

	res := p.runner.Run(ctx, "lsusb")
	if !res.Ok() {
		return "lsusb failed"
	}

	return res.Output
}

// TestCapture opens the device outside OBS for a few seconds. ffplay being
// killed by its timeout still counts as success: the stream was displayed.
func (p *Prober) TestCapture(ctx context.Context, device string, duration time.Duration) bool {
	if p.runner.Exists("ffplay") {
		zap.S().Infow("testing capture with ffplay", "device", device)

		tctx, cancel := context.WithTimeout(ctx, duration+time.Second)
		res := p.runner.Run(tctx, "ffplay", "-loglevel", "quiet", "-t",
			strconv.Itoa(int(duration.Seconds())), device)
		cancel()

		if res.Ok() || tctx.Err() == context.DeadlineExceeded {
			return true
		}
		zap.S().Warnw("ffplay test failed", "device", device, "code", res.Code)
	}

	if p.runner.Exists("gst-launch-1.0") {
		zap.S().Infow("testing capture with gst-launch", "device", device)

		tctx, cancel := context.WithTimeout(ctx, duration)
		p.runner.Run(tctx, "gst-launch-1.0", "v4l2src", "device="+device, "!", "autovideosink")
		expired := tctx.Err() == context.DeadlineExceeded
		cancel()

		// the pipeline runs until killed; surviving the window means frames flowed
		return expired
	}

	zap.S().Warnw("no capture test tool available", "device", device)
	return false
}
