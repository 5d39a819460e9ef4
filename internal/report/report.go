package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tupyy/camsetup/internal/provision"
	"sigs.k8s.io/yaml"
)

const separator = "============================================================"

// Text renders the human-readable summary with troubleshooting guidance.
func Text(r *provision.Report) string {
	var sb strings.Builder

	sb.WriteString("\n" + separator + "\n")
	sb.WriteString("FINAL CHECKS SUMMARY\n")
	fmt.Fprintf(&sb, "Overall status:               %s\n", r.WorstStatus())
	fmt.Fprintf(&sb, "Host:                         %s\n", r.HostID)
	fmt.Fprintf(&sb, "Virtual device %s present: %v\n", r.VirtualDevice, r.VirtualDeviceOK)
	fmt.Fprintf(&sb, "PipeWire video nodes detected: %v\n", r.PipeWireOK)
	if len(r.PhysicalDevices) > 0 {
		fmt.Fprintf(&sb, "Physical video devices:        %s\n", strings.Join(r.PhysicalDevices, ", "))
	} else {
		sb.WriteString("Physical video devices:        none found\n")
	}
	fmt.Fprintf(&sb, "Relogin needed for video group: %v\n", r.ReloginNeeded)
	sb.WriteString(separator + "\n\n")

	for _, res := range r.Results {
		fmt.Fprintf(&sb, "[%-4s] %-40s %s\n", res.Status, res.Name, res.Detail)
		if res.Advice != "" {
			fmt.Fprintf(&sb, "       -> %s\n", res.Advice)
		}
	}

	sb.WriteString("\n")
	writeGuidance(&sb, r)

	if r.LogFile != "" {
		fmt.Fprintf(&sb, "\nFull log saved to: %s\n", r.LogFile)
	}
	sb.WriteString("OBS log: Help -> Log Files -> View Current Log\n")
	sb.WriteString("System messages: journalctl --user -xe | grep pipewire\n")

	return sb.String()
}

func writeGuidance(sb *strings.Builder, r *provision.Report) {
	if len(r.PhysicalDevices) == 0 {
		sb.WriteString("No physical cameras were found. If you expect cameras attached, check:\n")
		sb.WriteString("  - cables and USB power\n")
		sb.WriteString("  - lsusb and v4l2-ctl --list-devices output above\n")
		sb.WriteString("If the system still does not see them, it is a hardware/driver issue\n")
		sb.WriteString("outside this tool's scope.\n\n")
	}

	if !r.VirtualDeviceOK {
		fmt.Fprintf(sb, "The virtual camera (%s) is required but not present.\n", r.VirtualDevice)
		sb.WriteString("The v4l2loopback module may not have been built for your kernel;\n")
		sb.WriteString("check the build output above and re-run after fixing kernel-devel.\n\n")
	}

	if r.ReloginNeeded {
		sb.WriteString("You must fully log out and back in (or reboot) for the new video\n")
		sb.WriteString("group membership to take effect, then re-run this tool once.\n\n")
	}

	if !r.PipeWireOK {
		sb.WriteString("PipeWire is not reporting video nodes. If OBS keeps showing\n")
		sb.WriteString("'No capture sources available' or 'Caught PipeWire error: connection\n")
		sb.WriteString("error', a full logout/login or reboot is usually required so every\n")
		sb.WriteString("client establishes a fresh PipeWire connection.\n")
		sb.WriteString("WirePlumber policy files live in /usr/share/wireplumber and\n")
		sb.WriteString("/etc/wireplumber; ensure the V4L2 policy is enabled.\n\n")
	}
}

func JSON(r *provision.Report) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

func YAML(r *provision.Report) ([]byte, error) {
	return yaml.Marshal(r)
}
