package report_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tupyy/camsetup/internal/provision"
	"github.com/tupyy/camsetup/internal/report"
)

func sampleReport() *provision.Report {
	return &provision.Report{
		Timestamp:       time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		HostID:          "abc123",
		VirtualDevice:   "/dev/video10",
		VirtualDeviceOK: true,
		PipeWireOK:      true,
		PhysicalDevices: []string{"/dev/video0", "/dev/video2"},
		Results: []provision.Result{
			{Name: "install packages", Status: provision.StatusOK, Detail: "16 packages requested"},
			{Name: "video group membership", Status: provision.StatusWarn, Detail: "user added", Advice: "log out and back in"},
		},
		LogFile: "setup_log_20240101_100000.txt",
	}
}

func TestText(t *testing.T) {
	out := report.Text(sampleReport())

	assert.Contains(t, out, "FINAL CHECKS SUMMARY")
	assert.Contains(t, out, "Overall status:               WARN")
	assert.Contains(t, out, "/dev/video10")
	assert.Contains(t, out, "/dev/video0, /dev/video2")
	assert.Contains(t, out, "install packages")
	assert.Contains(t, out, "-> log out and back in")
	assert.Contains(t, out, "setup_log_20240101_100000.txt")

	// everything healthy, no troubleshooting sections
	assert.NotContains(t, out, "No physical cameras")
	assert.NotContains(t, out, "virtual camera")
}

func TestTextGuidance(t *testing.T) {
	rep := sampleReport()
	rep.VirtualDeviceOK = false
	rep.PipeWireOK = false
	rep.ReloginNeeded = true
	rep.PhysicalDevices = nil

	out := report.Text(rep)

	assert.Contains(t, out, "No physical cameras were found")
	assert.Contains(t, out, "The virtual camera (/dev/video10) is required but not present")
	assert.Contains(t, out, "log out and back in")
	assert.Contains(t, out, "WirePlumber policy files")
}

func TestJSON(t *testing.T) {
	data, err := report.JSON(sampleReport())
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "abc123", decoded["host_id"])
	assert.Equal(t, "/dev/video10", decoded["virtual_device"])

	results, ok := decoded["results"].([]interface{})
	require.True(t, ok)
	require.Len(t, results, 2)

	first, ok := results[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "OK", first["status"])
}

func TestYAML(t *testing.T) {
	data, err := report.YAML(sampleReport())
	require.NoError(t, err)

	assert.Contains(t, string(data), "host_id: abc123")
	assert.Contains(t, string(data), "virtual_device: /dev/video10")
	assert.Contains(t, string(data), "status: OK")
}
