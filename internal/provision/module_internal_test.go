package provision

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	. "github.com/onsi/gomega"
	"github.com/tupyy/camsetup/internal/system"
)

func TestModprobeArgs(t *testing.T) {
	g := NewWithT(t)

	args := modprobeArgs(10, "OBS_Virtual_Cam")

	g.Expect(args).To(Equal([]string{
		"modprobe", "v4l2loopback",
		"devices=1",
		"video_nr=10",
		"card_label=OBS_Virtual_Cam",
		"exclusive_caps=1",
	}))
}

func TestDeviceExists(t *testing.T) {
	g := NewWithT(t)

	path := filepath.Join(t.TempDir(), "video10")
	g.Expect(deviceExists(path)).To(BeFalse())

	g.Expect(os.WriteFile(path, nil, 0o600)).To(Succeed())
	g.Expect(deviceExists(path)).To(BeTrue())
}

func TestWaitForDevice(t *testing.T) {
	g := NewWithT(t)

	path := filepath.Join(t.TempDir(), "video10")

	// device appears while waiting
	go func() {
		time.Sleep(100 * time.Millisecond)
		os.WriteFile(path, nil, 0o600)
	}()
	g.Expect(waitForDevice(context.Background(), path, 5*time.Second)).To(BeTrue())

	// timeout on a device that never shows up
	missing := filepath.Join(t.TempDir(), "video11")
	g.Expect(waitForDevice(context.Background(), missing, 600*time.Millisecond)).To(BeFalse())
}

func TestLoadVirtualCameraModprobeFails(t *testing.T) {
	g := NewWithT(t)
	initTestConfig(t)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runner := system.NewMockRunner(ctrl)
	runner.EXPECT().
		Run(gomock.Any(), "sudo", "modprobe", "-r", "v4l2loopback").
		Return(system.CmdResult{})
	runner.EXPECT().
		Run(gomock.Any(), "sudo", "modprobe", "v4l2loopback",
			"devices=1", "video_nr=10", "card_label=OBS_Virtual_Cam", "exclusive_caps=1").
		Return(system.CmdResult{Code: 1, Output: "modprobe: ERROR: could not insert 'v4l2loopback'", Err: errors.New("exit status 1")})
	runner.EXPECT().
		Run(gomock.Any(), "dmesg").
		Return(system.CmdResult{Output: "usb 1-2: new device\nv4l2loopback: module verification failed\n"})

	result := New(runner, &fakeUnits{}, Options{}).loadVirtualCamera(context.Background())

	g.Expect(result.Status).To(Equal(StatusFail))
	g.Expect(result.Detail).To(ContainSubstring("modprobe failed"))
	g.Expect(result.Detail).To(ContainSubstring("module verification failed"))
	g.Expect(result.Advice).To(ContainSubstring("kernel-devel"))
}

func TestEnsureModuleAvailable(t *testing.T) {
	g := NewWithT(t)
	initTestConfig(t)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runner := system.NewMockRunner(ctrl)
	runner.EXPECT().
		Run(gomock.Any(), "modinfo", "v4l2loopback").
		Return(system.CmdResult{Output: "filename: v4l2loopback.ko"})

	result := New(runner, &fakeUnits{}, Options{}).ensureModule(context.Background())

	g.Expect(result.Status).To(Equal(StatusOK))
}

func TestGrepLines(t *testing.T) {
	g := NewWithT(t)

	out := "usb 1-2: new device\n  v4l2loopback driver version 0.12.7 loaded\nother line\nv4l2loopback: error\n"

	lines := grepLines(out, "v4l2loopback")
	g.Expect(lines).To(HaveLen(2))
	g.Expect(lines[0]).To(Equal("v4l2loopback driver version 0.12.7 loaded"))

	g.Expect(grepLines(out, "nosuchmodule")).To(BeEmpty())
}
