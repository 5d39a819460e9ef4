package provision

import (
	"testing"

	. "github.com/onsi/gomega"
)

func TestInstallArgs(t *testing.T) {
	g := NewWithT(t)

	args := installArgs("6.8.5-301.fc40.x86_64", []string{"obs-studio", "kernel-devel", "ffmpeg"})

	g.Expect(args[:6]).To(Equal([]string{"dnf", "install", "-y", "--allowerasing", "--skip-broken", "--skip-unavailable"}))
	g.Expect(args).To(ContainElement("kernel-devel-6.8.5-301.fc40.x86_64"))
	g.Expect(args).NotTo(ContainElement("kernel-devel"))
	g.Expect(args).To(ContainElement("obs-studio"))
	g.Expect(args).To(ContainElement("ffmpeg"))
}

func TestInstallArgsNoKernelVersion(t *testing.T) {
	g := NewWithT(t)

	// uname failed; fall back to the generic package
	args := installArgs("", []string{"kernel-devel"})
	g.Expect(args).To(ContainElement("kernel-devel"))
}

func TestInstallArgsPinAppended(t *testing.T) {
	g := NewWithT(t)

	// kernel-devel missing from the list still gets pinned headers installed
	args := installArgs("6.8.5", []string{"obs-studio"})
	g.Expect(args).To(ContainElement("kernel-devel-6.8.5"))
}
