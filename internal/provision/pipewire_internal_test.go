package provision

import (
	"testing"

	. "github.com/onsi/gomega"
)

func TestHasVideoNodes(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect bool
	}{
		{
			name:   "device path in pw-cli listing",
			input:  `		object.path = "v4l2:/dev/video0"`,
			expect: true,
		},
		{
			name:   "media class",
			input:  `		media.class = "Video/Device"`,
			expect: true,
		},
		{
			name:   "v4l2 api marker",
			input:  `		device.api = "V4L2"`,
			expect: true,
		},
		{
			name:   "audio only",
			input:  `		media.class = "Audio/Sink"`,
			expect: false,
		},
		{
			name:   "empty",
			input:  "",
			expect: false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			g := NewWithT(t)
			g.Expect(hasVideoNodes(test.input)).To(Equal(test.expect))
		})
	}
}

func TestMediaSessionInstalled(t *testing.T) {
	g := NewWithT(t)

	installed := "Installed Packages\npipewire-media-session.x86_64  0.4.1-2.fc36  @fedora\n"
	g.Expect(mediaSessionInstalled(installed, 0)).To(BeTrue())

	// dnf sometimes exits 0 with an error body
	g.Expect(mediaSessionInstalled("Error: No matching Packages to list\n", 0)).To(BeFalse())
	g.Expect(mediaSessionInstalled(installed, 1)).To(BeFalse())
}

func TestJournalIssues(t *testing.T) {
	g := NewWithT(t)

	out := `Jan 01 10:00:00 host wireplumber[1234]: starting
Jan 01 10:00:01 host wireplumber[1234]: Failed to register object
Jan 01 10:00:02 host wireplumber[1234]: unit is masked
Jan 01 10:00:03 host wireplumber[1234]: leaked proxy found
Jan 01 10:00:04 host wireplumber[1234]: ready`

	issues := journalIssues(out, journalIssuePatterns["wireplumber.service"])
	g.Expect(issues).To(HaveLen(3))

	issues = journalIssues(out, journalIssuePatterns["pipewire.service"])
	g.Expect(issues).To(HaveLen(1))

	g.Expect(journalIssues("all good\n", journalIssuePatterns["pipewire.service"])).To(BeEmpty())
}
