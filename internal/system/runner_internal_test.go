package system

import (
	"context"
	"strings"
	"testing"

	. "github.com/onsi/gomega"
)

func TestRun(t *testing.T) {
	g := NewWithT(t)
	r := New()

	res := r.Run(context.Background(), "sh", "-c", "echo hello")
	g.Expect(res.Ok()).To(BeTrue())
	g.Expect(strings.TrimSpace(res.Output)).To(Equal("hello"))
}

func TestRunExitCode(t *testing.T) {
	g := NewWithT(t)
	r := New()

	res := r.Run(context.Background(), "sh", "-c", "exit 3")
	g.Expect(res.Ok()).To(BeFalse())
	g.Expect(res.Code).To(Equal(3))
}

func TestRunMissingBinary(t *testing.T) {
	g := NewWithT(t)
	r := New()

	res := r.Run(context.Background(), "definitely-not-a-binary-xyz")
	g.Expect(res.Ok()).To(BeFalse())
	g.Expect(res.Code).To(Equal(-1))
}

func TestStream(t *testing.T) {
	g := NewWithT(t)
	r := New()

	res := r.Stream(context.Background(), "", "sh", "-c", "echo line1; echo line2 >&2")
	g.Expect(res.Ok()).To(BeTrue())
	g.Expect(res.Output).To(ContainSubstring("line1"))
	g.Expect(res.Output).To(ContainSubstring("line2"))
}

func TestStreamDir(t *testing.T) {
	g := NewWithT(t)
	r := New()

	dir := t.TempDir()
	res := r.Stream(context.Background(), dir, "pwd")
	g.Expect(res.Ok()).To(BeTrue())
	g.Expect(strings.TrimSpace(res.Output)).To(ContainSubstring(dir))
}

func TestExists(t *testing.T) {
	g := NewWithT(t)
	r := New()

	g.Expect(r.Exists("sh")).To(BeTrue())
	g.Expect(r.Exists("definitely-not-a-binary-xyz")).To(BeFalse())
}
