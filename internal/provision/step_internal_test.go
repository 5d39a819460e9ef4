package provision

import (
	"encoding/json"
	"testing"

	. "github.com/onsi/gomega"
)

func TestStatusString(t *testing.T) {
	g := NewWithT(t)

	g.Expect(StatusOK.String()).To(Equal("OK"))
	g.Expect(StatusWarn.String()).To(Equal("WARN"))
	g.Expect(StatusFail.String()).To(Equal("FAIL"))
	g.Expect(StatusSkip.String()).To(Equal("SKIP"))
	g.Expect(Status(42).String()).To(Equal("UNKNOWN"))
}

func TestStatusMarshalJSON(t *testing.T) {
	g := NewWithT(t)

	data, err := json.Marshal(fail("step", "detail", "advice"))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(string(data)).To(ContainSubstring(`"status":"FAIL"`))
}

func TestWorstStatus(t *testing.T) {
	g := NewWithT(t)

	report := Report{
		Results: []Result{
			ok("a", ""),
			warn("b", "", ""),
			skip("c", ""),
		},
	}
	g.Expect(report.WorstStatus()).To(Equal(StatusWarn))

	report.Results = append(report.Results, fail("d", "", ""))
	g.Expect(report.WorstStatus()).To(Equal(StatusFail))

	// skips never count, even alone
	onlySkips := Report{Results: []Result{skip("a", "")}}
	g.Expect(onlySkips.WorstStatus()).To(Equal(StatusOK))
}
