package provision

import (
	"encoding/json"
	"time"
)

// Status is the outcome severity of one remediation step.
type Status int

const (
	StatusOK Status = iota
	StatusWarn
	StatusFail
	StatusSkip
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	case StatusSkip:
		return "SKIP"
	}
	return "UNKNOWN"
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Result holds the outcome of a single step.
type Result struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
	Advice string `json:"advice,omitempty"`
}

func ok(name, detail string) Result {
	return Result{Name: name, Status: StatusOK, Detail: detail}
}

func warn(name, detail, advice string) Result {
	return Result{Name: name, Status: StatusWarn, Detail: detail, Advice: advice}
}

func fail(name, detail, advice string) Result {
	return Result{Name: name, Status: StatusFail, Detail: detail, Advice: advice}
}

func skip(name, detail string) Result {
	return Result{Name: name, Status: StatusSkip, Detail: detail}
}

// Report is the aggregated outcome of a provisioning or diagnostic run.
type Report struct {
	Timestamp       time.Time `json:"timestamp"`
	HostID          string    `json:"host_id"`
	VirtualDevice   string    `json:"virtual_device"`
	VirtualDeviceOK bool      `json:"virtual_device_ok"`
	PipeWireOK      bool      `json:"pipewire_ok"`
	ReloginNeeded   bool      `json:"relogin_needed"`
	PhysicalDevices []string  `json:"physical_devices"`
	Results         []Result  `json:"results"`
	LogFile         string    `json:"log_file,omitempty"`
}

// WorstStatus returns the most severe status across results, skips excluded.
func (r *Report) WorstStatus() Status {
	worst := StatusOK
	for _, res := range r.Results {
		if res.Status == StatusSkip {
			continue
		}
		if res.Status > worst {
			worst = res.Status
		}
	}
	return worst
}
