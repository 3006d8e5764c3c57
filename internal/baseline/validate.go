package baseline

import (
	"fmt"

	"github.com/motorwatch/motorwatch/internal/domain"
)

// Validate performs structural checks on a profile. It reports problems and
// never repairs them.
func Validate(p *Profile) []error {
	var errs []error
	if p.BaselineID == "" {
		errs = append(errs, fmt.Errorf("baseline_id is empty"))
	}
	if p.AssetID == "" {
		errs = append(errs, fmt.Errorf("asset_id is empty"))
	}
	if len(p.SignalProfiles) == 0 {
		errs = append(errs, fmt.Errorf("no signal profiles"))
	}
	for sig, sp := range p.SignalProfiles {
		if sp.Std < 0 {
			errs = append(errs, fmt.Errorf("%s: std %v < 0", sig, sp.Std))
		}
		if sp.Min > sp.Max {
			errs = append(errs, fmt.Errorf("%s: min %v > max %v", sig, sp.Min, sp.Max))
		}
		if sp.SampleCount <= 0 {
			errs = append(errs, fmt.Errorf("%s: sample_count %d <= 0", sig, sp.SampleCount))
		}
	}
	return errs
}

// Violation records one sample signal outside the mean +/- k*std band.
type Violation struct {
	SampleIndex int     `json:"sample_index"`
	Signal      string  `json:"signal"`
	Value       float64 `json:"value"`
	Lower       float64 `json:"lower"`
	Upper       float64 `json:"upper"`
}

// CheckResult summarises a data-vs-baseline sweep.
type CheckResult struct {
	Total      int         `json:"total"`
	Passed     int         `json:"passed"`
	PassRate   float64     `json:"pass_rate"`
	Violations []Violation `json:"violations"`
}

// CheckData reports, per sample, which signals fall outside mean +/- k*std of
// the profile. k defaults to 3 when non-positive. Read-only.
func CheckData(samples []domain.RawSample, p *Profile, k float64) CheckResult {
	if k <= 0 {
		k = 3
	}
	res := CheckResult{Total: len(samples)}
	for i, s := range samples {
		ok := true
		for sig, sp := range p.SignalProfiles {
			lower := sp.Mean - k*sp.Std
			upper := sp.Mean + k*sp.Std
			v := s.Signal(sig)
			if v < lower || v > upper {
				ok = false
				res.Violations = append(res.Violations, Violation{
					SampleIndex: i, Signal: sig, Value: v, Lower: lower, Upper: upper,
				})
			}
		}
		if ok {
			res.Passed++
		}
	}
	if res.Total > 0 {
		res.PassRate = float64(res.Passed) / float64(res.Total)
	}
	return res
}
