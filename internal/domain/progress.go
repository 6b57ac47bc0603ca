package domain

import "time"

// JobStatus enumerates the states of an external list import job.
type JobStatus string

const (
	JobStarting  JobStatus = "starting"
	JobFetching  JobStatus = "fetching"
	JobImporting JobStatus = "importing"
	JobComplete  JobStatus = "complete"
	JobError     JobStatus = "error"
)

// Terminal reports whether no further transition can happen.
func (s JobStatus) Terminal() bool {
	return s == JobComplete || s == JobError
}

// ProgressSnapshot is a point-in-time view of an external list job. A new
// value is published on every change; published values are never mutated.
type ProgressSnapshot struct {
	JobID         string     `json:"job_id"`
	ListReference string     `json:"list_reference"`
	Status        JobStatus  `json:"status"`
	Phase         string     `json:"phase"`
	Percent       int        `json:"percent"`
	Processed     int        `json:"processed"`
	Total         *int       `json:"total,omitempty"`
	Created       int        `json:"created"`
	Updated       int        `json:"updated"`
	Skipped       int        `json:"skipped"`
	Errors        int        `json:"errors"`
	Error         string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy suitable for mutation before republishing.
func (p ProgressSnapshot) Clone() ProgressSnapshot {
	out := p
	if p.Total != nil {
		t := *p.Total
		out.Total = &t
	}
	if p.CompletedAt != nil {
		c := *p.CompletedAt
		out.CompletedAt = &c
	}
	return out
}

// RecomputePercent derives Percent from Processed and Total.
func (p *ProgressSnapshot) RecomputePercent() {
	if p.Total == nil {
		return
	}
	if *p.Total == 0 {
		p.Percent = 100
		return
	}
	pct := p.Processed * 100 / *p.Total
	if pct > 100 {
		pct = 100
	}
	p.Percent = pct
}
