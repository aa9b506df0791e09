// Package metric defines the normalized result of one check invocation.
package metric

import (
	"time"

	"github.com/google/uuid"

	"github.com/setevik/naghist/internal/status"
)

// Metric is one normalized check result, ready for batch insertion.
type Metric struct {
	ID         string
	Host       string
	Service    string
	Status     string
	Message    string
	Duration   string
	Attempt    string
	StatusInfo string
	LastCheck  time.Time
}

// New builds a Metric for host/service from parsed check output. lastCheck is
// the time the check was invoked.
func New(host, service string, res status.Result, lastCheck time.Time) *Metric {
	return &Metric{
		ID:         uuid.NewString(),
		Host:       host,
		Service:    service,
		Status:     res.Status,
		Message:    res.Message,
		Duration:   res.Duration,
		Attempt:    res.Attempt,
		StatusInfo: res.StatusInfo,
		LastCheck:  lastCheck,
	}
}

// Critical reports whether the metric carries a critical status.
func (m *Metric) Critical() bool {
	return m.Attempt == status.Attempt("CRITICAL")
}
