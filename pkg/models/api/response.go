package api

import (
	"time"

	"github.com/blush-marketing/core/pkg/scheduler"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string    `json:"status"`
	SchedulerMode string    `json:"scheduler_mode"`
	JobCount      int       `json:"job_count"`
	Timestamp     time.Time `json:"timestamp"`
}

// SchedulerStatusResponse is the read-only introspection view of the
// job layer: the lifecycle mode plus every registered job.
type SchedulerStatusResponse struct {
	Mode string                `json:"mode"`
	Jobs []scheduler.JobStatus `json:"jobs"`
}

// TriggerResponse reports the result of a manual job trigger.
type TriggerResponse struct {
	JobName string                  `json:"job_name"`
	Status  string                  `json:"status"`
	Run     *scheduler.JobRunRecord `json:"run,omitempty"`
}

// Response represents a general API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
	Message string      `json:"message,omitempty"`
}
