package cron

import "time"

// JobConfig describes the trigger a scheduled job fires into the engine.
type JobConfig struct {
	Kind    string         `json:"kind"`
	Details map[string]any `json:"details,omitempty"`
	Items   []string       `json:"items,omitempty"`
	Budget  float64        `json:"budget,omitempty"`
}

// Job represents a recurring scheduled trigger.
type Job struct {
	Name     string    `json:"name"`
	CronExpr string    `json:"cronExpr"`
	Config   JobConfig `json:"config"`
	Enabled  bool      `json:"enabled"`
	LastRun  time.Time `json:"lastRun,omitempty"`
	NextRun  time.Time `json:"nextRun,omitempty"`
	LastErr  string    `json:"lastError,omitempty"`
	RunCount int       `json:"runCount"`
}

// JobRun records one execution of a job.
type JobRun struct {
	At         time.Time `json:"at"`
	DurationMS int64     `json:"durationMs"`
	Trigger    string    `json:"trigger"`
	Status     string    `json:"status"`
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// RunFunc is called by the scheduler to fire a job's trigger. It returns a
// short description of the run that was started.
type RunFunc func(cfg JobConfig) (string, error)
