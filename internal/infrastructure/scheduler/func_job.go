package scheduler

import "context"

// FuncJob adapts a plain function to the Job interface. The polling
// loops in cmd/bot register closures over their services this way
// instead of defining one job type per loop.
type FuncJob struct {
	JobName string
	Desc    string
	Fn      func(ctx context.Context) error
}

// Name returns the job name.
func (j FuncJob) Name() string { return j.JobName }

// Description returns the job description.
func (j FuncJob) Description() string { return j.Desc }

// Run invokes the wrapped function.
func (j FuncJob) Run(ctx context.Context) error { return j.Fn(ctx) }
