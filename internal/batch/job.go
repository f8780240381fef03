package batch

import (
	"sync/atomic"
	"time"

	"github.com/GoSim-25-26J-441/optimization-driver/pkg/models"
)

// Job is one batch of sample requests with positionally aligned results.
// A result slot is written at most once: the first writer claims it and
// every later write for that slot is dropped.
type Job struct {
	ID        string
	Iteration int
	Requests  []models.SampleRequest

	results []*models.SampleResult
	claimed []atomic.Bool

	finished int
	errors   int
	state    State
	started  time.Time
	ended    time.Time
}

// NewJob creates an idle job for the given requests
func NewJob(id string, iteration int, reqs []models.SampleRequest) *Job {
	return &Job{
		ID:        id,
		Iteration: iteration,
		Requests:  reqs,
		results:   make([]*models.SampleResult, len(reqs)),
		claimed:   make([]atomic.Bool, len(reqs)),
		state:     StateIdle,
	}
}

// record stores res for slot if the slot is still unclaimed
func (j *Job) record(slot int, res *models.SampleResult) bool {
	if slot < 0 || slot >= len(j.results) {
		return false
	}
	if !j.claimed[slot].CompareAndSwap(false, true) {
		return false
	}
	j.results[slot] = res
	j.finished++
	if res.Failed() {
		j.errors++
	}
	return true
}

// seal claims every unfinished slot, leaving it nil, so that late results
// are discarded. It returns how many slots were left unfinished.
func (j *Job) seal() int {
	unfinished := 0
	for i := range j.claimed {
		if j.claimed[i].CompareAndSwap(false, true) {
			unfinished++
		}
	}
	return unfinished
}

// Results returns the results, aligned with Requests. Unfinished slots are nil.
func (j *Job) Results() []*models.SampleResult {
	out := make([]*models.SampleResult, len(j.results))
	copy(out, j.results)
	return out
}

// State returns the job's lifecycle state
func (j *Job) State() State {
	return j.state
}

// Finished returns the number of recorded slots
func (j *Job) Finished() int {
	return j.finished
}

// Errors returns the number of recorded slots that failed
func (j *Job) Errors() int {
	return j.errors
}

// Duration returns the wall-clock time from dispatch to finalization
func (j *Job) Duration() time.Duration {
	if j.ended.IsZero() {
		return 0
	}
	return j.ended.Sub(j.started)
}
