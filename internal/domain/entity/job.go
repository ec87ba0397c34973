package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusReceived  JobStatus = "RECEIVED"
	StatusStaged    JobStatus = "STAGED"
	StatusRunning   JobStatus = "RUNNING"
	StatusSucceeded JobStatus = "SUCCEEDED"
	StatusFailed    JobStatus = "FAILED"
	StatusTimedOut  JobStatus = "TIMED_OUT"
)

// Params are the caller-overridable options forwarded to the refinement
// executable. Numeric values stay strings: they are only ever spliced into
// the argument list, never computed with.
type Params struct {
	NumIterations string
	LearningRate  string
	SequenceIndex string
	SaveFrequency string
	RandomInit    bool
	SaxsExt       string
}

func DefaultParams() Params {
	return Params{
		NumIterations: "500",
		LearningRate:  "1e-3",
		SequenceIndex: "0",
		SaveFrequency: "25",
		RandomInit:    true,
		SaxsExt:       "_atom_only.csv",
	}
}

// Job is one submitted refinement request. It lives only for the duration of
// the handling request: the job id prefix in the result bucket is the only
// durable correlation between a submission and its artifacts.
type Job struct {
	JobID         string
	CheckpointRef string
	Params        Params
	Status        JobStatus
	CreatedAt     time.Time
}

func NewJob(checkpointRef string, params Params) *Job {
	return &Job{
		JobID:         NewJobID(params.SequenceIndex),
		CheckpointRef: checkpointRef,
		Params:        params,
		Status:        StatusReceived,
		CreatedAt:     time.Now(),
	}
}

// NewJobID keeps the timestamp+sequence shape operators grep for in bucket
// listings, with a random suffix so concurrent submissions sharing a
// sequence index within the same second cannot collide.
func NewJobID(sequenceIndex string) string {
	return fmt.Sprintf("%s_%s_%s",
		time.Now().UTC().Format("20060102T150405"),
		sequenceIndex,
		uuid.NewString()[:8])
}

// SubmitResult is returned to the caller on a successful run.
type SubmitResult struct {
	JobID      string   `json:"job_id"`
	Results    []string `json:"results"`
	OutputTail string   `json:"output"`
}

// RunOutcome is the classified result of one subprocess execution. Exactly
// one of {TimedOut, normal exit} holds; launch failures are reported as
// errors by the runner instead.
type RunOutcome struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	TimedOut bool
}
