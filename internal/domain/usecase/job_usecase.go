package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/strudel-workshops/metfish-gateway/internal/domain/entity"
	"github.com/strudel-workshops/metfish-gateway/pkg/archive"
)

// StagingPrefix names the per-job scratch directories under the work dir.
// The janitor relies on it to find orphans.
const StagingPrefix = "metfish-"

// CheckpointExt is the suffix convention for checkpoint objects.
const CheckpointExt = ".ckpt"

// DefaultTailLen bounds the stdout/stderr excerpt carried in responses.
const DefaultTailLen = 4000

const (
	localManifestName = "test.csv"
	localDataDirName  = "data"
	localOutputName   = "outputs"
)

type ObjectStore interface {
	Get(ctx context.Context, bucket, name, localPath string) error
	Put(ctx context.Context, bucket, localPath, name string) (string, error)
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}

type ProcessRunner interface {
	Run(ctx context.Context, args []string) (*entity.RunOutcome, error)
	Timeout() time.Duration
}

// Buckets are the fixed bucket names the service is wired to at startup.
type Buckets struct {
	Checkpoint string
	Input      string
	Result     string
}

// SubmitRequest carries one job submission: the two required uploads, the
// checkpoint reference, and the resolved parameters.
type SubmitRequest struct {
	Archive       io.Reader
	ArchiveName   string
	Manifest      io.Reader
	CheckpointRef string
	Params        entity.Params
}

type JobUseCase struct {
	Store   ObjectStore
	Runner  ProcessRunner
	Buckets Buckets
	WorkDir string
	TailLen int
}

func NewJobUseCase(store ObjectStore, runner ProcessRunner, buckets Buckets, workDir string) *JobUseCase {
	return &JobUseCase{
		Store:   store,
		Runner:  runner,
		Buckets: buckets,
		WorkDir: workDir,
		TailLen: DefaultTailLen,
	}
}

// SubmitJob runs one refinement job end to end: stage uploads, resolve the
// checkpoint, execute, publish outputs. Every failure comes back as an error
// value; a panic anywhere below is converted too, so nothing escapes the
// service boundary unstructured.
func (u *JobUseCase) SubmitJob(ctx context.Context, req SubmitRequest) (res *entity.SubmitResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("unexpected failure: %v", r)
		}
	}()
	return u.submit(ctx, req)
}

func (u *JobUseCase) submit(ctx context.Context, req SubmitRequest) (*entity.SubmitResult, error) {
	if req.Archive == nil {
		return nil, &ValidationError{Msg: "data_dir archive is required"}
	}
	if req.Manifest == nil {
		return nil, &ValidationError{Msg: "test_csv_file manifest is required"}
	}
	if req.CheckpointRef == "" {
		return nil, &ValidationError{Msg: "checkpoint_file is required"}
	}
	format, ok := archive.Detect(req.ArchiveName)
	if !ok {
		return nil, &ValidationError{Msg: fmt.Sprintf("unsupported archive type: %s", req.ArchiveName)}
	}

	job := entity.NewJob(req.CheckpointRef, req.Params)
	log.Printf("job %s: received (checkpoint=%s)", job.JobID, job.CheckpointRef)

	staging, err := os.MkdirTemp(u.WorkDir, StagingPrefix+job.JobID+"-")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(staging); rmErr != nil {
			log.Printf("job %s: failed to remove staging dir %s: %v", job.JobID, staging, rmErr)
		}
	}()

	archivePath := filepath.Join(staging, localDataDirName+format.Ext())
	if err := saveUpload(archivePath, req.Archive); err != nil {
		return nil, fmt.Errorf("stage data archive: %w", err)
	}
	manifestPath := filepath.Join(staging, localManifestName)
	if err := saveUpload(manifestPath, req.Manifest); err != nil {
		return nil, fmt.Errorf("stage csv manifest: %w", err)
	}
	job.Status = entity.StatusStaged

	ckptPath := filepath.Join(staging, filepath.Base(req.CheckpointRef))
	if err := u.Store.Get(ctx, u.Buckets.Checkpoint, req.CheckpointRef, ckptPath); err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, &NotFoundError{Name: req.CheckpointRef}
		}
		return nil, &StorageError{Op: "fetch checkpoint", Err: err}
	}

	dataDir := filepath.Join(staging, localDataDirName)
	if err := archive.Extract(archivePath, format, dataDir); err != nil {
		return nil, fmt.Errorf("extract data archive: %w", err)
	}

	// Durable record of what was submitted, independent of job outcome.
	if _, err := u.Store.Put(ctx, u.Buckets.Input, manifestPath, job.JobID+"/"+localManifestName); err != nil {
		return nil, &StorageError{Op: "record manifest", Err: err}
	}

	outputDir := filepath.Join(staging, localOutputName)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	args := buildArgs(dataDir, outputDir, ckptPath, manifestPath, job.Params)
	job.Status = entity.StatusRunning
	log.Printf("job %s: running", job.JobID)

	outcome, err := u.Runner.Run(ctx, args)
	if err != nil {
		job.Status = entity.StatusFailed
		return nil, &ExecutionError{Err: err}
	}
	if outcome.TimedOut {
		job.Status = entity.StatusTimedOut
		log.Printf("job %s: timed out", job.JobID)
		return nil, &TimeoutError{Limit: u.Runner.Timeout()}
	}
	if outcome.ExitCode != 0 {
		job.Status = entity.StatusFailed
		log.Printf("job %s: exited with code %d", job.JobID, outcome.ExitCode)
		return nil, &ExecutionError{
			ExitCode:   outcome.ExitCode,
			StderrTail: tail(outcome.Stderr, u.tailLen()),
		}
	}

	locations, err := u.publishOutputs(ctx, job.JobID, outputDir)
	if err != nil {
		job.Status = entity.StatusFailed
		return nil, &StorageError{Op: "publish outputs", Err: err}
	}
	job.Status = entity.StatusSucceeded
	log.Printf("job %s: succeeded, %d artifacts published", job.JobID, len(locations))

	return &entity.SubmitResult{
		JobID:      job.JobID,
		Results:    locations,
		OutputTail: tail(outcome.Stdout, u.tailLen()),
	}, nil
}

// publishOutputs uploads every file under outputDir to the result bucket,
// preserving relative paths below the job id prefix.
func (u *JobUseCase) publishOutputs(ctx context.Context, jobID, outputDir string) ([]string, error) {
	locations := make([]string, 0)
	err := filepath.WalkDir(outputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(outputDir, path)
		if err != nil {
			return err
		}
		location, err := u.Store.Put(ctx, u.Buckets.Result, path, jobID+"/"+filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		locations = append(locations, location)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return locations, nil
}

// ListCheckpoints enumerates checkpoint objects by the suffix convention.
// Listing order is whatever the bucket returns.
func (u *JobUseCase) ListCheckpoints(ctx context.Context) ([]string, error) {
	names, err := u.Store.List(ctx, u.Buckets.Checkpoint, "")
	if err != nil {
		return nil, &StorageError{Op: "list checkpoints", Err: err}
	}
	checkpoints := make([]string, 0, len(names))
	for _, name := range names {
		if strings.HasSuffix(name, CheckpointExt) {
			checkpoints = append(checkpoints, name)
		}
	}
	return checkpoints, nil
}

// ListResults returns the locations of artifacts already published for the
// given job id. An unknown id yields an empty list, not an error.
func (u *JobUseCase) ListResults(ctx context.Context, jobID string) ([]string, error) {
	names, err := u.Store.List(ctx, u.Buckets.Result, jobID+"/")
	if err != nil {
		return nil, &StorageError{Op: "list results", Err: err}
	}
	locations := make([]string, 0, len(names))
	for _, name := range names {
		locations = append(locations, u.Buckets.Result+"/"+name)
	}
	return locations, nil
}

// buildArgs assembles the executable's argument list in its fixed order.
func buildArgs(dataDir, outputDir, ckptPath, manifestPath string, p entity.Params) []string {
	args := []string{
		"--data_dir", dataDir,
		"--output_dir", outputDir,
		"--ckpt_path", ckptPath,
		"--test_csv_name", manifestPath,
		"--saxs_ext", p.SaxsExt,
		"--num_iterations", p.NumIterations,
		"--learning_rate", p.LearningRate,
		"--sequence_index", p.SequenceIndex,
		"--save_frequency", p.SaveFrequency,
	}
	if p.RandomInit {
		args = append(args, "--random_init")
	}
	return args
}

func saveUpload(path string, src io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	n, err := io.Copy(dst, src)
	closeErr := dst.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		return closeErr
	}
	if n == 0 {
		return &ValidationError{Msg: fmt.Sprintf("uploaded file %s is empty", filepath.Base(path))}
	}
	return nil
}

func (u *JobUseCase) tailLen() int {
	if u.TailLen > 0 {
		return u.TailLen
	}
	return DefaultTailLen
}

// tail returns the last n bytes of b as a string.
func tail(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[len(b)-n:])
}
