package v1

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/strudel-workshops/metfish-gateway/internal/domain/entity"
	"github.com/strudel-workshops/metfish-gateway/internal/domain/usecase"
)

type JobUseCase interface {
	SubmitJob(ctx context.Context, req usecase.SubmitRequest) (*entity.SubmitResult, error)
	ListCheckpoints(ctx context.Context) ([]string, error)
	ListResults(ctx context.Context, jobID string) ([]string, error)
}

type JobHandler struct {
	UseCase JobUseCase
}

func NewJobHandler(u JobUseCase) *JobHandler {
	return &JobHandler{UseCase: u}
}

func (h *JobHandler) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.GET("/list-checkpoints", h.ListCheckpoints)
	r.POST("/run-metfish", h.RunMetfish)
	r.GET("/get-results/:job_id", h.GetResults)
}

// Health is a liveness probe only; it checks no dependencies.
func (h *JobHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "gpu": "available"})
}

func (h *JobHandler) ListCheckpoints(c *gin.Context) {
	checkpoints, err := h.UseCase.ListCheckpoints(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "checkpoints": checkpoints})
}

func (h *JobHandler) RunMetfish(c *gin.Context) {
	archiveHeader, err := c.FormFile("data_dir")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "data_dir file is required"})
		return
	}
	manifestHeader, err := c.FormFile("test_csv_file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "test_csv_file file is required"})
		return
	}

	archiveFile, err := archiveHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}
	defer closeQuietly(archiveFile)

	manifestFile, err := manifestHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}
	defer closeQuietly(manifestFile)

	params, err := readParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	res, err := h.UseCase.SubmitJob(c.Request.Context(), usecase.SubmitRequest{
		Archive:       archiveFile,
		ArchiveName:   archiveHeader.Filename,
		Manifest:      manifestFile,
		CheckpointRef: c.PostForm("checkpoint_file"),
		Params:        params,
	})
	if err != nil {
		status := statusFor(err)
		c.JSON(status, gin.H{"status": "error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"job_id":  res.JobID,
		"results": res.Results,
		"output":  res.OutputTail,
	})
}

func (h *JobHandler) GetResults(c *gin.Context) {
	jobID := c.Param("job_id")
	results, err := h.UseCase.ListResults(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "job_id": jobID, "results": results})
}

// readParams applies caller overrides on top of the defaults. Values are kept
// as strings except the boolean flag.
func readParams(c *gin.Context) (entity.Params, error) {
	params := entity.DefaultParams()
	if v := c.PostForm("num_iterations"); v != "" {
		params.NumIterations = v
	}
	if v := c.PostForm("learning_rate"); v != "" {
		params.LearningRate = v
	}
	if v := c.PostForm("sequence_index"); v != "" {
		params.SequenceIndex = v
	}
	if v := c.PostForm("save_frequency"); v != "" {
		params.SaveFrequency = v
	}
	if v := c.PostForm("saxs_ext"); v != "" {
		params.SaxsExt = v
	}
	if v := c.PostForm("random_init"); v != "" {
		randomInit, err := strconv.ParseBool(v)
		if err != nil {
			return entity.Params{}, errors.New("random_init must be a boolean")
		}
		params.RandomInit = randomInit
	}
	return params, nil
}

// statusFor maps the error taxonomy onto HTTP codes: client mistakes get 4xx,
// everything that went wrong on our side of the boundary gets 500.
func statusFor(err error) int {
	var validationErr *usecase.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest
	}
	var notFoundErr *usecase.NotFoundError
	if errors.As(err, &notFoundErr) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func closeQuietly(f multipart.File) {
	_ = f.Close()
}
