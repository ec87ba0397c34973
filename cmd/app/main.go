package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	v1 "github.com/strudel-workshops/metfish-gateway/internal/controller/http/v1"
	"github.com/strudel-workshops/metfish-gateway/internal/domain/usecase"
	"github.com/strudel-workshops/metfish-gateway/internal/janitor"
	s3Repo "github.com/strudel-workshops/metfish-gateway/internal/repository/s3"
	"github.com/strudel-workshops/metfish-gateway/internal/runner"
	s3ClientGo "github.com/strudel-workshops/metfish-gateway/pkg/client/s3"
)

type Config struct {
	HTTPAddr string

	S3Host      string
	S3AccessKey string
	S3SecretKey string

	CheckpointBucket string
	InputBucket      string
	ResultBucket     string

	MetfishBin string
	WorkDir    string
	RunTimeout time.Duration

	JanitorSchedule string
}

func main() {
	cfg := loadConfig()

	s3Client, err := s3ClientGo.NewS3Client(cfg.S3Host, cfg.S3AccessKey, cfg.S3SecretKey)
	if err != nil {
		log.Fatalf("failed to init s3 client: %v", err)
	}
	store := s3Repo.NewS3Repo(s3Client)

	jobRunner := runner.New(cfg.MetfishBin, cfg.RunTimeout)

	uc := usecase.NewJobUseCase(store, jobRunner, usecase.Buckets{
		Checkpoint: cfg.CheckpointBucket,
		Input:      cfg.InputBucket,
		Result:     cfg.ResultBucket,
	}, cfg.WorkDir)

	// Staging dirs older than twice the run bound cannot belong to a live
	// request anymore.
	sweeper := janitor.New(cfg.WorkDir, usecase.StagingPrefix, 2*cfg.RunTimeout)
	if err := sweeper.Start(cfg.JanitorSchedule); err != nil {
		log.Fatalf("failed to start janitor: %v", err)
	}
	defer sweeper.Stop()

	r := gin.Default()
	handler := v1.NewJobHandler(uc)
	handler.Register(r)

	log.Printf("metfish gateway listening on %s", cfg.HTTPAddr)
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("server stopped with error: %v", err)
	}
}

func loadConfig() Config {
	if err := godotenv.Load("./.env.local"); err != nil {
		log.Println("No .env file found. Falling back to OS environment variables.")
	}
	mustGetEnv := func(key string) string {
		val := os.Getenv(key)
		if val == "" {
			log.Fatalf("Environment variable %s is not set", key)
		}
		return val
	}
	getEnv := func(key, fallback string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		return fallback
	}

	timeoutMinutesStr := getEnv("RUN_TIMEOUT_MINUTES", "120")
	timeoutMinutes, err := strconv.Atoi(timeoutMinutesStr)
	if err != nil || timeoutMinutes <= 0 {
		log.Fatalf("Invalid RUN_TIMEOUT_MINUTES value: %s", timeoutMinutesStr)
	}

	return Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		S3Host:      mustGetEnv("S3_HOST") + ":" + mustGetEnv("S3_PORT"),
		S3AccessKey: mustGetEnv("S3_ACCESS_KEY"),
		S3SecretKey: mustGetEnv("S3_SECRET_KEY"),

		CheckpointBucket: getEnv("CHECKPOINT_BUCKET", "metfish-checkpoints"),
		InputBucket:      getEnv("INPUT_BUCKET", "metfish-inputs"),
		ResultBucket:     getEnv("RESULT_BUCKET", "metfish-results"),

		MetfishBin: getEnv("METFISH_BIN", "metfish-train"),
		WorkDir:    getEnv("WORK_DIR", os.TempDir()),
		RunTimeout: time.Duration(timeoutMinutes) * time.Minute,

		JanitorSchedule: getEnv("JANITOR_SCHEDULE", "@every 30m"),
	}
}
