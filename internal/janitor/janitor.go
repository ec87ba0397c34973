// Package janitor sweeps the staging work dir for per-job directories left
// behind by a crash between staging and cleanup. Normal operation removes
// staging on every exit path; the janitor only catches what a dead process
// could not.
package janitor

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type Janitor struct {
	WorkDir string
	Prefix  string
	MaxAge  time.Duration

	cron *cron.Cron
}

func New(workDir, prefix string, maxAge time.Duration) *Janitor {
	return &Janitor{
		WorkDir: workDir,
		Prefix:  prefix,
		MaxAge:  maxAge,
	}
}

// Start schedules a periodic sweep. Stop it with Stop.
func (j *Janitor) Start(schedule string) error {
	j.cron = cron.New()
	if _, err := j.cron.AddFunc(schedule, j.Sweep); err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

func (j *Janitor) Stop() {
	if j.cron != nil {
		j.cron.Stop()
	}
}

// Sweep removes staging directories older than MaxAge. Anything younger may
// belong to a live request and is left alone.
func (j *Janitor) Sweep() {
	entries, err := os.ReadDir(j.WorkDir)
	if err != nil {
		log.Printf("janitor: read work dir %s: %v", j.WorkDir, err)
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), j.Prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) < j.MaxAge {
			continue
		}
		path := filepath.Join(j.WorkDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Printf("janitor: remove %s: %v", path, err)
			continue
		}
		log.Printf("janitor: removed stale staging dir %s", path)
	}
}
