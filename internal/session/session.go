// Package session gives each job a deterministic on-disk identity so an
// interrupted run can be resumed by simply running the same config again.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"satfetch/internal/domain"
)

// LiveHorizon bounds the "live" heuristic: a job whose window ends within
// this much of now may still be accruing new items at the catalog.
const LiveHorizon = 3 * time.Hour

// EnvHome overrides the default base directory (~/.satfetch).
const EnvHome = "SATFETCH_HOME"

var invalidDirChars = regexp.MustCompile(`[<>:"/\\|?*]`)

func sanitizeDirName(name string) string {
	return invalidDirChars.ReplaceAllString(name, "_")
}

// Session owns the directory holding a job's state store, log file, and
// frozen config. Identity is a pure function of the job configuration.
type Session struct {
	Job     domain.Job
	BaseDir string
	ID      string

	// IsNew is true when the session directory did not exist at construction.
	IsNew bool
	// IsLive is true when the job's window is open-ended or ends within
	// LiveHorizon of now, meaning cached search results cannot be trusted.
	IsLive bool
}

// New computes the session identity and flags without touching the disk
// beyond an existence check. baseDir may be empty: SATFETCH_HOME or
// ~/.satfetch is used.
func New(job domain.Job, baseDir string) (*Session, error) {
	if baseDir == "" {
		baseDir = os.Getenv(EnvHome)
	}
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".satfetch")
	}

	id, err := ComputeID(job)
	if err != nil {
		return nil, err
	}

	s := &Session{Job: job, BaseDir: baseDir, ID: id}
	_, statErr := os.Stat(s.Dir())
	s.IsNew = os.IsNotExist(statErr)
	s.IsLive = checkLive(job, time.Now().UTC())
	return s, nil
}

func checkLive(job domain.Job, now time.Time) bool {
	if job.Filters.End == nil {
		return true
	}
	return job.Filters.End.After(now.Add(-LiveHorizon))
}

// ComputeID hashes the canonicalized job config to a 12-hex-char id.
// Canonical form: JSON with sorted keys, times as RFC3339, durations in
// seconds. Credentials never appear in a Job, so configs differing only in
// credential handling hash identically.
func ComputeID(job domain.Job) (string, error) {
	canonical, err := json.Marshal(canonicalize(job))
	if err != nil {
		return "", fmt.Errorf("canonicalizing job config: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:12], nil
}

// canonicalize flattens the job into plain maps so json.Marshal emits
// deterministically sorted keys.
func canonicalize(job domain.Job) map[string]any {
	timeStr := func(t *time.Time) any {
		if t == nil {
			return nil
		}
		return t.UTC().Format(time.RFC3339)
	}
	intPtr := func(p *int) any {
		if p == nil {
			return nil
		}
		return *p
	}
	m := map[string]any{
		"name":       job.Name,
		"collection": job.Collection,
		"limit":      job.Limit,
		"filters": map[string]any{
			"dtstart":               timeStr(job.Filters.Start),
			"dtend":                 timeStr(job.Filters.End),
			"geo":                   job.Filters.Geo,
			"bbox":                  job.Filters.BBox,
			"sat":                   job.Filters.Satellite,
			"timeliness":            job.Filters.Timeliness,
			"filename":              job.Filters.Filename,
			"title":                 job.Filters.Title,
			"cycle":                 intPtr(job.Filters.Cycle),
			"orbit":                 intPtr(job.Filters.Orbit),
			"relorbit":              intPtr(job.Filters.RelOrbit),
			"product_type":          job.Filters.ProductType,
			"type":                  job.Filters.Type,
			"publication":           job.Filters.Publication,
			"download_coverage":     job.Filters.DownloadCoverage,
			"coverage":              job.Filters.Coverage,
			"repeatCycleIdentifier": job.Filters.RepeatCycleIdentifier,
			"centerOfLongitude":     job.Filters.CenterOfLongitude,
			"set":                   job.Filters.Set,
			"sort":                  job.Filters.Sort,
		},
		"download": map[string]any{
			"enabled":       job.Download.Enabled,
			"directory":     filepath.ToSlash(job.Download.Directory),
			"parallel":      job.Download.Parallel,
			"resume":        job.Download.Resume,
			"verify_md5":    job.Download.VerifyMD5,
			"max_retries":   job.Download.MaxRetries,
			"retry_backoff": job.Download.RetryBackoff.Seconds(),
			"timeout":       job.Download.Timeout.Seconds(),
			"entries":       job.Download.Entries,
		},
		"post_process": map[string]any{
			"enabled":    job.PostProcess.Enabled,
			"mode":       job.PostProcess.Mode,
			"output_dir": filepath.ToSlash(job.PostProcess.OutputDir),
		},
	}
	if f := job.PostSearchFilter; f != nil {
		m["post_search_filter"] = map[string]any{"type": f.Type, "params": f.Params}
	}
	return m
}

// Dir is the session directory.
func (s *Session) Dir() string {
	return filepath.Join(s.BaseDir, "sessions", s.ID)
}

// DownloadDir roots the job's artifacts under the sanitized collection name.
func (s *Session) DownloadDir() string {
	return filepath.Join(s.BaseDir, "downloads", sanitizeDirName(s.Job.Collection))
}

func (s *Session) StatePath() string  { return filepath.Join(s.Dir(), "state.db") }
func (s *Session) LogPath() string    { return filepath.Join(s.Dir(), "session.log") }
func (s *Session) ConfigPath() string { return filepath.Join(s.Dir(), "config.yaml") }

// Initialize creates the directory tree and writes the frozen config once.
// Idempotent: an existing frozen config is never overwritten.
func (s *Session) Initialize() error {
	if err := os.MkdirAll(s.Dir(), 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := os.MkdirAll(s.DownloadDir(), 0755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	if _, err := os.Stat(s.ConfigPath()); err == nil {
		return nil
	}
	frozen, err := yaml.Marshal(canonicalize(s.Job))
	if err != nil {
		return fmt.Errorf("serializing frozen config: %w", err)
	}
	return os.WriteFile(s.ConfigPath(), frozen, 0644)
}
