package config

import (
	"fmt"
	"time"

	"satfetch/internal/domain"
)

// rawConfig mirrors the YAML layout before validation.
type rawConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	API     APIConfig     `mapstructure:"api"`
	Jobs    []rawJob      `mapstructure:"jobs"`
}

type rawJob struct {
	Name             string          `mapstructure:"name"`
	Collection       string          `mapstructure:"collection"`
	Filters          rawFilters      `mapstructure:"filters"`
	Download         *rawDownload    `mapstructure:"download"`
	PostProcess      *rawPostProcess `mapstructure:"post_process"`
	PostSearchFilter map[string]any  `mapstructure:"post_search_filter"`
	Limit            *int            `mapstructure:"limit"`
}

// rawFilters keeps timestamps as strings so the ISO-8601 normalization is
// ours, not the YAML parser's.
type rawFilters struct {
	Start                 string `mapstructure:"dtstart"`
	End                   string `mapstructure:"dtend"`
	Geo                   string `mapstructure:"geo"`
	BBox                  string `mapstructure:"bbox"`
	Satellite             string `mapstructure:"sat"`
	Timeliness            string `mapstructure:"timeliness"`
	Filename              string `mapstructure:"filename"`
	Title                 string `mapstructure:"title"`
	Cycle                 *int   `mapstructure:"cycle"`
	Orbit                 *int   `mapstructure:"orbit"`
	RelOrbit              *int   `mapstructure:"relorbit"`
	ProductType           string `mapstructure:"product_type"`
	Type                  string `mapstructure:"type"`
	Publication           string `mapstructure:"publication"`
	DownloadCoverage      string `mapstructure:"download_coverage"`
	Coverage              string `mapstructure:"coverage"`
	RepeatCycleIdentifier string `mapstructure:"repeatCycleIdentifier"`
	CenterOfLongitude     string `mapstructure:"centerOfLongitude"`
	Set                   string `mapstructure:"set"`
	Sort                  string `mapstructure:"sort"`
}

type rawDownload struct {
	Enabled      *bool    `mapstructure:"enabled"`
	Directory    string   `mapstructure:"directory"`
	Parallel     *int     `mapstructure:"parallel"`
	Resume       *bool    `mapstructure:"resume"`
	VerifyMD5    *bool    `mapstructure:"verify_md5"`
	MaxRetries   *int     `mapstructure:"max_retries"`
	RetryBackoff *float64 `mapstructure:"retry_backoff"`
	Timeout      *float64 `mapstructure:"timeout"`
	Entries      []string `mapstructure:"entries"`
}

type rawPostProcess struct {
	Enabled   bool   `mapstructure:"enabled"`
	Mode      string `mapstructure:"mode"`
	OutputDir string `mapstructure:"output_dir"`
}

func (rj rawJob) toJob(baseDir string) (domain.Job, error) {
	if rj.Collection == "" {
		name := rj.Name
		if name == "" {
			name = "(unnamed)"
		}
		return domain.Job{}, fmt.Errorf("%w: Job '%s' is missing required 'collection' field",
			domain.ErrInvalidInput, name)
	}

	job := domain.Job{
		Name:       rj.Name,
		Collection: rj.Collection,
		Download:   domain.DefaultDownloadOptions(),
	}
	if job.Name == "" {
		job.Name = rj.Collection
	}

	filters, err := rj.Filters.toFilters(job.Name)
	if err != nil {
		return domain.Job{}, err
	}
	job.Filters = filters

	if d := rj.Download; d != nil {
		if d.Enabled != nil {
			job.Download.Enabled = *d.Enabled
		}
		if d.Directory != "" {
			job.Download.Directory = resolvePath(d.Directory, baseDir)
		}
		if d.Parallel != nil {
			if *d.Parallel < 1 {
				return domain.Job{}, fmt.Errorf("%w: job %q: parallel must be at least 1",
					domain.ErrInvalidInput, job.Name)
			}
			job.Download.Parallel = *d.Parallel
		}
		if d.Resume != nil {
			job.Download.Resume = *d.Resume
		}
		if d.VerifyMD5 != nil {
			job.Download.VerifyMD5 = *d.VerifyMD5
		}
		if d.MaxRetries != nil {
			job.Download.MaxRetries = *d.MaxRetries
		}
		if d.RetryBackoff != nil {
			job.Download.RetryBackoff = secondsDuration(*d.RetryBackoff)
		}
		if d.Timeout != nil {
			job.Download.Timeout = secondsDuration(*d.Timeout)
		}
		job.Download.Entries = d.Entries
	}

	if p := rj.PostProcess; p != nil {
		mode := p.Mode
		if mode == "" {
			mode = "local"
		}
		if mode != "local" && mode != "remote" {
			return domain.Job{}, fmt.Errorf("%w: job %q: post_process mode must be 'local' or 'remote', got %q",
				domain.ErrInvalidInput, job.Name, mode)
		}
		job.PostProcess = domain.PostProcessOptions{
			Enabled:   p.Enabled,
			Mode:      mode,
			OutputDir: resolvePath(p.OutputDir, baseDir),
		}
	}

	if rj.PostSearchFilter != nil {
		typeName, _ := rj.PostSearchFilter["type"].(string)
		if typeName == "" {
			return domain.Job{}, fmt.Errorf("%w: job %q: post_search_filter requires a 'type'",
				domain.ErrInvalidInput, job.Name)
		}
		params := make(map[string]any, len(rj.PostSearchFilter))
		for k, v := range rj.PostSearchFilter {
			if k != "type" {
				params[k] = v
			}
		}
		job.PostSearchFilter = &domain.PostSearchFilter{Type: typeName, Params: params}
	}

	if rj.Limit != nil {
		job.Limit = *rj.Limit
	}
	return job, nil
}

func (rf rawFilters) toFilters(jobName string) (domain.SearchFilters, error) {
	f := domain.SearchFilters{
		Geo:                   rf.Geo,
		BBox:                  rf.BBox,
		Satellite:             rf.Satellite,
		Timeliness:            rf.Timeliness,
		Filename:              rf.Filename,
		Title:                 rf.Title,
		Cycle:                 rf.Cycle,
		Orbit:                 rf.Orbit,
		RelOrbit:              rf.RelOrbit,
		ProductType:           rf.ProductType,
		Type:                  rf.Type,
		Publication:           rf.Publication,
		DownloadCoverage:      rf.DownloadCoverage,
		Coverage:              rf.Coverage,
		RepeatCycleIdentifier: rf.RepeatCycleIdentifier,
		CenterOfLongitude:     rf.CenterOfLongitude,
		Set:                   rf.Set,
		Sort:                  rf.Sort,
	}

	if rf.Start != "" {
		t, err := ParseTime(rf.Start)
		if err != nil {
			return domain.SearchFilters{}, fmt.Errorf("job %q: dtstart: %w", jobName, err)
		}
		f.Start = &t
	}
	if rf.End != "" {
		t, err := ParseTime(rf.End)
		if err != nil {
			return domain.SearchFilters{}, fmt.Errorf("job %q: dtend: %w", jobName, err)
		}
		f.End = &t
	}
	if f.Start != nil && f.End != nil && f.End.Before(*f.Start) {
		return domain.SearchFilters{}, fmt.Errorf("%w: job %q: dtend precedes dtstart",
			domain.ErrInvalidInput, jobName)
	}
	return f, nil
}

func secondsDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}
