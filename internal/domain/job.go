package domain

import (
	"net/url"
	"strconv"
	"time"
)

// SearchFilters carries every catalog search parameter. Unset fields are
// omitted from the outgoing query.
type SearchFilters struct {
	Start                 *time.Time `yaml:"dtstart,omitempty"`
	End                   *time.Time `yaml:"dtend,omitempty"`
	Geo                   string     `yaml:"geo,omitempty"`
	BBox                  string     `yaml:"bbox,omitempty"`
	Satellite             string     `yaml:"sat,omitempty"`
	Timeliness            string     `yaml:"timeliness,omitempty"`
	Filename              string     `yaml:"filename,omitempty"`
	Title                 string     `yaml:"title,omitempty"`
	Cycle                 *int       `yaml:"cycle,omitempty"`
	Orbit                 *int       `yaml:"orbit,omitempty"`
	RelOrbit              *int       `yaml:"relorbit,omitempty"`
	ProductType           string     `yaml:"product_type,omitempty"`
	Type                  string     `yaml:"type,omitempty"`
	Publication           string     `yaml:"publication,omitempty"`
	DownloadCoverage      string     `yaml:"download_coverage,omitempty"`
	Coverage              string     `yaml:"coverage,omitempty"`
	RepeatCycleIdentifier string     `yaml:"repeatCycleIdentifier,omitempty"`
	CenterOfLongitude     string     `yaml:"centerOfLongitude,omitempty"`
	Set                   string     `yaml:"set,omitempty"`
	Sort                  string     `yaml:"sort,omitempty"`
}

// DefaultSort orders results by sensing start, ascending.
const DefaultSort = "start,time,1"

// Query maps the filter bundle to catalog query parameters, dropping exactly
// the unset fields.
func (f SearchFilters) Query() url.Values {
	q := url.Values{}
	if f.Start != nil {
		q.Set("dtstart", f.Start.UTC().Format(time.RFC3339))
	}
	if f.End != nil {
		q.Set("dtend", f.End.UTC().Format(time.RFC3339))
	}
	setStr := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	setStr("geo", f.Geo)
	setStr("bbox", f.BBox)
	setStr("sat", f.Satellite)
	setStr("timeliness", f.Timeliness)
	setStr("filename", f.Filename)
	setStr("title", f.Title)
	setStr("product_type", f.ProductType)
	setStr("type", f.Type)
	setStr("publication", f.Publication)
	setStr("download_coverage", f.DownloadCoverage)
	setStr("coverage", f.Coverage)
	setStr("repeatCycleIdentifier", f.RepeatCycleIdentifier)
	setStr("centerOfLongitude", f.CenterOfLongitude)
	setStr("set", f.Set)
	if f.Cycle != nil {
		q.Set("cycle", strconv.Itoa(*f.Cycle))
	}
	if f.Orbit != nil {
		q.Set("orbit", strconv.Itoa(*f.Orbit))
	}
	if f.RelOrbit != nil {
		q.Set("relorbit", strconv.Itoa(*f.RelOrbit))
	}
	sort := f.Sort
	if sort == "" {
		sort = DefaultSort
	}
	q.Set("sort", sort)
	return q
}

// WithStart returns a copy of the filters with a new window start.
func (f SearchFilters) WithStart(t time.Time) SearchFilters {
	f.Start = &t
	return f
}

// WithEnd returns a copy of the filters with a new window end.
func (f SearchFilters) WithEnd(t time.Time) SearchFilters {
	f.End = &t
	return f
}

// DownloadOptions configures the transfer engine for one job.
type DownloadOptions struct {
	Enabled      bool          `yaml:"enabled"`
	Directory    string        `yaml:"directory,omitempty"`
	Parallel     int           `yaml:"parallel"`
	Resume       bool          `yaml:"resume"`
	VerifyMD5    bool          `yaml:"verify_md5"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	Timeout      time.Duration `yaml:"timeout"`
	// Entries holds glob patterns selecting sub-entries; nil downloads the
	// whole product.
	Entries []string `yaml:"entries,omitempty"`
}

// DefaultDownloadOptions mirrors the catalog client defaults.
func DefaultDownloadOptions() DownloadOptions {
	return DownloadOptions{
		Enabled:      true,
		Parallel:     4,
		Resume:       true,
		VerifyMD5:    true,
		MaxRetries:   3,
		RetryBackoff: 2 * time.Second,
		Timeout:      5 * time.Minute,
	}
}

// PostProcessOptions configures the post-download hook for one job.
type PostProcessOptions struct {
	Enabled   bool   `yaml:"enabled"`
	Mode      string `yaml:"mode"` // "local" or "remote"
	OutputDir string `yaml:"output_dir,omitempty"`
}

// PostSearchFilter names a registered filter factory plus its parameters.
type PostSearchFilter struct {
	Type   string         `yaml:"type"`
	Params map[string]any `yaml:",inline"`
}

// Job is the read-only declarative input for one unit of work.
type Job struct {
	Name             string             `yaml:"name"`
	Collection       string             `yaml:"collection"`
	Filters          SearchFilters      `yaml:"filters"`
	Download         DownloadOptions    `yaml:"download"`
	PostProcess      PostProcessOptions `yaml:"post_process"`
	PostSearchFilter *PostSearchFilter  `yaml:"post_search_filter,omitempty"`
	Limit            int                `yaml:"limit,omitempty"` // 0 = no limit
}
