// Package display renders per-item transfer progress on the console. It is
// the only package that knows about terminal rendering; the engine reports
// through the sink interface alone.
package display

import (
	"sync"

	"github.com/cheggaaa/pb/v3"
)

const barTemplate = `{{string . "name" | printf "%-40.40s"}} {{counters . }} {{bar . }} {{percent . }} {{speed . }}`

// Progress renders one bar per in-flight item in a shared pool. Safe for
// concurrent use by the transfer workers.
type Progress struct {
	mu      sync.Mutex
	pool    *pb.Pool
	bars    map[string]*pb.ProgressBar
	started bool
}

// NewProgress builds an idle renderer. The pool starts with the first item.
func NewProgress() *Progress {
	return &Progress{bars: make(map[string]*pb.ProgressBar)}
}

func (p *Progress) ItemStarted(key string, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	bar := pb.ProgressBarTemplate(barTemplate).New(0)
	bar.Set(pb.Bytes, true)
	bar.Set("name", key)
	if total > 0 {
		bar.SetTotal(total)
	}
	p.bars[key] = bar

	if !p.started {
		p.pool = pb.NewPool(bar)
		if err := p.pool.Start(); err != nil {
			// Not a terminal; drop rendering but keep accounting.
			p.pool = nil
		}
		p.started = true
		return
	}
	if p.pool != nil {
		p.pool.Add(bar)
	}
}

func (p *Progress) ItemAdvanced(key string, n int64) {
	p.mu.Lock()
	bar := p.bars[key]
	p.mu.Unlock()
	if bar == nil {
		return
	}
	if n < 0 {
		bar.SetCurrent(0)
		return
	}
	bar.Add64(n)
}

func (p *Progress) ItemFinished(key string) {
	p.mu.Lock()
	bar := p.bars[key]
	delete(p.bars, key)
	p.mu.Unlock()
	if bar != nil {
		bar.Finish()
	}
}

// Close stops the pool. Call once after all transfers settle.
func (p *Progress) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pool != nil {
		_ = p.pool.Stop()
		p.pool = nil
	}
}
