package pagination

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Progress observes page completions. Implementations must be safe for
// concurrent use and must not block.
type Progress interface {
	// SetTotal announces the number of pages to fetch.
	SetTotal(n int)

	// Advance records k finished pages.
	Advance(k int)
}

// NopProgress discards all progress.
type NopProgress struct{}

func (NopProgress) SetTotal(int) {}
func (NopProgress) Advance(int)  {}

// LogProgress logs progress every N pages.
type LogProgress struct {
	logger zerolog.Logger
	every  int

	mu    sync.Mutex
	total int
	done  int
}

// NewLogProgress creates a LogProgress logging every `every` pages (default 50).
func NewLogProgress(logger zerolog.Logger, every int) *LogProgress {
	if every <= 0 {
		every = 50
	}
	return &LogProgress{logger: logger, every: every}
}

func (p *LogProgress) SetTotal(n int) {
	p.mu.Lock()
	p.total = n
	p.done = 0
	p.mu.Unlock()
}

func (p *LogProgress) Advance(k int) {
	p.mu.Lock()
	before := p.done
	p.done += k
	done, total := p.done, p.total
	p.mu.Unlock()

	if done/p.every == before/p.every && done != total {
		return
	}

	pct := 100.0
	if total > 0 {
		pct = float64(done) / float64(total) * 100
	}
	p.logger.Info().
		Int("fetched", done).
		Int("total", total).
		Float64("progress_pct", pct).
		Msg("Fetch progress")
}

// BarProgress renders a text progress bar on a terminal.
type BarProgress struct {
	w     io.Writer
	width int

	mu    sync.Mutex
	total int
	done  int
}

// NewBarProgress creates a progress bar writing to w.
func NewBarProgress(w io.Writer) *BarProgress {
	return &BarProgress{w: w, width: 30}
}

func (p *BarProgress) SetTotal(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = n
	p.done = 0
	p.render()
}

func (p *BarProgress) Advance(k int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done += k
	p.render()
	if p.done >= p.total {
		fmt.Fprintln(p.w)
	}
}

// render must be called with mu held.
func (p *BarProgress) render() {
	filled := p.width
	if p.total > 0 {
		filled = min(p.done*p.width/p.total, p.width)
	}
	bar := strings.Repeat("#", filled) + strings.Repeat("-", p.width-filled)
	fmt.Fprintf(p.w, "\rFetching pages [%s] %d/%d", bar, p.done, p.total)
}
