package engine

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

var reDuration = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)

// progressParser turns ffmpeg "-progress pipe:1" output plus the input
// duration printed on stderr into completion ratios. The ratio is not
// clamped: ffmpeg can report slightly past the expected end.
type progressParser struct {
	mu     sync.Mutex
	seek   time.Duration
	limit  time.Duration
	probed time.Duration
	emit   func(float64)
}

func newProgressParser(args []string, emit func(float64)) *progressParser {
	seek, limit := trimWindow(args)
	return &progressParser{seek: seek, limit: limit, emit: emit}
}

// expected returns the output duration the ratio is computed against.
func (p *progressParser) expected() time.Duration {
	total := time.Duration(0)
	if p.probed > 0 {
		total = p.probed - p.seek
	}
	if p.limit > 0 && (total <= 0 || p.limit < total) {
		total = p.limit
	}
	return total
}

func (p *progressParser) stderrLine(line string) {
	m := reDuration.FindStringSubmatch(line)
	if m == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.probed > 0 {
		return
	}
	p.probed = parseClock(m[1], m[2], m[3])
}

func (p *progressParser) stdoutLine(line string) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return
	}

	var ratio float64
	switch key {
	case "out_time_us", "out_time_ms":
		// Both keys carry microseconds.
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			return
		}
		p.mu.Lock()
		total := p.expected()
		p.mu.Unlock()
		if total <= 0 {
			return
		}
		ratio = float64(time.Duration(us)*time.Microsecond) / float64(total)
	case "progress":
		if value != "end" {
			return
		}
		ratio = 1
	default:
		return
	}

	if p.emit != nil {
		p.emit(ratio)
	}
}

// trimWindow extracts -ss (before the input) and -t from an argument list.
func trimWindow(args []string) (seek, limit time.Duration) {
	for i := 0; i < len(args)-1; i++ {
		switch args[i] {
		case "-ss":
			seek = parseSeconds(args[i+1])
		case "-t":
			limit = parseSeconds(args[i+1])
		}
	}
	return seek, limit
}

func parseSeconds(raw string) time.Duration {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}

func parseClock(h, m, s string) time.Duration {
	hours, _ := strconv.Atoi(h)
	minutes, _ := strconv.Atoi(m)
	seconds, _ := strconv.ParseFloat(s, 64)
	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds*float64(time.Second))
}

// lineWriter splits a byte stream into lines and hands each to fn.
// ffmpeg separates stderr status updates with '\r'.
type lineWriter struct {
	mu  sync.Mutex
	buf []byte
	fn  func(string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexAny(w.buf, "\r\n")
		if i < 0 {
			break
		}
		line := string(w.buf[:i])
		w.buf = w.buf[i+1:]
		if line != "" {
			w.fn(line)
		}
	}
	return len(p), nil
}

// Flush delivers a trailing line that had no terminator.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.fn(string(w.buf))
		w.buf = nil
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = append([]byte(nil), t.buf[len(t.buf)-t.max:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
