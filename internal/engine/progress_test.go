package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(args []string) (*progressParser, *[]float64) {
	var got []float64
	p := newProgressParser(args, func(r float64) { got = append(got, r) })
	return p, &got
}

func TestProgressParserUsesProbedDuration(t *testing.T) {
	p, got := collect([]string{"-i", "in.mov", "out.mp4"})

	p.stdoutLine("out_time_us=1000000") // duration unknown yet
	p.stderrLine("  Duration: 00:00:10.00, start: 0.000000, bitrate: 1205 kb/s")
	p.stdoutLine("out_time_us=5000000")
	p.stdoutLine("out_time_ms=10500000")
	p.stdoutLine("progress=continue")
	p.stdoutLine("progress=end")

	require.Len(t, *got, 3)
	assert.InDelta(t, 0.5, (*got)[0], 1e-9)
	assert.InDelta(t, 1.05, (*got)[1], 1e-9)
	assert.Equal(t, 1.0, (*got)[2])
}

func TestProgressParserHonoursTrimWindow(t *testing.T) {
	p, got := collect([]string{"-y", "-ss", "2", "-i", "in", "-t", "6", "out"})
	p.stderrLine("Duration: 00:00:10.00, start: 0.0")
	p.stdoutLine("out_time_us=3000000")

	require.Len(t, *got, 1)
	assert.InDelta(t, 0.5, (*got)[0], 1e-9)
}

func TestProgressParserSeekOnly(t *testing.T) {
	p, got := collect([]string{"-ss", "4", "-i", "in", "out"})
	p.stderrLine("Duration: 00:00:10.00")
	p.stdoutLine("out_time_us=3000000")

	require.Len(t, *got, 1)
	assert.InDelta(t, 0.5, (*got)[0], 1e-9)
}

func TestProgressParserKeepsFirstDuration(t *testing.T) {
	p, _ := collect(nil)
	p.stderrLine("Duration: 01:02:03.50, start")
	p.stderrLine("Duration: 00:00:01.00, start")
	assert.Equal(t, time.Hour+2*time.Minute+3500*time.Millisecond, p.probed)
}

func TestProgressParserIgnoresNoise(t *testing.T) {
	p, got := collect(nil)
	p.stderrLine("Duration: N/A, bitrate: N/A")
	p.stdoutLine("frame=10")
	p.stdoutLine("out_time_us=N/A")
	p.stdoutLine("garbage")
	assert.Empty(t, *got)
}

func TestLineWriterSplitsOnCarriageReturn(t *testing.T) {
	var lines []string
	w := &lineWriter{fn: func(s string) { lines = append(lines, s) }}

	_, _ = w.Write([]byte("a=1\nb="))
	_, _ = w.Write([]byte("2\rframe=3\r\n"))
	_, _ = w.Write([]byte("tail"))
	w.Flush()

	assert.Equal(t, []string{"a=1", "b=2", "frame=3", "tail"}, lines)
}

func TestTailBufferKeepsEnd(t *testing.T) {
	tb := &tailBuffer{max: 4}
	_, _ = tb.Write([]byte("abc"))
	_, _ = tb.Write([]byte("defg"))
	assert.Equal(t, "defg", tb.String())
}
