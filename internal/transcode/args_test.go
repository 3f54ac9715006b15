package transcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-converter/internal/domain"
)

func allOptions() []domain.Options {
	var out []domain.Options
	for _, f := range []domain.Format{domain.FormatMP4, domain.FormatWebM} {
		for _, r := range []domain.Resolution{domain.ResolutionSource, domain.Resolution720, domain.Resolution1080} {
			for _, b := range []domain.Bitrate{domain.BitrateAuto, domain.Bitrate1M, domain.Bitrate2500K, domain.Bitrate5M} {
				for _, trim := range [][2]float64{{0, 0}, {2, 8}, {5, 5}, {6, 1}, {0, 4.5}} {
					out = append(out, domain.Options{
						Format:     f,
						Resolution: r,
						Bitrate:    b,
						TrimStart:  trim[0],
						TrimEnd:    trim[1],
					})
				}
			}
		}
	}
	return out
}

func countFlag(args []string, flag string) int {
	n := 0
	for _, a := range args {
		if a == flag {
			n++
		}
	}
	return n
}

func flagValue(args []string, flag string) (string, bool) {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1], true
		}
	}
	return "", false
}

func indexOf(args []string, flag string) int {
	for i, a := range args {
		if a == flag {
			return i
		}
	}
	return -1
}

func TestBuildScenarioArgs(t *testing.T) {
	opts := domain.Options{
		Format:     domain.FormatMP4,
		Resolution: domain.Resolution720,
		Bitrate:    domain.BitrateAuto,
		TrimStart:  2,
		TrimEnd:    8,
	}

	got := Build("input-a.mov", "output-a.mp4", opts)
	want := []string{
		"-y",
		"-ss", "2",
		"-i", "input-a.mov",
		"-t", "6",
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		"-vf", "scale=-2:'trunc(min(720,ih)/2)*2'",
		"-c:a", "aac", "-b:a", "128k",
		"output-a.mp4",
	}
	assert.Equal(t, want, got)
}

func TestBuildWebMWithBitrate(t *testing.T) {
	opts := domain.Options{
		Format:     domain.FormatWebM,
		Resolution: domain.ResolutionSource,
		Bitrate:    domain.Bitrate2500K,
	}

	got := Build("in.mkv", "out.webm", opts)
	want := []string{
		"-y",
		"-i", "in.mkv",
		"-c:v", "libvpx-vp9", "-pix_fmt", "yuv420p",
		"-b:v", "2.5M",
		"-c:a", "libopus", "-b:a", "96k",
		"out.webm",
	}
	assert.Equal(t, want, got)
}

func TestBuildIsDeterministic(t *testing.T) {
	for _, opts := range allOptions() {
		first := Build("in", "out", opts)
		second := Build("in", "out", opts)
		require.Equal(t, first, second, "%+v", opts)
	}
}

func TestBuildOmitsDurationWhenEndNotAfterStart(t *testing.T) {
	for _, opts := range allOptions() {
		args := Build("in", "out", opts)
		if opts.TrimEnd > opts.TrimStart {
			v, ok := flagValue(args, "-t")
			require.True(t, ok, "%+v", opts)
			assert.Equal(t, formatSeconds(opts.TrimEnd-opts.TrimStart), v)
			continue
		}
		assert.Zero(t, countFlag(args, "-t"), "%+v", opts)
	}
}

func TestBuildSeekPrecedesInput(t *testing.T) {
	args := Build("in", "out", domain.Options{
		Format: domain.FormatMP4, Resolution: domain.ResolutionSource, Bitrate: domain.BitrateAuto,
		TrimStart: 1.25,
	})
	ss := indexOf(args, "-ss")
	in := indexOf(args, "-i")
	require.NotEqual(t, -1, ss)
	assert.Less(t, ss, in)
	assert.Equal(t, "1.25", args[ss+1])
	assert.Zero(t, countFlag(args, "-t"))
}

func TestBuildExactlyOneCodecPairPerContainer(t *testing.T) {
	for _, opts := range allOptions() {
		args := Build("in", "out", opts)
		p := profiles[opts.Format]

		assert.Equal(t, 1, countFlag(args, "-c:v"), "%+v", opts)
		assert.Equal(t, 1, countFlag(args, "-pix_fmt"), "%+v", opts)
		assert.Equal(t, 1, countFlag(args, "-c:a"), "%+v", opts)
		assert.Equal(t, 1, countFlag(args, "-b:a"), "%+v", opts)

		v, _ := flagValue(args, "-c:v")
		a, _ := flagValue(args, "-c:a")
		assert.Equal(t, p.videoCodec, v)
		assert.Equal(t, p.audioCodec, a)

		assert.Equal(t, "-y", args[0])
		assert.Equal(t, "out", args[len(args)-1])
	}
}

func TestBuildBitrateAndScaleFlags(t *testing.T) {
	for _, opts := range allOptions() {
		args := Build("in", "out", opts)

		if opts.Bitrate == domain.BitrateAuto {
			assert.Zero(t, countFlag(args, "-b:v"))
		} else {
			v, ok := flagValue(args, "-b:v")
			require.True(t, ok)
			assert.Equal(t, string(opts.Bitrate), v)
		}

		if opts.Resolution == domain.ResolutionSource {
			assert.Zero(t, countFlag(args, "-vf"))
		} else {
			v, ok := flagValue(args, "-vf")
			require.True(t, ok)
			assert.Equal(t, scaleFilter(opts.Resolution.Height()), v)
		}
	}
}

func TestBuildPanicsOnUnknownFormat(t *testing.T) {
	assert.Panics(t, func() {
		Build("in", "out", domain.Options{Format: "avi"})
	})
}

func TestNames(t *testing.T) {
	assert.Equal(t, "a.mp4", OutputName("a.mov", domain.FormatMP4))
	assert.Equal(t, "clip.final.webm", OutputName("/tmp/clip.final.mkv", domain.FormatWebM))
	assert.Equal(t, "video.mp4", OutputName("", domain.FormatMP4))
	assert.Equal(t, "input-a.mov", InputName("a.MOV"))
	assert.Equal(t, "input-my_clip__1_.mp4", InputName("my clip (1).mp4"))
	assert.Equal(t, "input-noext", InputName("noext"))
	assert.Equal(t, "output-a.mp4", WorkspaceOutputName("a.mp4", domain.FormatMP4))
	assert.Equal(t, "video/webm", MIMEType(domain.FormatWebM))
	assert.Equal(t, "mp4", Extension(domain.FormatMP4))
}
