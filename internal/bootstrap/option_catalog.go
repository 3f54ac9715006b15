package bootstrap

import (
	"media-converter/internal/config"
	"media-converter/internal/domain"
)

var formatChoices = []domain.OptionChoice{
	{ID: string(domain.FormatMP4), Label: "MP4 (H.264 + AAC)", Description: "Plays almost everywhere."},
	{ID: string(domain.FormatWebM), Label: "WebM (VP9 + Opus)", Description: "Smaller files for the web; slower to encode."},
}

var resolutionChoices = []domain.OptionChoice{
	{ID: string(domain.ResolutionSource), Label: "Original", Description: "Keep the source frame size."},
	{ID: string(domain.Resolution720), Label: "720p", Description: "Cap height at 720 pixels; smaller videos are not upscaled."},
	{ID: string(domain.Resolution1080), Label: "1080p", Description: "Cap height at 1080 pixels; smaller videos are not upscaled."},
}

var bitrateChoices = []domain.OptionChoice{
	{ID: string(domain.BitrateAuto), Label: "Automatic", Description: "Let the encoder pick a quality-based rate."},
	{ID: string(domain.Bitrate1M), Label: "1 Mbps", Description: "Small files, visible artifacts on motion."},
	{ID: string(domain.Bitrate2500K), Label: "2.5 Mbps", Description: "Good for 720p."},
	{ID: string(domain.Bitrate5M), Label: "5 Mbps", Description: "Good for 1080p."},
}

// GetOptionCatalog returns every conversion choice with the user's saved
// preset marked as default.
func (a *App) GetOptionCatalog() domain.OptionCatalog {
	current := config.DefaultOptions()
	if a.Store != nil {
		if settings, err := a.Store.Load(); err == nil {
			current = normalizeSettings(settings).Options
		}
	}
	return buildOptionCatalog(current)
}

func buildOptionCatalog(current domain.Options) domain.OptionCatalog {
	return domain.OptionCatalog{
		Formats:     markDefault(formatChoices, string(current.Format)),
		Resolutions: markDefault(resolutionChoices, string(current.Resolution)),
		Bitrates:    markDefault(bitrateChoices, string(current.Bitrate)),
	}
}

func markDefault(choices []domain.OptionChoice, id string) []domain.OptionChoice {
	out := make([]domain.OptionChoice, len(choices))
	copy(out, choices)
	for i := range out {
		out[i].Default = out[i].ID == id
	}
	return out
}
