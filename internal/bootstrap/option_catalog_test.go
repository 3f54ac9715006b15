package bootstrap

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-converter/internal/domain"
)

// TestBuildOptionCatalogMarksCurrentPreset checks one default per group.
func TestBuildOptionCatalogMarksCurrentPreset(t *testing.T) {
	catalog := buildOptionCatalog(domain.Options{
		Format:     domain.FormatWebM,
		Resolution: domain.Resolution720,
		Bitrate:    domain.Bitrate5M,
	})

	for name, group := range map[string][]domain.OptionChoice{
		"formats":     catalog.Formats,
		"resolutions": catalog.Resolutions,
		"bitrates":    catalog.Bitrates,
	} {
		defaults := lo.Filter(group, func(c domain.OptionChoice, _ int) bool { return c.Default })
		require.Len(t, defaults, 1, name)
	}

	assert.True(t, catalog.Formats[1].Default)
	assert.True(t, catalog.Resolutions[1].Default)
	assert.True(t, catalog.Bitrates[3].Default)
	assert.False(t, formatChoices[1].Default, "package catalog must not be mutated")
}

// TestOptionCatalogIDsAreValidOptions keeps labels and enums in sync.
func TestOptionCatalogIDsAreValidOptions(t *testing.T) {
	for _, f := range formatChoices {
		for _, r := range resolutionChoices {
			for _, b := range bitrateChoices {
				opts := domain.Options{Format: domain.Format(f.ID), Resolution: domain.Resolution(r.ID), Bitrate: domain.Bitrate(b.ID)}
				assert.NoError(t, opts.Validate())
			}
		}
	}
}

// TestGetOptionCatalogUsesSavedSettings reads the preset from the store.
func TestGetOptionCatalogUsesSavedSettings(t *testing.T) {
	app := &App{Store: &fakeStore{settings: domain.Settings{
		Options: domain.Options{Format: domain.FormatWebM},
	}}}

	catalog := app.GetOptionCatalog()
	assert.True(t, catalog.Formats[1].Default)
	assert.True(t, catalog.Resolutions[0].Default, "unset resolution falls back to source")
	assert.True(t, catalog.Bitrates[0].Default)
}
