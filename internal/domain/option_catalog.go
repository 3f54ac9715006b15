package domain

// OptionChoice describes one selectable value of a conversion option.
type OptionChoice struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Default     bool   `json:"default"`
}

// OptionCatalog lists every choice the UI can offer, grouped by option.
type OptionCatalog struct {
	Formats     []OptionChoice `json:"formats"`
	Resolutions []OptionChoice `json:"resolutions"`
	Bitrates    []OptionChoice `json:"bitrates"`
}
