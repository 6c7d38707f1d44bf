package print

// ColorMode selects color or monochrome output.
type ColorMode int

const (
	ColorModeMonochrome ColorMode = 1
	ColorModeColor      ColorMode = 2
)

// IsValidColorMode reports whether the mode is one of the defined values.
func IsValidColorMode(m ColorMode) bool {
	return m == ColorModeMonochrome || m == ColorModeColor
}

// DuplexMode selects how sheets are turned for two-sided output.
type DuplexMode int

const (
	DuplexModeNone      DuplexMode = 1
	DuplexModeLongEdge  DuplexMode = 2
	DuplexModeShortEdge DuplexMode = 4
)

// IsValidDuplexMode reports whether the mode is one of the defined values.
func IsValidDuplexMode(m DuplexMode) bool {
	return m == DuplexModeNone || m == DuplexModeLongEdge || m == DuplexModeShortEdge
}

// MediaSize describes a paper size in thousandths of an inch.
type MediaSize struct {
	ID         string `json:"id"`
	WidthMils  int    `json:"widthMils"`
	HeightMils int    `json:"heightMils"`
}

// Common media sizes.
var (
	MediaSizeISOA4    = MediaSize{ID: "ISO_A4", WidthMils: 8268, HeightMils: 11693}
	MediaSizeISOA5    = MediaSize{ID: "ISO_A5", WidthMils: 5827, HeightMils: 8268}
	MediaSizeNALetter = MediaSize{ID: "NA_LETTER", WidthMils: 8500, HeightMils: 11000}
	MediaSizeNALegal  = MediaSize{ID: "NA_LEGAL", WidthMils: 8500, HeightMils: 14000}
)

// Resolution describes output density in dots per inch.
type Resolution struct {
	ID            string `json:"id"`
	HorizontalDPI int    `json:"horizontalDpi"`
	VerticalDPI   int    `json:"verticalDpi"`
}

// Margins are the unprintable borders in thousandths of an inch.
type Margins struct {
	LeftMils   int `json:"leftMils"`
	TopMils    int `json:"topMils"`
	RightMils  int `json:"rightMils"`
	BottomMils int `json:"bottomMils"`
}

// Attributes captures the layout-relevant print settings for a document
// session. A nil field means "unset"; layout requests carry the previously
// applied attributes and the newly selected ones side by side so application
// logic can decide whether the layout actually changed.
type Attributes struct {
	MediaSize  *MediaSize  `json:"mediaSize,omitempty"`
	Resolution *Resolution `json:"resolution,omitempty"`
	Margins    *Margins    `json:"margins,omitempty"`
	ColorMode  ColorMode   `json:"colorMode,omitzero"`
	DuplexMode DuplexMode  `json:"duplexMode,omitzero"`
}

// Equal reports whether two attribute sets select the same output settings.
func (a *Attributes) Equal(b *Attributes) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ColorMode != b.ColorMode || a.DuplexMode != b.DuplexMode {
		return false
	}
	if !equalPtr(a.MediaSize, b.MediaSize) {
		return false
	}
	if !equalPtr(a.Resolution, b.Resolution) {
		return false
	}
	return equalPtr(a.Margins, b.Margins)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
