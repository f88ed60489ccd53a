package mood

import "github.com/pscheid92/moodmap/internal/domain"

const (
	DefaultColor             = "#BDBDBD"
	DefaultHighContrastColor = "#bdbdbd"
)

var emojis = map[domain.Mood]string{
	domain.MoodPositive: "😄",
	domain.MoodNeutral:  "😐",
	domain.MoodNegative: "😡",
	domain.MoodAnxious:  "😰",
	domain.MoodExcited:  "🤩",
}

var standardPalette = map[domain.Mood]string{
	domain.MoodPositive: "#00C853",
	domain.MoodNeutral:  "#FFD54F",
	domain.MoodNegative: "#FF5252",
	domain.MoodAnxious:  "#7E57C2",
	domain.MoodExcited:  "#29B6F6",
}

var highContrastPalette = map[domain.Mood]string{
	domain.MoodPositive: "#00e676",
	domain.MoodNeutral:  "#ffea00",
	domain.MoodNegative: "#ff1744",
	domain.MoodAnxious:  "#b388ff",
	domain.MoodExcited:  "#00b0ff",
}

// Emoji returns the display glyph for m, or the neutral glyph for unknown moods.
func Emoji(m domain.Mood) string {
	if e, ok := emojis[m]; ok {
		return e
	}
	return emojis[domain.MoodNeutral]
}

// Color returns the fill color for m from the standard or high-contrast palette.
// Unknown moods get the palette's default gray.
func Color(m domain.Mood, highContrast bool) string {
	if highContrast {
		if c, ok := highContrastPalette[m]; ok {
			return c
		}
		return DefaultHighContrastColor
	}
	if c, ok := standardPalette[m]; ok {
		return c
	}
	return DefaultColor
}

// DefaultFill returns the gray used for neighborhoods without data.
func DefaultFill(highContrast bool) string {
	if highContrast {
		return DefaultHighContrastColor
	}
	return DefaultColor
}
