package halo

import "math"

// ClampButtonValue clamps a value into the Halo button range.
func ClampButtonValue(value float64) int {
	return int(math.Round(math.Min(math.Max(value, MinValue), MaxValue)))
}

// InterpolateButtonValue maps value from [minValue, maxValue] onto the
// Halo button range, clamping at the edges.
func InterpolateButtonValue(value, minValue, maxValue float64) int {
	if maxValue <= minValue {
		return MinValue
	}
	scaled := (value - minValue) / (maxValue - minValue) * (MaxValue - MinValue)
	return ClampButtonValue(MinValue + scaled)
}

// TrimButtonText shortens a string to fit a button's text content.
func TrimButtonText(text string) string {
	return trim(text, ButtonTextMaxLength)
}

// TrimButtonTitle shortens a string to fit a button's title.
func TrimButtonTitle(text string) string {
	return trim(text, ButtonTitleMaxLength)
}

// TrimButtonSubtitle shortens a string to fit a button's subtitle.
func TrimButtonSubtitle(text string) string {
	return trim(text, ButtonSubtitleMaxLength)
}

// TrimPageTitle shortens a string to fit a page's title.
func TrimPageTitle(text string) string {
	return trim(text, PageTitleMaxLength)
}

func trim(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
