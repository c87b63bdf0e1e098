package seg

import (
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// DICOM scaled CIELab: L* 0..100 maps to 0..65535, a* and b* -128..127 map
// to 0..65535

// LabToRGB converts a Recommended Display CIELab Value to sRGB
func LabToRGB(lab [3]int) [3]uint8 {
	l := float64(lab[0]) * 100 / 65535
	a := float64(lab[1])*255/65535 - 128
	b := float64(lab[2])*255/65535 - 128

	c := colorful.Lab(l/100, a/100, b/100).Clamped()
	r, g, bl := c.RGB255()
	return [3]uint8{r, g, bl}
}

// RGBToLab converts sRGB to a Recommended Display CIELab Value
func RGBToLab(rgb [3]uint8) [3]int {
	c := colorful.Color{R: float64(rgb[0]) / 255, G: float64(rgb[1]) / 255, B: float64(rgb[2]) / 255}
	l, a, b := c.Lab()

	return [3]int{
		scaleLab(l*100*65535/100, 65535),
		scaleLab((a*100+128)*65535/255, 65535),
		scaleLab((b*100+128)*65535/255, 65535),
	}
}

func scaleLab(v, hi float64) int {
	return int(math.Round(math.Max(0, math.Min(hi, v))))
}

// defaultColors cycles through for segments without a recommended color
var defaultColors = [][3]uint8{
	{221, 84, 84},
	{77, 228, 121},
	{166, 70, 235},
	{189, 180, 116},
	{109, 182, 196},
	{204, 101, 157},
	{255, 166, 0},
	{0, 151, 206},
}

// DefaultColor returns the fallback color of a segment number
func DefaultColor(number int) [3]uint8 {
	if number < 1 {
		number = 1
	}
	return defaultColors[(number-1)%len(defaultColors)]
}

// DisplayColor returns the segment's recommended color as sRGB, or the
// fallback color for its number
func (s Segment) DisplayColor() [3]uint8 {
	if s.HasColor {
		return LabToRGB(s.Color)
	}
	return DefaultColor(s.Number)
}
