package isochrone

import (
	"fmt"
	"sort"
	"strconv"
)

// viridis holds the Viridis palettes of 3 to 11 colors.
var viridis = map[int][]string{
	3:  {"#440154", "#208F8C", "#FDE724"},
	4:  {"#440154", "#30678D", "#35B778", "#FDE724"},
	5:  {"#440154", "#3B518A", "#208F8C", "#5BC862", "#FDE724"},
	6:  {"#440154", "#404387", "#29788E", "#22A784", "#79D151", "#FDE724"},
	7:  {"#440154", "#443982", "#30678D", "#208F8C", "#35B778", "#8DD644", "#FDE724"},
	8:  {"#440154", "#46317E", "#365A8C", "#277E8E", "#1EA087", "#49C16D", "#9DD93A", "#FDE724"},
	9:  {"#440154", "#472B7A", "#3B518A", "#2C718E", "#208F8C", "#27AD80", "#5BC862", "#AADB32", "#FDE724"},
	10: {"#440154", "#472777", "#3E4989", "#30678D", "#25828E", "#1E9C89", "#35B778", "#6BCD59", "#B2DD2C", "#FDE724"},
	11: {"#440154", "#482374", "#404387", "#345E8D", "#29788E", "#208F8C", "#22A784", "#42BE71", "#79D151", "#BADE27", "#FDE724"},
}

// PaletteFor returns n ordered colors. Counts of 3 to 11 use the matching
// Viridis palette, 2 and 1 take the head of the 3-color palette and larger
// counts interpolate along the 11-color one.
func PaletteFor(n int) []string {
	switch {
	case n <= 0:
		return nil
	case n <= 2:
		return append([]string(nil), viridis[3][:n]...)
	case n <= 11:
		return append([]string(nil), viridis[n]...)
	}
	return extended(n)
}

func extended(n int) []string {
	anchors := viridis[11]
	out := make([]string, n)
	for i := range out {
		pos := float64(i) * float64(len(anchors)-1) / float64(n-1)
		lo := int(pos)
		if lo >= len(anchors)-1 {
			out[i] = anchors[len(anchors)-1]
			continue
		}
		out[i] = mix(anchors[lo], anchors[lo+1], pos-float64(lo))
	}
	return out
}

func mix(a, b string, t float64) string {
	ar, ag, ab := rgb(a)
	br, bg, bb := rgb(b)
	lerp := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*t + 0.5)
	}
	return fmt.Sprintf("#%02X%02X%02X", lerp(ar, br), lerp(ag, bg), lerp(ab, bb))
}

func rgb(hex string) (r, g, b uint8) {
	v, _ := strconv.ParseUint(hex[1:], 16, 32)
	return uint8(v >> 16), uint8(v >> 8), uint8(v)
}

// Colors maps every trip time, plus the neutral category 0, to a color.
// Categories are colored in ascending order, so 0 takes the first color.
func Colors(tripTimes []int) map[int]string {
	cats := uniqueSorted(append([]int{0}, tripTimes...))
	palette := PaletteFor(len(cats))
	out := make(map[int]string, len(cats))
	for i, c := range cats {
		out[c] = palette[i]
	}
	return out
}

func uniqueSorted(in []int) []int {
	out := append([]int(nil), in...)
	sort.Ints(out)
	n := 0
	for i, v := range out {
		if i == 0 || v != out[n-1] {
			out[n] = v
			n++
		}
	}
	return out[:n]
}
