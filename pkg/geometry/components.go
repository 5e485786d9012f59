package geometry

import (
	"sort"

	"phantomqa/internal/models"
)

// Component is one 4-connected blob of a binary mask
type Component struct {
	Label    int
	Area     int
	Centroid models.Point

	// MinX, MinY, MaxX, MaxY is the inclusive bounding box
	MinX, MinY, MaxX, MaxY int
}

// Width of the bounding box in pixels
func (c Component) Width() int { return c.MaxX - c.MinX + 1 }

// Height of the bounding box in pixels
func (c Component) Height() int { return c.MaxY - c.MinY + 1 }

// Label finds the 4-connected components of mask (row-major, w*h). It returns the label of
// every pixel (0 for background, 1.. for components) and the components ordered by
// decreasing area, ties broken by scan order.
func Label(mask []bool, w, h int) ([]int, []Component) {
	labels := make([]int, w*h)
	var comps []Component
	stack := make([]int, 0, 64)

	next := 0
	for start := range mask {
		if !mask[start] || labels[start] != 0 {
			continue
		}
		next++
		c := Component{Label: next, MinX: w, MinY: h, MaxX: -1, MaxY: -1}
		var sx, sy float64

		labels[start] = next
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := idx%w, idx/w

			c.Area++
			sx += float64(x)
			sy += float64(y)
			c.MinX, c.MaxX = min(c.MinX, x), max(c.MaxX, x)
			c.MinY, c.MaxY = min(c.MinY, y), max(c.MaxY, y)

			for _, n := range [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
				nx, ny := n[0], n[1]
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				ni := ny*w + nx
				if mask[ni] && labels[ni] == 0 {
					labels[ni] = next
					stack = append(stack, ni)
				}
			}
		}
		c.Centroid = models.Point{X: sx / float64(c.Area), Y: sy / float64(c.Area)}
		comps = append(comps, c)
	}

	sort.SliceStable(comps, func(i, j int) bool { return comps[i].Area > comps[j].Area })
	return labels, comps
}

// Threshold returns the mask of pixels strictly above level
func Threshold(values []float64, level float64) []bool {
	mask := make([]bool, len(values))
	for i, v := range values {
		mask[i] = v > level
	}
	return mask
}

// Runs returns the [start, end] index pairs (inclusive) of consecutive true entries
func Runs(flags []bool) [][2]int {
	var runs [][2]int
	start := -1
	for i, f := range flags {
		switch {
		case f && start < 0:
			start = i
		case !f && start >= 0:
			runs = append(runs, [2]int{start, i - 1})
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, [2]int{start, len(flags) - 1})
	}
	return runs
}
