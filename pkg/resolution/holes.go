package resolution

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/spatial/kdtree"

	"phantomqa/internal/models"
	"phantomqa/pkg/geometry"
)

// HoleGroup is one 4x4 hole array of the resolution insert. Holes sit on a square grid of
// pitch 2*Size around (OffsetX, OffsetY), given in mm from the phantom centre.
type HoleGroup struct {
	Size    float64 `yaml:"size"`
	OffsetX float64 `yaml:"offsetX"`
	OffsetY float64 `yaml:"offsetY"`
}

// Metric is the report metric name of the group ("score_1_1mm")
func (g HoleGroup) Metric() string {
	return "score_" + strings.ReplaceAll(fmt.Sprintf("%.1f", g.Size), ".", "_") + "mm"
}

// Pitch is the hole spacing in mm
func (g HoleGroup) Pitch() float64 { return 2 * g.Size }

// holes returns the expected hole centres in pixel coordinates
func (g HoleGroup) holes(geo models.PhantomGeometry, spacing models.Spacing) []models.Point {
	pts := make([]models.Point, 0, 16)
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			dx := g.OffsetX + (float64(c)-1.5)*g.Pitch()
			dy := g.OffsetY + (float64(r)-1.5)*g.Pitch()
			pts = append(pts, geo.Offset(dx, dy, spacing))
		}
	}
	return pts
}

// HoleScore returns the percentage of the group's 16 holes that are resolved as separate
// bright blobs at their expected positions. An ROI whose modulation is below minModulation
// holds no insert and is reported as ErrFeatureNotFound; an insert whose holes blur
// together scores 0.
func HoleScore(img models.SliceImage, geo models.PhantomGeometry, g HoleGroup, minModulation float64) (float64, error) {
	if !(g.Size > 0) {
		return 0, fmt.Errorf("hole size must be positive, got %v", g.Size)
	}
	scale := geo.Scale
	if scale <= 0 {
		scale = 1
	}
	center := geo.Offset(g.OffsetX, g.OffsetY, img.PixelSpacing)
	halfW := 4.5 * g.Size * scale / img.PixelSpacing.X
	halfH := 4.5 * g.Size * scale / img.PixelSpacing.Y

	roi := geometry.RectAround(center, halfW, halfH)
	if !geometry.Inside(img, roi) {
		return 0, fmt.Errorf("hole group %.1f mm ROI: %w", g.Size, models.ErrOutOfBounds)
	}
	x0, y0, x1, y1 := roi.Bounds()
	sub, err := geometry.SubImage(img, x0, y0, x1-x0+1, y1-y0+1)
	if err != nil {
		return 0, err
	}

	lo := geometry.Quantile(sub.Pixels, 0.1)
	hi := geometry.Quantile(sub.Pixels, 0.9)
	if hi+lo <= 0 || (hi-lo)/(hi+lo) < minModulation {
		return 0, fmt.Errorf("hole group %.1f mm: no insert in ROI: %w", g.Size, models.ErrFeatureNotFound)
	}

	_, comps := geometry.Label(geometry.Threshold(sub.Pixels, (lo+hi)/2), sub.Width, sub.Height)
	if len(comps) == 0 {
		return 0, fmt.Errorf("hole group %.1f mm: no bright blobs: %w", g.Size, models.ErrFeatureNotFound)
	}
	blobs := make(blobPoints, len(comps))
	for i, c := range comps {
		blobs[i] = blob{X: c.Centroid.X + float64(x0), Y: c.Centroid.Y + float64(y0), ID: i}
	}

	expected := g.holes(geo, img.PixelSpacing)
	tol := g.Pitch() / 2 * scale / img.PixelSpacing.X
	matched := matchHoles(expected, blobs, tol)
	return 100 * float64(matched) / float64(len(expected)), nil
}

// matchHoles pairs every expected hole with its nearest unused blob within tol pixels and
// returns the number of pairs
func matchHoles(expected []models.Point, blobs blobPoints, tol float64) int {
	if len(blobs) == 0 {
		return 0
	}
	tree := kdtree.New(blobs, false)
	used := make(map[int]bool, len(blobs))
	limit := tol * tol

	matched := 0
	for _, e := range expected {
		keep := kdtree.NewNKeeper(4)
		tree.NearestSet(keep, blob{X: e.X, Y: e.Y, ID: -1})

		cands := make([]kdtree.ComparableDist, 0, len(keep.Heap))
		for _, cd := range keep.Heap {
			if cd.Comparable != nil {
				cands = append(cands, cd)
			}
		}
		sort.Slice(cands, func(i, j int) bool { return cands[i].Dist < cands[j].Dist })

		for _, cd := range cands {
			b := cd.Comparable.(blob)
			if cd.Dist > limit {
				break
			}
			if !used[b.ID] {
				used[b.ID] = true
				matched++
				break
			}
		}
	}
	return matched
}

// blob is a detected hole centroid
type blob struct {
	X, Y float64
	ID   int
}

// Compare implements the kdtree.Comparable interface
func (p blob) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(blob)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p blob) Dims() int { return 2 }

// Distance returns the squared Euclidean distance between two blobs
func (p blob) Distance(c kdtree.Comparable) float64 {
	q := c.(blob)
	dx := p.X - q.X
	dy := p.Y - q.Y
	return dx*dx + dy*dy
}

// blobPoints is a collection of blobs that satisfies kdtree.Interface
type blobPoints []blob

func (p blobPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p blobPoints) Len() int                              { return len(p) }
func (p blobPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot uses the median of medians so tree construction is deterministic
func (p blobPoints) Pivot(d kdtree.Dim) int {
	plane := blobPlane{blobPoints: p, Dim: d}
	return kdtree.Partition(plane, kdtree.MedianOfMedians(plane))
}

// blobPlane implements sort.Interface and kdtree.SortSlicer for blobPoints
type blobPlane struct {
	blobPoints
	kdtree.Dim
}

func (p blobPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.blobPoints[i].X < p.blobPoints[j].X
	case 1:
		return p.blobPoints[i].Y < p.blobPoints[j].Y
	default:
		panic("illegal dimension")
	}
}

func (p blobPlane) Slice(start, end int) kdtree.SortSlicer {
	return blobPlane{blobPoints: p.blobPoints[start:end], Dim: p.Dim}
}

func (p blobPlane) Swap(i, j int) {
	p.blobPoints[i], p.blobPoints[j] = p.blobPoints[j], p.blobPoints[i]
}
