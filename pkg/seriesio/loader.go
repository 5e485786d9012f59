// Package seriesio decodes phantom series from disk into slice images. DICOM files carry
// their own geometry; PNG, JPEG and TIFF slices take it from Options.
package seriesio

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	_ "golang.org/x/image/tiff"

	"phantomqa/internal/models"
)

// ErrNoSlices means the pattern matched no decodable slice
var ErrNoSlices = errors.New("no slices found")

// DefaultPattern matches every file below the series directory
const DefaultPattern = "**/*"

// Options controls how a directory is turned into series
type Options struct {
	// Pattern is a doublestar glob relative to the series directory
	Pattern string

	// Spacing and Thickness describe image files that carry no geometry
	Spacing   models.Spacing
	Thickness float64

	// Description keeps only the series with this description when set
	Description string
}

// DefaultOptions assumes 1 mm pixels and 5 mm slices for plain image files
func DefaultOptions() Options {
	return Options{
		Pattern:   DefaultPattern,
		Spacing:   models.Spacing{X: 1, Y: 1},
		Thickness: 5,
	}
}

// Series is an ordered set of slices sharing a series description
type Series struct {
	Description string
	Slices      []models.SliceImage
}

// file is a decoded slice before it is ordered within its series
type file struct {
	name   string
	order  int
	series string
	slice  models.SliceImage
}

// Load decodes every matching file below dir and groups the slices by series description.
// Within a series slices are ordered by instance number (DICOM) or by the number in the file
// name, and renumbered 1..n as ACR slice indices. Series are sorted by description.
func Load(dir string, opts Options) ([]Series, error) {
	return LoadFS(os.DirFS(dir), opts)
}

// LoadFS is Load over an arbitrary file system
func LoadFS(fsys fs.FS, opts Options) ([]Series, error) {
	pattern := opts.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	names, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}

	var files []file
	for _, name := range names {
		if strings.HasPrefix(path.Base(name), ".") {
			continue
		}
		f, ok, err := decode(fsys, name, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to load slice %s: %w", name, err)
		}
		if ok {
			files = append(files, f)
		}
	}

	groups := make(map[string][]file)
	for _, f := range files {
		if opts.Description != "" && f.series != opts.Description {
			continue
		}
		groups[f.series] = append(groups[f.series], f)
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("%q: %w", pattern, ErrNoSlices)
	}

	out := make([]Series, 0, len(groups))
	for desc, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].order != group[j].order {
				return group[i].order < group[j].order
			}
			return group[i].name < group[j].name
		})
		s := Series{Description: desc, Slices: make([]models.SliceImage, len(group))}
		for i, f := range group {
			f.slice.Index = i + 1
			s.Slices[i] = f.slice
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Description < out[j].Description })
	return out, nil
}

// decode reads one file. Files that are neither DICOM nor a supported image are skipped.
func decode(fsys fs.FS, name string, opts Options) (file, bool, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".tif", ".tiff":
		s, err := loadImage(fsys, name, opts)
		if err != nil {
			return file{}, false, err
		}
		return file{name: name, order: extractNumber(name), series: path.Dir(name), slice: s}, true, nil
	case ".dcm", ".ima", "":
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return file{}, false, err
		}
		if !isDICOM(data) {
			return file{}, false, nil
		}
		s, meta, err := decodeDICOM(data)
		if err != nil {
			return file{}, false, err
		}
		order := meta.instance
		if order == 0 {
			order = extractNumber(name)
		}
		return file{name: name, order: order, series: meta.description, slice: s}, true, nil
	default:
		return file{}, false, nil
	}
}

// loadImage decodes an image file into a slice with the configured geometry
func loadImage(fsys fs.FS, name string, opts Options) (models.SliceImage, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return models.SliceImage{}, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return models.SliceImage{}, err
	}
	bounds := img.Bounds()
	s, err := models.NewSliceImage(imageToFloat(img), bounds.Dx(), bounds.Dy(), opts.Spacing, 0)
	if err != nil {
		return models.SliceImage{}, err
	}
	s.SliceThickness = opts.Thickness
	s.Description = path.Dir(name)
	return s, nil
}

// imageToFloat converts an image to row-major 16-bit intensities
func imageToFloat(img image.Image) []float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	result := make([]float64, width*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			result[y*width+x] = float64(r)
		}
	}

	return result
}

// extractNumber extracts the numeric part from a filename
func extractNumber(filename string) int {
	base := path.Base(filename)
	numStr := ""
	for _, c := range base {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}

	if numStr != "" {
		num, err := strconv.Atoi(numStr)
		if err == nil {
			return num
		}
	}
	return 0
}
