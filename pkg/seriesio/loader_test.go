package seriesio

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"golang.org/x/image/tiff"

	"phantomqa/internal/models"
)

// gray returns a w*h 16-bit image filled with v, with a marker pixel at the origin
func gray(w, h int, v uint16) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray16(x, y, color.Gray16{Y: v})
		}
	}
	img.SetGray16(0, 0, color.Gray16{Y: 7})
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestLoadImageSeries(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "t1", "slice_10.png"), gray(4, 3, 1000))
	writePNG(t, filepath.Join(dir, "t1", "slice_2.png"), gray(4, 3, 200))
	writePNG(t, filepath.Join(dir, "t1", "slice_1.png"), gray(4, 3, 100))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "t1", "notes.txt"), []byte("ignored"), 0644))

	opts := DefaultOptions()
	opts.Spacing = models.Spacing{X: 0.5, Y: 0.5}
	series, err := Load(dir, opts)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, "t1", series[0].Description)

	slices := series[0].Slices
	require.Len(t, slices, 3)
	for i, s := range slices {
		assert.Equal(t, i+1, s.Index)
		assert.Equal(t, 4, s.Width)
		assert.Equal(t, 3, s.Height)
		assert.Equal(t, opts.Spacing, s.PixelSpacing)
		assert.Equal(t, 5.0, s.SliceThickness)
		assert.Equal(t, 7.0, s.At(0, 0))
	}
	// numeric, not lexical, file order
	assert.Equal(t, 100.0, slices[0].At(1, 1))
	assert.Equal(t, 200.0, slices[1].At(1, 1))
	assert.Equal(t, 1000.0, slices[2].At(1, 1))
}

func TestLoadGroupsAndFilters(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a", "1.png"), gray(2, 2, 1))
	writePNG(t, filepath.Join(dir, "b", "1.png"), gray(2, 2, 2))
	writePNG(t, filepath.Join(dir, "b", "2.png"), gray(2, 2, 3))

	series, err := Load(dir, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, "a", series[0].Description)
	assert.Len(t, series[1].Slices, 2)

	opts := DefaultOptions()
	opts.Description = "b"
	series, err = Load(dir, opts)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, "b", series[0].Description)

	opts.Pattern = "a/*.png"
	opts.Description = ""
	series, err = Load(dir, opts)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, "a", series[0].Description)
}

func TestLoadTIFF(t *testing.T) {
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "slice_1.tif"))
	require.NoError(t, err)
	require.NoError(t, tiff.Encode(f, gray(5, 5, 4000), nil))
	require.NoError(t, f.Close())

	series, err := Load(dir, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, 4000.0, series[0].Slices[0].At(2, 2))
}

func TestLoadEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("x"), 0644))
	// a file without extension that is not DICOM is skipped
	require.NoError(t, os.WriteFile(filepath.Join(dir, "IM0001"), []byte("not dicom"), 0644))

	_, err := Load(dir, DefaultOptions())
	assert.True(t, errors.Is(err, ErrNoSlices))
}

func TestExtractNumber(t *testing.T) {
	assert.Equal(t, 12, extractNumber("dir/slice_12.png"))
	assert.Equal(t, 0, extractNumber("slice.png"))
}

func element(t *testing.T, tg tag.Tag, v []string) *dicom.Element {
	t.Helper()
	el, err := dicom.NewElement(tg, v)
	require.NoError(t, err)
	return el
}

func TestReadMeta(t *testing.T) {
	ds := dicom.Dataset{Elements: []*dicom.Element{
		element(t, tag.PixelSpacing, []string{"0.9", "0.8"}),
		element(t, tag.SliceThickness, []string{"5"}),
		element(t, tag.ImagePositionPatient, []string{"-125", "-125", "30.5"}),
		element(t, tag.ImageOrientationPatient, []string{"1", "0", "0", "0", "1", "0"}),
		element(t, tag.RescaleSlope, []string{"2"}),
		element(t, tag.RescaleIntercept, []string{"-10"}),
		element(t, tag.SeriesDescription, []string{"ACR T1 "}),
		element(t, tag.InstanceNumber, []string{"7"}),
	}}

	meta, err := readMeta(ds)
	require.NoError(t, err)
	assert.Equal(t, models.Spacing{X: 0.8, Y: 0.9}, meta.spacing)
	assert.Equal(t, 5.0, meta.thickness)
	assert.Equal(t, 30.5, meta.position)
	assert.Equal(t, "axial", meta.orientation)
	assert.Equal(t, 2.0, meta.slope)
	assert.Equal(t, -10.0, meta.intercept)
	assert.Equal(t, "ACR T1", meta.description)
	assert.Equal(t, 7, meta.instance)

	_, err = readMeta(dicom.Dataset{})
	assert.Error(t, err)
}

func TestOrientation(t *testing.T) {
	assert.Equal(t, "axial", orientation([]float64{1, 0, 0, 0, 1, 0}))
	assert.Equal(t, "sagittal", orientation([]float64{0, 1, 0, 0, 0, -1}))
	assert.Equal(t, "coronal", orientation([]float64{1, 0, 0, 0, 0, -1}))
}

func TestIsDICOM(t *testing.T) {
	data := make([]byte, 140)
	assert.False(t, isDICOM(data))
	copy(data[128:], "DICM")
	assert.True(t, isDICOM(data))
	assert.False(t, isDICOM([]byte("DICM")))
}
