package seriesio

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"phantomqa/internal/models"
)

// dicomMeta is the slice geometry read from a DICOM header
type dicomMeta struct {
	description string
	instance    int
	spacing     models.Spacing
	thickness   float64
	position    float64
	orientation string
	slope       float64
	intercept   float64
}

// isDICOM checks for the Part 10 preamble marker
func isDICOM(data []byte) bool {
	return len(data) >= 132 && string(data[128:132]) == "DICM"
}

// decodeDICOM parses a Part 10 file and converts its first frame into a slice, applying
// the modality rescale
func decodeDICOM(data []byte) (models.SliceImage, dicomMeta, error) {
	ds, err := dicom.Parse(bytes.NewReader(data), int64(len(data)), nil)
	if err != nil {
		return models.SliceImage{}, dicomMeta{}, fmt.Errorf("parse dicom: %w", err)
	}
	meta, err := readMeta(ds)
	if err != nil {
		return models.SliceImage{}, dicomMeta{}, err
	}

	el, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return models.SliceImage{}, dicomMeta{}, fmt.Errorf("no pixel data: %w", err)
	}
	info := dicom.MustGetPixelDataInfo(el.Value)
	if len(info.Frames) == 0 {
		return models.SliceImage{}, dicomMeta{}, fmt.Errorf("pixel data has no frames")
	}
	fr := info.Frames[0]
	img, err := fr.GetImage()
	if err != nil {
		return models.SliceImage{}, dicomMeta{}, fmt.Errorf("decode frame: %w", err)
	}

	px := imageToFloat(img)
	for i, v := range px {
		px[i] = v*meta.slope + meta.intercept
	}
	bounds := img.Bounds()
	s, err := models.NewSliceImage(px, bounds.Dx(), bounds.Dy(), meta.spacing, 0)
	if err != nil {
		return models.SliceImage{}, dicomMeta{}, err
	}
	s.SliceThickness = meta.thickness
	s.Position = meta.position
	s.Orientation = meta.orientation
	s.Description = meta.description
	return s, meta, nil
}

// readMeta extracts the header fields the measurements depend on. Pixel spacing is required.
func readMeta(ds dicom.Dataset) (dicomMeta, error) {
	meta := dicomMeta{slope: 1}

	spacing := floats(ds, tag.PixelSpacing)
	if len(spacing) < 2 {
		return meta, fmt.Errorf("missing or malformed PixelSpacing")
	}
	// row spacing first: the distance between rows is the vertical pixel size
	meta.spacing = models.Spacing{X: spacing[1], Y: spacing[0]}

	if v := floats(ds, tag.SliceThickness); len(v) > 0 {
		meta.thickness = v[0]
	}
	if v := floats(ds, tag.ImagePositionPatient); len(v) == 3 {
		meta.position = v[2]
	} else if v := floats(ds, tag.SliceLocation); len(v) > 0 {
		meta.position = v[0]
	}
	if v := floats(ds, tag.ImageOrientationPatient); len(v) == 6 {
		meta.orientation = orientation(v)
	}
	if v := floats(ds, tag.RescaleSlope); len(v) > 0 && v[0] != 0 {
		meta.slope = v[0]
	}
	if v := floats(ds, tag.RescaleIntercept); len(v) > 0 {
		meta.intercept = v[0]
	}
	if v := strs(ds, tag.SeriesDescription); len(v) > 0 {
		meta.description = strings.TrimSpace(v[0])
	}
	if v := strs(ds, tag.InstanceNumber); len(v) > 0 {
		if n, err := strconv.Atoi(strings.TrimSpace(v[0])); err == nil {
			meta.instance = n
		}
	}
	return meta, nil
}

// orientation names the acquisition plane from the direction cosines of rows and columns
func orientation(iop []float64) string {
	nx := iop[1]*iop[5] - iop[2]*iop[4]
	ny := iop[2]*iop[3] - iop[0]*iop[5]
	nz := iop[0]*iop[4] - iop[1]*iop[3]
	ax, ay, az := math.Abs(nx), math.Abs(ny), math.Abs(nz)
	switch {
	case az >= ax && az >= ay:
		return "axial"
	case ax >= ay:
		return "sagittal"
	default:
		return "coronal"
	}
}

func strs(ds dicom.Dataset, t tag.Tag) []string {
	el, err := ds.FindElementByTag(t)
	if err != nil || el.Value == nil {
		return nil
	}
	v, _ := el.Value.GetValue().([]string)
	return v
}

func floats(ds dicom.Dataset, t tag.Tag) []float64 {
	var out []float64
	for _, s := range strs(ds, t) {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil
		}
		out = append(out, f)
	}
	return out
}
