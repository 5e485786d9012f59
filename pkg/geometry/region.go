package geometry

import (
	"fmt"

	"phantomqa/internal/models"
)

// ExtractRegion copies a rectangular window of the slice into a new row-major buffer
func ExtractRegion(img models.SliceImage, startX, startY, sizeX, sizeY int) ([]float64, error) {
	if sizeX <= 0 || sizeY <= 0 {
		return nil, fmt.Errorf("region size must be positive, got %dx%d", sizeX, sizeY)
	}
	if startX < 0 || startY < 0 || startX+sizeX > img.Width || startY+sizeY > img.Height {
		return nil, fmt.Errorf("region (%d,%d)+%dx%d exceeds %dx%d slice: %w",
			startX, startY, sizeX, sizeY, img.Width, img.Height, models.ErrOutOfBounds)
	}

	region := make([]float64, sizeX*sizeY)
	for y := 0; y < sizeY; y++ {
		src := (startY+y)*img.Width + startX
		copy(region[y*sizeX:(y+1)*sizeX], img.Pixels[src:src+sizeX])
	}
	return region, nil
}

// SubImage returns the window as a standalone slice image with the same spacing and index.
// Coordinates in the result are relative to (startX, startY).
func SubImage(img models.SliceImage, startX, startY, sizeX, sizeY int) (models.SliceImage, error) {
	px, err := ExtractRegion(img, startX, startY, sizeX, sizeY)
	if err != nil {
		return models.SliceImage{}, err
	}
	sub := img
	sub.Pixels = px
	sub.Width = sizeX
	sub.Height = sizeY
	return sub, nil
}
