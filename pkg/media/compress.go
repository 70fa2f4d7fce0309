package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"chatbridge/pkg/constants"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// CompressImage re-encodes an image so it fits within targetKB. Files
// already under the target are returned untouched. The original file is
// never modified; a shrunk copy is written next to it as JPEG.
//
// Quality is lowered first. If the floor quality still does not fit,
// the image is scaled down step by step until it fits or would become
// too small to be useful, and the best effort is returned.
func CompressImage(path string, targetKB int) (string, error) {
	if targetKB <= 0 {
		return path, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat image: %w", err)
	}

	targetBytes := int64(targetKB) * constants.BytesPerKilobyte
	if info.Size() <= targetBytes {
		return path, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	var buf bytes.Buffer
	for quality := constants.CompressStartQuality; quality >= constants.CompressMinQuality; quality -= constants.CompressQualityStep {
		buf.Reset()
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", fmt.Errorf("failed to encode image: %w", err)
		}
		if int64(buf.Len()) <= targetBytes {
			return writeCompressed(path, buf.Bytes())
		}
	}

	for {
		bounds := img.Bounds()
		newW := int(float64(bounds.Dx()) * constants.CompressResizeFactor)
		newH := int(float64(bounds.Dy()) * constants.CompressResizeFactor)
		if newW < constants.CompressMinDimension || newH < constants.CompressMinDimension {
			break
		}

		scaled := image.NewRGBA(image.Rect(0, 0, newW, newH))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, bounds, draw.Src, nil)
		img = scaled

		buf.Reset()
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: constants.CompressMinQuality}); err != nil {
			return "", fmt.Errorf("failed to encode image: %w", err)
		}
		if int64(buf.Len()) <= targetBytes {
			break
		}
	}

	return writeCompressed(path, buf.Bytes())
}

func writeCompressed(originalPath string, data []byte) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(originalPath), "compressed_*.jpg")
	if err != nil {
		return "", fmt.Errorf("failed to create compressed file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write compressed file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close compressed file: %w", err)
	}

	return f.Name(), nil
}
