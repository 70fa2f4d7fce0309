package media

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chatbridge/internal/security"
	"chatbridge/pkg/constants"

	"github.com/sirupsen/logrus"
)

// Store materializes inbound images as temp files under a managed
// directory and prunes them by age. Files are created with owner-only
// permissions; message content never touches a world-readable path.
type Store interface {
	SaveFromDataURL(dataURL string) (string, error)
	SaveImage(data []byte, ext string) (string, error)
	Remove(path string) error
	CleanupOldFiles(maxAgeSec int64) (int, error)
}

type store struct {
	dir    string
	logger *logrus.Logger
}

func NewStore(dir string, logger *logrus.Logger) (Store, error) {
	if err := os.MkdirAll(dir, constants.DefaultDirectoryPermissions); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}

	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	return &store{
		dir:    dir,
		logger: logger,
	}, nil
}

// SaveFromDataURL decodes a base64 data URL exported from the page and
// writes it to a temp file. Only image payloads are accepted.
func (s *store) SaveFromDataURL(dataURL string) (string, error) {
	if !strings.HasPrefix(dataURL, "data:image") {
		return "", fmt.Errorf("not an image data URL")
	}

	idx := strings.Index(dataURL, ",")
	if idx < 0 {
		return "", fmt.Errorf("malformed data URL: missing payload separator")
	}

	data, err := base64.StdEncoding.DecodeString(dataURL[idx+1:])
	if err != nil {
		return "", fmt.Errorf("failed to decode data URL payload: %w", err)
	}

	ext := extensionFromContentType(dataURL[:idx])
	if ext == "" {
		ext = sniffImageExtension(data)
	}

	return s.SaveImage(data, ext)
}

// SaveImage writes raw image bytes to a new temp file under the media
// directory. The extension must be on the accepted image list and the
// payload must fit the upload ceiling.
func (s *store) SaveImage(data []byte, ext string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty image data")
	}
	if len(data) > constants.DefaultMaxUploadSizeMB*constants.BytesPerMegabyte {
		return "", fmt.Errorf("image is %d bytes, above the %dMB limit", len(data), constants.DefaultMaxUploadSizeMB)
	}

	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if !isAllowedImageType(ext) {
		return "", fmt.Errorf("image type .%s is not allowed", ext)
	}

	f, err := os.CreateTemp(s.dir, "inbound_*."+ext)
	if err != nil {
		return "", fmt.Errorf("failed to create media file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write media file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close media file: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"path": f.Name(),
		"size": len(data),
	}).Debug("Saved inbound image")

	return f.Name(), nil
}

// Remove deletes a materialized file. The path must resolve to a file
// directly inside the media directory; anything else is rejected.
// Removing a file that is already gone is not an error.
func (s *store) Remove(path string) error {
	full, err := security.SafeJoin(s.dir, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("invalid media file name: %w", err)
	}
	if filepath.Clean(path) != full {
		return fmt.Errorf("path is outside the media directory: %s", path)
	}

	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove media file: %w", err)
	}
	return nil
}

// CleanupOldFiles removes files older than maxAgeSec and reports how
// many were deleted. Files removed concurrently by another path are
// skipped, not treated as failures.
func (s *store) CleanupOldFiles(maxAgeSec int64) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read media directory: %w", err)
	}

	now := time.Now()
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, fmt.Errorf("failed to get file info: %w", err)
		}

		age := now.Sub(info.ModTime())
		if age.Seconds() > float64(maxAgeSec) {
			path := filepath.Join(s.dir, entry.Name())
			if err := os.Remove(path); err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return removed, fmt.Errorf("failed to remove old file: %w", err)
			}
			removed++
		}
	}

	if removed > 0 {
		s.logger.WithFields(logrus.Fields{
			"removed": removed,
			"dir":     s.dir,
		}).Info("Cleaned up old media files")
	}

	return removed, nil
}

func extensionFromContentType(meta string) string {
	contentType := strings.TrimPrefix(meta, "data:")
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	return constants.ContentTypeToExtension[strings.ToLower(strings.TrimSpace(contentType))]
}

func sniffImageExtension(data []byte) string {
	if len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP" {
		return "webp"
	}
	for signature, ext := range constants.ImageSignatures {
		if len(data) >= len(signature) && string(data[:len(signature)]) == signature {
			return ext
		}
	}
	return constants.DefaultImageExtension
}

func isAllowedImageType(ext string) bool {
	for _, allowed := range constants.DefaultImageTypes {
		if ext == allowed {
			return true
		}
	}
	return false
}
