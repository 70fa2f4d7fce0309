package constants

// Default timeout values used by client packages
const (
	DefaultHTTPTimeoutSec     = 30
	DefaultBrowserActionSec   = 30
	DefaultBrowserNavigateSec = 45
	DefaultClipboardSettleMs  = 200
	DefaultSubmitSettleMs     = 500
)

// File size constants used by media packages
const (
	BytesPerKilobyte       = 1024
	BytesPerMegabyte       = 1024 * 1024
	DefaultMaxUploadSizeMB = 20
)

// Image compression parameters
const (
	CompressStartQuality = 85
	CompressMinQuality   = 30
	CompressQualityStep  = 5
	CompressResizeFactor = 0.9
	CompressMinDimension = 64
)

// Validation and security constants used by packages
const (
	MaxSelectorLength  = 512
	MaxResponseBytes   = 1 << 20
	MaxHistoryMessages = 50
	MaxPromptChars     = 12000
	MessageWindowSize  = 25
)

// File permission constants
const (
	DefaultFilePermissions      = 0600
	DefaultDirectoryPermissions = 0750
)

// Media file type constants
var (
	DefaultImageTypes = []string{"jpg", "jpeg", "png", "gif", "webp"}
)
