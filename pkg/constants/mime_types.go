package constants

// ImageMimeTypes maps the image extensions this bridge accepts to their
// MIME types. The messaging surface only ever hands us images; other
// media classes are dropped at the source.
var ImageMimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".jfif": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// ContentTypeToExtension maps data-URL content types to file extensions.
var ContentTypeToExtension = map[string]string{
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// ImageSignatures maps leading byte signatures to extensions, used to
// sniff blob exports that arrive without a content type. WebP needs a
// two-part check (RIFF container plus WEBP tag) and is handled in code.
var ImageSignatures = map[string]string{
	"\xff\xd8\xff":      "jpg",
	"\x89PNG\r\n\x1a\n": "png",
	"GIF87a":            "gif",
	"GIF89a":            "gif",
}

// DefaultImageExtension is used when a blob export carries no usable
// content type and no recognizable signature.
const DefaultImageExtension = "jpg"
