package constants

import "strings"

// Formats for the file_type column on attachments.
const (
	PDF   = "PDF"
	IMAGE = "IMAGE"
	OTHER = "OTHER"
)

// AllowedExtensions holds the attachment extensions worth downloading and parsing.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat maps a file extension to its coarse format.
func MapExtToFormat(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	case "jpg", "jpeg", "png":
		return IMAGE
	default:
		return OTHER
	}
}
