package capture

import "strings"

// FileType is the closed classification for uploaded binary assets. The
// processing dispatcher keys its handler table on this type, so adding a
// new kind of asset means adding a constant here and a handler there.
type FileType string

const (
	FileImage    FileType = "image"
	FileVideo    FileType = "video"
	FileAudio    FileType = "audio"
	FilePDF      FileType = "pdf"
	FileDocument FileType = "document"
)

var allFileTypes = []FileType{FileImage, FileVideo, FileAudio, FilePDF, FileDocument}

var fileTypeSet = func() map[FileType]struct{} {
	set := make(map[FileType]struct{}, len(allFileTypes))
	for _, t := range allFileTypes {
		set[t] = struct{}{}
	}
	return set
}()

// AllFileTypes returns the ordered list of known file types.
func AllFileTypes() []FileType {
	cp := make([]FileType, len(allFileTypes))
	copy(cp, allFileTypes)
	return cp
}

// ParseFileType converts a string into a known FileType.
func ParseFileType(value string) (FileType, bool) {
	normalized := FileType(strings.ToLower(strings.TrimSpace(value)))
	_, ok := fileTypeSet[normalized]
	return normalized, ok
}

// ClassifyMIME maps a MIME type onto the closed FileType set. Unknown types
// fall back to FileDocument so nothing is silently rejected at ingest; the
// dispatcher decides what each class actually supports.
func ClassifyMIME(mimeType string) FileType {
	normalized := strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.IndexByte(normalized, ';'); idx >= 0 {
		normalized = strings.TrimSpace(normalized[:idx])
	}
	switch {
	case strings.HasPrefix(normalized, "image/"):
		return FileImage
	case strings.HasPrefix(normalized, "video/"):
		return FileVideo
	case strings.HasPrefix(normalized, "audio/"):
		return FileAudio
	case normalized == "application/pdf":
		return FilePDF
	default:
		return FileDocument
	}
}
