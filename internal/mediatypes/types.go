package mediatypes

import "sort"

// FileType represents the category of a cataloged file.
type FileType string

const (
	// FileTypeImage represents an image file.
	FileTypeImage FileType = "image"
	// FileTypeVideo represents a video file.
	FileTypeVideo FileType = "video"
	// FileTypeAudio represents an audio file.
	FileTypeAudio FileType = "audio"
	// FileTypeDocument represents a document file.
	FileTypeDocument FileType = "document"
	// FileTypeOther represents an unknown or unsupported file type.
	FileTypeOther FileType = "other"
)

// ImageExtensions maps file extensions to whether they are cataloged as images.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tiff": true,
	".webp": true,
}

// VideoExtensions maps file extensions to whether they are cataloged as videos.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".flv":  true,
	".wmv":  true,
	".webm": true,
}

// AudioExtensions maps file extensions to whether they are cataloged as audio.
var AudioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".aac":  true,
	".ogg":  true,
	".m4a":  true,
}

// DocumentExtensions maps file extensions to whether they are cataloged as documents.
var DocumentExtensions = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".xls":  true,
	".xlsx": true,
	".ppt":  true,
	".pptx": true,
}

// GetFileType returns the FileType for a given file extension.
// The extension should be lowercase and include the leading dot (e.g., ".jpg").
// Returns FileTypeOther if the extension is not recognized.
func GetFileType(ext string) FileType {
	switch {
	case ImageExtensions[ext]:
		return FileTypeImage
	case VideoExtensions[ext]:
		return FileTypeVideo
	case AudioExtensions[ext]:
		return FileTypeAudio
	case DocumentExtensions[ext]:
		return FileTypeDocument
	default:
		return FileTypeOther
	}
}

// IsMediaFile returns true if the extension represents a cataloged file type.
func IsMediaFile(ext string) bool {
	return GetFileType(ext) != FileTypeOther
}

// AllExtensions returns every cataloged extension, sorted.
func AllExtensions() []string {
	var exts []string
	for _, set := range []map[string]bool{
		ImageExtensions, VideoExtensions, AudioExtensions, DocumentExtensions,
	} {
		for ext := range set {
			exts = append(exts, ext)
		}
	}
	sort.Strings(exts)
	return exts
}
