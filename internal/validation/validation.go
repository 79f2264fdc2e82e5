// Package validation provides input validation and sanitization functions
// to prevent common security vulnerabilities like path traversal, injection attacks,
// and resource exhaustion.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"
)

// Security limits to prevent resource exhaustion.
const (
	// MaxDocumentSize is the maximum allowed document size (256 MB).
	MaxDocumentSize = 256 << 20
	// MaxFilenameLength is the maximum allowed filename length.
	MaxFilenameLength = 255
	// MaxPathLength is the maximum allowed path length.
	MaxPathLength = 4096
	// MaxAnchorNameLength is the longest anchor name a host accepts (Word limit: 40).
	MaxAnchorNameLength = 40
)

// Common validation errors.
var (
	ErrPathTraversal    = errors.New("path traversal detected")
	ErrInvalidFilename  = errors.New("invalid filename")
	ErrPathTooLong      = errors.New("path too long")
	ErrFilenameTooLong  = errors.New("filename too long")
	ErrInvalidCharacter = errors.New("invalid character in path")
	ErrEmptyPath        = errors.New("path cannot be empty")
	ErrInvalidAnchor    = errors.New("invalid anchor name")
)

// ValidatePath performs comprehensive path validation without requiring a base directory.
// It checks for dangerous patterns, length limits, and invalid characters.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}

	// Check length
	if len(path) > MaxPathLength {
		return ErrPathTooLong
	}

	// Check for null bytes
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("%w: null byte not allowed", ErrInvalidCharacter)
	}

	// Check for control characters
	for _, r := range path {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidCharacter)
		}
	}

	return nil
}

// ValidateFilename checks if a filename is safe and does not contain malicious characters.
// It rejects filenames with path separators, control characters, and dangerous patterns.
func ValidateFilename(filename string) error {
	if filename == "" {
		return ErrInvalidFilename
	}

	// Check length
	if len(filename) > MaxFilenameLength {
		return ErrFilenameTooLong
	}

	// Reject dangerous filenames
	if filename == "." || filename == ".." {
		return fmt.Errorf("%w: reserved name", ErrInvalidFilename)
	}

	// Check for path separators
	if strings.ContainsAny(filename, "/\\") {
		return fmt.Errorf("%w: path separator not allowed", ErrInvalidFilename)
	}

	// Check for null bytes (common injection attack)
	if strings.Contains(filename, "\x00") {
		return fmt.Errorf("%w: null byte not allowed", ErrInvalidFilename)
	}

	// Check for control characters
	for _, r := range filename {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidFilename)
		}
	}

	// Reject filenames starting with hyphen (can be confused with command flags)
	if strings.HasPrefix(filename, "-") {
		return fmt.Errorf("%w: filename cannot start with hyphen", ErrInvalidFilename)
	}

	return nil
}

// ValidateAnchorName checks an anchor (bookmark) name against host naming rules:
// letters, digits and underscores only, starting with a letter or underscore.
func ValidateAnchorName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidAnchor)
	}
	if len(name) > MaxAnchorNameLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidAnchor, MaxAnchorNameLength)
	}
	for i, r := range name {
		switch {
		case r == '_':
		case unicode.IsLetter(r):
		case unicode.IsDigit(r):
			if i == 0 {
				return fmt.Errorf("%w: must not start with a digit", ErrInvalidAnchor)
			}
		default:
			return fmt.Errorf("%w: character %q not allowed", ErrInvalidAnchor, r)
		}
	}
	return nil
}

// FileType represents a validated file type.
type FileType string

const (
	// FileTypeDocx is an Office Open XML word-processing package (ZIP container).
	FileTypeDocx FileType = "docx"
	// FileTypeZip is a plain ZIP archive.
	FileTypeZip FileType = "zip"
	// FileTypeSQLite is a SQLite database (metadata cache store).
	FileTypeSQLite FileType = "sqlite"
	// FileTypeJSON is a JSON document (reports, allow-lists).
	FileTypeJSON FileType = "json"
	// FileTypeText is plain text.
	FileTypeText FileType = "text"
	// FileTypeUnknown is anything else.
	FileTypeUnknown FileType = "unknown"
)

// magicBytes defines magic byte signatures for file type detection.
var magicBytes = []struct {
	fileType FileType
	magic    []byte
	offset   int
}{
	{FileTypeZip, []byte{0x50, 0x4b, 0x03, 0x04}, 0},
	{FileTypeSQLite, []byte("SQLite format 3"), 0},
}

// ValidateFileType validates that a file's content matches its claimed type based on
// filename extension. It reads the file's magic bytes to verify the actual file type.
// Returns the detected file type or an error if the file type doesn't match expectations.
func ValidateFileType(reader io.Reader, filename string) (FileType, error) {
	// Read the header; 512 bytes is more than any signature needs
	buf := make([]byte, 512)
	n, err := io.ReadFull(reader, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FileTypeUnknown, fmt.Errorf("failed to read file header: %w", err)
	}
	buf = buf[:n]

	detectedType := detectFileTypeFromMagic(buf)
	expectedType := detectFileTypeFromExtension(filename)

	// A .docx is a ZIP container; the content signature is the ZIP one.
	if expectedType == FileTypeDocx {
		if detectedType == FileTypeZip {
			return FileTypeDocx, nil
		}
		return FileTypeUnknown, fmt.Errorf("not a word-processing package: %s has no ZIP signature", filename)
	}

	// Exact match is always valid
	if detectedType == expectedType {
		return detectedType, nil
	}

	// Allow JSON/text files (harder to distinguish by magic bytes)
	if detectedType == FileTypeUnknown && (expectedType == FileTypeJSON || expectedType == FileTypeText) {
		if isLikelyText(buf) {
			return expectedType, nil
		}
	}

	// Type mismatch
	if detectedType != FileTypeUnknown && expectedType != FileTypeUnknown {
		return FileTypeUnknown, fmt.Errorf("file type mismatch: extension suggests %s but content is %s", expectedType, detectedType)
	}

	// If we couldn't detect the type, return the expected type
	if detectedType == FileTypeUnknown {
		return expectedType, nil
	}

	return detectedType, nil
}

// detectFileTypeFromMagic detects file type from magic bytes.
func detectFileTypeFromMagic(buf []byte) FileType {
	for _, sig := range magicBytes {
		if sig.offset+len(sig.magic) <= len(buf) {
			if bytes.Equal(buf[sig.offset:sig.offset+len(sig.magic)], sig.magic) {
				return sig.fileType
			}
		}
	}
	return FileTypeUnknown
}

// detectFileTypeFromExtension determines expected file type from filename extension.
func detectFileTypeFromExtension(filename string) FileType {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".docx":
		return FileTypeDocx
	case ".zip":
		return FileTypeZip
	case ".sqlite", ".db", ".sqlite3":
		return FileTypeSQLite
	case ".json":
		return FileTypeJSON
	case ".txt", ".md":
		return FileTypeText
	default:
		return FileTypeUnknown
	}
}

// isLikelyText checks if the buffer contains likely text content.
// Returns true if the buffer appears to be text (UTF-8, ASCII).
func isLikelyText(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}

	// Check for null bytes (strong indicator of binary content)
	if bytes.IndexByte(buf, 0) != -1 {
		return false
	}

	// Count printable characters vs control characters
	printable := 0
	control := 0
	for _, b := range buf {
		if b >= 0x20 && b <= 0x7e || b == '\t' || b == '\n' || b == '\r' {
			printable++
		} else if b < 0x20 && b != '\t' && b != '\n' && b != '\r' {
			control++
		}
		// UTF-8 continuation bytes (0x80-0xBF) and start bytes (0xC0-0xFD) are neutral
	}

	// If more than 95% is printable, consider it text
	if printable > 0 && float64(printable)/float64(printable+control) > 0.95 {
		return true
	}

	return false
}
