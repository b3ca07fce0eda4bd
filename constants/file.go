package constants

import (
	"path"
	"strings"
)

// Object store layout.
const (
	PDFPrefix     = "data/ProviderBills/pdf/"
	ArchivePrefix = "data/ProviderBills/pdf/archive/"
	JSONPrefix    = "data/ProviderBills/json/"
)

// AllowedExtensions holds the extensions accepted by intake.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// PDFKey is the intake key for a single-page bill PDF.
func PDFKey(billID string) string {
	return PDFPrefix + billID + ".pdf"
}

// ArchiveKey is where a processed PDF is moved to.
func ArchiveKey(name string) string {
	return ArchivePrefix + path.Base(name)
}

// JSONKey is the extraction artifact key for a bill and pass.
func JSONKey(billID string, pass Pass) string {
	if pass == SecondPass {
		return JSONPrefix + billID + "_2nd_pass.json"
	}
	return JSONPrefix + billID + ".json"
}
