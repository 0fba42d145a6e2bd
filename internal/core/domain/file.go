package domain

import (
	"io"
	"path/filepath"
	"strings"
)

// FileSource is an open-able reference to the bytes of one uploaded file.
type FileSource interface {
	Name() string
	Size() int64
	ContentType() string
	Open() (io.ReadCloser, error)
}

// Releaser is implemented by file sources backed by a temporary copy that
// should be deleted once the item no longer needs it.
type Releaser interface {
	Release() error
}

// ReleaseFile deletes the temporary copy behind f, if it has one.
func ReleaseFile(f FileSource) error {
	r, ok := f.(Releaser)
	if !ok {
		return nil
	}
	return r.Release()
}

// FileKind is the coarse family a file belongs to before any parsing.
type FileKind string

const (
	KindUnknown     FileKind = ""
	KindDelimited   FileKind = "delimited"
	KindSpreadsheet FileKind = "spreadsheet"
	KindXML         FileKind = "xml"
	KindPDF         FileKind = "pdf"
	KindImage       FileKind = "image"
)

var kindByExt = map[string]FileKind{
	".csv":  KindDelimited,
	".tsv":  KindDelimited,
	".txt":  KindDelimited,
	".xlsx": KindSpreadsheet,
	".xlsm": KindSpreadsheet,
	".xltx": KindSpreadsheet,
	".xml":  KindXML,
	".pdf":  KindPDF,
	".png":  KindImage,
	".jpg":  KindImage,
	".jpeg": KindImage,
	".tif":  KindImage,
	".tiff": KindImage,
	".webp": KindImage,
	".heic": KindImage,
}

func kindForMIME(mime string) FileKind {
	switch {
	case mime == "text/csv", mime == "text/tab-separated-values":
		return KindDelimited
	case mime == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		mime == "application/vnd.ms-excel.sheet.macroenabled.12":
		return KindSpreadsheet
	case mime == "application/xml", mime == "text/xml":
		return KindXML
	case mime == "application/pdf":
		return KindPDF
	case strings.HasPrefix(mime, "image/"):
		return KindImage
	default:
		return KindUnknown
	}
}

// DetectKind resolves the file family from the extension first and the declared
// content type second.
func DetectKind(name, declaredType string) FileKind {
	if kind, ok := kindByExt[strings.ToLower(filepath.Ext(name))]; ok {
		return kind
	}
	mime := strings.ToLower(strings.TrimSpace(declaredType))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	return kindForMIME(mime)
}
