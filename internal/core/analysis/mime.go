package analysis

import (
	"encoding/base64"
	"net/http"
	"path/filepath"
	"strings"
)

const MIMEDicom = "application/dicom"

var extensionMIME = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".dcm":  MIMEDicom,
}

var mimeExtension = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
	"image/bmp":  ".bmp",
	"image/tiff": ".tiff",
	MIMEDicom:    ".dcm",
}

// DetectMIME picks a MIME type: the explicit type when it names an image,
// then the file extension, then byte sniffing.
func DetectMIME(filename, explicit string, head []byte) string {
	if exp := normalizeMIME(explicit); IsImageMIME(exp) {
		return exp
	}
	if byExt, ok := extensionMIME[strings.ToLower(filepath.Ext(filename))]; ok {
		return byExt
	}
	if len(head) > 0 {
		return normalizeMIME(http.DetectContentType(head))
	}
	return "application/octet-stream"
}

// IsImageMIME reports whether the type is accepted for analysis.
func IsImageMIME(mime string) bool {
	mime = normalizeMIME(mime)
	return strings.HasPrefix(mime, "image/") || mime == MIMEDicom
}

// ExtensionFor returns the storage extension for a MIME type.
func ExtensionFor(mime string) string {
	if ext, ok := mimeExtension[normalizeMIME(mime)]; ok {
		return ext
	}
	return ".bin"
}

func DataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func normalizeMIME(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if mime == "image/jpg" {
		return "image/jpeg"
	}
	return mime
}
