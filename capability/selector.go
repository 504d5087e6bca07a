package capability

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"manualqa/internal"
)

// fileAccess implements the read side of internal.FileSelector for local
// paths and file:// URIs. Both selector variants embed it.
type fileAccess struct{}

func (fileAccess) ReadAsBase64(uri string) (string, error) {
	data, err := os.ReadFile(pathFromURI(uri))
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func (fileAccess) ReadAsText(uri string) (string, error) {
	data, err := os.ReadFile(pathFromURI(uri))
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	if !utf8.Valid(data) {
		return "", internal.NewConstraintError("text", "This file isn't readable as text.", uri+" is not valid UTF-8")
	}
	return string(data), nil
}

func (fileAccess) Exists(uri string) bool {
	info, err := os.Stat(pathFromURI(uri))
	return err == nil && info.Mode().IsRegular()
}

func (fileAccess) Info(uri string) (*internal.FileInfo, error) {
	path := pathFromURI(uri)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	return &internal.FileInfo{
		SizeBytes:    info.Size(),
		LastModified: info.ModTime(),
		MIMEType:     detectMIME(path),
	}, nil
}

// describeFile builds a FileSelection for path and checks it against
// constraints. Violations are classified validation errors.
func describeFile(path string, constraints internal.FileConstraints) (*internal.FileSelection, error) {
	abs, err := filepath.Abs(pathFromURI(path))
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		return nil, internal.NewConstraintError("exists", fmt.Sprintf("File not found: %s", abs), abs+" does not exist")
	}
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, internal.NewConstraintError("regularFile", fmt.Sprintf("%s is not a regular file.", abs), abs+" is not a regular file")
	}

	selection := &internal.FileSelection{
		URI:          abs,
		Name:         filepath.Base(abs),
		SizeBytes:    info.Size(),
		MIMEType:     detectMIME(abs),
		LastModified: info.ModTime(),
	}
	if err := checkConstraints(selection, constraints); err != nil {
		return nil, err
	}
	return selection, nil
}

func checkConstraints(sel *internal.FileSelection, c internal.FileConstraints) error {
	if c.MaxSizeBytes > 0 && sel.SizeBytes > c.MaxSizeBytes {
		return internal.NewConstraintError("maxSizeBytes",
			fmt.Sprintf("%s is too large (%s, limit %s).", sel.Name, internal.FormatBytes(sel.SizeBytes), internal.FormatBytes(c.MaxSizeBytes)),
			fmt.Sprintf("%d bytes > %d", sel.SizeBytes, c.MaxSizeBytes))
	}

	if len(c.AllowedExtensions) > 0 {
		ext := strings.ToLower(filepath.Ext(sel.Name))
		if !extensionAllowed(ext, c.AllowedExtensions) {
			return internal.NewConstraintError("allowedExtensions",
				fmt.Sprintf("%s files aren't supported. Allowed: %s.", displayExt(ext), strings.Join(c.AllowedExtensions, ", ")),
				fmt.Sprintf("extension %q not in %v", ext, c.AllowedExtensions))
		}
	}

	if len(c.AllowedMIMETypes) > 0 && !mimeAllowed(sel.MIMEType, c.AllowedMIMETypes) {
		return internal.NewConstraintError("allowedMimeTypes",
			fmt.Sprintf("This file type (%s) isn't supported. Allowed: %s.", sel.MIMEType, strings.Join(c.AllowedMIMETypes, ", ")),
			fmt.Sprintf("mime %q not in %v", sel.MIMEType, c.AllowedMIMETypes))
	}
	return nil
}

func extensionAllowed(ext string, allowed []string) bool {
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if !strings.HasPrefix(a, ".") {
			a = "." + a
		}
		if a == ext {
			return true
		}
	}
	return false
}

func mimeAllowed(mimeType string, allowed []string) bool {
	base, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		base = strings.ToLower(mimeType)
	}
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == base || a == "*/*" {
			return true
		}
		if prefix, ok := strings.CutSuffix(a, "/*"); ok && strings.HasPrefix(base, prefix+"/") {
			return true
		}
	}
	return false
}

func displayExt(ext string) string {
	if ext == "" {
		return "Extensionless"
	}
	return ext
}

// detectMIME uses the extension first and falls back to sniffing content
func detectMIME(path string) string {
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); byExt != "" {
		return byExt
	}

	f, err := os.Open(path)
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	return http.DetectContentType(buf[:n])
}

// pathFromURI accepts plain paths and file:// URIs
func pathFromURI(uri string) string {
	if !strings.HasPrefix(uri, "file://") {
		return uri
	}
	u, err := url.Parse(uri)
	if err != nil {
		return strings.TrimPrefix(uri, "file://")
	}
	return filepath.FromSlash(u.Path)
}
