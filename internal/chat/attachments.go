package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/suPer8Hu/legalwise/internal/linkyun"
)

// MaxFileSize is the per-file upload ceiling.
const MaxFileSize int64 = 20 * 1024 * 1024

var (
	// ErrUnsupportedFile is returned for files that are neither an image nor a document.
	ErrUnsupportedFile = errors.New("不支持的文件类型，请上传图片（jpg/png/gif/webp）或文档（pdf/doc/docx/txt/md）")

	imageMIME = map[string]bool{
		"image/jpeg": true,
		"image/jpg":  true,
		"image/png":  true,
		"image/gif":  true,
		"image/webp": true,
	}
	docMIME = map[string]bool{
		"application/pdf":    true,
		"application/msword": true,
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
		"text/plain":    true,
		"text/markdown": true,
	}
	imageExt = regexp.MustCompile(`(?i)\.(jpe?g|png|gif|webp)$`)
	docExt   = regexp.MustCompile(`(?i)\.(pdf|docx?|txt|md)$`)
)

const (
	msgNotImage    = "请上传图片（jpg/png/gif/webp）"
	msgNotDocument = "请上传文档（pdf/doc/docx/txt/md）"
)

func baseMIME(m string) string {
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return strings.ToLower(strings.TrimSpace(m))
}

// IsImage reports an allowed image by MIME type or file extension.
func IsImage(name, mimeType string) bool {
	return imageMIME[baseMIME(mimeType)] || imageExt.MatchString(name)
}

// IsDocument reports an allowed document by MIME type or file extension.
func IsDocument(name, mimeType string) bool {
	return docMIME[baseMIME(mimeType)] || docExt.MatchString(name)
}

// Picker is how a file was chosen: through the image button, the document
// button, or by path with no declared intent.
type Picker string

const (
	PickAuto     Picker = ""
	PickImage    Picker = "image"
	PickDocument Picker = "document"
)

// Opener returns the file content for upload.
type Opener func() (io.ReadCloser, error)

// PendingFile is a selected file awaiting upload. A non-empty Error excludes it
// from sending; it stays listed so the user can see why.
type PendingFile struct {
	Name     string
	MimeType string
	Size     int64
	Type     AttachmentType
	Token    string
	Error    string
	// PreviewURL is a client-side preview (a local path for images).
	PreviewURL string

	open Opener
}

func (p PendingFile) Valid() bool { return p.Error == "" }

// Validator applies the size ceiling and the type allow-lists.
type Validator struct {
	MaxBytes int64
}

var DefaultValidator = Validator{MaxBytes: MaxFileSize}

func (v Validator) maxBytes() int64 {
	if v.MaxBytes <= 0 {
		return MaxFileSize
	}
	return v.MaxBytes
}

// Pending classifies and validates a file. ErrUnsupportedFile means the file
// is skipped entirely; validation failures are reported through PendingFile.Error.
func (v Validator) Pending(name string, size int64, mimeType string, picker Picker, open Opener) (PendingFile, error) {
	isImage := picker == PickImage || IsImage(name, mimeType)
	isDoc := picker == PickDocument || IsDocument(name, mimeType)
	if !isImage && !isDoc {
		return PendingFile{}, fmt.Errorf("%s: %w", name, ErrUnsupportedFile)
	}

	pf := PendingFile{Name: name, MimeType: mimeType, Size: size, Type: AttachmentFile, open: open}
	if isImage {
		pf.Type = AttachmentImage
	}
	pf.Error = v.check(pf)
	return pf, nil
}

func (v Validator) check(pf PendingFile) string {
	if pf.Size > v.maxBytes() {
		return fmt.Sprintf("文件大小不能超过 %dMB", v.maxBytes()/(1024*1024))
	}
	if pf.Type == AttachmentImage {
		if !IsImage(pf.Name, pf.MimeType) {
			return msgNotImage
		}
		return ""
	}
	if !IsDocument(pf.Name, pf.MimeType) {
		return msgNotDocument
	}
	return ""
}

// FromPath stats and sniffs a local file.
func (v Validator) FromPath(path string, picker Picker) (PendingFile, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return PendingFile{}, err
	}
	if fi.IsDir() {
		return PendingFile{}, fmt.Errorf("%s is a directory", path)
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return PendingFile{}, fmt.Errorf("detect type of %s: %w", path, err)
	}
	pf, err := v.Pending(filepath.Base(path), fi.Size(), mt.String(), picker, func() (io.ReadCloser, error) {
		return os.Open(path)
	})
	if err != nil {
		return PendingFile{}, err
	}
	if pf.Type == AttachmentImage {
		pf.PreviewURL = path
	}
	return pf, nil
}

// FromBytes wraps in-memory content. An empty mimeType is sniffed.
func (v Validator) FromBytes(name string, data []byte, mimeType string, picker Picker) (PendingFile, error) {
	if mimeType == "" {
		mimeType = mimetype.Detect(data).String()
	}
	return v.Pending(name, int64(len(data)), mimeType, picker, func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	})
}

func NewPendingFile(name string, size int64, mimeType string, picker Picker, open Opener) (PendingFile, error) {
	return DefaultValidator.Pending(name, size, mimeType, picker, open)
}

func PendingFileFromPath(path string, picker Picker) (PendingFile, error) {
	return DefaultValidator.FromPath(path, picker)
}

func PendingFileFromBytes(name string, data []byte, mimeType string, picker Picker) (PendingFile, error) {
	return DefaultValidator.FromBytes(name, data, mimeType, picker)
}

// UploadedFile refers to a file uploaded earlier; its token is reused, nothing is re-sent.
func UploadedFile(a Attachment) PendingFile {
	return PendingFile{
		Name:     a.Name,
		MimeType: a.MimeType,
		Size:     a.Size,
		Type:     a.Type,
		Token:    a.Token,
	}
}

// Tray holds the files selected for the next message.
type Tray struct {
	mu    sync.Mutex
	files []PendingFile
}

func (t *Tray) Add(files ...PendingFile) {
	t.mu.Lock()
	t.files = append(t.files, files...)
	t.mu.Unlock()
}

// Remove drops the file at index i.
func (t *Tray) Remove(i int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i < 0 || i >= len(t.files) {
		return false
	}
	t.files = append(t.files[:i:i], t.files[i+1:]...)
	return true
}

// MarkUploaded stores the tokens of attachments uploaded by a failed send on
// the matching untokened files, so the next send does not upload them again.
func (t *Tray) MarkUploaded(atts []Attachment) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, a := range atts {
		for i := range t.files {
			f := &t.files[i]
			if f.Token == "" && f.Valid() && f.Name == a.Name && f.Size == a.Size {
				f.Token = a.Token
				break
			}
		}
	}
}

func (t *Tray) Clear() {
	t.mu.Lock()
	t.files = nil
	t.mu.Unlock()
}

func (t *Tray) Files() []PendingFile {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]PendingFile(nil), t.files...)
}

func (t *Tray) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.files)
}

// Uploader is the part of the backend the resolver needs.
type Uploader interface {
	UploadImage(ctx context.Context, name, mimeType string, r io.Reader) (*linkyun.Upload, error)
	UploadDocument(ctx context.Context, name, mimeType string, r io.Reader) (*linkyun.Upload, error)
	FileDownloadURL(token string) string
}

// UploadError aborts a send: nothing is appended when any upload fails.
// Uploaded holds the attachments resolved before the failure so a retry can reuse their tokens.
type UploadError struct {
	Name     string
	Err      error
	Uploaded []Attachment
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("上传「%s」失败：%v", e.Name, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Resolver turns pending files into uploaded attachments.
type Resolver struct {
	up Uploader
}

func NewResolver(up Uploader) *Resolver {
	return &Resolver{up: up}
}

// Resolve uploads every valid file in order, reusing existing tokens. Flagged
// files are skipped. The first failure aborts with an *UploadError.
func (r *Resolver) Resolve(ctx context.Context, files []PendingFile) ([]Attachment, error) {
	out := make([]Attachment, 0, len(files))
	for _, p := range files {
		if !p.Valid() {
			continue
		}
		if p.Token != "" {
			out = append(out, Attachment{
				Type:     p.Type,
				Token:    p.Token,
				MimeType: p.MimeType,
				Name:     p.Name,
				Size:     p.Size,
			})
			continue
		}
		a, err := r.upload(ctx, p)
		if err != nil {
			return nil, &UploadError{Name: p.Name, Err: err, Uploaded: out}
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *Resolver) upload(ctx context.Context, p PendingFile) (Attachment, error) {
	if p.open == nil {
		return Attachment{}, errors.New("file content unavailable")
	}

	var typ AttachmentType
	var upload func(context.Context, string, string, io.Reader) (*linkyun.Upload, error)
	switch {
	case IsImage(p.Name, p.MimeType):
		typ, upload = AttachmentImage, r.up.UploadImage
	case IsDocument(p.Name, p.MimeType):
		typ, upload = AttachmentFile, r.up.UploadDocument
	default:
		return Attachment{}, ErrUnsupportedFile
	}

	rc, err := p.open()
	if err != nil {
		return Attachment{}, err
	}
	defer rc.Close()

	res, err := upload(ctx, p.Name, p.MimeType, rc)
	if err != nil {
		return Attachment{}, err
	}

	download := r.up.FileDownloadURL(res.Token)
	a := Attachment{
		Type:        typ,
		Token:       res.Token,
		MimeType:    p.MimeType,
		Name:        p.Name,
		Size:        p.Size,
		DownloadURL: res.DownloadURL,
	}
	if a.DownloadURL == "" {
		a.DownloadURL = download
	}
	if typ == AttachmentImage {
		a.PreviewURL = res.PreviewURL
		if a.PreviewURL == "" {
			a.PreviewURL = download + "?preview=1"
		}
	}
	return a, nil
}
