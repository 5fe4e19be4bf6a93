package chat

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_Pending(t *testing.T) {
	cases := []struct {
		name     string
		file     string
		size     int64
		mime     string
		picker   Picker
		wantType AttachmentType
		wantErr  string
	}{
		{"jpeg by mime", "photo", 1024, "image/jpeg", PickAuto, AttachmentImage, ""},
		{"webp by ext", "a.WEBP", 1024, "", PickAuto, AttachmentImage, ""},
		{"pdf", "起诉状.pdf", 1024, "application/pdf", PickAuto, AttachmentFile, ""},
		{"markdown", "notes.md", 10, "text/markdown", PickDocument, AttachmentFile, ""},
		{"too large", "big.png", 25 * 1024 * 1024, "image/png", PickImage, AttachmentImage, "文件大小不能超过 20MB"},
		{"exactly 20MB", "edge.png", 20 * 1024 * 1024, "image/png", PickImage, AttachmentImage, ""},
		{"bmp via image picker", "scan.bmp", 10, "application/octet-stream", PickImage, AttachmentImage, "请上传图片（jpg/png/gif/webp）"},
		{"exe via document picker", "setup.exe", 10, "application/x-msdownload", PickDocument, AttachmentFile, "请上传文档（pdf/doc/docx/txt/md）"},
		{"image through document picker", "a.png", 10, "image/png", PickDocument, AttachmentImage, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pf, err := DefaultValidator.Pending(tc.file, tc.size, tc.mime, tc.picker, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.wantType, pf.Type)
			assert.Equal(t, tc.wantErr, pf.Error)
			assert.Equal(t, tc.wantErr == "", pf.Valid())
		})
	}
}

func TestValidator_SkipsUnknownWithoutPicker(t *testing.T) {
	_, err := NewPendingFile("archive.zip", 10, "application/zip", PickAuto, nil)
	require.ErrorIs(t, err, ErrUnsupportedFile)
}

func TestValidator_CustomLimit(t *testing.T) {
	v := Validator{MaxBytes: 5 * 1024 * 1024}
	pf, err := v.Pending("a.png", 6*1024*1024, "image/png", PickImage, nil)
	require.NoError(t, err)
	assert.Equal(t, "文件大小不能超过 5MB", pf.Error)
}

func TestPendingFileFromPath_SniffsType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "evidence")
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}
	require.NoError(t, os.WriteFile(path, png, 0o600))

	pf, err := PendingFileFromPath(path, PickAuto)
	require.NoError(t, err)
	assert.Equal(t, "image/png", pf.MimeType)
	assert.Equal(t, AttachmentImage, pf.Type)
	assert.Equal(t, int64(len(png)), pf.Size)
	assert.Equal(t, path, pf.PreviewURL)
	assert.True(t, pf.Valid())

	_, err = PendingFileFromPath(dir, PickAuto)
	require.Error(t, err)
}

func TestTray(t *testing.T) {
	var tray Tray
	a, _ := PendingFileFromBytes("a.png", []byte("x"), "image/png", PickImage)
	b, _ := PendingFileFromBytes("b.txt", []byte("y"), "text/plain", PickDocument)
	c, _ := PendingFileFromBytes("c.pdf", []byte("z"), "application/pdf", PickDocument)
	tray.Add(a, b, c)
	require.Equal(t, 3, tray.Len())

	require.True(t, tray.Remove(1))
	assert.False(t, tray.Remove(5))
	files := tray.Files()
	require.Len(t, files, 2)
	assert.Equal(t, "a.png", files[0].Name)
	assert.Equal(t, "c.pdf", files[1].Name)

	// Files returns a copy
	files[0].Name = "mutated"
	assert.Equal(t, "a.png", tray.Files()[0].Name)

	tray.Clear()
	assert.Zero(t, tray.Len())
}

func TestResolver_ReusesTokensAndFillsURLs(t *testing.T) {
	f := newFakeBackend()
	r := NewResolver(f)

	img, _ := PendingFileFromBytes("a.png", []byte("x"), "image/png", PickImage)
	doc, _ := PendingFileFromBytes("b.pdf", []byte("y"), "application/pdf", PickDocument)
	prior := UploadedFile(Attachment{Type: AttachmentFile, Token: "tok-old", Name: "old.docx"})
	bad, _ := NewPendingFile("big.pdf", 30*1024*1024, "application/pdf", PickDocument, nil)

	atts, err := r.Resolve(context.Background(), []PendingFile{prior, img, bad, doc})
	require.NoError(t, err)
	require.Len(t, atts, 3)

	assert.Equal(t, "tok-old", atts[0].Token)
	assert.Equal(t, []string{"a.png", "b.pdf"}, f.uploads, "token holders are not re-uploaded")

	assert.Equal(t, AttachmentImage, atts[1].Type)
	assert.Equal(t, "https://linkyun.test/api/v1/files/tok-a.png/download", atts[1].DownloadURL)
	assert.Equal(t, "https://linkyun.test/api/v1/files/tok-a.png/download?preview=1", atts[1].PreviewURL)

	assert.Equal(t, AttachmentFile, atts[2].Type)
	assert.Equal(t, "https://linkyun.test/api/v1/files/tok-b.pdf/download", atts[2].DownloadURL)
	assert.Empty(t, atts[2].PreviewURL)
	assert.Equal(t, "application/pdf", atts[2].MimeType)
	assert.Equal(t, int64(1), atts[2].Size)
}

func TestValidator_FlagsImagesOutsideAllowList(t *testing.T) {
	cases := []struct{ file, mime string }{
		{"logo.svg", "image/svg+xml"},
		{"scan.bmp", "image/bmp"},
		{"photo.heic", "image/heic"},
		{"frame.tiff", "image/tiff"},
	}
	for _, tc := range cases {
		t.Run(tc.file, func(t *testing.T) {
			pf, err := PendingFileFromBytes(tc.file, []byte("x"), tc.mime, PickImage)
			require.NoError(t, err)
			assert.Equal(t, AttachmentImage, pf.Type)
			assert.Equal(t, msgNotImage, pf.Error)
			assert.False(t, pf.Valid())
		})
	}
}

func TestResolver_SkipsFlaggedImageType(t *testing.T) {
	f := newFakeBackend()
	r := NewResolver(f)

	svg, err := PendingFileFromBytes("logo.svg", []byte("<svg/>"), "image/svg+xml", PickImage)
	require.NoError(t, err)
	png, err := PendingFileFromBytes("a.png", []byte("x"), "image/png", PickImage)
	require.NoError(t, err)

	atts, err := r.Resolve(context.Background(), []PendingFile{svg, png})
	require.NoError(t, err)
	require.Len(t, atts, 1)
	assert.Equal(t, "a.png", atts[0].Name)
	assert.Equal(t, []string{"a.png"}, f.uploads)
}

func TestResolver_FailureReportsUploadedSoFar(t *testing.T) {
	f := newFakeBackend()
	f.uploadErr = map[string]error{"c.pdf": errBoom}
	r := NewResolver(f)

	var tray Tray
	a, _ := PendingFileFromBytes("a.png", []byte("x"), "image/png", PickImage)
	b, _ := PendingFileFromBytes("b.txt", []byte("yy"), "text/plain", PickDocument)
	c, _ := PendingFileFromBytes("c.pdf", []byte("z"), "application/pdf", PickDocument)
	tray.Add(a, b, c)

	_, err := r.Resolve(context.Background(), tray.Files())
	var upErr *UploadError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, "c.pdf", upErr.Name)
	require.Len(t, upErr.Uploaded, 2)

	tray.MarkUploaded(upErr.Uploaded)
	files := tray.Files()
	assert.Equal(t, "tok-a.png", files[0].Token)
	assert.Equal(t, "tok-b.txt", files[1].Token)
	assert.Empty(t, files[2].Token)

	delete(f.uploadErr, "c.pdf")
	atts, err := r.Resolve(context.Background(), tray.Files())
	require.NoError(t, err)
	require.Len(t, atts, 3)
	assert.Equal(t, []string{"a.png", "b.txt", "c.pdf"}, f.uploads, "retry uploads only the failed file")
}
