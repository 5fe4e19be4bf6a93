package linkyun

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
)

// Upload is the result of a file upload. URLs are absolute when set.
type Upload struct {
	Token       string `json:"token"`
	DownloadURL string `json:"download_url,omitempty"`
	PreviewURL  string `json:"preview_url,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
	Name        string `json:"name,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// UploadImage posts an image (jpg/png/gif/webp) to /files/upload.
func (c *Client) UploadImage(ctx context.Context, name, mimeType string, r io.Reader) (*Upload, error) {
	return c.upload(ctx, "/files/upload", name, mimeType, r)
}

// UploadDocument posts a document (pdf/doc/docx/txt/md) to /files/upload-document.
func (c *Client) UploadDocument(ctx context.Context, name, mimeType string, r io.Reader) (*Upload, error) {
	return c.upload(ctx, "/files/upload-document", name, mimeType, r)
}

// FileDownloadURL is the download location of an uploaded token.
func (c *Client) FileDownloadURL(token string) string {
	return c.endpoint("/files/"+url.PathEscape(token)+"/download", nil)
}

func (c *Client) upload(ctx context.Context, p, name, mimeType string, r io.Reader) (*Upload, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(name)))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h.Set("Content-Type", mimeType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create form part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(p, nil), &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	payload, err := c.send(req)
	if err != nil {
		return nil, err
	}
	var out Upload
	if err := decodeInto(payload, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Token) == "" {
		return nil, ErrMissingToken
	}
	if out.DownloadURL != "" {
		out.DownloadURL = c.URL(out.DownloadURL)
	}
	if out.PreviewURL != "" {
		out.PreviewURL = c.URL(out.PreviewURL)
	}
	return &out, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }
