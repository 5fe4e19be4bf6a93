package linkyuntest

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
)

const maxUploadBytes = 20 * 1024 * 1024

var (
	uploadImageMIME = map[string]bool{
		"image/jpeg": true,
		"image/png":  true,
		"image/gif":  true,
		"image/webp": true,
	}
	uploadDocExt = regexp.MustCompile(`(?i)\.(pdf|docx?|txt|md)$`)
)

func (b *Backend) UploadImage(c *gin.Context) {
	b.upload(c, "image")
}

func (b *Backend) UploadDocument(c *gin.Context) {
	b.upload(c, "document")
}

func (b *Backend) upload(c *gin.Context, kind string) {
	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, "缺少文件")
		return
	}
	if fh.Size > maxUploadBytes {
		fail(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("文件大小不能超过 %dMB", maxUploadBytes/(1024*1024)))
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, "读取文件失败")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		fail(c, http.StatusBadRequest, "读取文件失败")
		return
	}

	detected := mimetype.Detect(data)
	mt := fh.Header.Get("Content-Type")
	switch kind {
	case "image":
		if !uploadImageMIME[detected.String()] {
			fail(c, http.StatusBadRequest, "仅支持 jpg/png/gif/webp 图片")
			return
		}
		mt = detected.String()
	default:
		if !uploadDocExt.MatchString(fh.Filename) {
			fail(c, http.StatusBadRequest, "仅支持 pdf/doc/docx/txt/md 文档")
			return
		}
		if mt == "" || mt == "application/octet-stream" {
			mt = detected.String()
		}
	}

	file := &File{
		UserID:   userIDFromContext(c),
		Kind:     kind,
		Name:     fh.Filename,
		MimeType: mt,
		Size:     int64(len(data)),
		Data:     data,
	}
	if err := b.repo.SaveFile(c.Request.Context(), file); err != nil {
		fail(c, http.StatusInternalServerError, "db error")
		return
	}
	download, preview := fileViewURLs(file)
	resp := gin.H{
		"token":        file.Token,
		"download_url": download,
		"mime_type":    file.MimeType,
		"name":         file.Name,
		"size":         file.Size,
	}
	if preview != "" {
		resp["preview_url"] = preview
	}
	ok(c, resp)
}

func (b *Backend) DownloadFile(c *gin.Context) {
	f, err := b.repo.GetFile(c.Request.Context(), c.Param("token"))
	if err != nil {
		fail(c, http.StatusNotFound, "文件不存在")
		return
	}
	disposition := "attachment"
	if c.Query("preview") == "1" {
		disposition = "inline"
	}
	c.Header("Content-Disposition", fmt.Sprintf("%s; filename*=UTF-8''%s", disposition, url.PathEscape(f.Name)))
	c.Data(http.StatusOK, f.MimeType, f.Data)
}
