package linkyun

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadImage_Multipart(t *testing.T) {
	var gotName, gotType, gotBody, gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		b, _ := io.ReadAll(f)
		gotName, gotType, gotBody = hdr.Filename, hdr.Header.Get("Content-Type"), string(b)
		writeJSON(w, 200, `{"success":true,"data":{"token":"tok-1","download_url":"/api/v1/files/tok-1/download"}}`)
	})

	up, err := c.UploadImage(context.Background(), `合同"扫描".png`, "image/png", strings.NewReader("PNGDATA"))
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/files/upload", gotPath)
	assert.Equal(t, `合同"扫描".png`, gotName)
	assert.Equal(t, "image/png", gotType)
	assert.Equal(t, "PNGDATA", gotBody)
	assert.Equal(t, "tok-1", up.Token)
	assert.Equal(t, c.BaseURL()+"/api/v1/files/tok-1/download", up.DownloadURL)
	assert.Empty(t, up.PreviewURL)
}

func TestUploadDocument_Path(t *testing.T) {
	var gotPath, gotType string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		gotType = hdr.Header.Get("Content-Type")
		writeJSON(w, 200, `{"success":true,"data":{"token":"doc-1"}}`)
	})
	up, err := c.UploadDocument(context.Background(), "起诉状.pdf", "", strings.NewReader("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/files/upload-document", gotPath)
	assert.Equal(t, "application/octet-stream", gotType)
	assert.Equal(t, "doc-1", up.Token)
}

func TestUpload_MissingToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"success":true,"data":{"token":""}}`)
	})
	_, err := c.UploadImage(context.Background(), "a.png", "image/png", strings.NewReader("x"))
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestUpload_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 413, `{"success":false,"error":{"message":"文件过大"}}`)
	})
	_, err := c.UploadImage(context.Background(), "a.png", "image/png", strings.NewReader("x"))
	assert.EqualError(t, err, "文件过大")
	assert.True(t, IsStatus(err, http.StatusRequestEntityTooLarge))
}

func TestSimpleChat_Shapes(t *testing.T) {
	for name, body := range map[string]string{
		"flat":   `{"success":true,"data":{"content":"借款纠纷","model":"m"}}`,
		"nested": `{"success":true,"data":{"data":{"content":"借款纠纷","model":"m"}}}`,
	} {
		t.Run(name, func(t *testing.T) {
			var req SimpleChatRequest
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/chat", r.URL.Path)
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				writeJSON(w, 200, body)
			})
			resp, err := c.SimpleChat(context.Background(), SimpleChatRequest{
				Messages:    []ChatTurn{{Role: "user", Content: "hi"}},
				Temperature: 0.3,
				MaxTokens:   50,
			})
			require.NoError(t, err)
			assert.Equal(t, "借款纠纷", resp.Content)
			assert.Equal(t, 50, req.MaxTokens)
		})
	}
}

func TestLogin(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "secret" {
			writeJSON(w, 401, `{"success":false,"error":{"message":"用户名或密码错误"}}`)
			return
		}
		writeJSON(w, 200, `{"success":true,"data":{"api_key":"k1","creator":{"id":3,"username":"lawyer"}}}`)
	})

	res, err := c.Login(context.Background(), LoginRequest{Username: "lawyer", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "k1", res.APIKey)
	require.NotNil(t, res.Account())
	assert.Equal(t, "lawyer", res.Account().Username)

	_, err = c.Login(context.Background(), LoginRequest{Username: "lawyer", Password: "bad"})
	assert.EqualError(t, err, "用户名或密码错误")
}

func TestCreateAgent_Defaults(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, 200, `{"success":true,"data":{"id":11,"code":"twin-1"}}`)
	})
	a, err := c.CreateAgent(context.Background(), CreateAgentRequest{Code: "twin-1", Name: "张律师"})
	require.NoError(t, err)
	assert.Equal(t, ID("11"), a.ID)
	assert.Equal(t, 0.7, body["temperature"])
	assert.Equal(t, "cloud", body["agent_type"])
	assert.Equal(t, "draft", body["status"])
	assert.Equal(t, false, body["memory_enabled"])
	assert.Equal(t, []any{}, body["skills"])
	assert.Contains(t, body, "rag_config")
	assert.Nil(t, body["rag_config"])
}
