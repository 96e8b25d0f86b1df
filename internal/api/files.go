package api

import (
	"context"
	"encoding/hex"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/zeebo/blake3"

	"github.com/felixgeelhaar/bankshield/internal/errors"
)

// UploadRequest describes a file to store
type UploadRequest struct {
	Filename    string
	Content     io.Reader
	Name        string
	FileType    string
	Sensitivity string
	Description string
}

// Download describes a completed file download
type Download struct {
	Filename    string
	ContentType string
	Size        int64
	// BLAKE3 is the hex digest of the received bytes
	BLAKE3 string
}

// ListFiles returns stored files matching filter
func (c *Client) ListFiles(ctx context.Context, filter FileFilter) (*Page[BankFile], error) {
	var page Page[BankFile]
	if err := c.do(ctx, http.MethodGet, "/files/bank-files/", filter.Values(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetFile returns a file's metadata
func (c *Client) GetFile(ctx context.Context, id string) (*BankFile, error) {
	var file BankFile
	if err := c.do(ctx, http.MethodGet, "/files/bank-files/"+url.PathEscape(id)+"/", nil, nil, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// UploadFile stores a file as a multipart form
func (c *Client) UploadFile(ctx context.Context, up UploadRequest) (*BankFile, error) {
	if up.Content == nil {
		return nil, errors.NewRequired("file")
	}
	if up.Name == "" {
		return nil, errors.NewRequired("name")
	}

	// Stream the form so large files are never held in memory
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(form, up))
	}()

	resp, err := c.send(ctx, request{
		method:      http.MethodPost,
		path:        "/files/bank-files/",
		body:        pr,
		contentType: form.FormDataContentType(),
	})
	// Unblock the writer goroutine if the request ended before consuming the body
	pr.Close()
	if err != nil {
		return nil, err
	}

	var file BankFile
	if err := c.decode(http.MethodPost, "/files/bank-files/", resp, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

func writeUploadForm(form *multipart.Writer, up UploadRequest) error {
	filename := up.Filename
	if filename == "" {
		filename = up.Name
	}
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, up.Content); err != nil {
		return err
	}

	fields := []struct{ key, value string }{
		{"name", up.Name},
		{"file_type", up.FileType},
		{"sensitivity", up.Sensitivity},
		{"description", up.Description},
	}
	for _, f := range fields {
		if f.value == "" && f.key == "description" {
			continue
		}
		if err := form.WriteField(f.key, f.value); err != nil {
			return err
		}
	}
	return form.Close()
}

// DownloadFile streams a file's content into w and returns its digest
func (c *Client) DownloadFile(ctx context.Context, id string, w io.Writer) (*Download, error) {
	resp, err := c.send(ctx, request{
		method: http.MethodGet,
		path:   "/files/bank-files/" + url.PathEscape(id) + "/download/",
		accept: "*/*",
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	hasher := blake3.New()
	n, err := io.Copy(io.MultiWriter(w, hasher), resp.Body)
	if err != nil {
		return nil, errors.NewTransport(err)
	}

	d := &Download{
		ContentType: resp.Header.Get("Content-Type"),
		Size:        n,
		BLAKE3:      hex.EncodeToString(hasher.Sum(nil)),
	}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		d.Filename = params["filename"]
	}
	return d, nil
}

// ListAccessLogs returns file access records
func (c *Client) ListAccessLogs(ctx context.Context, params url.Values) (*Page[AccessLog], error) {
	var page Page[AccessLog]
	if err := c.do(ctx, http.MethodGet, "/files/access-logs/", params, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}
