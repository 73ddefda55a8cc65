package gdrive

import (
	"context"
	"fmt"

	"comfybridge/internal/ports"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

// Client uploads artifacts to Google Drive. The requested object key
// becomes the Drive file name; the returned ObjectKey is the file id.
type Client struct {
	srv      *drive.Service
	folderID string
}

func NewClient(srv *drive.Service, folderID string) *Client {
	return &Client{srv: srv, folderID: folderID}
}

func (c *Client) Provider() string { return "gdrive" }

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, fmt.Errorf("object_key is required")
	}

	file := &drive.File{Name: in.ObjectKey}
	if c.folderID != "" {
		file.Parents = []string{c.folderID}
	}

	call := c.srv.Files.Create(file).
		SupportsAllDrives(true).
		Fields("id", "webViewLink")
	if in.ContentType != "" {
		call = call.Media(in.Reader, googleapi.ContentType(in.ContentType))
	} else {
		call = call.Media(in.Reader)
	}

	created, err := call.Context(ctx).Do()
	if err != nil {
		return ports.PutObjectOutput{}, fmt.Errorf("gdrive upload failed: %w", err)
	}

	return ports.PutObjectOutput{
		ObjectKey: created.Id,
		Location:  Location(created.Id, created.WebViewLink),
		Size:      in.Size,
	}, nil
}

// Location prefers the browser link Drive hands back, and falls back to a
// gdrive:// reference to the file id.
func Location(fileID, webViewLink string) string {
	if webViewLink != "" {
		return webViewLink
	}
	return "gdrive://" + fileID
}

var _ ports.StorageProvider = (*Client)(nil)
