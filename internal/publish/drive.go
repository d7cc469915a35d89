package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const driveViewURL = "https://drive.google.com/uc?export=view&id="

// DrivePublisher uploads frames to Google Drive and shares them with anyone
// holding the link.
type DrivePublisher struct {
	svc      *drive.Service
	folderID string
	logger   *slog.Logger
}

// NewDrivePublisher builds a Drive client. opts typically carry an
// authenticated HTTP client (option.WithHTTPClient).
func NewDrivePublisher(ctx context.Context, folderID string, logger *slog.Logger, opts ...option.ClientOption) (*DrivePublisher, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &DrivePublisher{svc: svc, folderID: folderID, logger: logger}, nil
}

func (p *DrivePublisher) Name() string { return "drive" }

// Publish creates the file and grants anyone reader access. A failed grant
// leaves the uploaded file in place.
func (p *DrivePublisher) Publish(ctx context.Context, image []byte, suggestedName string) (string, error) {
	if len(image) == 0 {
		return "", &Error{Op: "upload", Err: ErrEmptyImage}
	}

	meta := &drive.File{Name: suggestedName, MimeType: imageContentType}
	if p.folderID != "" {
		meta.Parents = []string{p.folderID}
	}

	created, err := p.svc.Files.Create(meta).
		Media(bytes.NewReader(image), googleapi.ContentType(imageContentType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", &Error{Op: "upload", StatusCode: googleStatus(err), Err: err}
	}

	_, err = p.svc.Permissions.Create(created.Id, &drive.Permission{
		Type: "anyone",
		Role: "reader",
	}).Context(ctx).Do()
	if err != nil {
		return "", &Error{Op: "grant", StatusCode: googleStatus(err), Err: err}
	}

	p.logger.Debug("frame published to drive", "file_id", created.Id, "name", suggestedName, "bytes", len(image))
	return created.Id, nil
}

// Link returns the direct-view URL that =IMAGE() can load.
func (p *DrivePublisher) Link(_ context.Context, artifactID string) (string, error) {
	if artifactID == "" {
		return "", &Error{Op: "link", Err: errors.New("empty drive file id")}
	}
	return driveViewURL + url.QueryEscape(artifactID), nil
}

func googleStatus(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return 0
}
