package storage

import (
	"context"
	"errors"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var ErrDisabled = errors.New("attachment storage not configured")

// Presigner hands out short-lived URLs so clients move attachment bytes
// directly to and from the blob store.
type Presigner interface {
	UploadURL(ctx context.Context, key, contentType string) (string, error)
	DownloadURL(ctx context.Context, key string) (string, error)
}

// Disabled is used when no bucket is configured.
type Disabled struct{}

func (Disabled) UploadURL(context.Context, string, string) (string, error) { return "", ErrDisabled }
func (Disabled) DownloadURL(context.Context, string) (string, error)      { return "", ErrDisabled }

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// AttachmentKey builds the object key for a complaint attachment.
func AttachmentKey(complaintID, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = unsafeChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		base = "file"
	}
	if len(base) > 80 {
		base = base[len(base)-80:]
	}
	return "complaints/" + complaintID + "/" + uuid.NewString() + "-" + base
}

// OwnsKey reports whether key belongs to the given complaint.
func OwnsKey(complaintID, key string) bool {
	return strings.HasPrefix(key, "complaints/"+complaintID+"/") && !strings.Contains(key, "..")
}
