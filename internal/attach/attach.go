// Package attach models chat attachments and their upload lifecycle.
package attach

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// UploadState tracks where an attachment is in its upload lifecycle.
type UploadState string

const (
	StatePending   UploadState = "pending"
	StateUploading UploadState = "uploading"
	StateUploaded  UploadState = "uploaded"
	StateFailed    UploadState = "failed"
)

// Attachment is one file the user attached to a turn.
type Attachment struct {
	Name          string // Filename, NFC-normalized
	MimeType      string
	LocalPath     string // Path on this machine, if staged locally
	SandboxPath   string // Path in the server-side workspace, if uploaded
	Data          []byte // Inline payload for quick/adaptive modes
	State         UploadState
	FailureReason string
}

// NormalizeName returns the NFC form of a filename. macOS and some browsers
// hand out decomposed names; the backend keys sandbox files by the composed
// form.
func NormalizeName(name string) string {
	return norm.NFC.String(name)
}

// Normalize canonicalizes the attachment names in place.
func Normalize(atts []Attachment) {
	for i := range atts {
		atts[i].Name = NormalizeName(atts[i].Name)
	}
}

// IsImage reports whether the attachment's declared type is an image.
func IsImage(a Attachment) bool {
	return strings.HasPrefix(a.MimeType, "image/")
}

// NonImageNames returns the names of all non-image attachments, in order.
func NonImageNames(atts []Attachment) []string {
	var names []string
	for _, a := range atts {
		if !IsImage(a) {
			names = append(names, a.Name)
		}
	}
	return names
}

// HasUploaded reports whether any attachment has finished uploading or
// carries an inline payload ready to send.
func HasUploaded(atts []Attachment) bool {
	for _, a := range atts {
		if a.State == StateUploaded || len(a.Data) > 0 {
			return true
		}
	}
	return false
}

// Bytes returns the attachment payload, reading the local file if no inline
// data is present.
func Bytes(ctx context.Context, a Attachment) ([]byte, error) {
	if a.Data != nil {
		return a.Data, nil
	}
	if a.LocalPath == "" {
		return nil, fmt.Errorf("attachment %s has no payload and no local path", a.Name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(a.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("read attachment %s: %w", a.Name, err)
	}
	return data, nil
}

// InlineBase64 returns the attachment payload as base64. Used by the modes
// that ship images in the request body instead of the sandbox.
func InlineBase64(ctx context.Context, a Attachment) (string, error) {
	data, err := Bytes(ctx, a)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
