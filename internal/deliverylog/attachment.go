package deliverylog

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	EncodingBase64 = "base64"
	EncodingText   = "text"
)

// ErrInvalidAttachment is returned when attachment content cannot be decoded.
var ErrInvalidAttachment = errors.New("invalid attachment")

// Attachment is a file as submitted by the client. Content stays in its
// transport encoding so that the snapshot replays byte for byte.
type Attachment struct {
	Filename    string `json:"filename"`
	Content     string `json:"content"`
	Encoding    string `json:"encoding,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

func (a Attachment) isBase64() bool {
	return a.Encoding == "" || strings.EqualFold(a.Encoding, EncodingBase64)
}

// SizeBytes estimates the decoded size without decoding: floor(len*3/4) for
// base64 content, the raw length otherwise.
func (a Attachment) SizeBytes() int64 {
	if a.isBase64() {
		return int64(len(a.Content)) * 3 / 4
	}
	return int64(len(a.Content))
}

func (a Attachment) Decode() ([]byte, error) {
	switch {
	case a.isBase64():
		clean := strings.Map(func(r rune) rune {
			switch r {
			case '\r', '\n', ' ', '\t':
				return -1
			}
			return r
		}, a.Content)
		out, err := base64.StdEncoding.DecodeString(clean)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAttachment, a.Filename, err)
		}
		return out, nil
	case strings.EqualFold(a.Encoding, EncodingText), strings.EqualFold(a.Encoding, "utf8"), strings.EqualFold(a.Encoding, "utf-8"):
		return []byte(a.Content), nil
	default:
		return nil, fmt.Errorf("%w: %s: unsupported encoding %q", ErrInvalidAttachment, a.Filename, a.Encoding)
	}
}

// ResolveContentType returns the declared content type, or one sniffed from
// the decoded bytes when the client did not declare any.
func ResolveContentType(a Attachment, decoded []byte) string {
	if a.ContentType != "" {
		return a.ContentType
	}
	return mimetype.Detect(decoded).String()
}

// AttachmentMeta is the per-file summary kept on the log row.
type AttachmentMeta struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType,omitempty"`
	SizeBytes   int64  `json:"sizeBytes"`
	HumanSize   string `json:"humanSize"`
}

func Meta(atts []Attachment) []AttachmentMeta {
	out := make([]AttachmentMeta, 0, len(atts))
	for _, a := range atts {
		size := a.SizeBytes()
		out = append(out, AttachmentMeta{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			SizeBytes:   size,
			HumanSize:   HumanSize(size),
		})
	}
	return out
}

// TotalSize sums SizeBytes over atts.
func TotalSize(atts []Attachment) int64 {
	var n int64
	for _, a := range atts {
		n += a.SizeBytes()
	}
	return n
}

// HumanSize formats n as B, KB or MB with one decimal above bytes.
func HumanSize(n int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
	)
	switch {
	case n < kb:
		return fmt.Sprintf("%d B", n)
	case n < mb:
		return fmt.Sprintf("%.1f KB", float64(n)/kb)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/mb)
	}
}
