// Package attachment normalizes heterogeneous chat inputs (recorded audio,
// uploaded images and documents, inline URLs) into uniform attachment
// descriptors for a single visitor turn.
package attachment

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lumenworks/saleschat/internal/domain"
)

// Processor validates and normalizes raw inputs. It performs no I/O and
// never calls the model.
type Processor struct {
	maxCount int
	maxBytes int64
	logger   *slog.Logger
}

// New creates a processor with the given bounds. maxBytes applies to the
// decoded size of each inline payload.
func New(maxCount int, maxBytes int64, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		maxCount: maxCount,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Process converts raw inputs into attachment descriptors. Oversize inputs
// are rejected with a descriptive error; unsupported MIME types are dropped
// with a warning rather than failing the turn. At most one audio input is
// accepted per turn.
func (p *Processor) Process(inputs []domain.RawInput) ([]domain.Attachment, []string, error) {
	if len(inputs) == 0 {
		return nil, nil, nil
	}
	if p.maxCount > 0 && len(inputs) > p.maxCount {
		return nil, nil, domain.ErrAttachment(
			fmt.Sprintf("too many attachments: %d (limit %d)", len(inputs), p.maxCount))
	}

	var (
		attachments []domain.Attachment
		warnings    []string
		audioSeen   bool
	)

	for i, in := range inputs {
		kind, ok := kindForMIME(in.MIMEType)
		if !ok {
			warn := fmt.Sprintf("dropped attachment %q: unsupported type %q", in.Filename, in.MIMEType)
			warnings = append(warnings, warn)
			p.logger.Warn("dropping unsupported attachment",
				slog.String("filename", in.Filename),
				slog.String("mime_type", in.MIMEType),
			)
			continue
		}

		if in.Data == "" && in.URL == "" {
			warn := fmt.Sprintf("dropped attachment %q: no payload or URL", in.Filename)
			warnings = append(warnings, warn)
			continue
		}

		if kind == domain.AttachmentAudio {
			if audioSeen {
				return nil, nil, domain.ErrAttachment("at most one audio recording per turn").
					WithParam(fmt.Sprintf("inputs[%d]", i))
			}
			audioSeen = true
		}

		// Audio and documents travel inline; images may be either.
		if kind != domain.AttachmentImage && in.Data == "" {
			warn := fmt.Sprintf("dropped attachment %q: %s must be sent inline", in.Filename, kind)
			warnings = append(warnings, warn)
			continue
		}

		if in.Data != "" {
			size, err := decodedSize(in.Data)
			if err != nil {
				warn := fmt.Sprintf("dropped attachment %q: invalid base64 payload", in.Filename)
				warnings = append(warnings, warn)
				continue
			}
			if p.maxBytes > 0 && size > p.maxBytes {
				return nil, nil, domain.ErrAttachment(
					fmt.Sprintf("attachment %q exceeds size limit: %d bytes (limit %d)",
						in.Filename, size, p.maxBytes)).
					WithParam(fmt.Sprintf("inputs[%d]", i))
			}
		}

		att := domain.Attachment{
			Kind:     kind,
			MIMEType: in.MIMEType,
			Filename: in.Filename,
		}
		// Prefer the hosted reference when both are present.
		if in.URL != "" && kind == domain.AttachmentImage {
			att.URL = in.URL
		} else {
			att.Data = in.Data
		}

		attachments = append(attachments, att)
	}

	return attachments, warnings, nil
}

func kindForMIME(mime string) (domain.AttachmentKind, bool) {
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch {
	case strings.HasPrefix(mime, "image/"):
		return domain.AttachmentImage, true
	case strings.HasPrefix(mime, "audio/"):
		return domain.AttachmentAudio, true
	case mime == "application/pdf", mime == "text/plain":
		return domain.AttachmentDocument, true
	default:
		return "", false
	}
}

// decodedSize validates a base64 payload and returns its decoded length.
// Tolerates unpadded input.
func decodedSize(data string) (int64, error) {
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return 0, err
	}
	return int64(len(raw)), nil
}
