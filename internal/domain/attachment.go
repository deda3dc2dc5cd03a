package domain

// AttachmentKind classifies a processed attachment.
type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "image"
	AttachmentAudio    AttachmentKind = "audio"
	AttachmentDocument AttachmentKind = "document"
)

// RawInput is one heterogeneous inbound input before normalization: a
// freshly captured binary (base64), an already-hosted URL, or both is
// invalid. MIMEType is the declared type, verified by the processor.
type RawInput struct {
	MIMEType string `json:"mime_type"`
	Filename string `json:"filename,omitempty"`
	Data     string `json:"data,omitempty"` // base64 payload
	URL      string `json:"url,omitempty"`
}

// Attachment is the uniform descriptor produced by the attachment
// processor and attached to a visitor turn.
//
// Invariant: exactly one of Data or URL is set, so the prompt assembler
// can always either inline the payload or reference it.
type Attachment struct {
	Kind     AttachmentKind `json:"kind"`
	MIMEType string         `json:"mime_type"`
	Filename string         `json:"filename,omitempty"`
	Data     string         `json:"data,omitempty"` // base64 payload
	URL      string         `json:"url,omitempty"`
}

// Inline reports whether the attachment carries its payload directly.
func (a *Attachment) Inline() bool {
	return a.Data != ""
}
