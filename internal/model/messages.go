package model

import (
	"fmt"
	"strings"

	"github.com/lumenworks/saleschat/internal/domain"
)

// BuildMessages converts the system instructions and a turn window into
// wire messages. Turns without attachments travel as plain strings;
// attachments expand the content into multimodal parts.
func BuildMessages(system string, turns []domain.Turn) []Message {
	msgs := make([]Message, 0, len(turns)+1)
	msgs = append(msgs, Message{Role: "system", Content: system})

	for _, t := range turns {
		role := "user"
		if t.Role == domain.RoleAssistant {
			role = "assistant"
		}

		if len(t.Attachments) == 0 {
			msgs = append(msgs, Message{Role: role, Content: t.Content})
			continue
		}

		parts := []ContentPart{{Type: "text", Text: t.Content}}
		for _, att := range t.Attachments {
			parts = append(parts, contentPart(att))
		}
		msgs = append(msgs, Message{Role: role, Content: parts})
	}

	return msgs
}

func contentPart(att domain.Attachment) ContentPart {
	switch att.Kind {
	case domain.AttachmentImage:
		url := att.URL
		if att.Inline() {
			url = fmt.Sprintf("data:%s;base64,%s", att.MIMEType, att.Data)
		}
		return ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: url}}
	case domain.AttachmentAudio:
		return ContentPart{Type: "input_audio", Audio: &AudioIn{
			Data:   att.Data,
			Format: audioFormat(att.MIMEType),
		}}
	default:
		return ContentPart{Type: "file", File: &FilePart{
			Filename: att.Filename,
			FileData: fmt.Sprintf("data:%s;base64,%s", att.MIMEType, att.Data),
		}}
	}
}

func audioFormat(mime string) string {
	if i := strings.Index(mime, "/"); i >= 0 {
		return mime[i+1:]
	}
	return mime
}
