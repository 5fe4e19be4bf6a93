package chat

import (
	"fmt"
	"time"

	"github.com/suPer8Hu/legalwise/internal/linkyun"
)

// fromRemote maps a server message list onto local messages. System messages
// are dropped; ids missing on the server become "{session}-{index}".
func fromRemote(sessionID string, msgs []linkyun.Message, now time.Time) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == "system" {
			continue
		}
		idx := len(out)
		lm := Message{
			ID:        m.ID.String(),
			Role:      RoleUser,
			Content:   m.Content,
			Timestamp: linkyun.ParseTime(m.CreatedAt),
		}
		if lm.ID == "" {
			lm.ID = fmt.Sprintf("%s-%d", sessionID, idx)
		}
		if m.Role == string(RoleAssistant) {
			lm.Role = RoleAssistant
		}
		if lm.Timestamp.IsZero() {
			lm.Timestamp = now
		}
		for _, a := range m.Attachments {
			typ := AttachmentFile
			if a.Type == string(AttachmentImage) {
				typ = AttachmentImage
			}
			lm.Attachments = append(lm.Attachments, Attachment{
				Type:        typ,
				Token:       a.Token,
				MimeType:    a.MimeType,
				Name:        a.Name,
				Size:        a.Size,
				DownloadURL: a.DownloadURL,
				PreviewURL:  a.PreviewURL,
			})
		}
		out = append(out, lm)
	}
	return out
}

func sessionFromChat(gc linkyun.GroupChat, now time.Time) Session {
	created := gc.CreatedTime()
	if created.IsZero() {
		created = now
	}
	return Session{
		ID:        gc.ID.String(),
		Title:     gc.DisplayTitle(),
		CreatedAt: created,
	}
}

func attachmentRefs(atts []Attachment) []linkyun.AttachmentRef {
	if len(atts) == 0 {
		return nil
	}
	out := make([]linkyun.AttachmentRef, 0, len(atts))
	for _, a := range atts {
		out = append(out, linkyun.AttachmentRef{Type: string(a.Type), Token: a.Token})
	}
	return out
}
