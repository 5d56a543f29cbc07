package service

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/LeventeLantos/future-messaging/internal/model"
)

type AttachmentLink struct {
	Filename string
	URL      string
}

type MailContent struct {
	Subject string
	HTML    string
}

const (
	dateLayout = "January 2, 2006"

	// Shown when the author attached media but wrote no text.
	emptyBodyPlaceholder = "(no message text was written)"
)

var deliveryTmpl = template.Must(template.New("delivery").Parse(`<html>
<body>
  <p>Hi {{.DisplayName}},</p>
  <p>On {{.WrittenAt}} a message was written to be opened on {{.ScheduledAt}}. Today is that day.</p>
  <blockquote style="border-left:3px solid #ccc;padding-left:12px;white-space:pre-wrap;">{{.Body}}</blockquote>
  {{- if .Attachments}}
  <p>{{len .Attachments}} attachment{{if gt (len .Attachments) 1}}s{{end}} came along with this message. The download links stay valid for 7 days.</p>
  <ul>
    {{- range .Attachments}}
    <li><a href="{{.URL}}">{{.Filename}}</a></li>
    {{- end}}
  </ul>
  {{- end}}
  <p>Sent by Future Messaging.</p>
</body>
</html>
`))

type deliveryData struct {
	DisplayName string
	WrittenAt   string
	ScheduledAt string
	Body        string
	Attachments []AttachmentLink
}

// RenderDelivery turns a claimed message and its resolved links into the
// outbound mail payload. Deterministic, no I/O; a missing body text becomes
// a fixed placeholder rather than an error. Dates are formatted in loc
// (UTC when nil).
func RenderDelivery(displayName string, msg model.Message, links []AttachmentLink, loc *time.Location) (MailContent, error) {
	if loc == nil {
		loc = time.UTC
	}

	body := emptyBodyPlaceholder
	if msg.Body != nil && *msg.Body != "" {
		body = *msg.Body
	}

	data := deliveryData{
		DisplayName: displayName,
		WrittenAt:   msg.CreatedAt.In(loc).Format(dateLayout),
		ScheduledAt: msg.ScheduledAt.In(loc).Format(dateLayout),
		Body:        body,
		Attachments: links,
	}

	var buf bytes.Buffer
	if err := deliveryTmpl.Execute(&buf, data); err != nil {
		return MailContent{}, fmt.Errorf("render delivery mail: %w", err)
	}

	return MailContent{
		Subject: fmt.Sprintf("Your message from %s has arrived", data.WrittenAt),
		HTML:    buf.String(),
	}, nil
}
