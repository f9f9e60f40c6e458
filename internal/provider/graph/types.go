// Package graph implements a Provider that sends emails via the Microsoft Graph API.
package graph

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/shineum/smtp-send-lite/internal/compose"
	"github.com/shineum/smtp-send-lite/internal/email"
)

// sendMailRequest is the top-level request body for the Graph API sendMail endpoint.
type sendMailRequest struct {
	Message         sendMailMessage `json:"message"`
	SaveToSentItems bool            `json:"saveToSentItems"`
}

// sendMailMessage represents the message portion of a sendMail request.
type sendMailMessage struct {
	Subject       string            `json:"subject"`
	Body          messageBody       `json:"body"`
	From          *recipient        `json:"from,omitempty"`
	ToRecipients  []recipient       `json:"toRecipients"`
	CcRecipients  []recipient       `json:"ccRecipients,omitempty"`
	BccRecipients []recipient       `json:"bccRecipients,omitempty"`
	ReplyTo       []recipient       `json:"replyTo,omitempty"`
	Importance    string            `json:"importance,omitempty"`
	Attachments   []graphAttachment `json:"attachments,omitempty"`
}

// messageBody represents the body of an email message.
type messageBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// recipient represents an email recipient.
type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

// emailAddress represents an email address in a Graph API request.
type emailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// graphAttachment represents a file attachment in a Graph API request.
type graphAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
	ContentID    string `json:"contentId,omitempty"`
	IsInline     bool   `json:"isInline"`
}

// tokenResponse represents the OAuth2 token endpoint response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// graphErrorResponse represents an error response from the Graph API.
type graphErrorResponse struct {
	Error graphError `json:"error"`
}

// graphError represents the error detail in a Graph API error response.
type graphError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// buildSendMailRequest converts an email.Message into a Graph API sendMail
// request body. The HTML body wins over the text body because Graph accepts
// only one. Attachment files are read here; an attachment whose Content-Id is
// referenced from the HTML body is sent inline.
func buildSendMailRequest(msg *email.Message) (*sendMailRequest, error) {
	body := messageBody{ContentType: "text"}
	if msg.TextBody != nil {
		body.Content = msg.TextBody.Text
	}
	if msg.HTMLBody != nil {
		body.ContentType = "html"
		body.Content = msg.HTMLBody.Text
	}

	sender, err := email.ParseSender(msg.From)
	if err != nil {
		return nil, err
	}

	req := &sendMailRequest{
		Message: sendMailMessage{
			Subject:    msg.Subject,
			Body:       body,
			Importance: string(msg.Priority),
		},
		SaveToSentItems: true,
	}
	// Graph only accepts a real mailbox here; otherwise the sending
	// mailbox's own address is used.
	if strings.Contains(sender.Address, "@") {
		req.Message.From = &recipient{EmailAddress: emailAddress{Name: sender.Name, Address: sender.Address}}
	}

	if req.Message.ToRecipients, err = toRecipients(msg.To); err != nil {
		return nil, err
	}
	if req.Message.CcRecipients, err = toRecipients(msg.Cc); err != nil {
		return nil, err
	}
	if req.Message.BccRecipients, err = toRecipients(msg.Bcc); err != nil {
		return nil, err
	}
	if req.Message.ReplyTo, err = toRecipients(msg.ReplyTo); err != nil {
		return nil, err
	}

	for _, att := range msg.Attachments {
		data, err := os.ReadFile(att.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment %s: %w", att.Path, err)
		}
		req.Message.Attachments = append(req.Message.Attachments, graphAttachment{
			ODataType:    "#microsoft.graph.fileAttachment",
			Name:         att.Filename,
			ContentType:  compose.ContentType(att.Filename),
			ContentBytes: base64.StdEncoding.EncodeToString(data),
			ContentID:    att.ContentID,
			IsInline:     body.ContentType == "html" && strings.Contains(body.Content, "cid:"+att.ContentID),
		})
	}

	return req, nil
}

func toRecipient(entry string) (recipient, error) {
	addr, err := mail.ParseAddress(entry)
	if err != nil {
		return recipient{}, fmt.Errorf("invalid address %q: %w", entry, err)
	}
	return recipient{EmailAddress: emailAddress{Name: addr.Name, Address: addr.Address}}, nil
}

func toRecipients(list []string) ([]recipient, error) {
	out := make([]recipient, 0, len(list))
	for _, entry := range list {
		r, err := toRecipient(entry)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
