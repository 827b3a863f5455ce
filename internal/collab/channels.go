package collab

import (
	"context"
	"encoding/base64"

	"nivaran/internal/delivery"
	"nivaran/internal/docstore"
)

// MessagingSender transmits the notice back to the user over the messaging
// channel they sent the grievance from.
type MessagingSender struct {
	client *Client
}

func NewMessagingSender(client *Client) *MessagingSender {
	return &MessagingSender{client: client}
}

type sendMessageRequest struct {
	To          string `json:"to"`
	ContentType string `json:"content_type"`
	Body        string `json:"body"`
}

type sendMessageResponse struct {
	MessageID string `json:"message_id"`
}

func (s *MessagingSender) Send(ctx context.Context, rcpt delivery.Recipient, doc docstore.Document) (string, error) {
	var resp sendMessageResponse
	err := s.client.postJSON(ctx, "/v1/messages", sendMessageRequest{
		To:          rcpt.Address,
		ContentType: doc.ContentType,
		Body:        base64.StdEncoding.EncodeToString(doc.Body),
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.MessageID, nil
}

// EmailSender transmits the redacted notice to the district officer.
type EmailSender struct {
	client *Client
}

func NewEmailSender(client *Client) *EmailSender {
	return &EmailSender{client: client}
}

type sendEmailRequest struct {
	To          string `json:"to"`
	Name        string `json:"name,omitempty"`
	Subject     string `json:"subject"`
	ContentType string `json:"content_type"`
	Attachment  string `json:"attachment"`
}

type sendEmailResponse struct {
	MessageID string `json:"message_id"`
}

func (s *EmailSender) Send(ctx context.Context, rcpt delivery.Recipient, doc docstore.Document) (string, error) {
	var resp sendEmailResponse
	err := s.client.postJSON(ctx, "/v1/emails", sendEmailRequest{
		To:          rcpt.Address,
		Name:        rcpt.Name,
		Subject:     "Legal notice regarding a registered grievance",
		ContentType: doc.ContentType,
		Attachment:  base64.StdEncoding.EncodeToString(doc.Body),
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.MessageID, nil
}
