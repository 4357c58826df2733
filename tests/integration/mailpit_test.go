//go:build integration

package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// MailpitClient reads the escalation emails captured by Mailpit.
type MailpitClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewMailpitClient points a client at the Mailpit REST API.
func NewMailpitClient(host string, port int) *MailpitClient {
	return &MailpitClient{
		baseURL:    fmt.Sprintf("http://%s:%d/api/v1", host, port),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// MailpitAddress is a parsed mailbox.
type MailpitAddress struct {
	Address string `json:"Address"`
	Name    string `json:"Name"`
}

// MailpitMessage is a captured email. Text is filled by GetMessageByID only.
type MailpitMessage struct {
	ID      string           `json:"ID"`
	From    MailpitAddress   `json:"From"`
	To      []MailpitAddress `json:"To"`
	Cc      []MailpitAddress `json:"Cc"`
	Bcc     []MailpitAddress `json:"Bcc"`
	Subject string           `json:"Subject"`
	Text    string           `json:"Text"`
}

// AllRecipients returns To, Cc and Bcc in that order.
func (m *MailpitMessage) AllRecipients() []MailpitAddress {
	all := make([]MailpitAddress, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	all = append(all, m.To...)
	all = append(all, m.Cc...)
	return append(all, m.Bcc...)
}

// SearchByRecipient lists messages addressed to email.
func (c *MailpitClient) SearchByRecipient(email string) ([]MailpitMessage, error) {
	var result struct {
		Messages []MailpitMessage `json:"messages"`
	}
	if err := c.getJSON("/search?query="+url.QueryEscape("to:"+email), &result); err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	return result.Messages, nil
}

// GetMessageByID returns a single message including its plain text body.
func (c *MailpitClient) GetMessageByID(id string) (*MailpitMessage, error) {
	var msg MailpitMessage
	if err := c.getJSON("/message/"+id, &msg); err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return &msg, nil
}

// DeleteAllMessages empties the inbox.
func (c *MailpitClient) DeleteAllMessages() error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+"/messages", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("delete messages: status %d", resp.StatusCode)
	}
	return nil
}

// WaitForRecipient polls until at least count messages addressed to email
// arrive. On timeout it returns what it saw along with an error.
func (c *MailpitClient) WaitForRecipient(email string, count int, timeout time.Duration) ([]MailpitMessage, error) {
	deadline := time.Now().Add(timeout)

	var messages []MailpitMessage
	var lastErr error
	for {
		messages, lastErr = c.SearchByRecipient(email)
		if lastErr == nil && len(messages) >= count {
			return messages, nil
		}
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	if lastErr != nil {
		return messages, fmt.Errorf("waiting for %d messages to %s: %w", count, email, lastErr)
	}
	return messages, fmt.Errorf("waiting for %d messages to %s: got %d before timeout", count, email, len(messages))
}

func (c *MailpitClient) getJSON(path string, v any) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	return json.NewDecoder(resp.Body).Decode(v)
}
