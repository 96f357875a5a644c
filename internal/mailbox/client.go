// Package mailbox implements the IMAP side of ingestion: listing candidate
// messages by envelope metadata and retrieving attachments for a single
// message identified by its Message-Id header.
package mailbox

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
)

// ErrAuth marks a failed login. Authentication failures are fatal for the
// current run and are never retried.
var ErrAuth = errors.New("mailbox authentication failed")

// Filter narrows ListMessages results. A zero Since defaults to now-24h so
// a missing window never triggers a full mailbox scan.
type Filter struct {
	Since              time.Time
	SubjectContains    string
	From               string
	RequireAttachments bool
}

// MessageSummary is envelope-level metadata for one listed message.
type MessageSummary struct {
	UID       uint32
	SeqNum    uint32
	MessageID string
	From      string
	Subject   string
	Date      time.Time
}

// AttachmentFile is one downloaded attachment.
type AttachmentFile struct {
	Filename string
	Content  []byte
}

// ClientConfig configuration for one broker mailbox session.
type ClientConfig struct {
	Host        string // host or host:port; port defaults to 993
	User        string
	Password    string
	DialTimeout time.Duration
}

// Client is a session-scoped IMAP client: Connect, use, Disconnect.
type Client struct {
	cfg    ClientConfig
	cli    *imapclient.Client
	logger *slog.Logger
}

func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, logger: logger.With("mailbox", cfg.User)}
}

// Connect dials the server over implicit TLS and logs in.
func (c *Client) Connect() error {
	addr := c.cfg.Host
	if !strings.Contains(addr, ":") {
		addr = net.JoinHostPort(addr, "993")
	}

	timeout := c.cfg.DialTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	c.logger.Info("connecting to IMAP server", "addr", addr)
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	cli, err := imapclient.New(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("imap handshake: %w", err)
	}

	if err := cli.Login(c.cfg.User, c.cfg.Password); err != nil {
		_ = cli.Logout()
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}

	c.cli = cli
	c.logger.Info("connected to IMAP server")
	return nil
}

// Disconnect closes the session. Safe to call on a never-connected client,
// so callers can defer it on every exit path.
func (c *Client) Disconnect() {
	if c.cli == nil {
		return
	}
	if err := c.cli.Logout(); err != nil {
		c.logger.Warn("imap logout failed", "error", err)
	}
	c.cli = nil
}

// ListMessages searches INBOX for messages matching the filter and returns
// envelope summaries. Only metadata is fetched; the body structure is added
// to the fetch set only when the filter requires attachment presence.
func (c *Client) ListMessages(filter Filter) ([]MessageSummary, error) {
	if c.cli == nil {
		return nil, errors.New("not connected")
	}
	if _, err := c.cli.Select("INBOX", true); err != nil {
		return nil, fmt.Errorf("select INBOX: %w", err)
	}

	since := filter.Since
	if since.IsZero() {
		since = time.Now().Add(-24 * time.Hour)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = since
	seqNums, err := c.cli.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("search since %s: %w", since.Format(time.RFC3339), err)
	}
	c.logger.Info("mailbox search completed", "since", since, "candidates", len(seqNums))
	if len(seqNums) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seqNums...)

	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchInternalDate, imap.FetchUid}
	if filter.RequireAttachments {
		items = append(items, imap.FetchBodyStructure)
	}

	messages := make(chan *imap.Message, 32)
	done := make(chan error, 1)
	go func() {
		done <- c.cli.Fetch(seqSet, items, messages)
	}()

	var out []MessageSummary
	for msg := range messages {
		if msg.Envelope == nil {
			continue
		}
		if !matchEnvelope(msg.Envelope, filter) {
			continue
		}
		if filter.RequireAttachments && !partFromStructure(msg.BodyStructure).HasAttachment() {
			continue
		}

		from := ""
		if len(msg.Envelope.From) > 0 {
			from = msg.Envelope.From[0].Address()
		}
		date := msg.InternalDate
		if date.IsZero() {
			date = msg.Envelope.Date
		}
		out = append(out, MessageSummary{
			UID:       msg.Uid,
			SeqNum:    msg.SeqNum,
			MessageID: msg.Envelope.MessageId,
			From:      from,
			Subject:   msg.Envelope.Subject,
			Date:      date,
		})
	}
	if err := <-done; err != nil {
		return out, fmt.Errorf("fetch envelopes: %w", err)
	}
	return out, nil
}

// matchEnvelope applies the subject/from filters that the server-side
// search does not cover.
func matchEnvelope(env *imap.Envelope, filter Filter) bool {
	if filter.SubjectContains != "" && !strings.Contains(env.Subject, filter.SubjectContains) {
		return false
	}
	if filter.From != "" {
		found := false
		for _, addr := range env.From {
			if strings.Contains(addr.Address(), filter.From) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// FetchAttachments fetches the full source of the message with the given
// Message-Id, parses the MIME tree, and returns every attachment part.
// A message without attachments yields an empty slice, not an error.
func (c *Client) FetchAttachments(messageID string) ([]AttachmentFile, error) {
	if c.cli == nil {
		return nil, errors.New("not connected")
	}
	if _, err := c.cli.Select("INBOX", true); err != nil {
		return nil, fmt.Errorf("select INBOX: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Header.Add("Message-Id", messageID)
	seqNums, err := c.cli.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("search message-id: %w", err)
	}
	if len(seqNums) == 0 {
		c.logger.Warn("message not found by message-id", "message_id", messageID)
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seqNums[0])

	section := &imap.BodySectionName{}
	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.cli.Fetch(seqSet, []imap.FetchItem{section.FetchItem()}, messages)
	}()

	var attachments []AttachmentFile
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		parsed, err := c.parseAttachments(body)
		if err != nil {
			c.logger.Warn("failed to parse message source", "message_id", messageID, "error", err)
			continue
		}
		attachments = append(attachments, parsed...)
	}
	if err := <-done; err != nil {
		return attachments, fmt.Errorf("fetch source: %w", err)
	}

	c.logger.Info("fetched attachments", "message_id", messageID, "count", len(attachments))
	return attachments, nil
}

// parseAttachments walks the MIME parts of a raw message and collects every
// part flagged as an attachment, either by disposition or by carrying a
// filename on its content type.
func (c *Client) parseAttachments(source io.Reader) ([]AttachmentFile, error) {
	mr, err := mail.CreateReader(source)
	if err != nil {
		return nil, fmt.Errorf("create mail reader: %w", err)
	}

	var out []AttachmentFile
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, fmt.Errorf("read part: %w", err)
		}

		filename := ""
		switch h := part.Header.(type) {
		case *mail.AttachmentHeader:
			filename, _ = h.Filename()
			if filename == "" {
				filename = "untitled.pdf"
			}
		case *mail.InlineHeader:
			if _, params, err := h.ContentType(); err == nil {
				filename = params["name"]
			}
		}
		if filename == "" {
			continue
		}

		content, err := io.ReadAll(part.Body)
		if err != nil {
			c.logger.Warn("failed to read attachment body", "filename", filename, "error", err)
			continue
		}
		out = append(out, AttachmentFile{Filename: filename, Content: content})
	}
	return out, nil
}
