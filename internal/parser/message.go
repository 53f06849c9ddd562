package parser

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"

	"github.com/mailvault/mailvault/pkg/models"
)

// ErrParse means no usable record could be extracted from the raw message.
// A per-message failure, never fatal to a run.
var ErrParse = errors.New("unparsable message")

// Parser turns raw RFC822 bytes into normalized records. Parsing is
// deterministic: the same bytes always yield the same record.
type Parser struct{}

// New creates a message parser.
func New() *Parser {
	return &Parser{}
}

// Parse decodes the sender, subject, date and message id headers and the
// primary text body. A plain-text part is preferred; an HTML part is
// stripped to text when no plain part exists. Missing optional headers
// become empty or zero values.
func (p *Parser) Parse(raw []byte) (*models.Record, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && (mr == nil || !message.IsUnknownCharset(err)) {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	rec := &models.Record{}

	if addrs, err := mr.Header.AddressList("From"); err == nil && len(addrs) > 0 {
		rec.Sender = addrs[0].Address
	}
	if subject, err := mr.Header.Subject(); err == nil {
		rec.Subject = subject
	}
	if date, err := mr.Header.Date(); err == nil {
		rec.ReceivedAt = date
	}

	rec.MessageID, _ = mr.Header.MessageID()
	if rec.MessageID == "" {
		// No Message-ID header: derive a stable identity from the message
		// content so repeated runs keep mapping it to the same record.
		sum := sha256.Sum256(raw)
		rec.MessageID = "sha256:" + hex.EncodeToString(sum[:])
	}

	bodyText, bodyHTML, found := collectTextParts(mr)
	if !found {
		return nil, fmt.Errorf("%w: no text body", ErrParse)
	}

	rec.Body = bodyText
	if rec.Body == "" && bodyHTML != "" {
		stripped, err := StripHTML(bodyHTML)
		if err != nil {
			return nil, fmt.Errorf("%w: strip html body: %v", ErrParse, err)
		}
		rec.Body = stripped
	}

	return rec, nil
}

// collectTextParts walks the inline parts and returns the first plain and
// HTML bodies. found reports whether any text part existed at all, even an
// empty one.
func collectTextParts(mr *mail.Reader) (bodyText, bodyHTML string, found bool) {
	var havePlain, haveHTML bool
	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		ct, _, _ := h.ContentType()
		if !strings.HasPrefix(ct, "text/") {
			continue
		}

		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}

		switch {
		case strings.HasPrefix(ct, "text/plain") && !havePlain:
			bodyText = string(body)
			havePlain = true
		case strings.HasPrefix(ct, "text/html") && !haveHTML:
			bodyHTML = string(body)
			haveHTML = true
		}
	}
	return bodyText, bodyHTML, havePlain || haveHTML
}
