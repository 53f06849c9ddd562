package parser

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

const plainMessage = `From: Alice <alice@example.com>
To: archive@example.com
Subject: Quarterly report
Date: Wed, 11 May 2022 14:31:59 +0000
Message-ID: <report-42@example.com>
Content-Type: text/plain; charset=utf-8

The numbers are in.
`

func TestParsePlainText(t *testing.T) {
	rec, err := New().Parse(crlf(plainMessage))
	require.NoError(t, err)

	assert.Equal(t, "report-42@example.com", rec.MessageID)
	assert.Equal(t, "alice@example.com", rec.Sender)
	assert.Equal(t, "Quarterly report", rec.Subject)
	assert.Equal(t, time.Date(2022, 5, 11, 14, 31, 59, 0, time.UTC), rec.ReceivedAt.UTC())
	assert.Equal(t, "The numbers are in.\r\n", rec.Body)
}

func TestParseDeterministic(t *testing.T) {
	p := New()
	first, err := p.Parse(crlf(plainMessage))
	require.NoError(t, err)
	second, err := p.Parse(crlf(plainMessage))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParseHTMLFallback(t *testing.T) {
	raw := crlf(`From: bob@example.com
Subject: Newsletter
Message-ID: <news-1@example.com>
Content-Type: text/html; charset=utf-8

<html><head><style>p { color: red }</style></head>
<body><p>Hello <b>there</b></p><script>alert(1)</script><p>Bye</p></body></html>
`)

	rec, err := New().Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "Hello there\nBye", rec.Body)
}

func TestParsePrefersPlainOverHTML(t *testing.T) {
	raw := crlf(`From: bob@example.com
Subject: Both parts
Message-ID: <both@example.com>
Content-Type: multipart/alternative; boundary=BOUNDARY

--BOUNDARY
Content-Type: text/html; charset=utf-8

<p>html version</p>
--BOUNDARY
Content-Type: text/plain; charset=utf-8

plain version
--BOUNDARY--
`)

	rec, err := New().Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "plain version", rec.Body)
}

func TestParseMissingMessageID(t *testing.T) {
	raw := crlf(`From: carol@example.com
Subject: No id here
Content-Type: text/plain

body
`)

	p := New()
	first, err := p.Parse(raw)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.MessageID, "sha256:"), "got %q", first.MessageID)

	// The fallback identity is stable across parses.
	second, err := p.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, first.MessageID, second.MessageID)
}

func TestParseMissingOptionalHeaders(t *testing.T) {
	raw := crlf(`Message-ID: <bare@example.com>
Content-Type: text/plain

body only
`)

	rec, err := New().Parse(raw)
	require.NoError(t, err)
	assert.Empty(t, rec.Sender)
	assert.Empty(t, rec.Subject)
	assert.True(t, rec.ReceivedAt.IsZero())
}

func TestParseEncodedSubject(t *testing.T) {
	raw := crlf(`From: dave@example.com
Subject: =?utf-8?q?Caf=C3=A9_receipt?=
Message-ID: <cafe@example.com>
Content-Type: text/plain

thanks
`)

	rec, err := New().Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "Café receipt", rec.Subject)
}

func TestParseNoTextPart(t *testing.T) {
	raw := crlf(`From: eve@example.com
Subject: Binary only
Message-ID: <bin@example.com>
Content-Type: application/octet-stream

AAAA
`)

	_, err := New().Parse(raw)
	assert.ErrorIs(t, err, ErrParse)
}

func TestParseGarbage(t *testing.T) {
	_, err := New().Parse([]byte("\x00\x01\x02 not a message"))
	assert.ErrorIs(t, err, ErrParse)
}
