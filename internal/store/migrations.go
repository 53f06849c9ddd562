package store

// The collection name is validated against collectionPattern before it is
// interpolated here.
const schema = `
CREATE TABLE IF NOT EXISTS %[1]s (
    message_id TEXT PRIMARY KEY,
    sender TEXT NOT NULL DEFAULT '',
    subject TEXT NOT NULL DEFAULT '',
    received_at DATETIME,
    body TEXT NOT NULL DEFAULT '',
    archived_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_sender ON %[1]s(sender);
CREATE INDEX IF NOT EXISTS idx_%[1]s_received ON %[1]s(received_at);
`
