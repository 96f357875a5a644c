package repository

const schema = `
CREATE TABLE IF NOT EXISTS brokers (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    email_host TEXT NOT NULL,
    email_user TEXT NOT NULL,
    email_password_encrypted TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS emails (
    id TEXT PRIMARY KEY,
    broker_id TEXT NOT NULL REFERENCES brokers(id) ON DELETE CASCADE,
    message_id TEXT NOT NULL UNIQUE,
    from_addr TEXT NOT NULL,
    subject TEXT NOT NULL DEFAULT '',
    received_at DATETIME NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS attachments (
    id TEXT PRIMARY KEY,
    email_id TEXT NOT NULL REFERENCES emails(id) ON DELETE CASCADE,
    file_path TEXT NOT NULL,
    file_type TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS invoices (
    id TEXT PRIMARY KEY,
    broker_id TEXT NOT NULL REFERENCES brokers(id) ON DELETE CASCADE,
    email_id TEXT NOT NULL REFERENCES emails(id),
    pdf_path TEXT NOT NULL,
    invoice_number TEXT NOT NULL,
    carrier TEXT NOT NULL DEFAULT '',
    amount REAL NOT NULL DEFAULT 0,
    currency TEXT NOT NULL DEFAULT 'USD',
    due_date DATETIME,
    status TEXT NOT NULL DEFAULT 'UNPAID',
    extracted_json TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(broker_id, invoice_number)
);

CREATE INDEX IF NOT EXISTS idx_emails_broker ON emails(broker_id);
CREATE INDEX IF NOT EXISTS idx_attachments_email ON attachments(email_id);
CREATE INDEX IF NOT EXISTS idx_invoices_broker ON invoices(broker_id);
CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices(broker_id, status);
`
