package storage

// Schema contains SQL schema definitions for the store
const Schema = `
-- Servers table
CREATE TABLE IF NOT EXISTS servers (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    incoming_host TEXT NOT NULL,
    incoming_port INTEGER NOT NULL,
    incoming_security TEXT NOT NULL DEFAULT 'ssl',
    outgoing_host TEXT NOT NULL,
    outgoing_port INTEGER NOT NULL,
    outgoing_security TEXT NOT NULL DEFAULT 'starttls',
    smtp_auth TEXT NOT NULL DEFAULT 'plain',
    auth_mode TEXT NOT NULL DEFAULT 'password',
    owner_type TEXT NOT NULL DEFAULT 'account',
    tenant_id INTEGER NOT NULL DEFAULT 0,
    domains TEXT NOT NULL DEFAULT '[]',
    use_threading INTEGER NOT NULL DEFAULT 1,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Accounts table
CREATE TABLE IF NOT EXISTS accounts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email TEXT NOT NULL UNIQUE,
    login TEXT NOT NULL DEFAULT '',
    password TEXT NOT NULL DEFAULT '',
    oauth_token TEXT NOT NULL DEFAULT '',
    server_id INTEGER NOT NULL DEFAULT 0,
    tenant_id INTEGER NOT NULL DEFAULT 0,
    folders_order TEXT NOT NULL DEFAULT '[]',
    use_threading INTEGER NOT NULL DEFAULT 1,
    use_search INTEGER NOT NULL DEFAULT 1,
    properties TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- System folder mapping, one row per canonical type
CREATE TABLE IF NOT EXISTS system_folders (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id INTEGER NOT NULL,
    folder_full_name TEXT NOT NULL,
    type TEXT NOT NULL,
    FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE,
    UNIQUE(account_id, type)
);

CREATE INDEX IF NOT EXISTS idx_accounts_server_id ON accounts(server_id);
CREATE INDEX IF NOT EXISTS idx_servers_owner ON servers(owner_type, tenant_id);
CREATE INDEX IF NOT EXISTS idx_system_folders_account_id ON system_folders(account_id);
`
