package sqlite

// Durable schema: accounts, tribes and wallets are mutated by the
// provisioning path; roles is a lookup table; event_states, events and
// event_subscribers are reference tables carried by the schema but not
// written by the registration core.
const schema = `
CREATE TABLE IF NOT EXISTS wallets (
    wallet_token TEXT PRIMARY KEY,
    balance REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS tribes (
    tribe_id INTEGER PRIMARY KEY AUTOINCREMENT,
    tribe_name TEXT NOT NULL UNIQUE,
    wallet_token TEXT NOT NULL,
    FOREIGN KEY(wallet_token) REFERENCES wallets(wallet_token)
);

CREATE TABLE IF NOT EXISTS roles (
    role_id INTEGER PRIMARY KEY,
    role_name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS accounts (
    account_id INTEGER PRIMARY KEY AUTOINCREMENT,
    external_id INTEGER NOT NULL UNIQUE,
    handle TEXT UNIQUE,
    display_name TEXT NOT NULL,
    tribe_id INTEGER NOT NULL,
    role TEXT NOT NULL,
    wallet_token TEXT NOT NULL UNIQUE,
    locale TEXT NOT NULL,
    bio TEXT,
    avatar_path TEXT,
    FOREIGN KEY(tribe_id) REFERENCES tribes(tribe_id),
    FOREIGN KEY(wallet_token) REFERENCES wallets(wallet_token),
    FOREIGN KEY(role) REFERENCES roles(role_name)
);

CREATE TABLE IF NOT EXISTS event_states (
    event_state_id INTEGER PRIMARY KEY,
    state TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
    event_id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    description TEXT,
    scheduled_at TEXT NOT NULL,
    owner_id INTEGER NOT NULL,
    approver_id INTEGER NOT NULL,
    state INTEGER NOT NULL,
    FOREIGN KEY(owner_id) REFERENCES accounts(account_id),
    FOREIGN KEY(approver_id) REFERENCES accounts(account_id),
    FOREIGN KEY(state) REFERENCES event_states(event_state_id)
);

CREATE TABLE IF NOT EXISTS event_subscribers (
    event_id INTEGER NOT NULL,
    subscriber_id INTEGER NOT NULL,
    FOREIGN KEY(event_id) REFERENCES events(event_id),
    FOREIGN KEY(subscriber_id) REFERENCES accounts(account_id)
);
`

const seed = `
INSERT OR IGNORE INTO roles (role_id, role_name) VALUES
    (0, 'user'),
    (1, 'admin');

INSERT OR IGNORE INTO event_states (event_state_id, state) VALUES
    (0, 'on_review'),
    (1, 'approved'),
    (2, 'rejected'),
    (3, 'in_progress'),
    (4, 'completed');
`
