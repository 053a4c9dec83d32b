package sql

import (
	"database/sql"
	"fmt"
)

func (c *conn) migrate() error {
	if _, err := c.db.Exec(`
		create table if not exists migrations (
			num integer not null,
			applied_at text not null
		);
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	for {
		var (
			num   sql.NullInt64
			n     int
			done  bool
			txErr error
		)
		txErr = c.withTx(func(tx *sql.Tx) error {
			if err := tx.QueryRow(`select max(num) from migrations;`).Scan(&num); err != nil {
				return fmt.Errorf("select max migration: %w", err)
			}
			if num.Valid {
				n = int(num.Int64)
			}
			if n >= len(migrations) {
				done = true
				return nil
			}
			m := migrations[n]
			if _, err := tx.Exec(m); err != nil {
				return fmt.Errorf("migration %d failed: %w", n+1, err)
			}
			if _, err := tx.Exec(`insert into migrations (num, applied_at) values (?, datetime('now'));`, n+1); err != nil {
				return fmt.Errorf("update migrations table: %w", err)
			}
			return nil
		})
		if txErr != nil {
			return txErr
		}
		if done {
			return nil
		}
	}
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error or panic.
func (c *conn) withTx(fn func(*sql.Tx) error) (err error) {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}

// migrations holds the schema in the order it must be applied. Later
// releases append migrations rather than editing earlier ones, so a
// node upgrading in place replays only what it hasn't seen yet.
var migrations = []string{
	`
	create table users (
		id text not null primary key,
		username text not null unique,
		display_name text,
		is_admin integer not null default 0,
		created_at text not null
	);

	create table passkey_credentials (
		id text not null primary key,
		user_id text not null references users(id),
		credential_blob blob not null,
		created_at text not null
	);
	create index passkey_credentials_user_id on passkey_credentials(user_id);

	create table sessions (
		id text not null primary key,
		token text not null unique,
		user_id text not null references users(id),
		expires_at text not null
	);

	create table mesh_nodes (
		id text not null primary key,
		name text not null,
		hostname text not null,
		port integer not null,
		status text not null default 'offline',
		capabilities text not null default '[]',
		last_seen text not null,
		created_at text not null,
		metadata text,
		is_current integer not null default 0
	);

	create table pairing_states (
		token text not null primary key,
		state_json blob not null,
		created_at text not null,
		updated_at text not null
	);

	create table pairing_events (
		id text not null primary key,
		token text not null,
		event_type text not null,
		event_data text,
		occurred_at text not null
	);
	create index pairing_events_token on pairing_events(token);

	create table issued_tokens (
		token text not null primary key,
		issued_to_node_id text not null,
		permissions text not null default '[]',
		expires_at text not null,
		revoked_at text,
		last_used_at text
	);
	create index issued_tokens_node_id on issued_tokens(issued_to_node_id);

	create table peer_tokens (
		peer_node_id text not null primary key,
		token text not null,
		permissions text not null default '[]',
		expires_at text not null
	);

	create table device_sessions (
		session_token text not null primary key,
		node_id text not null,
		expires_at text not null
	);
	`,
}
