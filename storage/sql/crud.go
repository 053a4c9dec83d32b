package sql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/dorky-robot/salita-mesh/storage"
)

var _ storage.Storage = (*conn)(nil)

func marshalStrings(ss []string) ([]byte, error) {
	if ss == nil {
		ss = []string{}
	}
	return json.Marshal(ss)
}

func unmarshalStrings(b []byte) ([]string, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var ss []string
	if err := json.Unmarshal(b, &ss); err != nil {
		return nil, err
	}
	return ss, nil
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func scanNullableTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *conn) CreateUser(ctx context.Context, u storage.User) error {
	_, err := c.db.ExecContext(ctx, `
		insert into users (id, username, display_name, is_admin, created_at)
		values (?, ?, ?, ?, ?)
	`, u.ID, u.Username, u.DisplayName, u.IsAdmin, formatTime(u.CreatedAt))
	if isPrimaryKeyConflict(err) {
		return storage.ErrAlreadyExists
	}
	return err
}

func (c *conn) scanUser(row *sql.Row) (storage.User, error) {
	var (
		u         storage.User
		createdAt string
	)
	err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.IsAdmin, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.User{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.User{}, err
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return storage.User{}, err
	}
	return u, nil
}

func (c *conn) GetUser(ctx context.Context, id string) (storage.User, error) {
	row := c.db.QueryRowContext(ctx, `select id, username, display_name, is_admin, created_at from users where id = ?`, id)
	return c.scanUser(row)
}

func (c *conn) GetUserByUsername(ctx context.Context, username string) (storage.User, error) {
	row := c.db.QueryRowContext(ctx, `select id, username, display_name, is_admin, created_at from users where username = ?`, username)
	return c.scanUser(row)
}

func (c *conn) SoleUser(ctx context.Context) (storage.User, error) {
	row := c.db.QueryRowContext(ctx, `select id, username, display_name, is_admin, created_at from users limit 1`)
	return c.scanUser(row)
}

func (c *conn) CreatePasskeyCredential(ctx context.Context, cr storage.PasskeyCredential) error {
	_, err := c.db.ExecContext(ctx, `
		insert into passkey_credentials (id, user_id, credential_blob, created_at)
		values (?, ?, ?, ?)
	`, cr.ID, cr.UserID, cr.CredentialBlob, formatTime(cr.CreatedAt))
	if isPrimaryKeyConflict(err) {
		return storage.ErrAlreadyExists
	}
	return err
}

func (c *conn) ListPasskeyCredentialsByUser(ctx context.Context, userID string) ([]storage.PasskeyCredential, error) {
	rows, err := c.db.QueryContext(ctx, `
		select id, user_id, credential_blob, created_at from passkey_credentials where user_id = ? order by id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.PasskeyCredential
	for rows.Next() {
		var (
			cr        storage.PasskeyCredential
			createdAt string
		)
		if err := rows.Scan(&cr.ID, &cr.UserID, &cr.CredentialBlob, &createdAt); err != nil {
			return nil, err
		}
		if cr.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}

func (c *conn) UpdatePasskeyCredential(ctx context.Context, id string, updater func(storage.PasskeyCredential) (storage.PasskeyCredential, error)) error {
	return c.withTx(func(tx *sql.Tx) error {
		var (
			cr        storage.PasskeyCredential
			createdAt string
		)
		row := tx.QueryRow(`select id, user_id, credential_blob, created_at from passkey_credentials where id = ?`, id)
		if err := row.Scan(&cr.ID, &cr.UserID, &cr.CredentialBlob, &createdAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrNotFound
			}
			return err
		}
		var err error
		if cr.CreatedAt, err = parseTime(createdAt); err != nil {
			return err
		}
		updated, err := updater(cr)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`update passkey_credentials set credential_blob = ? where id = ?`, updated.CredentialBlob, id)
		return err
	})
}

func (c *conn) CreateSession(ctx context.Context, s storage.Session) error {
	_, err := c.db.ExecContext(ctx, `
		insert into sessions (id, token, user_id, expires_at) values (?, ?, ?, ?)
	`, s.ID, s.Token, s.UserID, formatTime(s.ExpiresAt))
	if isPrimaryKeyConflict(err) {
		return storage.ErrAlreadyExists
	}
	return err
}

func (c *conn) GetSession(ctx context.Context, token string) (storage.Session, error) {
	var (
		s         storage.Session
		expiresAt string
	)
	row := c.db.QueryRowContext(ctx, `select id, token, user_id, expires_at from sessions where token = ?`, token)
	err := row.Scan(&s.ID, &s.Token, &s.UserID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Session{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Session{}, err
	}
	if s.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return storage.Session{}, err
	}
	return s, nil
}

func (c *conn) DeleteSession(ctx context.Context, token string) error {
	_, err := c.db.ExecContext(ctx, `delete from sessions where token = ?`, token)
	return err
}

func (c *conn) UpsertMeshNode(ctx context.Context, n storage.MeshNode) error {
	caps, err := marshalStrings(n.Capabilities)
	if err != nil {
		return err
	}
	now := formatTime(n.LastSeen)
	_, err = c.db.ExecContext(ctx, `
		insert into mesh_nodes (id, name, hostname, port, status, capabilities, last_seen, created_at, metadata, is_current)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		on conflict(id) do update set
			name = excluded.name,
			hostname = excluded.hostname,
			port = excluded.port,
			status = excluded.status,
			capabilities = excluded.capabilities,
			last_seen = excluded.last_seen,
			metadata = excluded.metadata
	`, n.ID, n.Name, n.Hostname, n.Port, string(n.Status), caps, now, formatTime(n.CreatedAt), n.Metadata)
	return err
}

func (c *conn) scanMeshNode(row *sql.Row) (storage.MeshNode, error) {
	var (
		n                    storage.MeshNode
		status               string
		caps                 []byte
		lastSeen, createdAt  string
		isCurrent            int
	)
	err := row.Scan(&n.ID, &n.Name, &n.Hostname, &n.Port, &status, &caps, &lastSeen, &createdAt, &n.Metadata, &isCurrent)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.MeshNode{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.MeshNode{}, err
	}
	n.Status = storage.NodeStatus(status)
	n.IsCurrent = isCurrent != 0
	if n.Capabilities, err = unmarshalStrings(caps); err != nil {
		return storage.MeshNode{}, err
	}
	if n.LastSeen, err = parseTime(lastSeen); err != nil {
		return storage.MeshNode{}, err
	}
	if n.CreatedAt, err = parseTime(createdAt); err != nil {
		return storage.MeshNode{}, err
	}
	return n, nil
}

func (c *conn) GetMeshNode(ctx context.Context, id string) (storage.MeshNode, error) {
	row := c.db.QueryRowContext(ctx, `
		select id, name, hostname, port, status, capabilities, last_seen, created_at, metadata, is_current
		from mesh_nodes where id = ?
	`, id)
	return c.scanMeshNode(row)
}

func (c *conn) ListMeshNodes(ctx context.Context) ([]storage.MeshNode, error) {
	rows, err := c.db.QueryContext(ctx, `
		select id, name, hostname, port, status, capabilities, last_seen, created_at, metadata, is_current
		from mesh_nodes order by id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.MeshNode
	for rows.Next() {
		var (
			n                   storage.MeshNode
			status              string
			caps                []byte
			lastSeen, createdAt string
			isCurrent           int
		)
		if err := rows.Scan(&n.ID, &n.Name, &n.Hostname, &n.Port, &status, &caps, &lastSeen, &createdAt, &n.Metadata, &isCurrent); err != nil {
			return nil, err
		}
		n.Status = storage.NodeStatus(status)
		n.IsCurrent = isCurrent != 0
		if n.Capabilities, err = unmarshalStrings(caps); err != nil {
			return nil, err
		}
		if n.LastSeen, err = parseTime(lastSeen); err != nil {
			return nil, err
		}
		if n.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (c *conn) UpdateMeshNodeStatus(ctx context.Context, id string, status storage.NodeStatus, lastSeen time.Time) error {
	res, err := c.db.ExecContext(ctx, `update mesh_nodes set status = ?, last_seen = ? where id = ?`, string(status), formatTime(lastSeen), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (c *conn) CurrentNode(ctx context.Context) (storage.MeshNode, error) {
	row := c.db.QueryRowContext(ctx, `
		select id, name, hostname, port, status, capabilities, last_seen, created_at, metadata, is_current
		from mesh_nodes where is_current = 1 limit 1
	`)
	return c.scanMeshNode(row)
}

func (c *conn) SetCurrentNode(ctx context.Context, n storage.MeshNode) error {
	return c.withTx(func(tx *sql.Tx) error {
		caps, err := marshalStrings(n.Capabilities)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`update mesh_nodes set is_current = 0`); err != nil {
			return err
		}
		_, err = tx.Exec(`
			insert into mesh_nodes (id, name, hostname, port, status, capabilities, last_seen, created_at, metadata, is_current)
			values (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
			on conflict(id) do update set
				name = excluded.name, hostname = excluded.hostname, port = excluded.port,
				status = excluded.status, capabilities = excluded.capabilities,
				last_seen = excluded.last_seen, metadata = excluded.metadata, is_current = 1
		`, n.ID, n.Name, n.Hostname, n.Port, string(n.Status), caps, formatTime(n.LastSeen), formatTime(n.CreatedAt), n.Metadata)
		return err
	})
}

func (c *conn) SavePairingState(ctx context.Context, r storage.PairingStateRecord) error {
	_, err := c.db.ExecContext(ctx, `
		insert into pairing_states (token, state_json, created_at, updated_at)
		values (?, ?, ?, ?)
		on conflict(token) do update set state_json = excluded.state_json, updated_at = excluded.updated_at
	`, r.Token, r.StateJSON, formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	return err
}

func (c *conn) GetPairingState(ctx context.Context, token string) (storage.PairingStateRecord, error) {
	var (
		r                    storage.PairingStateRecord
		createdAt, updatedAt string
	)
	row := c.db.QueryRowContext(ctx, `select token, state_json, created_at, updated_at from pairing_states where token = ?`, token)
	err := row.Scan(&r.Token, &r.StateJSON, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.PairingStateRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.PairingStateRecord{}, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return storage.PairingStateRecord{}, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return storage.PairingStateRecord{}, err
	}
	return r, nil
}

func (c *conn) DeletePairingState(ctx context.Context, token string) error {
	_, err := c.db.ExecContext(ctx, `delete from pairing_states where token = ?`, token)
	return err
}

func (c *conn) ListPairingStates(ctx context.Context) ([]storage.PairingStateRecord, error) {
	rows, err := c.db.QueryContext(ctx, `select token, state_json, created_at, updated_at from pairing_states order by token`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.PairingStateRecord
	for rows.Next() {
		var (
			r                    storage.PairingStateRecord
			createdAt, updatedAt string
		)
		if err := rows.Scan(&r.Token, &r.StateJSON, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (c *conn) LogPairingEvent(ctx context.Context, e storage.PairingEvent) error {
	_, err := c.db.ExecContext(ctx, `
		insert into pairing_events (id, token, event_type, event_data, occurred_at)
		values (?, ?, ?, ?, ?)
	`, e.ID, e.Token, e.EventType, e.EventData, formatTime(e.OccurredAt))
	return err
}

// RegisterNodeAtomic mirrors register_node_atomic in the Rust daemon's
// repository: upsert the mesh node, insert the device session, and issue
// the peer token in a single BEGIN IMMEDIATE transaction so a crash
// between writes can never leave a node registered without a usable
// token or vice versa.
func (c *conn) RegisterNodeAtomic(ctx context.Context, p storage.RegisterNodeParams) error {
	return c.withTx(func(tx *sql.Tx) error {
		caps, err := marshalStrings(p.Capabilities)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			insert into mesh_nodes (id, name, hostname, port, status, capabilities, last_seen, created_at, is_current)
			values (?, ?, ?, ?, 'offline', ?, ?, ?, 0)
			on conflict(id) do update set
				name = excluded.name, hostname = excluded.hostname, port = excluded.port, last_seen = excluded.last_seen
		`, p.NodeID, p.Name, p.Hostname, p.Port, caps, formatTime(p.RegisteredAt), formatTime(p.RegisteredAt)); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			insert into device_sessions (session_token, node_id, expires_at) values (?, ?, ?)
		`, p.SessionToken, p.NodeID, formatTime(p.SessionExpiresAt)); err != nil {
			return err
		}

		perms, err := marshalStrings(p.PeerPermissions)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			insert into issued_tokens (token, issued_to_node_id, permissions, expires_at)
			values (?, ?, ?, ?)
		`, p.PeerToken, p.NodeID, perms, formatTime(p.PeerTokenExpiry))
		return err
	})
}

func (c *conn) GetIssuedToken(ctx context.Context, token string) (storage.IssuedToken, error) {
	var (
		t                     storage.IssuedToken
		perms                 []byte
		expiresAt             string
		revokedAt, lastUsedAt sql.NullString
	)
	row := c.db.QueryRowContext(ctx, `
		select token, issued_to_node_id, permissions, expires_at, revoked_at, last_used_at
		from issued_tokens where token = ?
	`, token)
	err := row.Scan(&t.Token, &t.IssuedToNodeID, &perms, &expiresAt, &revokedAt, &lastUsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.IssuedToken{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.IssuedToken{}, err
	}
	if t.Permissions, err = unmarshalStrings(perms); err != nil {
		return storage.IssuedToken{}, err
	}
	if t.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return storage.IssuedToken{}, err
	}
	if t.RevokedAt, err = scanNullableTime(revokedAt); err != nil {
		return storage.IssuedToken{}, err
	}
	if t.LastUsedAt, err = scanNullableTime(lastUsedAt); err != nil {
		return storage.IssuedToken{}, err
	}
	return t, nil
}

func (c *conn) IssuePeerToken(ctx context.Context, t storage.IssuedToken) error {
	perms, err := marshalStrings(t.Permissions)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		insert into issued_tokens (token, issued_to_node_id, permissions, expires_at)
		values (?, ?, ?, ?)
	`, t.Token, t.IssuedToNodeID, perms, formatTime(t.ExpiresAt))
	return err
}

func (c *conn) RevokeIssuedToken(ctx context.Context, token string, revokedAt time.Time) error {
	res, err := c.db.ExecContext(ctx, `update issued_tokens set revoked_at = ? where token = ?`, formatTime(revokedAt), token)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (c *conn) RenewIssuedToken(ctx context.Context, token string, expiresAt time.Time, lastUsedAt time.Time) error {
	res, err := c.db.ExecContext(ctx, `
		update issued_tokens set expires_at = ?, last_used_at = ? where token = ?
	`, formatTime(expiresAt), formatTime(lastUsedAt), token)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (c *conn) TouchIssuedToken(ctx context.Context, token string, lastUsedAt time.Time) error {
	res, err := c.db.ExecContext(ctx, `update issued_tokens set last_used_at = ? where token = ?`, formatTime(lastUsedAt), token)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (c *conn) UpsertPeerToken(ctx context.Context, t storage.PeerToken) error {
	perms, err := marshalStrings(t.Permissions)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		insert into peer_tokens (peer_node_id, token, permissions, expires_at)
		values (?, ?, ?, ?)
		on conflict(peer_node_id) do update set token = excluded.token, permissions = excluded.permissions, expires_at = excluded.expires_at
	`, t.PeerNodeID, t.Token, perms, formatTime(t.ExpiresAt))
	return err
}

func (c *conn) GetPeerToken(ctx context.Context, peerNodeID string) (storage.PeerToken, error) {
	var (
		t         storage.PeerToken
		perms     []byte
		expiresAt string
	)
	row := c.db.QueryRowContext(ctx, `select peer_node_id, token, permissions, expires_at from peer_tokens where peer_node_id = ?`, peerNodeID)
	err := row.Scan(&t.PeerNodeID, &t.Token, &perms, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.PeerToken{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.PeerToken{}, err
	}
	if t.Permissions, err = unmarshalStrings(perms); err != nil {
		return storage.PeerToken{}, err
	}
	if t.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return storage.PeerToken{}, err
	}
	return t, nil
}

func (c *conn) GarbageCollect(ctx context.Context, now time.Time) (storage.GCResult, error) {
	var result storage.GCResult
	err := c.withTx(func(tx *sql.Tx) error {
		nowStr := formatTime(now)

		res, err := tx.ExecContext(ctx, `delete from sessions where expires_at < ?`, nowStr)
		if err != nil {
			return err
		}
		if result.Sessions, err = res.RowsAffected(); err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx, `delete from device_sessions where expires_at < ?`, nowStr)
		if err != nil {
			return err
		}
		if result.DeviceSessions, err = res.RowsAffected(); err != nil {
			return err
		}

		// Mirrors purge_expired in the Rust daemon's repository.rs: pairing
		// states older than a day with no completion are abandoned,
		// since internal/pairing already purges states it recognizes as
		// expired or failed via DeletePairingState on the request path.
		res, err = tx.ExecContext(ctx, `delete from pairing_states where updated_at < ?`, formatTime(now.Add(-24*time.Hour)))
		if err != nil {
			return err
		}
		result.PairingStates, err = res.RowsAffected()
		return err
	})
	return result, err
}
