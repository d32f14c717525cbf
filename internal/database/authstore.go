package database

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
)

// Auth credential operations. Each session owns a set of named credential
// blobs (keys, identity state) persisted by the engine through
// credentials-updated events. Blobs are stored base64-encoded and, when
// encryption is enabled, AES-GCM encrypted at rest.

// SaveCredential inserts or replaces one credential blob for a session.
func (d *Database) SaveCredential(ctx context.Context, sessionName, credName string, data []byte) error {
	encryptedSession, err := d.encryptor.EncryptForLookupIfEnabled(sessionName)
	if err != nil {
		return fmt.Errorf("failed to encrypt session name: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	encryptedData, err := d.encryptor.EncryptIfEnabled(encoded)
	if err != nil {
		return fmt.Errorf("failed to encrypt credential data: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO auth_credentials (
			session_name, cred_name, cred_data, updated_at
		) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	`

	_, err = d.db.ExecContext(ctx, query, encryptedSession, credName, encryptedData)
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}

	return nil
}

// GetCredential returns one credential blob, or nil when absent.
func (d *Database) GetCredential(ctx context.Context, sessionName, credName string) ([]byte, error) {
	encryptedSession, err := d.encryptor.EncryptForLookupIfEnabled(sessionName)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt session name: %w", err)
	}

	query := `
		SELECT cred_data FROM auth_credentials
		WHERE session_name = ? AND cred_name = ?
	`

	var encryptedData string
	err = d.db.QueryRowContext(ctx, query, encryptedSession, credName).Scan(&encryptedData)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	encoded, err := d.encryptor.DecryptIfEnabled(encryptedData)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credential data: %w", err)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode credential data: %w", err)
	}

	return data, nil
}

// GetAllCredentials loads every credential blob stored for a session.
func (d *Database) GetAllCredentials(ctx context.Context, sessionName string) (map[string][]byte, error) {
	encryptedSession, err := d.encryptor.EncryptForLookupIfEnabled(sessionName)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt session name: %w", err)
	}

	query := `
		SELECT cred_name, cred_data FROM auth_credentials
		WHERE session_name = ?
	`

	rows, err := d.db.QueryContext(ctx, query, encryptedSession)
	if err != nil {
		return nil, fmt.Errorf("failed to query credentials: %w", err)
	}
	defer func() { _ = rows.Close() }()

	creds := make(map[string][]byte)
	for rows.Next() {
		var credName, encryptedData string
		if err := rows.Scan(&credName, &encryptedData); err != nil {
			return nil, fmt.Errorf("failed to scan credential row: %w", err)
		}

		encoded, err := d.encryptor.DecryptIfEnabled(encryptedData)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt credential %q: %w", credName, err)
		}

		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode credential %q: %w", credName, err)
		}

		creds[credName] = data
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate credentials: %w", err)
	}

	return creds, nil
}

// ClearCredentials deletes every credential blob stored for a session. Called
// when the engine reports a logged-out disconnect.
func (d *Database) ClearCredentials(ctx context.Context, sessionName string) error {
	encryptedSession, err := d.encryptor.EncryptForLookupIfEnabled(sessionName)
	if err != nil {
		return fmt.Errorf("failed to encrypt session name: %w", err)
	}

	query := `DELETE FROM auth_credentials WHERE session_name = ?`

	_, err = d.db.ExecContext(ctx, query, encryptedSession)
	if err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}

	return nil
}
