package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"wagate/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS contacts (
	contact_id    TEXT PRIMARY KEY,
	phone_number  TEXT NOT NULL DEFAULT '',
	name          TEXT NOT NULL DEFAULT '',
	push_name     TEXT NOT NULL DEFAULT '',
	short_name    TEXT NOT NULL DEFAULT '',
	is_blocked    BOOLEAN NOT NULL DEFAULT 0,
	is_group      BOOLEAN NOT NULL DEFAULT 0,
	is_my_contact BOOLEAN NOT NULL DEFAULT 0,
	cached_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS auth_credentials (
	session_name TEXT NOT NULL,
	cred_name    TEXT NOT NULL,
	cred_data    TEXT NOT NULL,
	updated_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (session_name, cred_name)
);
`

// Database is the sqlite-backed store for cached contacts and per-session
// auth credential material.
type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

// New opens (or creates) the sqlite database at the given URI and applies the
// schema.
func New(databaseURI string) (*Database, error) {
	if len(databaseURI) == 0 || databaseURI[0] == '\x00' {
		return nil, fmt.Errorf("invalid database URI")
	}

	db, err := sql.Open("sqlite3", databaseURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	encryptor, err := NewEncryptor()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: encryptor}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Contact operations

// SaveContact saves or updates a contact in the database
func (d *Database) SaveContact(ctx context.Context, contact *models.Contact) error {
	encryptedContactID, err := d.encryptor.EncryptForLookupIfEnabled(contact.ContactID)
	if err != nil {
		return fmt.Errorf("failed to encrypt contact ID: %w", err)
	}

	encryptedPhone, err := d.encryptor.EncryptIfEnabled(contact.PhoneNumber)
	if err != nil {
		return fmt.Errorf("failed to encrypt phone number: %w", err)
	}

	encryptedName, err := d.encryptor.EncryptIfEnabled(contact.Name)
	if err != nil {
		return fmt.Errorf("failed to encrypt name: %w", err)
	}

	encryptedPushName, err := d.encryptor.EncryptIfEnabled(contact.PushName)
	if err != nil {
		return fmt.Errorf("failed to encrypt push name: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO contacts (
			contact_id, phone_number, name, push_name, short_name,
			is_blocked, is_group, is_my_contact, cached_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`

	_, err = d.db.ExecContext(ctx, query,
		encryptedContactID, encryptedPhone, encryptedName, encryptedPushName, contact.ShortName,
		contact.IsBlocked, contact.IsGroup, contact.IsMyContact)
	if err != nil {
		return fmt.Errorf("failed to save contact: %w", err)
	}

	return nil
}

// GetContact retrieves a contact by its JID
func (d *Database) GetContact(ctx context.Context, contactID string) (*models.Contact, error) {
	encryptedContactID, err := d.encryptor.EncryptForLookupIfEnabled(contactID)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt contact ID: %w", err)
	}

	query := `
		SELECT contact_id, phone_number, name, push_name, short_name,
			   is_blocked, is_group, is_my_contact, cached_at
		FROM contacts
		WHERE contact_id = ?
	`

	row := d.db.QueryRowContext(ctx, query, encryptedContactID)

	var contact models.Contact
	var encryptedPhone, encryptedName, encryptedPushName string

	err = row.Scan(&contact.ContactID, &encryptedPhone, &encryptedName, &encryptedPushName,
		&contact.ShortName, &contact.IsBlocked, &contact.IsGroup, &contact.IsMyContact, &contact.CachedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan contact: %w", err)
	}

	contact.ContactID = contactID

	contact.PhoneNumber, err = d.encryptor.DecryptIfEnabled(encryptedPhone)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt phone number: %w", err)
	}

	contact.Name, err = d.encryptor.DecryptIfEnabled(encryptedName)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt name: %w", err)
	}

	contact.PushName, err = d.encryptor.DecryptIfEnabled(encryptedPushName)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt push name: %w", err)
	}

	return &contact, nil
}

// GetContactByPhone retrieves a contact by phone number
func (d *Database) GetContactByPhone(ctx context.Context, phoneNumber string) (*models.Contact, error) {
	contactID := phoneNumber
	if !strings.Contains(contactID, "@") {
		contactID = phoneNumber + "@s.whatsapp.net"
	}

	return d.GetContact(ctx, contactID)
}

// CleanupOldContacts removes contacts older than the specified days
func (d *Database) CleanupOldContacts(retentionDays int) error {
	query := `
		DELETE FROM contacts
		WHERE cached_at < datetime('now', '-' || ? || ' days')
	`

	_, err := d.db.Exec(query, retentionDays)
	if err != nil {
		return fmt.Errorf("failed to cleanup old contacts: %w", err)
	}

	return nil
}
