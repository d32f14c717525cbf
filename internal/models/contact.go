package models

import (
	"strings"
	"time"

	"wagate/pkg/engine/types"
)

// Contact represents a cached WhatsApp contact in the database
type Contact struct {
	ID          int       `json:"id"`
	ContactID   string    `json:"contact_id"`   // WhatsApp JID like "1234567890@s.whatsapp.net"
	PhoneNumber string    `json:"phone_number"` // Just the phone number "1234567890"
	Name        string    `json:"name"`         // Contact book name (highest priority)
	PushName    string    `json:"push_name"`    // User's display name (fallback)
	ShortName   string    `json:"short_name"`   // Shortened name
	IsBlocked   bool      `json:"is_blocked"`
	IsGroup     bool      `json:"is_group"`
	IsMyContact bool      `json:"is_my_contact"`
	CachedAt    time.Time `json:"cached_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GetDisplayName returns the best available display name for the contact
func (c *Contact) GetDisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	if c.PushName != "" {
		return c.PushName
	}
	return c.PhoneNumber
}

// FromEngineContact populates the record from a protocol-level contact update.
// The update is stored verbatim; no normalization beyond deriving the bare
// phone number from the JID.
func (c *Contact) FromEngineContact(ec *types.Contact) {
	c.ContactID = ec.JID
	c.PhoneNumber = phoneFromJID(ec.JID)
	c.Name = ec.Name
	c.PushName = ec.PushName
	c.ShortName = ec.ShortName
	c.IsBlocked = ec.IsBlocked
	c.IsGroup = ec.IsGroup
	c.IsMyContact = ec.IsMyContact
}

// ToEngineContact converts the record back to the protocol-level shape.
func (c *Contact) ToEngineContact() *types.Contact {
	return &types.Contact{
		JID:         c.ContactID,
		Name:        c.Name,
		PushName:    c.PushName,
		ShortName:   c.ShortName,
		IsBlocked:   c.IsBlocked,
		IsGroup:     c.IsGroup,
		IsMyContact: c.IsMyContact,
	}
}

func phoneFromJID(jid string) string {
	if idx := strings.Index(jid, "@"); idx > 0 {
		return jid[:idx]
	}
	return jid
}
