package service

import (
	"context"
	"fmt"
	"time"

	"wagate/internal/constants"
	"wagate/internal/metrics"
	"wagate/internal/models"
	"wagate/internal/privacy"
	"wagate/pkg/engine/types"

	"github.com/sirupsen/logrus"
)

// ContactServiceInterface defines the interface for contact operations
type ContactServiceInterface interface {
	SaveEngineContacts(ctx context.Context, contacts []types.Contact) error
	GetContactDisplayName(ctx context.Context, phoneNumber string) string
	CleanupOldContacts(retentionDays int) error
}

// ContactDatabaseService defines the database operations needed by ContactService
type ContactDatabaseService interface {
	SaveContact(ctx context.Context, contact *models.Contact) error
	GetContact(ctx context.Context, contactID string) (*models.Contact, error)
	GetContactByPhone(ctx context.Context, phoneNumber string) (*models.Contact, error)
	CleanupOldContacts(retentionDays int) error
}

// ContactService persists engine contact updates and serves cached display
// names. The engine pushes updates; there is no pull API, so a cache miss
// falls back to the bare phone number.
type ContactService struct {
	db              ContactDatabaseService
	logger          *logrus.Logger
	cacheValidHours int
}

// NewContactService creates a new contact service instance
func NewContactService(db ContactDatabaseService, logger *logrus.Logger) *ContactService {
	return NewContactServiceWithConfig(db, logger, constants.DefaultContactCacheHours)
}

// NewContactServiceWithConfig creates a new contact service instance with custom cache duration
func NewContactServiceWithConfig(db ContactDatabaseService, logger *logrus.Logger, cacheValidHours int) *ContactService {
	if cacheValidHours <= 0 {
		cacheValidHours = constants.DefaultContactCacheHours
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &ContactService{
		db:              db,
		logger:          logger,
		cacheValidHours: cacheValidHours,
	}
}

// SaveEngineContacts stores a batch of contact updates verbatim. A failure on
// one contact is logged and the rest of the batch still saved; the error
// returned reflects the last failure.
func (cs *ContactService) SaveEngineContacts(ctx context.Context, contacts []types.Contact) error {
	var lastErr error
	saved := 0
	for i := range contacts {
		dbContact := &models.Contact{}
		dbContact.FromEngineContact(&contacts[i])

		if err := cs.db.SaveContact(ctx, dbContact); err != nil {
			cs.logger.WithError(err).WithField("contact", privacy.MaskJID(contacts[i].JID)).Error("Failed to save contact")
			lastErr = fmt.Errorf("failed to save contact %s: %w", privacy.MaskJID(contacts[i].JID), err)
			continue
		}
		saved++
	}

	if saved > 0 {
		metrics.AddToCounter("contacts_saved", float64(saved), nil, "Contact updates persisted")
		cs.logger.WithField("count", saved).Debug("Saved contact updates")
	}
	return lastErr
}

// GetContactDisplayName resolves a display name from the cache. Stale entries
// are still served since updates only arrive by engine push; a miss returns
// the phone number unchanged.
func (cs *ContactService) GetContactDisplayName(ctx context.Context, phoneNumber string) string {
	contact, err := cs.db.GetContactByPhone(ctx, phoneNumber)
	if err != nil {
		cs.logger.WithError(err).Warn("Error retrieving contact from cache")
		return phoneNumber
	}
	if contact == nil {
		return phoneNumber
	}

	cacheValidDuration := time.Duration(cs.cacheValidHours) * time.Hour
	if time.Since(contact.CachedAt) >= cacheValidDuration {
		cs.logger.WithField("contact", privacy.MaskJID(contact.ContactID)).Debug("Serving stale contact cache entry")
	}
	return contact.GetDisplayName()
}

// CleanupOldContacts removes contacts older than the specified retention period
func (cs *ContactService) CleanupOldContacts(retentionDays int) error {
	return cs.db.CleanupOldContacts(retentionDays)
}
