package service

import (
	"context"
	"sync"

	"wagate/internal/models"
	"wagate/pkg/engine/types"

	"github.com/stretchr/testify/mock"
)

// fakeEngineClient captures registered handlers so tests can drive engine
// events directly.
type fakeEngineClient struct {
	mu sync.Mutex

	connectErr error
	connects   int
	closes     int

	credentialsHandler func(context.Context, types.CredentialsUpdate)
	connectionHandler  func(context.Context, types.ConnectionUpdate)
	messagesHandler    func(context.Context, types.MessageBatch)
	contactsHandler    func(context.Context, types.ContactsUpdate)
	callHandler        func(context.Context, types.CallPayload)
}

func (f *fakeEngineClient) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.connectErr
}

func (f *fakeEngineClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeEngineClient) OnCredentialsUpdated(fn func(context.Context, types.CredentialsUpdate)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credentialsHandler = fn
}

func (f *fakeEngineClient) OnConnectionUpdate(fn func(context.Context, types.ConnectionUpdate)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectionHandler = fn
}

func (f *fakeEngineClient) OnMessages(fn func(context.Context, types.MessageBatch)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messagesHandler = fn
}

func (f *fakeEngineClient) OnContactsUpdated(fn func(context.Context, types.ContactsUpdate)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contactsHandler = fn
}

func (f *fakeEngineClient) OnCall(fn func(context.Context, types.CallPayload)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callHandler = fn
}

func (f *fakeEngineClient) emitConnection(update types.ConnectionUpdate) {
	f.mu.Lock()
	fn := f.connectionHandler
	f.mu.Unlock()
	if fn != nil {
		fn(context.Background(), update)
	}
}

func (f *fakeEngineClient) emitMessages(batch types.MessageBatch) {
	f.mu.Lock()
	fn := f.messagesHandler
	f.mu.Unlock()
	if fn != nil {
		fn(context.Background(), batch)
	}
}

func (f *fakeEngineClient) emitContacts(update types.ContactsUpdate) {
	f.mu.Lock()
	fn := f.contactsHandler
	f.mu.Unlock()
	if fn != nil {
		fn(context.Background(), update)
	}
}

func (f *fakeEngineClient) emitCall(payload types.CallPayload) {
	f.mu.Lock()
	fn := f.callHandler
	f.mu.Unlock()
	if fn != nil {
		fn(context.Background(), payload)
	}
}

func (f *fakeEngineClient) emitCredentials(update types.CredentialsUpdate) {
	f.mu.Lock()
	fn := f.credentialsHandler
	f.mu.Unlock()
	if fn != nil {
		fn(context.Background(), update)
	}
}

func (f *fakeEngineClient) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeEngineClient) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

type mockAuthStore struct {
	mock.Mock
}

func (m *mockAuthStore) SaveCredential(ctx context.Context, sessionName, credName string, data []byte) error {
	args := m.Called(ctx, sessionName, credName, data)
	return args.Error(0)
}

func (m *mockAuthStore) ClearCredentials(ctx context.Context, sessionName string) error {
	args := m.Called(ctx, sessionName)
	return args.Error(0)
}

type mockContactSink struct {
	mock.Mock
}

func (m *mockContactSink) SaveEngineContacts(ctx context.Context, contacts []types.Contact) error {
	args := m.Called(ctx, contacts)
	return args.Error(0)
}

type mockContactDB struct {
	mock.Mock
}

func (m *mockContactDB) SaveContact(ctx context.Context, contact *models.Contact) error {
	args := m.Called(ctx, contact)
	return args.Error(0)
}

func (m *mockContactDB) GetContact(ctx context.Context, contactID string) (*models.Contact, error) {
	args := m.Called(ctx, contactID)
	if c := args.Get(0); c != nil {
		return c.(*models.Contact), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockContactDB) GetContactByPhone(ctx context.Context, phoneNumber string) (*models.Contact, error) {
	args := m.Called(ctx, phoneNumber)
	if c := args.Get(0); c != nil {
		return c.(*models.Contact), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockContactDB) CleanupOldContacts(retentionDays int) error {
	args := m.Called(retentionDays)
	return args.Error(0)
}

type mockCleaner struct {
	mock.Mock
}

func (m *mockCleaner) CleanupOldContacts(retentionDays int) error {
	args := m.Called(retentionDays)
	return args.Error(0)
}
