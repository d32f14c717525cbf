package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"wagate/internal/events"
	"wagate/pkg/engine/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type sessionFixture struct {
	manager    *SessionManager
	dispatcher *events.Dispatcher
	authStore  *mockAuthStore
	contacts   *mockContactSink

	mu      sync.Mutex
	clients []*fakeEngineClient
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	f := &sessionFixture{
		dispatcher: events.NewDispatcher(),
		authStore:  &mockAuthStore{},
		contacts:   &mockContactSink{},
	}

	factory := func() (types.Client, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		client := &fakeEngineClient{}
		f.clients = append(f.clients, client)
		return client, nil
	}

	f.manager = NewSessionManager("default", factory, f.authStore, f.contacts, f.dispatcher, logger)
	f.manager.SetReconnectDelay(10 * time.Millisecond)
	t.Cleanup(f.manager.Stop)
	return f
}

func (f *sessionFixture) client(i int) *fakeEngineClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[i]
}

func (f *sessionFixture) clientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *sessionFixture) waitForClients(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.clientCount() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d clients, got %d", n, f.clientCount())
}

func TestSessionManager_StartConnects(t *testing.T) {
	f := newSessionFixture(t)

	require.NoError(t, f.manager.Start(context.Background()))
	assert.Equal(t, ConditionConnecting, f.manager.Condition())
	assert.Equal(t, 1, f.client(0).connectCount())

	f.client(0).emitConnection(types.ConnectionUpdate{Connection: types.ConnectionStateOpen})
	assert.Equal(t, ConditionConnected, f.manager.Condition())
}

func TestSessionManager_PairingCodeProducesQRImage(t *testing.T) {
	f := newSessionFixture(t)
	require.NoError(t, f.manager.Start(context.Background()))

	assert.Nil(t, f.manager.QRImage())

	f.client(0).emitConnection(types.ConnectionUpdate{
		Connection:  types.ConnectionStateConnecting,
		PairingCode: "2@pairing-code-payload",
	})

	png := f.manager.QRImage()
	require.NotNil(t, png)
	// PNG magic bytes
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
	assert.Equal(t, ConditionConnecting, f.manager.Condition())
}

func TestSessionManager_QRClearedOnConnect(t *testing.T) {
	f := newSessionFixture(t)
	require.NoError(t, f.manager.Start(context.Background()))

	f.client(0).emitConnection(types.ConnectionUpdate{PairingCode: "2@code"})
	require.NotNil(t, f.manager.QRImage())

	f.client(0).emitConnection(types.ConnectionUpdate{Connection: types.ConnectionStateOpen})
	assert.Nil(t, f.manager.QRImage())
	assert.Equal(t, ConditionConnected, f.manager.Condition())
}

func TestSessionManager_ReconnectAfterConnectionLost(t *testing.T) {
	f := newSessionFixture(t)
	require.NoError(t, f.manager.Start(context.Background()))

	f.client(0).emitConnection(types.ConnectionUpdate{Connection: types.ConnectionStateOpen})
	f.client(0).emitConnection(types.ConnectionUpdate{
		Connection:           types.ConnectionStateClose,
		LastDisconnectReason: types.DisconnectReasonConnectionLost,
	})
	assert.Equal(t, ConditionConnecting, f.manager.Condition())

	f.waitForClients(t, 2)
	assert.Equal(t, 1, f.client(1).connectCount())
}

func TestSessionManager_OverlappingDisconnectsScheduleOneReconnect(t *testing.T) {
	f := newSessionFixture(t)
	f.manager.SetReconnectDelay(50 * time.Millisecond)
	require.NoError(t, f.manager.Start(context.Background()))

	update := types.ConnectionUpdate{
		Connection:           types.ConnectionStateClose,
		LastDisconnectReason: types.DisconnectReasonConnectionLost,
	}
	f.client(0).emitConnection(update)
	f.client(0).emitConnection(update)
	f.client(0).emitConnection(update)

	f.waitForClients(t, 2)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 2, f.clientCount())
}

func TestSessionManager_LoggedOutClearsCredentialsThenReconnects(t *testing.T) {
	f := newSessionFixture(t)
	f.authStore.On("ClearCredentials", mock.Anything, "default").Return(nil).Once()

	require.NoError(t, f.manager.Start(context.Background()))
	f.client(0).emitConnection(types.ConnectionUpdate{
		Connection:           types.ConnectionStateClose,
		LastDisconnectReason: types.DisconnectReasonLoggedOut,
	})

	// Credentials were cleared synchronously, before the restart timer fired.
	f.authStore.AssertExpectations(t)
	assert.Equal(t, ConditionLoggedOut, f.manager.Condition())

	f.waitForClients(t, 2)
	assert.Equal(t, ConditionConnecting, f.manager.Condition())
}

func TestSessionManager_DialFailureRetries(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	var mu sync.Mutex
	var clients []*fakeEngineClient
	factory := func() (types.Client, error) {
		mu.Lock()
		defer mu.Unlock()
		client := &fakeEngineClient{}
		if len(clients) == 0 {
			client.connectErr = assert.AnError
		}
		clients = append(clients, client)
		return client, nil
	}

	manager := NewSessionManager("default", factory, &mockAuthStore{}, &mockContactSink{}, events.NewDispatcher(), logger)
	manager.SetReconnectDelay(10 * time.Millisecond)
	defer manager.Stop()

	require.NoError(t, manager.Start(context.Background()))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(clients)
		mu.Unlock()
		if n >= 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("dial failure did not trigger a retry")
}

func TestSessionManager_SupersededClientEventsIgnored(t *testing.T) {
	f := newSessionFixture(t)
	require.NoError(t, f.manager.Start(context.Background()))
	old := f.client(0)

	require.NoError(t, f.manager.Start(context.Background()))
	assert.Equal(t, 1, old.closeCount())

	f.client(1).emitConnection(types.ConnectionUpdate{Connection: types.ConnectionStateOpen})
	require.Equal(t, ConditionConnected, f.manager.Condition())

	// The superseded client's events must not change state anymore.
	old.emitConnection(types.ConnectionUpdate{
		Connection:           types.ConnectionStateClose,
		LastDisconnectReason: types.DisconnectReasonConnectionLost,
	})
	assert.Equal(t, ConditionConnected, f.manager.Condition())
}

func TestSessionManager_NewMessageRelayed(t *testing.T) {
	f := newSessionFixture(t)

	var got []events.NewMessage
	f.dispatcher.OnNewMessage(func(ctx context.Context, ev events.NewMessage) {
		got = append(got, ev)
	})

	require.NoError(t, f.manager.Start(context.Background()))
	ts := time.Now().UTC().Truncate(time.Second)
	f.client(0).emitMessages(types.MessageBatch{Messages: []types.Message{{
		ID:        "msg-1",
		ChatJID:   "123@s.whatsapp.net",
		SenderJID: "123@s.whatsapp.net",
		PushName:  "Alice",
		Timestamp: ts,
		Type:      "text",
		Text:      "hello",
	}}})

	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, "msg-1", got[0].Message.ID)
	assert.Equal(t, "Alice", got[0].Message.SenderName)
	assert.Equal(t, "hello", got[0].Message.Text)
	assert.False(t, got[0].Message.IsGroup)
}

func TestSessionManager_GroupMessageFlagged(t *testing.T) {
	f := newSessionFixture(t)

	var got []events.NewMessage
	f.dispatcher.OnNewMessage(func(ctx context.Context, ev events.NewMessage) {
		got = append(got, ev)
	})

	require.NoError(t, f.manager.Start(context.Background()))
	f.client(0).emitMessages(types.MessageBatch{Messages: []types.Message{{
		ID:      "msg-2",
		ChatJID: "456-789@g.us",
		Type:    "text",
		Text:    "hi group",
	}}})

	require.Len(t, got, 1)
	assert.True(t, got[0].Message.IsGroup)
}

func TestSessionManager_OnlyFirstBatchMessageRelayed(t *testing.T) {
	f := newSessionFixture(t)

	var got []events.NewMessage
	f.dispatcher.OnNewMessage(func(ctx context.Context, ev events.NewMessage) {
		got = append(got, ev)
	})

	require.NoError(t, f.manager.Start(context.Background()))
	f.client(0).emitMessages(types.MessageBatch{Messages: []types.Message{
		{ID: "first", ChatJID: "1@s.whatsapp.net", Type: "text", Text: "a"},
		{ID: "second", ChatJID: "1@s.whatsapp.net", Type: "text", Text: "b"},
	}})

	require.Len(t, got, 1)
	assert.Equal(t, "first", got[0].Message.ID)
}

func TestSessionManager_ProtocolMessagesDropped(t *testing.T) {
	f := newSessionFixture(t)

	relayed := false
	f.dispatcher.OnNewMessage(func(ctx context.Context, ev events.NewMessage) {
		relayed = true
	})

	require.NoError(t, f.manager.Start(context.Background()))
	f.client(0).emitMessages(types.MessageBatch{Messages: []types.Message{{
		ID:      "proto-1",
		ChatJID: "1@s.whatsapp.net",
		Type:    types.MessageTypeProtocol,
	}}})

	assert.False(t, relayed)
}

func TestSessionManager_StubMapping(t *testing.T) {
	tests := []struct {
		name     string
		stub     types.StubType
		expected events.ParticipantAction
	}{
		{"participant add", types.StubGroupParticipantAdd, events.ParticipantActionAdd},
		{"join request approved", types.StubGroupParticipantAddRequest, events.ParticipantActionAdd},
		{"participant invited", types.StubGroupParticipantInvite, events.ParticipantActionAdd},
		{"participant left", types.StubGroupParticipantLeave, events.ParticipantActionRemove},
		{"participant removed", types.StubGroupParticipantRemove, events.ParticipantActionRemove},
		{"participant demoted", types.StubGroupParticipantDemote, events.ParticipantActionDemote},
		{"participant promoted", types.StubGroupParticipantPromote, events.ParticipantActionPromote},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSessionFixture(t)

			var got []events.ParticipantsUpdate
			f.dispatcher.OnParticipantsUpdate(func(ctx context.Context, ev events.ParticipantsUpdate) {
				got = append(got, ev)
			})

			require.NoError(t, f.manager.Start(context.Background()))
			f.client(0).emitMessages(types.MessageBatch{Messages: []types.Message{{
				ID:             "stub-1",
				ChatJID:        "456-789@g.us",
				StubType:       tt.stub,
				StubParameters: []string{"111@s.whatsapp.net", "222@s.whatsapp.net"},
			}}})

			require.Len(t, got, 1)
			assert.Equal(t, tt.expected, got[0].Action)
			assert.Equal(t, "456-789@g.us", got[0].JID)
			assert.Equal(t, []string{"111@s.whatsapp.net", "222@s.whatsapp.net"}, got[0].Participants)
		})
	}
}

func TestSessionManager_GroupCreateEmitsNewGroupJoined(t *testing.T) {
	f := newSessionFixture(t)

	var got []events.NewGroupJoined
	f.dispatcher.OnNewGroupJoined(func(ctx context.Context, ev events.NewGroupJoined) {
		got = append(got, ev)
	})

	require.NoError(t, f.manager.Start(context.Background()))
	f.client(0).emitMessages(types.MessageBatch{Messages: []types.Message{{
		ID:             "stub-2",
		ChatJID:        "456-789@g.us",
		StubType:       types.StubGroupCreate,
		StubParameters: []string{"Weekend Plans"},
	}}})

	require.Len(t, got, 1)
	assert.Equal(t, "456-789@g.us", got[0].JID)
	assert.Equal(t, "Weekend Plans", got[0].Subject)
}

func TestSessionManager_GroupCreateWithoutSubject(t *testing.T) {
	f := newSessionFixture(t)

	var got []events.NewGroupJoined
	f.dispatcher.OnNewGroupJoined(func(ctx context.Context, ev events.NewGroupJoined) {
		got = append(got, ev)
	})

	require.NoError(t, f.manager.Start(context.Background()))
	f.client(0).emitMessages(types.MessageBatch{Messages: []types.Message{{
		ID:       "stub-3",
		ChatJID:  "456-789@g.us",
		StubType: types.StubGroupCreate,
	}}})

	require.Len(t, got, 1)
	assert.Empty(t, got[0].Subject)
}

func TestSessionManager_UnmappedStubDropped(t *testing.T) {
	f := newSessionFixture(t)

	emitted := false
	f.dispatcher.OnParticipantsUpdate(func(ctx context.Context, ev events.ParticipantsUpdate) { emitted = true })
	f.dispatcher.OnNewGroupJoined(func(ctx context.Context, ev events.NewGroupJoined) { emitted = true })
	f.dispatcher.OnNewMessage(func(ctx context.Context, ev events.NewMessage) { emitted = true })

	require.NoError(t, f.manager.Start(context.Background()))
	f.client(0).emitMessages(types.MessageBatch{Messages: []types.Message{{
		ID:       "stub-4",
		ChatJID:  "456-789@g.us",
		StubType: types.StubType("GROUP_CHANGE_ICON"),
	}}})

	assert.False(t, emitted)
}

func TestSessionManager_CallRelayed(t *testing.T) {
	f := newSessionFixture(t)

	var got []events.NewCall
	f.dispatcher.OnNewCall(func(ctx context.Context, ev events.NewCall) {
		got = append(got, ev)
	})

	require.NoError(t, f.manager.Start(context.Background()))
	f.client(0).emitCall(types.CallPayload{Content: []types.CallContent{{
		Tag:   "offer",
		Attrs: map[string]string{types.CallAttrCreator: "123@s.whatsapp.net"},
	}}})

	require.Len(t, got, 1)
	assert.Equal(t, "123@s.whatsapp.net", got[0].From)
}

func TestSessionManager_MalformedCallDropped(t *testing.T) {
	f := newSessionFixture(t)

	emitted := false
	f.dispatcher.OnNewCall(func(ctx context.Context, ev events.NewCall) { emitted = true })

	require.NoError(t, f.manager.Start(context.Background()))

	f.client(0).emitCall(types.CallPayload{})
	f.client(0).emitCall(types.CallPayload{Content: []types.CallContent{{Tag: "offer"}}})
	f.client(0).emitCall(types.CallPayload{Content: []types.CallContent{{
		Tag:   "offer",
		Attrs: map[string]string{"call-id": "abc"},
	}}})

	assert.False(t, emitted)
}

func TestSessionManager_ContactsForwarded(t *testing.T) {
	f := newSessionFixture(t)

	contacts := []types.Contact{
		{JID: "111@s.whatsapp.net", Name: "Alice"},
		{JID: "222@s.whatsapp.net", PushName: "Bob"},
	}
	f.contacts.On("SaveEngineContacts", mock.Anything, contacts).Return(nil).Once()

	require.NoError(t, f.manager.Start(context.Background()))
	f.client(0).emitContacts(types.ContactsUpdate{Contacts: contacts})

	f.contacts.AssertExpectations(t)
}

func TestSessionManager_CredentialsPersisted(t *testing.T) {
	f := newSessionFixture(t)

	data := []byte(`{"noiseKey":"abc"}`)
	f.authStore.On("SaveCredential", mock.Anything, "default", "creds", data).Return(nil).Once()

	require.NoError(t, f.manager.Start(context.Background()))
	f.client(0).emitCredentials(types.CredentialsUpdate{Name: "creds", Data: data})

	f.authStore.AssertExpectations(t)
}

func TestSessionManager_QRImageReturnsCopy(t *testing.T) {
	f := newSessionFixture(t)
	require.NoError(t, f.manager.Start(context.Background()))

	f.client(0).emitConnection(types.ConnectionUpdate{PairingCode: "2@code"})
	first := f.manager.QRImage()
	require.NotNil(t, first)

	first[0] = 0x00
	second := f.manager.QRImage()
	assert.Equal(t, byte(0x89), second[0])
}

func TestSessionManager_StopCancelsPendingReconnect(t *testing.T) {
	f := newSessionFixture(t)
	f.manager.SetReconnectDelay(30 * time.Millisecond)
	require.NoError(t, f.manager.Start(context.Background()))

	f.client(0).emitConnection(types.ConnectionUpdate{
		Connection:           types.ConnectionStateClose,
		LastDisconnectReason: types.DisconnectReasonConnectionLost,
	})
	f.manager.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, f.clientCount())
}
