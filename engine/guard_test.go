package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestGuard(store *mockStore, messenger *mockMessenger, now time.Time) *Guard {
	return NewGuard(store, messenger, fakeClock{now: now})
}

func TestGuardAgeGate(t *testing.T) {
	store := new(mockStore)
	messenger := new(mockMessenger)
	g := newTestGuard(store, messenger, time.Now())

	msg := testMessage()
	rule := testRule()
	old := rule.UpdatedAt.Add(-time.Hour)
	msg.ReceivedAt = &old

	ok, reason, err := g.Eligible(context.Background(), msg, rule, testUser())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "message older than rule", reason)
	store.AssertNotCalled(t, "HasReplyOutcome", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGuardAgeGateWaivedByApplyToExisting(t *testing.T) {
	store := new(mockStore)
	messenger := new(mockMessenger)
	g := newTestGuard(store, messenger, time.Now())

	msg := testMessage()
	rule := testRule()
	rule.ApplyToExisting = true
	old := rule.UpdatedAt.Add(-time.Hour)
	msg.ReceivedAt = &old

	store.On("HasReplyOutcome", mock.Anything, msg.ProviderMessageID, rule.UserID, rule.ID).Return(false, nil)
	messenger.On("UserHasRepliedInThread", mock.Anything, testUser().ID, msg.ThreadID, msg.ProviderMessageID).Return(false, nil)

	ok, _, err := g.Eligible(context.Background(), msg, rule, testUser())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGuardAlreadyProcessed(t *testing.T) {
	store := new(mockStore)
	messenger := new(mockMessenger)
	g := newTestGuard(store, messenger, time.Now())

	msg := testMessage()
	rule := testRule()
	store.On("HasReplyOutcome", mock.Anything, msg.ProviderMessageID, rule.UserID, rule.ID).Return(true, nil)

	ok, reason, err := g.Eligible(context.Background(), msg, rule, testUser())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "already processed", reason)
}

func TestGuardSentFolder(t *testing.T) {
	store := new(mockStore)
	messenger := new(mockMessenger)
	g := newTestGuard(store, messenger, time.Now())

	msg := testMessage()
	msg.Folder = "sent"
	rule := testRule()
	store.On("HasReplyOutcome", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)

	ok, reason, err := g.Eligible(context.Background(), msg, rule, testUser())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "sent folder", reason)
}

func TestGuardMissingProviderID(t *testing.T) {
	store := new(mockStore)
	messenger := new(mockMessenger)
	g := newTestGuard(store, messenger, time.Now())

	msg := testMessage()
	msg.ProviderMessageID = ""
	rule := testRule()
	store.On("HasReplyOutcome", mock.Anything, "", rule.UserID, rule.ID).Return(false, nil)

	ok, reason, err := g.Eligible(context.Background(), msg, rule, testUser())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "missing provider message id", reason)
}

func TestGuardSafetyGates(t *testing.T) {
	tests := []struct {
		name    string
		sender  string
		subject string
		reason  string
	}{
		{"no-reply domain", "updates@noreply.shop.example", "Order", "no-reply address"},
		{"notification domain", "info@alerts-notification.example", "Order", "no-reply address"},
		{"newsletter provider", "digest@mailchimp.com", "Weekly", "newsletter provider"},
		{"out of office subject", "person@real.example", "Out of Office: back Monday", "looks like an automated message"},
		{"undeliverable subject", "person@real.example", "Undeliverable: your message", "looks like an automated message"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := new(mockStore)
			messenger := new(mockMessenger)
			g := newTestGuard(store, messenger, time.Now())

			msg := testMessage()
			msg.Sender = tc.sender
			msg.Subject = tc.subject
			rule := testRule()
			store.On("HasReplyOutcome", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)

			ok, reason, err := g.Eligible(context.Background(), msg, rule, testUser())
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, tc.reason, reason)
		})
	}
}

func TestGuardNoReplyTokenAppliesToDomainOnly(t *testing.T) {
	store := new(mockStore)
	messenger := new(mockMessenger)
	g := newTestGuard(store, messenger, time.Now())

	// "alert" in the local part is fine, only the domain is sniffed.
	msg := testMessage()
	msg.Sender = "alert-team@acme.com"
	rule := testRule()
	store.On("HasReplyOutcome", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	messenger.On("UserHasRepliedInThread", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)

	ok, _, err := g.Eligible(context.Background(), msg, rule, testUser())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGuardAlreadyRepliedInThread(t *testing.T) {
	store := new(mockStore)
	messenger := new(mockMessenger)
	g := newTestGuard(store, messenger, time.Now())

	msg := testMessage()
	rule := testRule()
	store.On("HasReplyOutcome", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	messenger.On("UserHasRepliedInThread", mock.Anything, testUser().ID, msg.ThreadID, msg.ProviderMessageID).Return(true, nil)

	ok, reason, err := g.Eligible(context.Background(), msg, rule, testUser())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "already replied in thread", reason)
}

// Provider failures on the thread scan must not block the reply.
func TestGuardThreadScanFailsOpen(t *testing.T) {
	store := new(mockStore)
	messenger := new(mockMessenger)
	g := newTestGuard(store, messenger, time.Now())

	msg := testMessage()
	rule := testRule()
	store.On("HasReplyOutcome", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	messenger.On("UserHasRepliedInThread", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(false, assert.AnError)

	ok, _, err := g.Eligible(context.Background(), msg, rule, testUser())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGuardBusinessHours(t *testing.T) {
	tests := []struct {
		name   string
		start  string
		end    string
		now    time.Time
		inside bool
	}{
		{
			name:   "inside plain window",
			start:  "09:00", end: "17:00",
			now:    time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
			inside: true,
		},
		{
			name:   "outside plain window",
			start:  "09:00", end: "17:00",
			now:    time.Date(2025, 6, 2, 20, 0, 0, 0, time.UTC),
			inside: false,
		},
		{
			name:   "overnight window inside late evening",
			start:  "17:00", end: "09:00",
			now:    time.Date(2025, 6, 2, 23, 0, 0, 0, time.UTC),
			inside: true,
		},
		{
			name:   "overnight window inside early morning",
			start:  "17:00", end: "09:00",
			now:    time.Date(2025, 6, 2, 6, 0, 0, 0, time.UTC),
			inside: true,
		},
		{
			name:   "overnight window outside midday",
			start:  "17:00", end: "09:00",
			now:    time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
			inside: false,
		},
		{
			name:   "boundary start inclusive",
			start:  "09:00", end: "17:00",
			now:    time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
			inside: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := new(mockStore)
			messenger := new(mockMessenger)
			g := newTestGuard(store, messenger, tc.now)

			msg := testMessage()
			rule := testRule()
			rule.BusinessHoursStart = tc.start
			rule.BusinessHoursEnd = tc.end
			store.On("HasReplyOutcome", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
			messenger.On("UserHasRepliedInThread", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)

			ok, reason, err := g.Eligible(context.Background(), msg, rule, testUser())
			require.NoError(t, err)
			assert.Equal(t, tc.inside, ok)
			if !tc.inside {
				assert.Equal(t, "outside business hours", reason)
			}
		})
	}
}

// The window is evaluated in the owner's zone, not UTC. 12:00 UTC is 07:00 in
// New York, outside a 09:00-17:00 window there.
func TestGuardBusinessHoursUseOwnerTimezone(t *testing.T) {
	store := new(mockStore)
	messenger := new(mockMessenger)
	g := newTestGuard(store, messenger, time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC))

	msg := testMessage()
	rule := testRule()
	rule.BusinessHoursStart = "09:00"
	rule.BusinessHoursEnd = "17:00"
	user := testUser()
	user.Timezone = "America/New_York"
	store.On("HasReplyOutcome", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	messenger.On("UserHasRepliedInThread", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)

	ok, reason, err := g.Eligible(context.Background(), msg, rule, user)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "outside business hours", reason)
}

// Revalidate skips the ledger check so a pending scheduled row does not trip
// over itself, but all other gates still apply.
func TestRevalidateSkipsLedgerGate(t *testing.T) {
	store := new(mockStore)
	messenger := new(mockMessenger)
	g := newTestGuard(store, messenger, time.Now())

	msg := testMessage()
	rule := testRule()
	messenger.On("UserHasRepliedInThread", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)

	ok, _, err := g.Revalidate(context.Background(), msg, rule, testUser())
	require.NoError(t, err)
	assert.True(t, ok)
	store.AssertNotCalled(t, "HasReplyOutcome", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	msg.Folder = "sent"
	ok, reason, err := g.Revalidate(context.Background(), msg, rule, testUser())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "sent folder", reason)
}
