package engine

import (
	"context"
	"time"

	"github.com/migadu/sera/consts"
	"github.com/migadu/sera/db"
	"github.com/stretchr/testify/mock"
)

// --- Mocks ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetUserByID(ctx context.Context, userID int64) (*db.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.User), args.Error(1)
}
func (m *mockStore) GetRuleByID(ctx context.Context, ruleID int64) (*db.Rule, error) {
	args := m.Called(ctx, ruleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.Rule), args.Error(1)
}
func (m *mockStore) ListActiveRules(ctx context.Context) ([]*db.Rule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*db.Rule), args.Error(1)
}
func (m *mockStore) GetTemplateByID(ctx context.Context, templateID int64) (*db.Template, error) {
	args := m.Called(ctx, templateID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.Template), args.Error(1)
}
func (m *mockStore) GetMessageByID(ctx context.Context, messageID int64) (*db.Message, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.Message), args.Error(1)
}
func (m *mockStore) GetCandidateMessages(ctx context.Context, userID int64, limit int) ([]*db.Message, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*db.Message), args.Error(1)
}
func (m *mockStore) MarkMessageProcessed(ctx context.Context, messageID int64) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}
func (m *mockStore) HasReplyOutcome(ctx context.Context, providerMessageID string, userID, ruleID int64) (bool, error) {
	args := m.Called(ctx, providerMessageID, userID, ruleID)
	return args.Bool(0), args.Error(1)
}
func (m *mockStore) ClaimReply(ctx context.Context, msg *db.Message, rule *db.Rule, templateID int64) (*db.ReplyLog, error) {
	args := m.Called(ctx, msg, rule, templateID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.ReplyLog), args.Error(1)
}
func (m *mockStore) FinalizeReplyLog(ctx context.Context, logID int64, status consts.ReplyLogStatus, errorMessage string) error {
	args := m.Called(ctx, logID, status, errorMessage)
	return args.Error(0)
}
func (m *mockStore) RecordReplyOutcome(ctx context.Context, msg *db.Message, rule *db.Rule, status consts.ReplyLogStatus, skipReason, errorMessage string) error {
	args := m.Called(ctx, msg, rule, status, skipReason, errorMessage)
	return args.Error(0)
}
func (m *mockStore) ReapStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}
func (m *mockStore) InsertScheduledReply(ctx context.Context, msg *db.Message, rule *db.Rule, fireAt time.Time) (*db.ScheduledReply, error) {
	args := m.Called(ctx, msg, rule, fireAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.ScheduledReply), args.Error(1)
}
func (m *mockStore) AcquireDueScheduledReplies(ctx context.Context, now time.Time, limit int) ([]*db.ScheduledReply, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*db.ScheduledReply), args.Error(1)
}
func (m *mockStore) FinalizeScheduledReply(ctx context.Context, id int64, status consts.ScheduledReplyStatus, skipReason, failureReason string) error {
	args := m.Called(ctx, id, status, skipReason, failureReason)
	return args.Error(0)
}
func (m *mockStore) CancelScheduledReply(ctx context.Context, messageID, ruleID, userID int64) error {
	args := m.Called(ctx, messageID, ruleID, userID)
	return args.Error(0)
}
func (m *mockStore) CancelScheduledRepliesForRule(ctx context.Context, ruleID int64) (int64, error) {
	args := m.Called(ctx, ruleID)
	return args.Get(0).(int64), args.Error(1)
}
func (m *mockStore) CountPendingScheduledReplies(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}
func (m *mockStore) AcquireLock(ctx context.Context, lockName string) (bool, error) {
	args := m.Called(ctx, lockName)
	return args.Bool(0), args.Error(1)
}
func (m *mockStore) RefreshLock(ctx context.Context, lockName string) error {
	args := m.Called(ctx, lockName)
	return args.Error(0)
}
func (m *mockStore) ReleaseLock(ctx context.Context, lockName string) {
	m.Called(ctx, lockName)
}
func (m *mockStore) PurgeExpired(ctx context.Context, olderThan time.Duration) (int64, int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Get(1).(int64), args.Error(2)
}

type mockMessenger struct {
	mock.Mock
}

func (m *mockMessenger) SendReply(ctx context.Context, user *db.User, original *db.Message, subject, textBody, htmlBody string) (string, error) {
	args := m.Called(ctx, user, original, subject, textBody, htmlBody)
	return args.String(0), args.Error(1)
}
func (m *mockMessenger) UserHasRepliedInThread(ctx context.Context, userID int64, threadID, excludeProviderMessageID string) (bool, error) {
	args := m.Called(ctx, userID, threadID, excludeProviderMessageID)
	return args.Bool(0), args.Error(1)
}

// fakeClock pins time for window and delay tests.
type fakeClock struct {
	now time.Time
}

func (c fakeClock) Now() time.Time { return c.now }

// --- Fixtures ---

func testUser() *db.User {
	return &db.User{
		ID:       7,
		Email:    "owner@example.com",
		Name:     "Olive Owner",
		Timezone: "UTC",
	}
}

func testRule() *db.Rule {
	return &db.Rule{
		ID:         3,
		UserID:     7,
		TemplateID: 5,
		Name:       "billing autoresponder",
		IsActive:   true,
		ApplyToAll: true,
		UpdatedAt:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testMessage() *db.Message {
	received := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	return &db.Message{
		ID:                11,
		UserID:            7,
		ProviderMessageID: "prov-123",
		ThreadID:          "thread-9",
		Sender:            "Billy Biller <billing@acme.com>",
		Subject:           "Invoice #42",
		Folder:            consts.FolderInbox,
		ReceivedAt:        &received,
	}
}

func testTemplate() *db.Template {
	return &db.Template{
		ID:           5,
		UserID:       7,
		Name:         "standard",
		ReplyBody:    "Hi {{sender_name}}, we received {{subject}}. - {{user_name}}",
		ReplySubject: "",
	}
}
