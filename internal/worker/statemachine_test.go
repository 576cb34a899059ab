package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/botforge/botforge/internal/domain"
	"github.com/botforge/botforge/internal/store"
)

// memUserStore implements domain.EndUserStore in memory.
type memUserStore struct {
	mu    sync.Mutex
	users map[int64]*domain.EndUser
	err   error
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[int64]*domain.EndUser)}
}

func (m *memUserStore) Upsert(ctx context.Context, user *domain.EndUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	existing, ok := m.users[user.UserID]
	if !ok {
		copied := *user
		copied.JoinedAt = time.Now().UTC()
		copied.MessageCount = 1
		m.users[user.UserID] = &copied
		return nil
	}
	existing.Username = user.Username
	existing.FirstName = user.FirstName
	existing.LastName = user.LastName
	existing.LastActivity = time.Now().UTC()
	existing.MessageCount++
	return nil
}

func (m *memUserStore) Get(ctx context.Context, botID uuid.UUID, userID int64) (*domain.EndUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memUserStore) SetLanguage(ctx context.Context, botID uuid.UUID, userID int64, lang domain.Language) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	u.Language = lang
	return nil
}

func (m *memUserStore) List(ctx context.Context, botID uuid.UUID) ([]*domain.EndUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.EndUser
	for _, u := range m.users {
		copied := *u
		out = append(out, &copied)
	}
	return out, nil
}

func (m *memUserStore) Stats(ctx context.Context, botID uuid.UUID) (*domain.EndUserStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	stats := &domain.EndUserStats{TotalUsers: len(m.users)}
	for _, u := range m.users {
		stats.TotalMessages += u.MessageCount
	}
	return stats, nil
}

// recordingClient captures sends and serves scripted updates.
type recordingClient struct {
	mu      sync.Mutex
	sent    []domain.OutboundMessage
	updates chan []domain.BotUpdate
}

func newRecordingClient() *recordingClient {
	return &recordingClient{updates: make(chan []domain.BotUpdate, 8)}
}

func (c *recordingClient) GetMe(ctx context.Context) (*domain.Identity, error) {
	return &domain.Identity{ID: 1}, nil
}

func (c *recordingClient) GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]domain.BotUpdate, error) {
	select {
	case batch := <-c.updates:
		return batch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *recordingClient) SendMessage(ctx context.Context, msg domain.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *recordingClient) CloseIdleConnections() {}

func (c *recordingClient) sentMessages() []domain.OutboundMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.OutboundMessage, len(c.sent))
	copy(out, c.sent)
	return out
}

func testBot() *domain.TenantBot {
	return &domain.TenantBot{
		ID:          uuid.New(),
		OwnerID:     500,
		BotUsername: "test_bot",
		Status:      domain.BotStatusApproved,
	}
}

func testRuntime() (*Runtime, *recordingClient, *memUserStore) {
	client := newRecordingClient()
	users := newMemUserStore()
	r := NewRuntime(testBot(), client, users, time.Second, zap.NewNop())
	return r, client, users
}

func TestClassify(t *testing.T) {
	cases := []struct {
		text      string
		fromOwner bool
		want      inputClass
	}{
		{"/start", false, inputStart},
		{buttonUzbek, false, inputLangUzbek},
		{buttonRussian, false, inputLangRussian},
		{buttonProfileUz, false, inputProfile},
		{buttonProfileRu, false, inputProfile},
		{buttonStatsRu, false, inputStats},
		{buttonSettingsUz, false, inputSettings},
		{buttonHelpRu, false, inputHelp},
		{buttonSupportUz, false, inputSupport},
		{"/users", true, inputAdminUsers},
		{"/users", false, inputUnknown},
		{"/stats", true, inputAdminStats},
		{"/broadcast hello", true, inputAdminBroadcast},
		{"/broadcast hello", false, inputUnknown},
		{"random text", false, inputUnknown},
	}
	for _, tc := range cases {
		if got := classify(tc.text, tc.fromOwner); got != tc.want {
			t.Fatalf("classify(%q, owner=%v) = %d, want %d", tc.text, tc.fromOwner, got, tc.want)
		}
	}
}

func TestDispatch_NewUserGetsLanguagePrompt(t *testing.T) {
	r, client, users := testRuntime()
	ctx := context.Background()

	update := domain.BotUpdate{UpdateID: 1, UserID: 7, ChatID: 7, Text: "/start", FirstName: "Ali"}
	_ = users.Upsert(ctx, &domain.EndUser{BotID: r.bot.ID, UserID: 7, FirstName: "Ali"})
	user, _ := users.Get(ctx, r.bot.ID, 7)

	if err := r.dispatch(ctx, user, update); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	sent := client.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sent))
	}
	if sent[0].Text != languagePrompt {
		t.Fatalf("expected language prompt, got %q", sent[0].Text)
	}
	if len(sent[0].ReplyMarkup) == 0 {
		t.Fatal("expected language keyboard")
	}
}

func TestDispatch_LanguageChoicePersistsAndWelcomes(t *testing.T) {
	r, client, users := testRuntime()
	ctx := context.Background()

	_ = users.Upsert(ctx, &domain.EndUser{BotID: r.bot.ID, UserID: 7})
	user, _ := users.Get(ctx, r.bot.ID, 7)

	update := domain.BotUpdate{UpdateID: 1, UserID: 7, ChatID: 7, Text: buttonRussian}
	if err := r.dispatch(ctx, user, update); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	persisted, _ := users.Get(ctx, r.bot.ID, 7)
	if persisted.Language != domain.LanguageRussian {
		t.Fatalf("expected ru persisted, got %q", persisted.Language)
	}

	sent := client.sentMessages()
	if len(sent) != 1 || sent[0].Text != texts[domain.LanguageRussian]["welcome"] {
		t.Fatalf("expected russian welcome, got %+v", sent)
	}
}

func TestDispatch_MenuActions(t *testing.T) {
	r, client, users := testRuntime()
	ctx := context.Background()

	_ = users.Upsert(ctx, &domain.EndUser{BotID: r.bot.ID, UserID: 7, FirstName: "Ali", Username: "ali"})
	_ = users.SetLanguage(ctx, r.bot.ID, 7, domain.LanguageUzbek)
	user, _ := users.Get(ctx, r.bot.ID, 7)

	for _, text := range []string{buttonProfileUz, buttonStatsUz, buttonHelpUz, buttonSupportUz, "garbage"} {
		if err := r.dispatch(ctx, user, domain.BotUpdate{UserID: 7, ChatID: 7, Text: text}); err != nil {
			t.Fatalf("dispatch(%q): %v", text, err)
		}
	}

	sent := client.sentMessages()
	if len(sent) != 5 {
		t.Fatalf("expected 5 replies, got %d", len(sent))
	}
	if sent[4].Text != texts[domain.LanguageUzbek]["unknown"] {
		t.Fatalf("expected unknown nudge, got %q", sent[4].Text)
	}
}

func TestDispatch_SettingsReopensLanguageSelect(t *testing.T) {
	r, _, users := testRuntime()
	ctx := context.Background()

	_ = users.Upsert(ctx, &domain.EndUser{BotID: r.bot.ID, UserID: 7})
	_ = users.SetLanguage(ctx, r.bot.ID, 7, domain.LanguageUzbek)
	user, _ := users.Get(ctx, r.bot.ID, 7)

	if err := r.dispatch(ctx, user, domain.BotUpdate{UserID: 7, ChatID: 7, Text: buttonSettingsUz}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	persisted, _ := users.Get(ctx, r.bot.ID, 7)
	if persisted.Language != domain.LanguageUnset {
		t.Fatalf("expected language cleared, got %q", persisted.Language)
	}
}

func TestDispatch_AdminCommandsOwnerOnly(t *testing.T) {
	r, client, users := testRuntime()
	ctx := context.Background()

	// Owner and a regular user, both past language select.
	for _, id := range []int64{r.bot.OwnerID, 7} {
		_ = users.Upsert(ctx, &domain.EndUser{BotID: r.bot.ID, UserID: id})
		_ = users.SetLanguage(ctx, r.bot.ID, id, domain.LanguageUzbek)
	}

	owner, _ := users.Get(ctx, r.bot.ID, r.bot.OwnerID)
	if err := r.dispatch(ctx, owner, domain.BotUpdate{UserID: r.bot.OwnerID, ChatID: 1, Text: "/stats"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	regular, _ := users.Get(ctx, r.bot.ID, 7)
	if err := r.dispatch(ctx, regular, domain.BotUpdate{UserID: 7, ChatID: 7, Text: "/stats"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	sent := client.sentMessages()
	if len(sent) != 2 {
		t.Fatalf("expected 2 replies, got %d", len(sent))
	}
	if sent[0].Text == sent[1].Text {
		t.Fatal("expected owner stats to differ from the unknown nudge")
	}
	if sent[1].Text != texts[domain.LanguageUzbek]["unknown"] {
		t.Fatalf("expected unknown nudge for regular user, got %q", sent[1].Text)
	}
}

func TestDispatch_BroadcastReachesAllUsers(t *testing.T) {
	r, client, users := testRuntime()
	ctx := context.Background()

	for _, id := range []int64{r.bot.OwnerID, 7, 8} {
		_ = users.Upsert(ctx, &domain.EndUser{BotID: r.bot.ID, UserID: id})
		_ = users.SetLanguage(ctx, r.bot.ID, id, domain.LanguageUzbek)
	}

	owner, _ := users.Get(ctx, r.bot.ID, r.bot.OwnerID)
	update := domain.BotUpdate{UserID: r.bot.OwnerID, ChatID: 1, Text: "/broadcast big news"}
	if err := r.dispatch(ctx, owner, update); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	sent := client.sentMessages()
	// Three user sends plus the summary.
	if len(sent) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(sent))
	}
	broadcasts := 0
	for _, msg := range sent {
		if msg.Text == "big news" {
			broadcasts++
		}
	}
	if broadcasts != 3 {
		t.Fatalf("expected 3 broadcast sends, got %d", broadcasts)
	}
}

func TestHandleUpdate_PanicRecovered(t *testing.T) {
	r, _, users := testRuntime()
	users.err = nil

	// A nil map write inside an action would panic; simulate by poisoning the
	// dispatch table for this state.
	r.table[stateLanguageSelect][inputStart] = func(ctx context.Context, user *domain.EndUser, update domain.BotUpdate) error {
		panic("boom")
	}

	// Must not panic out.
	r.handleUpdate(context.Background(), domain.BotUpdate{UpdateID: 1, UserID: 9, ChatID: 9, Text: "/start"})
}

func TestHandleUpdate_StoreErrorSwallowed(t *testing.T) {
	r, client, users := testRuntime()
	users.err = errors.New("db down")

	r.handleUpdate(context.Background(), domain.BotUpdate{UpdateID: 1, UserID: 9, ChatID: 9, Text: "/start"})

	if len(client.sentMessages()) != 0 {
		t.Fatal("expected no reply when the store is down")
	}
}
