package test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"reviewroom/auth"
	"reviewroom/moderation"
	"reviewroom/observability"
	"reviewroom/repositories"
	"reviewroom/runtime"
	"reviewroom/runtime/workers"
	"reviewroom/search"
	"reviewroom/services"
	"reviewroom/sink"
	"reviewroom/transport/rest"
	"reviewroom/transport/ws"
)

// TestConfig keeps the knobs overridable from the environment so the
// scenario can be slowed down when debugging locally.
type TestConfig struct {
	CommandBuffer    int           `default:"128"`
	ConnectionBuffer int           `default:"64"`
	SinkTimeout      time.Duration `default:"500ms"`
	RestartInterval  time.Duration `default:"200ms"`
	JWTSecret        string        `default:"integration-secret"`
	WaitTimeout      time.Duration `default:"5s"`
}

type stack struct {
	cfg    TestConfig
	server *httptest.Server
	tokens auth.TokenManager
	repo   repositories.DiscussionRepository
}

func newStack(t *testing.T) *stack {
	t.Helper()
	req := require.New(t)

	var cfg TestConfig
	req.NoError(envconfig.Process("reviewroom_test", &cfg))

	log := slog.Default()

	// Reduced value log size for testing (avoid gigabytes of preallocation)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	req.NoError(err)
	t.Cleanup(func() { _ = writer.Close() })

	moderator, err := moderation.NewModerator([]string{"confidential"}, '*')
	req.NoError(err)

	metrics := observability.NewMetrics()
	registry := runtime.NewRegistry()
	repo := repositories.NewDiscussionRepository(db, log, lo.ToPtr(100))
	index := search.NewMessageIndex(writer, log)

	router := runtime.NewRouter(log, registry, repo, moderator, metrics, cfg.CommandBuffer)
	fanout := workers.NewEventFanout(log, router.FanoutEvents(), cfg.SinkTimeout,
		sink.NewIndexSink(index, log))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	sup := workers.NewSupervisor(log, cfg.RestartInterval)
	go sup.Add(router, fanout).Run(ctx)

	tokens := auth.NewTokenManager(cfg.JWTSecret)
	service := services.NewDiscussionService(registry, router, repo, index)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ws.NewServer(log, service, tokens, metrics, cfg.ConnectionBuffer).HandleWS)
	rest.NewHandlers(log, service, tokens).Register(mux)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &stack{cfg: cfg, server: server, tokens: tokens, repo: repo}
}

func (s *stack) wsURL(token string) string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws?token=" + token
}

func (s *stack) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	token, err := s.tokens.Generate(userID, []string{"reviewer"}, time.Hour)
	require.NoError(t, err)

	conn, resp, err := websocket.DefaultDialer.Dial(s.wsURL(token), nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, eventName string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"event": eventName, "data": data}))
}

type frame struct {
	Event string                     `json:"event"`
	Data  map[string]json.RawMessage `json:"data"`
}

func (f frame) field(t *testing.T, name string) string {
	t.Helper()
	var value string
	require.NoError(t, json.Unmarshal(f.Data[name], &value))
	return value
}

// waitFor reads frames until one matches the wanted event name. Frames
// of other kinds (stray typing signals and the like) are skipped.
func waitFor(t *testing.T, conn *websocket.Conn, eventName string, timeout time.Duration) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	for {
		var f frame
		err := conn.ReadJSON(&f)
		require.NoError(t, err, "waiting for %q", eventName)
		if f.Event == eventName {
			return f
		}
	}
}

func Test_Scenario_Two_Reviewers(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	ctx := context.Background()
	discussion := "paper-42"

	// Given Alice and Bob on the roster of paper-42
	req.NoError(s.repo.AddParticipant(ctx, "paper-42", "alice"))
	req.NoError(s.repo.AddParticipant(ctx, "paper-42", "bob"))

	alice := s.dial(t, "alice")
	bob := s.dial(t, "bob")

	// When both join the discussion
	send(t, alice, "join_discussion", map[string]any{"discussionId": discussion})
	send(t, bob, "join_discussion", map[string]any{"discussionId": discussion})

	// Joins are processed by the dispatch loop; let them land before posting
	time.Sleep(100 * time.Millisecond)

	// And Alice posts a message containing a censored word
	send(t, alice, "new_message", map[string]any{
		"discussionId": discussion,
		"message":      "the confidential data is attached",
	})

	// Then both sides receive the censored broadcast
	got := waitFor(t, alice, "message_received", s.cfg.WaitTimeout)
	req.Equal("the ************ data is attached", got.field(t, "body"))
	req.Equal("alice", got.field(t, "author"))

	got = waitFor(t, bob, "message_received", s.cfg.WaitTimeout)
	messageID := got.field(t, "id")
	req.Equal("the ************ data is attached", got.field(t, "body"))

	// When Bob signals typing, Alice sees it and Bob does not
	send(t, bob, "typing", map[string]any{"discussionId": discussion, "isTyping": true})
	typing := waitFor(t, alice, "user_typing", s.cfg.WaitTimeout)
	req.Equal("bob", typing.field(t, "userId"))

	// When Bob marks the message as read, the whole room gets the receipt
	send(t, bob, "mark_read", map[string]any{
		"discussionId": discussion,
		"messageIds":   []string{messageID},
	})
	receipts := waitFor(t, alice, "receipts_updated", s.cfg.WaitTimeout)
	req.Equal(discussion, receipts.field(t, "discussionId"))
	waitFor(t, bob, "receipts_updated", s.cfg.WaitTimeout)

	// And re-marking the same message produces no second receipt: a
	// subsequent typing signal arrives before any receipts_updated would
	send(t, bob, "mark_read", map[string]any{
		"discussionId": discussion,
		"messageIds":   []string{messageID},
	})
	send(t, bob, "typing", map[string]any{"discussionId": discussion, "isTyping": false})
	afterRemark := waitFor(t, alice, "user_typing", s.cfg.WaitTimeout)
	req.Equal("bob", afterRemark.field(t, "userId"))
}

func Test_Scenario_History_And_Search_Over_Rest(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	ctx := context.Background()
	discussion := "paper-7"

	req.NoError(s.repo.AddParticipant(ctx, "paper-7", "alice"))

	alice := s.dial(t, "alice")
	send(t, alice, "join_discussion", map[string]any{"discussionId": discussion})
	time.Sleep(100 * time.Millisecond)

	send(t, alice, "new_message", map[string]any{
		"discussionId": discussion,
		"message":      "the statistics in table two look wrong",
	})
	waitFor(t, alice, "message_received", s.cfg.WaitTimeout)

	token, err := s.tokens.Generate("alice", []string{"reviewer"}, time.Hour)
	req.NoError(err)

	get := func(path string) (*http.Response, error) {
		httpReq, err := http.NewRequest(http.MethodGet, s.server.URL+path, nil)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
		return http.DefaultClient.Do(httpReq)
	}

	// History shows the persisted message
	resp, err := get(fmt.Sprintf("/discussions/%s/messages", discussion))
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var page struct {
		Messages []struct {
			Body string `json:"body"`
		} `json:"messages"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&page))
	req.Len(page.Messages, 1)
	req.Equal("the statistics in table two look wrong", page.Messages[0].Body)

	// The index is fed asynchronously off the fanout; poll until the
	// search surfaces the message
	req.Eventually(func() bool {
		resp, err := get(fmt.Sprintf("/discussions/%s/search?q=statistics", discussion))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		var result struct {
			MessageIDs []string `json:"messageIds"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return false
		}
		return len(result.MessageIDs) == 1
	}, s.cfg.WaitTimeout, 100*time.Millisecond)
}

func Test_Scenario_Handshake_Requires_Token(t *testing.T) {
	req := require.New(t)
	s := newStack(t)

	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	req.Error(err)
	req.Nil(conn)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
}
