package rest_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"reviewroom/auth"
	"reviewroom/domain"
	"reviewroom/mocks"
	"reviewroom/runtime"
	"reviewroom/services"
	"reviewroom/transport/rest"
)

const testSecret = "test-secret"

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(domain.Command) {}

type fixture struct {
	server *httptest.Server
	store  *mocks.MockDiscussionStore
	index  *mocks.MockMessageIndex
	tokens auth.TokenManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockDiscussionStore(ctrl)
	index := mocks.NewMockMessageIndex(ctrl)
	tokens := auth.NewTokenManager(testSecret)

	service := services.NewDiscussionService(runtime.NewRegistry(), noopDispatcher{}, store, index)
	mux := http.NewServeMux()
	rest.NewHandlers(slog.Default(), service, tokens).Register(mux)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return &fixture{server: server, store: store, index: index, tokens: tokens}
}

func (f *fixture) request(t *testing.T, method, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (f *fixture) tokenFor(t *testing.T, userID string, roles ...string) string {
	t.Helper()
	token, err := f.tokens.Generate(userID, roles, time.Hour)
	require.NoError(t, err)
	return token
}

func Test_GetMessages_Returns_Page_For_Participant(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	msg := domain.Message{
		ID: uuid.New(), Discussion: "paper-42", Author: "alice",
		Body: "hello", Lang: "en", At: time.Now().UTC(),
	}
	cursor := "next-cursor"
	f.store.EXPECT().IsParticipant(gomock.Any(), domain.DiscussionID("paper-42"), "alice").Return(true, nil)
	f.store.EXPECT().Messages(gomock.Any(), domain.DiscussionID("paper-42"), gomock.Nil()).
		Return([]domain.Message{msg}, &cursor, nil)

	resp := f.request(t, http.MethodGet, "/discussions/paper-42/messages", f.tokenFor(t, "alice"))
	req.Equal(http.StatusOK, resp.StatusCode)

	var page struct {
		Messages []struct {
			ID     string `json:"id"`
			Author string `json:"author"`
			Body   string `json:"body"`
		} `json:"messages"`
		Cursor *string `json:"cursor"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&page))
	req.Len(page.Messages, 1)
	req.Equal(msg.ID.String(), page.Messages[0].ID)
	req.Equal("alice", page.Messages[0].Author)
	req.NotNil(page.Cursor)
	req.Equal(cursor, *page.Cursor)
}

func Test_GetMessages_Forbidden_For_Non_Participant(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.store.EXPECT().IsParticipant(gomock.Any(), domain.DiscussionID("paper-42"), "mallory").Return(false, nil)

	resp := f.request(t, http.MethodGet, "/discussions/paper-42/messages", f.tokenFor(t, "mallory"))
	req.Equal(http.StatusForbidden, resp.StatusCode)
}

func Test_Endpoints_Require_A_Valid_Token(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	resp := f.request(t, http.MethodGet, "/discussions/paper-42/messages", "")
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	resp = f.request(t, http.MethodGet, "/discussions/paper-42/messages", "garbage")
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func Test_Search_Validates_Query_And_Limit(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.store.EXPECT().
		IsParticipant(gomock.Any(), domain.DiscussionID("paper-42"), "alice").
		Return(true, nil).
		AnyTimes()

	token := f.tokenFor(t, "alice")

	resp := f.request(t, http.MethodGet, "/discussions/paper-42/search", token)
	req.Equal(http.StatusBadRequest, resp.StatusCode)

	resp = f.request(t, http.MethodGet, "/discussions/paper-42/search?q=stats&limit=0", token)
	req.Equal(http.StatusBadRequest, resp.StatusCode)

	resp = f.request(t, http.MethodGet, "/discussions/paper-42/search?q=stats&limit=101", token)
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func Test_Search_Returns_Matching_Ids(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	matchID := uuid.New()
	f.store.EXPECT().IsParticipant(gomock.Any(), domain.DiscussionID("paper-42"), "alice").Return(true, nil)
	f.index.EXPECT().Search(gomock.Any(), domain.DiscussionID("paper-42"), "statistics", 10).
		Return([]uuid.UUID{matchID}, nil)

	resp := f.request(t, http.MethodGet, "/discussions/paper-42/search?q=statistics", f.tokenFor(t, "alice"))
	req.Equal(http.StatusOK, resp.StatusCode)

	var body struct {
		MessageIDs []string `json:"messageIds"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&body))
	req.Equal([]string{matchID.String()}, body.MessageIDs)
}

func Test_Roster_Mutation_Requires_Editor_Role(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	// A plain reviewer cannot mutate the roster
	resp := f.request(t, http.MethodPost, "/discussions/paper-42/participants/bob",
		f.tokenFor(t, "alice", "reviewer"))
	req.Equal(http.StatusForbidden, resp.StatusCode)

	// An editor can
	f.store.EXPECT().AddParticipant(gomock.Any(), domain.DiscussionID("paper-42"), "bob").Return(nil)
	resp = f.request(t, http.MethodPost, "/discussions/paper-42/participants/bob",
		f.tokenFor(t, "alice", "editor"))
	req.Equal(http.StatusNoContent, resp.StatusCode)

	f.store.EXPECT().RemoveParticipant(gomock.Any(), domain.DiscussionID("paper-42"), "bob").Return(nil)
	resp = f.request(t, http.MethodDelete, "/discussions/paper-42/participants/bob",
		f.tokenFor(t, "alice", "editor"))
	req.Equal(http.StatusNoContent, resp.StatusCode)
}
