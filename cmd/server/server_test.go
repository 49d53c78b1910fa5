package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appkafka "example.com/socialfeed/internal/broker"
	"example.com/socialfeed/internal/engage"
	"example.com/socialfeed/internal/middleware"
	"example.com/socialfeed/internal/models"
	"example.com/socialfeed/internal/store"
	"example.com/socialfeed/internal/token"
	"golang.org/x/crypto/bcrypt"
)

//
// --- Helpers ---
//

func newTokens(t *testing.T) *token.Service {
	t.Helper()
	tokens, err := token.New("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("token.New failed: %v", err)
	}
	return tokens
}

// send a request and return status plus raw body
func send(t *testing.T, method, url string, body any, tok string) (int, []byte) {
	t.Helper()

	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("json.Marshal failed: %v", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set(middleware.TokenHeader, tok)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body failed: %v", err)
	}
	return resp.StatusCode, data
}

func mustStatus(t *testing.T, got, want int, body []byte) {
	t.Helper()
	if got != want {
		t.Fatalf("expected %d, got %d: %s", want, got, string(body))
	}
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %q failed: %v", string(data), err)
	}
	return v
}

//
// --- Setup test server ---
//

func setupTestServer(t *testing.T, opts ...engage.Option) (*Server, *store.MemoryStore, *httptest.Server) {
	t.Helper()
	st := store.NewMemory()
	s := New(st, newTokens(t), bcrypt.MinCost, opts...)
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	return s, st, ts
}

func register(t *testing.T, ts *httptest.Server, name, email string) string {
	t.Helper()
	status, body := send(t, http.MethodPost, ts.URL+"/api/users",
		map[string]string{"name": name, "email": email, "password": "secret1"}, "")
	mustStatus(t, status, http.StatusOK, body)
	return decode[map[string]string](t, body)["token"]
}

func me(t *testing.T, ts *httptest.Server, tok string) models.User {
	t.Helper()
	status, body := send(t, http.MethodGet, ts.URL+"/api/auth", nil, tok)
	mustStatus(t, status, http.StatusOK, body)
	return decode[models.User](t, body)
}

//
// --- Tests ---
//

// register, post, like twice, comment, delete comment as wrong and right user
func TestEndToEndEngagement(t *testing.T) {
	_, _, ts := setupTestServer(t)

	aliceTok := register(t, ts, "Alice", "a@x.com")
	bobTok := register(t, ts, "Bob", "b@x.com")
	alice := me(t, ts, aliceTok)
	bob := me(t, ts, bobTok)

	status, body := send(t, http.MethodPost, ts.URL+"/api/post", map[string]string{"text": "hello"}, aliceTok)
	mustStatus(t, status, http.StatusOK, body)
	if !bytes.Contains(body, []byte(`"likes":[]`)) || !bytes.Contains(body, []byte(`"comment":[]`)) {
		t.Fatalf("expected empty likes and comment arrays, got %s", body)
	}
	post := decode[models.Post](t, body)
	if post.AuthorID != alice.ID || post.Text != "hello" || post.Name != "Alice" {
		t.Fatalf("unexpected post: %+v", post)
	}

	likeURL := ts.URL + "/api/post/like/" + post.ID
	status, body = send(t, http.MethodGet, likeURL, nil, aliceTok)
	mustStatus(t, status, http.StatusOK, body)
	likes := decode[[]models.Like](t, body)
	if len(likes) != 1 || likes[0].UserID != alice.ID {
		t.Fatalf("expected one like from alice, got %s", body)
	}

	status, body = send(t, http.MethodGet, likeURL, nil, aliceTok)
	mustStatus(t, status, http.StatusOK, body)
	if strings.TrimSpace(string(body)) != "[]" {
		t.Fatalf("expected [] after second like, got %s", body)
	}

	status, body = send(t, http.MethodPost, ts.URL+"/api/post/comment/"+post.ID, map[string]string{"text": "nice"}, bobTok)
	mustStatus(t, status, http.StatusOK, body)
	comments := decode[[]models.Comment](t, body)
	if len(comments) != 1 || comments[0].UserID != bob.ID {
		t.Fatalf("expected one comment from bob, got %s", body)
	}

	delURL := ts.URL + "/api/post/comment/" + post.ID + "/" + comments[0].ID
	status, body = send(t, http.MethodDelete, delURL, nil, aliceTok)
	mustStatus(t, status, http.StatusUnauthorized, body)
	if msg := decode[map[string]string](t, body)["msg"]; msg != "User not authorized" {
		t.Fatalf("unexpected msg %q", msg)
	}

	status, body = send(t, http.MethodDelete, delURL, nil, bobTok)
	mustStatus(t, status, http.StatusOK, body)
	if strings.TrimSpace(string(body)) != "[]" {
		t.Fatalf("expected empty comment list, got %s", body)
	}

	status, body = send(t, http.MethodGet, ts.URL+"/api/post/"+post.ID, nil, bobTok)
	mustStatus(t, status, http.StatusOK, body)
	if got := decode[models.Post](t, body); len(got.Comments) != 0 {
		t.Fatalf("deleted comment still visible: %s", body)
	}
}

func TestRoot(t *testing.T) {
	_, _, ts := setupTestServer(t)
	status, body := send(t, http.MethodGet, ts.URL+"/", nil, "")
	mustStatus(t, status, http.StatusOK, body)
	if string(body) != "API is running..." {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestAuthGate(t *testing.T) {
	_, _, ts := setupTestServer(t)

	status, body := send(t, http.MethodGet, ts.URL+"/api/post", nil, "")
	mustStatus(t, status, http.StatusUnauthorized, body)
	if msg := decode[map[string]string](t, body)["msg"]; msg != "No token, authorization denied" {
		t.Fatalf("unexpected msg %q", msg)
	}

	status, body = send(t, http.MethodGet, ts.URL+"/api/post", nil, "garbage")
	mustStatus(t, status, http.StatusUnauthorized, body)
	if msg := decode[map[string]string](t, body)["msg"]; msg != "Token is not valid" {
		t.Fatalf("unexpected msg %q", msg)
	}

	other, _ := token.New("other-secret", time.Hour)
	forged, _ := other.Issue("someone")
	status, body = send(t, http.MethodGet, ts.URL+"/api/post", nil, forged)
	mustStatus(t, status, http.StatusUnauthorized, body)
}

func TestRegister_ValidationAndDuplicate(t *testing.T) {
	_, _, ts := setupTestServer(t)

	status, body := send(t, http.MethodPost, ts.URL+"/api/users",
		map[string]string{"name": "", "email": "nope", "password": "123"}, "")
	mustStatus(t, status, http.StatusBadRequest, body)
	errs := decode[map[string][]map[string]string](t, body)["errors"]
	if len(errs) != 3 {
		t.Fatalf("expected three field errors, got %s", body)
	}

	register(t, ts, "Alice", "a@x.com")
	status, body = send(t, http.MethodPost, ts.URL+"/api/users",
		map[string]string{"name": "Alice", "email": "a@x.com", "password": "secret1"}, "")
	mustStatus(t, status, http.StatusBadRequest, body)
	errs = decode[map[string][]map[string]string](t, body)["errors"]
	if len(errs) != 1 || errs[0]["msg"] != "User already exist" {
		t.Fatalf("unexpected duplicate response %s", body)
	}
}

func TestRegister_InvalidJSON(t *testing.T) {
	_, _, ts := setupTestServer(t)
	status, body := send(t, http.MethodPost, ts.URL+"/api/users", `{"name":123}`, "")
	mustStatus(t, status, http.StatusBadRequest, body)
}

func TestRegister_BodyTooLarge(t *testing.T) {
	_, _, ts := setupTestServer(t)
	huge := `{"name":"` + strings.Repeat("a", maxBodyBytes) + `","email":"a@x.com","password":"secret1"}`

	status, body := send(t, http.MethodPost, ts.URL+"/api/users", huge, "")
	mustStatus(t, status, http.StatusBadRequest, body)
	errs := decode[map[string][]map[string]string](t, body)["errors"]
	if len(errs) != 1 || errs[0]["msg"] != "Request body too large" {
		t.Fatalf("unexpected response %s", body)
	}
}

func TestRegister_PasswordLimits(t *testing.T) {
	_, st, ts := setupTestServer(t)

	cases := []struct {
		name     string
		email    string
		password string
		want     int
	}{
		{"over bcrypt limit", "long@x.com", strings.Repeat("p", 80), http.StatusBadRequest},
		{"two emoji", "emoji@x.com", "😀😀", http.StatusBadRequest},
		{"six multibyte runes", "runes@x.com", "ééééé1", http.StatusOK},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			status, body := send(t, http.MethodPost, ts.URL+"/api/users",
				map[string]string{"name": "Alice", "email": c.email, "password": c.password}, "")
			mustStatus(t, status, c.want, body)
			if c.want != http.StatusBadRequest {
				return
			}
			errs := decode[map[string][]map[string]string](t, body)["errors"]
			if len(errs) != 1 || errs[0]["param"] != "password" {
				t.Fatalf("expected one password error, got %s", body)
			}
			if _, err := st.GetUserByEmail(context.Background(), c.email); err == nil {
				t.Fatalf("rejected user %s was stored", c.email)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	_, _, ts := setupTestServer(t)
	register(t, ts, "Alice", "a@x.com")

	status, body := send(t, http.MethodPost, ts.URL+"/api/auth",
		map[string]string{"email": "a@x.com", "password": "secret1"}, "")
	mustStatus(t, status, http.StatusOK, body)
	tok := decode[map[string]string](t, body)["token"]
	if me(t, ts, tok).Email != "a@x.com" {
		t.Fatalf("login token resolves to wrong user")
	}

	status, wrongPass := send(t, http.MethodPost, ts.URL+"/api/auth",
		map[string]string{"email": "a@x.com", "password": "bad-password"}, "")
	mustStatus(t, status, http.StatusBadRequest, wrongPass)
	status, unknown := send(t, http.MethodPost, ts.URL+"/api/auth",
		map[string]string{"email": "z@x.com", "password": "secret1"}, "")
	mustStatus(t, status, http.StatusBadRequest, unknown)
	if !bytes.Equal(wrongPass, unknown) {
		t.Fatalf("login failures differ: %s vs %s", wrongPass, unknown)
	}
}

func TestCurrentUser_HidesPasswordHash(t *testing.T) {
	_, _, ts := setupTestServer(t)
	tok := register(t, ts, "Alice", "a@x.com")

	status, body := send(t, http.MethodGet, ts.URL+"/api/auth", nil, tok)
	mustStatus(t, status, http.StatusOK, body)
	if bytes.Contains(body, []byte("$2a$")) || bytes.Contains(body, []byte("password")) {
		t.Fatalf("password hash leaked: %s", body)
	}
	if !bytes.Contains(body, []byte(`"_id"`)) {
		t.Fatalf("expected _id in %s", body)
	}
}

func TestPosts_ListGetDelete(t *testing.T) {
	_, _, ts := setupTestServer(t)
	aliceTok := register(t, ts, "Alice", "a@x.com")
	bobTok := register(t, ts, "Bob", "b@x.com")

	status, body := send(t, http.MethodPost, ts.URL+"/api/post", map[string]string{"text": ""}, aliceTok)
	mustStatus(t, status, http.StatusBadRequest, body)

	_, body = send(t, http.MethodPost, ts.URL+"/api/post", map[string]string{"text": "first"}, aliceTok)
	first := decode[models.Post](t, body)
	time.Sleep(2 * time.Millisecond)
	_, body = send(t, http.MethodPost, ts.URL+"/api/post", map[string]string{"text": "second"}, aliceTok)
	second := decode[models.Post](t, body)

	status, body = send(t, http.MethodGet, ts.URL+"/api/post", nil, bobTok)
	mustStatus(t, status, http.StatusOK, body)
	posts := decode[[]models.Post](t, body)
	if len(posts) != 2 || posts[0].ID != second.ID || posts[1].ID != first.ID {
		t.Fatalf("expected newest first, got %s", body)
	}

	status, body = send(t, http.MethodDelete, ts.URL+"/api/post/"+first.ID, nil, bobTok)
	mustStatus(t, status, http.StatusUnauthorized, body)

	status, body = send(t, http.MethodDelete, ts.URL+"/api/post/"+first.ID, nil, aliceTok)
	mustStatus(t, status, http.StatusOK, body)
	if msg := decode[map[string]string](t, body)["msg"]; msg != "Post removed" {
		t.Fatalf("unexpected msg %q", msg)
	}

	status, body = send(t, http.MethodGet, ts.URL+"/api/post/"+first.ID, nil, aliceTok)
	mustStatus(t, status, http.StatusNotFound, body)
	if msg := decode[map[string]string](t, body)["msg"]; msg != "Post not found" {
		t.Fatalf("unexpected msg %q", msg)
	}
}

func TestLikeAndComment_NotFound(t *testing.T) {
	_, _, ts := setupTestServer(t)
	tok := register(t, ts, "Alice", "a@x.com")

	status, body := send(t, http.MethodGet, ts.URL+"/api/post/like/missing", nil, tok)
	mustStatus(t, status, http.StatusNotFound, body)

	status, body = send(t, http.MethodPost, ts.URL+"/api/post/comment/missing", map[string]string{"text": "hi"}, tok)
	mustStatus(t, status, http.StatusNotFound, body)

	_, body = send(t, http.MethodPost, ts.URL+"/api/post", map[string]string{"text": "hello"}, tok)
	post := decode[models.Post](t, body)

	status, body = send(t, http.MethodDelete, ts.URL+"/api/post/comment/"+post.ID+"/missing", nil, tok)
	mustStatus(t, status, http.StatusNotFound, body)
	if msg := decode[map[string]string](t, body)["msg"]; msg != "Comment does not exist" {
		t.Fatalf("unexpected msg %q", msg)
	}

	status, body = send(t, http.MethodPost, ts.URL+"/api/post/comment/"+post.ID, map[string]string{"text": " "}, tok)
	mustStatus(t, status, http.StatusBadRequest, body)
}

func TestActivity(t *testing.T) {
	_, st, ts := setupTestServer(t)
	tok := register(t, ts, "Alice", "a@x.com")
	alice := me(t, ts, tok)

	status, body := send(t, http.MethodGet, ts.URL+"/api/activity", nil, tok)
	mustStatus(t, status, http.StatusOK, body)
	if strings.TrimSpace(string(body)) != "[]" {
		t.Fatalf("expected empty activity, got %s", body)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = st.AddActivity(ctx, models.Activity{
			ID:      "act-" + string(rune('a'+i)),
			UserID:  alice.ID,
			Kind:    models.EventPostLiked,
			ActorID: "bob",
			PostID:  "p1",
			Created: time.Now().Add(time.Duration(i) * time.Second),
		})
	}

	status, body = send(t, http.MethodGet, ts.URL+"/api/activity?limit=2", nil, tok)
	mustStatus(t, status, http.StatusOK, body)
	items := decode[[]models.Activity](t, body)
	if len(items) != 2 || items[0].ID != "act-c" {
		t.Fatalf("expected two newest entries, got %s", body)
	}
}

func TestEventsPublishedToKafka(t *testing.T) {
	mk := &appkafka.MockKafka{}
	_, _, ts := setupTestServer(t, engage.WithPublisher(appkafka.NewPublisher(mk)))
	tok := register(t, ts, "Alice", "a@x.com")

	_, body := send(t, http.MethodPost, ts.URL+"/api/post", map[string]string{"text": "hello"}, tok)
	post := decode[models.Post](t, body)
	send(t, http.MethodGet, ts.URL+"/api/post/like/"+post.ID, nil, tok)

	written := mk.Written()
	if len(written) != 2 {
		t.Fatalf("expected 2 events, got %d", len(written))
	}
	ev, err := appkafka.DecodeEvent(written[1])
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	if ev.Kind != models.EventPostLiked || ev.PostID != post.ID || ev.OwnerID != post.AuthorID {
		t.Fatalf("unexpected event %+v", ev)
	}
}

// Kafka write error must not fail the request
func TestKafkaWriteError(t *testing.T) {
	_, _, ts := setupTestServer(t, engage.WithPublisher(appkafka.NewPublisher(&appkafka.MockKafkaFail{})))
	tok := register(t, ts, "Alice", "a@x.com")

	status, body := send(t, http.MethodPost, ts.URL+"/api/post", map[string]string{"text": "hello"}, tok)
	mustStatus(t, status, http.StatusOK, body)
}

// Store failures surface as an opaque 500
func TestStoreFailureIsOpaque(t *testing.T) {
	tokens := newTokens(t)
	s := New(&store.MockStoreFail{}, tokens, bcrypt.MinCost)
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()

	tok, _ := tokens.Issue("u1")
	status, body := send(t, http.MethodGet, ts.URL+"/api/post", nil, tok)
	mustStatus(t, status, http.StatusInternalServerError, body)
	if msg := decode[map[string]string](t, body)["msg"]; msg != "Server error" {
		t.Fatalf("unexpected msg %q", msg)
	}
	if bytes.Contains(body, []byte("mock store")) {
		t.Fatalf("internal detail leaked: %s", body)
	}
}
