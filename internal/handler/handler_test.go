package handler

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskmanager/taskmanager-go/internal/model"
	"github.com/taskmanager/taskmanager-go/internal/repository/boltstore"
	"github.com/taskmanager/taskmanager-go/internal/service"
)

const testSecret = "test-secret"

type testServer struct {
	t *testing.T
	h http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := boltstore.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	router := NewRouter(RouterDeps{
		Users:  service.NewUserService(db.Users(), testSecret, 24*time.Hour),
		Tasks:  service.NewTaskService(db.Tasks()),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return &testServer{t: t, h: router}
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(s.t, err)
		r = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	return rec
}

type authBody struct {
	User  map[string]any `json:"user"`
	Token string         `json:"token"`
}

func (s *testServer) register(name, email, password string) authBody {
	s.t.Helper()

	rec := s.do(http.MethodPost, "/users", "", map[string]any{
		"name": name, "email": email, "password": password,
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())

	var out authBody
	require.NoError(s.t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func (s *testServer) upload(token, field, filename string, data []byte) *httptest.ResponseRecorder {
	s.t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(s.t, err)
	_, err = fw.Write(data)
	require.NoError(s.t, err)
	require.NoError(s.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/users/me/avatar", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body["error"]
}

func assertRedacted(t *testing.T, user map[string]any) {
	t.Helper()
	for _, key := range []string{"password", "passwordHash", "PasswordHash", "tokens", "Tokens", "avatar", "Avatar"} {
		assert.NotContains(t, user, key)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t)

	reg := s.register("Andrew", "  Andrew@Example.com ", "red12345!")
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, "andrew@example.com", reg.User["email"])
	assert.Equal(t, float64(0), reg.User["age"])
	assertRedacted(t, reg.User)

	rec := s.do(http.MethodPost, "/users/login", "", map[string]string{
		"email": "andrew@example.com", "password": "red12345!",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var login authBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&login))
	assert.Equal(t, reg.User["id"], login.User["id"])
	assert.NotEqual(t, reg.Token, login.Token)
	assertRedacted(t, login.User)
}

func TestLogin_Failures(t *testing.T) {
	s := newTestServer(t)
	s.register("Andrew", "andrew@example.com", "red12345!")

	for _, creds := range []map[string]string{
		{"email": "andrew@example.com", "password": "wrong-pass"},
		{"email": "nobody@example.com", "password": "red12345!"},
	} {
		rec := s.do(http.MethodPost, "/users/login", "", creds)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Unable to login", decodeError(t, rec))
	}
}

func TestRegister_Validation(t *testing.T) {
	s := newTestServer(t)
	s.register("Taken", "taken@example.com", "red12345!")

	tests := []struct {
		name string
		body any
	}{
		{"missing name", map[string]any{"email": "a@example.com", "password": "red12345!"}},
		{"bad email", map[string]any{"name": "A", "email": "not-an-email", "password": "red12345!"}},
		{"short password", map[string]any{"name": "A", "email": "a@example.com", "password": "abc123"}},
		{"password contains password", map[string]any{"name": "A", "email": "a@example.com", "password": "mypassword1"}},
		{"negative age", map[string]any{"name": "A", "email": "a@example.com", "password": "red12345!", "age": -1}},
		{"duplicate email, other case", map[string]any{"name": "A", "email": "TAKEN@example.com", "password": "red12345!"}},
		{"malformed json", "{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/users", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decodeError(t, rec))
		})
	}
}

func TestRegister_PasswordMayContainCapitalizedWord(t *testing.T) {
	s := newTestServer(t)

	reg := s.register("Andrew", "andrew@example.com", "MyPassword1")
	assert.NotEmpty(t, reg.Token)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/users/me", "/tasks", "/users/me/avatar"} {
		rec := s.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Equal(t, "Please authenticate.", decodeError(t, rec))
	}

	rec := s.do(http.MethodGet, "/users/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout_RevokesOnlyCurrentToken(t *testing.T) {
	s := newTestServer(t)
	first := s.register("Andrew", "andrew@example.com", "red12345!").Token

	rec := s.do(http.MethodPost, "/users/login", "", map[string]string{
		"email": "andrew@example.com", "password": "red12345!",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var login authBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&login))
	second := login.Token

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/users/logout", first, nil).Code)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/users/me", first, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/users/me", second, nil).Code)
}

func TestLogoutAll(t *testing.T) {
	s := newTestServer(t)
	first := s.register("Andrew", "andrew@example.com", "red12345!").Token

	rec := s.do(http.MethodPost, "/users/login", "", map[string]string{
		"email": "andrew@example.com", "password": "red12345!",
	})
	var login authBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&login))

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/users/logoutAll", login.Token, nil).Code)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/users/me", first, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/users/me", login.Token, nil).Code)
}

func TestGetUser(t *testing.T) {
	s := newTestServer(t)
	alice := s.register("Alice", "alice@example.com", "red12345!")
	bob := s.register("Bob", "bob@example.com", "red12345!")

	rec := s.do(http.MethodGet, "/users/"+bob.User["id"].(string), alice.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var user map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&user))
	assert.Equal(t, "Bob", user["name"])
	assertRedacted(t, user)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/users/"+uuid.NewString(), alice.Token, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/users/not-an-id", alice.Token, nil).Code)
}

func TestUpdateMe(t *testing.T) {
	s := newTestServer(t)
	token := s.register("Andrew", "andrew@example.com", "red12345!").Token

	rec := s.do(http.MethodPatch, "/users/me", token, map[string]any{"name": "Mike", "age": 27})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var user map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&user))
	assert.Equal(t, "Mike", user["name"])
	assert.Equal(t, float64(27), user["age"])
	assertRedacted(t, user)

	rec = s.do(http.MethodPatch, "/users/me", token, map[string]any{"password": "newpass99"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(http.MethodPost, "/users/login", "", map[string]string{
		"email": "andrew@example.com", "password": "newpass99",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateMe_RejectsUnknownKeys(t *testing.T) {
	s := newTestServer(t)
	token := s.register("Andrew", "andrew@example.com", "red12345!").Token

	rec := s.do(http.MethodPatch, "/users/me", token, map[string]any{"name": "Mike", "location": "Philadelphia"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/users/me", token, nil)
	var user map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&user))
	assert.Equal(t, "Andrew", user["name"])
}

func TestUpdateMe_InvalidValueAppliesNothing(t *testing.T) {
	s := newTestServer(t)
	token := s.register("Andrew", "andrew@example.com", "red12345!").Token

	rec := s.do(http.MethodPatch, "/users/me", token, map[string]any{"name": "Mike", "email": "broken"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/users/me", token, nil)
	var user map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&user))
	assert.Equal(t, "Andrew", user["name"])
}

func TestDeleteMe_CascadesTasks(t *testing.T) {
	s := newTestServer(t)
	token := s.register("Andrew", "andrew@example.com", "red12345!").Token

	rec := s.do(http.MethodPost, "/tasks", token, map[string]any{"description": "first"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(http.MethodDelete, "/users/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var user map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&user))
	assert.Equal(t, "andrew@example.com", user["email"])
	assertRedacted(t, user)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/tasks", token, nil).Code)

	// The email can be registered again and starts with no tasks.
	fresh := s.register("Andrew", "andrew@example.com", "red12345!").Token
	rec = s.do(http.MethodGet, "/tasks", fresh, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestAvatar_Lifecycle(t *testing.T) {
	s := newTestServer(t)
	reg := s.register("Andrew", "andrew@example.com", "red12345!")
	other := s.register("Jen", "jen@example.com", "red12345!")

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/users/me/avatar", reg.Token, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/users/me/avatar", reg.Token, nil).Code)

	rec := s.upload(reg.Token, "avatar", "profile-pic.jpg", encodeJPEG(t, 400, 300))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for _, get := range []struct{ path, token string }{
		{"/users/me/avatar", reg.Token},
		{"/users/" + reg.User["id"].(string) + "/avatar", other.Token},
	} {
		rec = s.do(http.MethodGet, get.path, get.token, nil)
		require.Equal(t, http.StatusOK, rec.Code, get.path)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

		cfg, err := png.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, 250, cfg.Width)
		assert.Equal(t, 250, cfg.Height)
	}

	require.Equal(t, http.StatusOK, s.do(http.MethodDelete, "/users/me/avatar", reg.Token, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/users/me/avatar", reg.Token, nil).Code)
}

func TestAvatar_RejectsBadUploads(t *testing.T) {
	s := newTestServer(t)
	token := s.register("Andrew", "andrew@example.com", "red12345!").Token

	tests := []struct {
		name     string
		field    string
		filename string
		data     []byte
	}{
		{"too large", "avatar", "big.jpg", make([]byte, 2_000_000)},
		{"wrong extension", "avatar", "doc.pdf", encodeJPEG(t, 10, 10)},
		{"not an image", "avatar", "fake.png", []byte("definitely not a png")},
		{"wrong field", "upload", "pic.jpg", encodeJPEG(t, 10, 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.upload(token, tt.field, tt.filename, tt.data)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/users/me/avatar", token, nil).Code)
}

func decodeTask(t *testing.T, rec *httptest.ResponseRecorder) model.Task {
	t.Helper()
	var task model.Task
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&task))
	return task
}

func TestTasks_CRUD(t *testing.T) {
	s := newTestServer(t)
	reg := s.register("Andrew", "andrew@example.com", "red12345!")

	rec := s.do(http.MethodPost, "/tasks", reg.Token, map[string]any{"description": "  Clean the house  "})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeTask(t, rec)
	assert.Equal(t, "Clean the house", created.Description)
	assert.False(t, created.Completed)
	assert.Equal(t, reg.User["id"], created.Owner)

	rec = s.do(http.MethodGet, "/tasks/"+created.ID, reg.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decodeTask(t, rec).ID)

	rec = s.do(http.MethodPatch, "/tasks/"+created.ID, reg.Token, map[string]any{"completed": true})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeTask(t, rec)
	assert.True(t, updated.Completed)
	assert.Equal(t, "Clean the house", updated.Description)

	rec = s.do(http.MethodDelete, "/tasks/"+created.ID, reg.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decodeTask(t, rec).ID)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/tasks/"+created.ID, reg.Token, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/tasks/garbage", reg.Token, nil).Code)
}

func TestTasks_OwnerForcedAndValidated(t *testing.T) {
	s := newTestServer(t)
	reg := s.register("Andrew", "andrew@example.com", "red12345!")

	rec := s.do(http.MethodPost, "/tasks", reg.Token, map[string]any{"description": "x", "owner": uuid.NewString()})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, reg.User["id"], decodeTask(t, rec).Owner)

	rec = s.do(http.MethodPost, "/tasks", reg.Token, map[string]any{"description": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTasks_OwnershipIsolation(t *testing.T) {
	s := newTestServer(t)
	alice := s.register("Alice", "alice@example.com", "red12345!").Token
	bob := s.register("Bob", "bob@example.com", "red12345!").Token

	rec := s.do(http.MethodPost, "/tasks", alice, map[string]any{"description": "private"})
	require.Equal(t, http.StatusCreated, rec.Code)
	task := decodeTask(t, rec)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/tasks/"+task.ID, bob, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPatch, "/tasks/"+task.ID, bob, map[string]any{"completed": true}).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/tasks/"+task.ID, bob, nil).Code)

	rec = s.do(http.MethodGet, "/tasks", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = s.do(http.MethodGet, "/tasks/"+task.ID, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeTask(t, rec).Completed)
}

func TestTasks_UpdateRejectsUnknownKeys(t *testing.T) {
	s := newTestServer(t)
	token := s.register("Andrew", "andrew@example.com", "red12345!").Token

	rec := s.do(http.MethodPost, "/tasks", token, map[string]any{"description": "before"})
	task := decodeTask(t, rec)

	for _, body := range []map[string]any{
		{"description": "after", "owner": uuid.NewString()},
		{"completed": true, "id": uuid.NewString()},
		{"description": ""},
	} {
		rec = s.do(http.MethodPatch, "/tasks/"+task.ID, token, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}

	rec = s.do(http.MethodGet, "/tasks/"+task.ID, token, nil)
	got := decodeTask(t, rec)
	assert.Equal(t, "before", got.Description)
	assert.False(t, got.Completed)
}

func TestTasks_ListQuery(t *testing.T) {
	s := newTestServer(t)
	token := s.register("Andrew", "andrew@example.com", "red12345!").Token

	for _, tc := range []struct {
		desc string
		done bool
	}{
		{"c", false},
		{"a", true},
		{"d", true},
		{"b", false},
	} {
		rec := s.do(http.MethodPost, "/tasks", token, map[string]any{"description": tc.desc, "completed": tc.done})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	list := func(query string) []string {
		t.Helper()
		rec := s.do(http.MethodGet, "/tasks"+query, token, nil)
		require.Equal(t, http.StatusOK, rec.Code, query)
		var tasks []model.Task
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&tasks))
		out := make([]string, len(tasks))
		for i, task := range tasks {
			out[i] = task.Description
		}
		return out
	}

	assert.Len(t, list(""), 4)
	assert.ElementsMatch(t, []string{"a", "d"}, list("?completed=true"))
	assert.ElementsMatch(t, []string{"b", "c"}, list("?completed=false"))
	assert.Equal(t, []string{"d", "c", "b", "a"}, list("?sortBy=description:desc"))
	assert.Equal(t, []string{"b", "c"}, list("?sortBy=description:asc&limit=2&skip=1"))
	assert.Equal(t, []string{"a", "d"}, list("?completed=true&sortBy=description"))
	assert.Empty(t, list("?skip=10"))

	for _, query := range []string{"?limit=abc", "?skip=-1", "?completed=maybe", "?sortBy=owner:asc", "?sortBy=description:sideways"} {
		assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/tasks"+query, token, nil).Code, query)
	}
}

func TestParseTaskQuery(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    model.TaskQuery
		wantErr bool
	}{
		{name: "empty", query: "", want: model.TaskQuery{}},
		{name: "sort default direction", query: "sortBy=updatedAt", want: model.TaskQuery{SortField: model.SortByUpdatedAt}},
		{name: "sort desc", query: "sortBy=createdAt:desc", want: model.TaskQuery{SortField: model.SortByCreatedAt, SortDesc: true}},
		{name: "paging", query: "limit=5&skip=10", want: model.TaskQuery{Limit: 5, Skip: 10}},
		{name: "zero limit", query: "limit=0", want: model.TaskQuery{}},
		{name: "float limit", query: "limit=1.5", wantErr: true},
		{name: "negative limit", query: "limit=-2", wantErr: true},
		{name: "uppercase boolean", query: "completed=TRUE", wantErr: true},
		{name: "unknown field", query: "sortBy=priority", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := url.ParseQuery(tt.query)
			require.NoError(t, err)

			got, err := parseTaskQuery(values)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	values, _ := url.ParseQuery("completed=false")
	got, err := parseTaskQuery(values)
	require.NoError(t, err)
	require.NotNil(t, got.Completed)
	assert.False(t, *got.Completed)
}
