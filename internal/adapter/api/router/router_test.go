package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kitchenchat/internal/adapter/api"
	"kitchenchat/internal/adapter/api/handler"
	"kitchenchat/internal/adapter/api/middleware"
	adapterrepo "kitchenchat/internal/adapter/repository"
	"kitchenchat/internal/domain/entity"
	"kitchenchat/internal/domain/service"
	"kitchenchat/internal/infrastructure/docstore"
	"kitchenchat/internal/infrastructure/metrics"
	"kitchenchat/internal/infrastructure/ratelimit"
	ws "kitchenchat/internal/infrastructure/websocket"
	"kitchenchat/internal/usecase"
	"kitchenchat/pkg/logger"
	"kitchenchat/pkg/response"
)

func init() {
	logger.SetLogger(zap.NewNop())
}

type staticIdentity struct {
	userID int64
	role   entity.Role
}

func (i staticIdentity) UserID() int64     { return i.userID }
func (i staticIdentity) Role() entity.Role { return i.role }
func (i staticIdentity) Credential(ctx context.Context, forceRefresh bool) (string, error) {
	return "token", nil
}

type tokenTable map[string]staticIdentity

func (t tokenTable) Authenticate(ctx context.Context, idToken string) (service.Identity, error) {
	id, ok := t[idToken]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return id, nil
}

var tokens = tokenTable{
	"chef-1":    {userID: 1, role: entity.RoleChef},
	"manager-2": {userID: 2, role: entity.RoleManager},
	"chef-3":    {userID: 3, role: entity.RoleChef},
}

const serviceKey = "svc-key"

type fakeUploader struct {
	mu       sync.Mutex
	body     []byte
	fileType string
	folder   string
}

func (u *fakeUploader) UploadFile(ctx context.Context, file io.Reader, fileType, folder string) (string, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return "", err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.body, u.fileType, u.folder = data, fileType, folder
	return "https://files.example/" + folder + "/x.png", nil
}

func (u *fakeUploader) Close() error { return nil }

type server struct {
	e        *echo.Echo
	uploader *fakeUploader
	convUC   *usecase.ConversationUseCase
}

func newServer(t *testing.T, sendsPerMinute int) *server {
	t.Helper()

	store := docstore.NewMemoryStore(nil)
	convRepo := adapterrepo.NewConversationRepository(store)
	msgRepo := adapterrepo.NewMessageRepository(store)
	m := metrics.New(prometheus.NewRegistry())

	convUC := usecase.NewConversationUseCase(convRepo, m)
	msgUC := usecase.NewMessageUseCase(convRepo, msgRepo, nil, m, 0)
	readUC := usecase.NewReadStateUseCase(convRepo, msgRepo, m)
	uploader := &fakeUploader{}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	wsManager := ws.NewManager(msgUC)
	wsManager.Start(ctx)

	e := echo.New()
	e.Validator = api.NewValidator()
	Setup(e, Handlers{
		Health:       handler.NewHealthHandler("memory"),
		Conversation: handler.NewConversationHandler(convUC),
		Message:      handler.NewMessageHandler(msgUC, readUC, convUC),
		Upload:       handler.NewUploadHandler(uploader, func(ct string) bool { return ct == "image/png" }),
		WebSocket:    handler.NewWebSocketHandler(wsManager, nil),
	}, middleware.NewAuthMiddleware(tokens), middleware.NewServiceKeyMiddleware(serviceKey), ratelimit.NewRateLimiter(sendsPerMinute))

	return &server{e: e, uploader: uploader, convUC: convUC}
}

func (s *server) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	header := http.Header{}
	if token != "" {
		header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	return s.doWithHeader(t, method, path, header, body)
}

func (s *server) doWithHeader(t *testing.T, method, path string, header http.Header, body interface{}) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	var resp response.Response
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func dataField(t *testing.T, resp response.Response, key string) string {
	t.Helper()
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", resp.Data)
	v, _ := data[key].(string)
	return v
}

func (s *server) createConversation(t *testing.T) string {
	t.Helper()
	rec, resp := s.do(t, http.MethodPost, "/v1/conversations", "chef-1",
		map[string]int64{"application_id": 100, "chef_id": 1, "manager_id": 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return dataField(t, resp, "conversation_id")
}

func TestHealthCheck(t *testing.T) {
	s := newServer(t, 60)

	rec, _ := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "memory")
}

func TestAuthenticationRequired(t *testing.T) {
	s := newServer(t, 60)

	rec, resp := s.do(t, http.MethodGet, "/v1/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)

	rec, _ = s.do(t, http.MethodGet, "/v1/conversations", "forged", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/ws", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConversationLifecycle(t *testing.T) {
	s := newServer(t, 600)
	convID := s.createConversation(t)

	rec, resp := s.do(t, http.MethodPost, "/v1/conversations", "chef-1", map[string]int64{"application_id": 100})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, convID, dataField(t, resp, "conversation_id"))

	rec, resp = s.do(t, http.MethodPost, "/v1/conversations/"+convID+"/messages", "chef-1", map[string]string{"content": "hi"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, dataField(t, resp, "message_id"))

	rec, resp = s.do(t, http.MethodGet, "/v1/conversations", "manager-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list, ok := resp.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, list, 1)
	first := list[0].(map[string]interface{})
	assert.Equal(t, convID, first["id"])
	assert.Equal(t, float64(1), first["unread_manager_count"])

	rec, _ = s.do(t, http.MethodPut, "/v1/conversations/"+convID+"/read", "manager-2", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, resp = s.do(t, http.MethodGet, "/v1/applications/100/conversation", "manager-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	conv := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(0), conv["unread_manager_count"])

	rec, resp = s.do(t, http.MethodGet, "/v1/conversations/"+convID+"/messages?limit=10", "chef-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := resp.Data.([]interface{})
	require.Len(t, msgs, 1)
	msg := msgs[0].(map[string]interface{})
	assert.Equal(t, "hi", msg["content"])
	assert.Equal(t, "text", msg["type"])
	assert.NotEmpty(t, msg["read_at"])
}

func TestSystemMessageNeedsServiceKey(t *testing.T) {
	s := newServer(t, 600)
	convID := s.createConversation(t)
	path := "/v1/internal/conversations/" + convID + "/system-messages"
	withKey := func(key string) http.Header {
		h := http.Header{}
		h.Set(middleware.HeaderServiceKey, key)
		return h
	}

	rec, _ := s.doWithHeader(t, http.MethodPost, path, withKey(serviceKey), map[string]string{"content": "Shift confirmed"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, _ = s.doWithHeader(t, http.MethodPost, path, withKey(serviceKey), map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp := s.doWithHeader(t, http.MethodPost, path, withKey("guess"), map[string]string{"content": "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", resp.Error.Code)

	// a user token is not a service credential
	rec, _ = s.do(t, http.MethodPost, path, "manager-2", map[string]string{"content": "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = s.do(t, http.MethodPost, "/v1/conversations/"+convID+"/system-messages", "manager-2", map[string]string{"content": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, resp = s.do(t, http.MethodGet, "/v1/conversations/"+convID+"/messages", "chef-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp.Data.([]interface{}), 1)
}

func TestForeignChefIsRejected(t *testing.T) {
	s := newServer(t, 600)
	convID := s.createConversation(t)
	base := "/v1/conversations/" + convID

	rec, resp := s.do(t, http.MethodPost, base+"/messages", "chef-3", map[string]string{"content": "let me in"})
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	assert.Equal(t, "FORBIDDEN", resp.Error.Code)

	rec, _ = s.do(t, http.MethodGet, base+"/messages", "chef-3", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(t, http.MethodPut, base+"/read", "chef-3", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(t, http.MethodGet, base, "chef-3", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/v1/applications/100/conversation", "chef-3", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/v1/conversations", "chef-3",
		map[string]int64{"application_id": 100, "chef_id": 3, "manager_id": 9})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, resp = s.do(t, http.MethodGet, base, "chef-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	conv := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(1), conv["chef_id"])
	assert.Equal(t, float64(2), conv["manager_id"])
	assert.Equal(t, float64(0), conv["unread_manager_count"])

	rec, resp = s.do(t, http.MethodGet, "/v1/conversations", "chef-3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, resp.Data)
}

func dialWS(t *testing.T, srv *httptest.Server, token string) *gorillaws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func subscribeWS(t *testing.T, conn *gorillaws.Conn, conversationID string) ws.ServerFrame {
	t.Helper()
	require.NoError(t, conn.WriteJSON(ws.ClientFrame{Type: ws.MessageTypeSubscribe, ConversationID: conversationID}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame ws.ServerFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestWebSocketSubscribeRequiresParty(t *testing.T) {
	s := newServer(t, 600)
	convID := s.createConversation(t)
	rec, _ := s.do(t, http.MethodPost, "/v1/conversations/"+convID+"/messages", "chef-1", map[string]string{"content": "hi"})
	require.Equal(t, http.StatusCreated, rec.Code)

	srv := httptest.NewServer(s.e)
	t.Cleanup(srv.Close)

	frame := subscribeWS(t, dialWS(t, srv, "chef-3"), convID)
	assert.Equal(t, ws.MessageTypeSubscriptionError, frame.Type)
	assert.Equal(t, "Not a participant of this conversation", frame.Error)

	frame = subscribeWS(t, dialWS(t, srv, "manager-2"), convID)
	assert.Equal(t, ws.MessageTypeMessages, frame.Type)
	require.Len(t, frame.Messages, 1)
	assert.Equal(t, "hi", frame.Messages[0].Content)
}

func TestManagerSendRepairsManagerID(t *testing.T) {
	s := newServer(t, 600)
	rec, resp := s.do(t, http.MethodPost, "/v1/conversations", "chef-1", map[string]int64{"application_id": 5, "chef_id": 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	convID := dataField(t, resp, "conversation_id")

	rec, _ = s.do(t, http.MethodPost, "/v1/conversations/"+convID+"/messages", "manager-2", map[string]string{"content": "welcome"})
	require.Equal(t, http.StatusCreated, rec.Code)

	conv, err := s.convUC.GetByID(service.WithIdentity(context.Background(), tokens["manager-2"]), convID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), conv.ManagerID)
}

func TestValidationErrors(t *testing.T) {
	s := newServer(t, 600)
	convID := s.createConversation(t)

	rec, resp := s.do(t, http.MethodPost, "/v1/conversations", "chef-1", map[string]int64{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)

	rec, resp = s.do(t, http.MethodPost, "/v1/conversations/"+convID+"/messages", "chef-1", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)

	rec, _ = s.do(t, http.MethodPost, "/v1/conversations/"+convID+"/messages", "chef-1", map[string]string{"content": "x", "type": "system"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/v1/conversations/"+convID+"/messages?limit=abc", "chef-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/v1/applications/zero/conversation", "chef-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = s.do(t, http.MethodGet, "/v1/conversations/missing", "chef-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestSendIsRateLimited(t *testing.T) {
	s := newServer(t, 3)
	convID := s.createConversation(t)
	path := "/v1/conversations/" + convID + "/messages"

	rec, _ := s.do(t, http.MethodPost, path, "chef-1", map[string]string{"content": "one"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, resp := s.do(t, http.MethodPost, path, "chef-1", map[string]string{"content": "two"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "TOO_MANY_REQUESTS", resp.Error.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// buckets are per user
	rec, _ = s.do(t, http.MethodPost, path, "manager-2", map[string]string{"content": "three"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func upload(t *testing.T, s *server, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	return uploadTo(t, s, contentType, "c1")
}

func uploadTo(t *testing.T, s *server, contentType, conversationID string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {`form-data; name="file"; filename="menu.png"`},
		"Content-Type":        {contentType},
	})
	require.NoError(t, err)
	_, err = part.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("conversation_id", conversationID))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, "Bearer chef-1")
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func TestUpload(t *testing.T) {
	s := newServer(t, 600)

	rec := upload(t, s, "image/png")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "https://files.example/c1/x.png")
	assert.Equal(t, "png-bytes", string(s.uploader.body))
	assert.Equal(t, "image/png", s.uploader.fileType)
	assert.Equal(t, "c1", s.uploader.folder)

	rec = upload(t, s, "application/x-msdownload")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadRejectsPathLikeConversationID(t *testing.T) {
	s := newServer(t, 600)

	for _, id := range []string{"../../etc", "c1/other", "a.b"} {
		rec := uploadTo(t, s, "image/png", id)
		assert.Equal(t, http.StatusBadRequest, rec.Code, id)
	}
	assert.Empty(t, s.uploader.folder)
}
