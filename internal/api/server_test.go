package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/DOUGSKEEZ/monty-sub006/internal/catalog"
	"github.com/DOUGSKEEZ/monty-sub006/internal/dispatch"
	"github.com/DOUGSKEEZ/monty-sub006/internal/infrastructure/config"
	"github.com/DOUGSKEEZ/monty-sub006/internal/infrastructure/logging"
)

const testAPIToken = "test-token"

// fakeCatalog is an in-memory CatalogStore for handler tests.
type fakeCatalog struct {
	mu     sync.Mutex
	shades map[int]*catalog.Shade
	scenes map[string]*catalog.Scene
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		shades: make(map[int]*catalog.Shade),
		scenes: make(map[string]*catalog.Scene),
	}
}

func (f *fakeCatalog) GetShade(_ context.Context, id int) (*catalog.Shade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	shade, ok := f.shades[id]
	if !ok {
		return nil, catalog.ErrShadeNotFound
	}
	return shade.DeepCopy(), nil
}

func (f *fakeCatalog) ListShades(_ context.Context) ([]catalog.Shade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]catalog.Shade, 0, len(f.shades))
	for _, s := range f.shades {
		out = append(out, *s.DeepCopy())
	}
	return out, nil
}

func (f *fakeCatalog) ListShadesByRoom(_ context.Context, room string) ([]catalog.Shade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []catalog.Shade
	for _, s := range f.shades {
		if s.Room == room {
			out = append(out, *s.DeepCopy())
		}
	}
	return out, nil
}

func (f *fakeCatalog) CreateShade(_ context.Context, shade *catalog.Shade) error {
	if err := catalog.ValidateShade(shade); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.shades[shade.ID]; exists {
		return catalog.ErrShadeExists
	}
	f.shades[shade.ID] = shade.DeepCopy()
	return nil
}

func (f *fakeCatalog) UpdateShade(_ context.Context, shade *catalog.Shade) error {
	if err := catalog.ValidateShade(shade); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.shades[shade.ID]; !exists {
		return catalog.ErrShadeNotFound
	}
	f.shades[shade.ID] = shade.DeepCopy()
	return nil
}

func (f *fakeCatalog) DeleteShade(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.shades[id]; !exists {
		return catalog.ErrShadeNotFound
	}
	delete(f.shades, id)
	return nil
}

func (f *fakeCatalog) GetScene(_ context.Context, name string) (*catalog.Scene, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	scene, ok := f.scenes[name]
	if !ok {
		return nil, catalog.ErrSceneNotFound
	}
	return scene.DeepCopy(), nil
}

func (f *fakeCatalog) ListScenes(_ context.Context) ([]catalog.Scene, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]catalog.Scene, 0, len(f.scenes))
	for _, sc := range f.scenes {
		out = append(out, *sc.DeepCopy())
	}
	return out, nil
}

func (f *fakeCatalog) SaveScene(_ context.Context, scene *catalog.Scene) error {
	if err := catalog.ValidateScene(scene); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scenes[scene.Name] = scene.DeepCopy()
	return nil
}

func (f *fakeCatalog) DeleteScene(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.scenes[name]; !exists {
		return catalog.ErrSceneNotFound
	}
	delete(f.scenes, name)
	return nil
}

// fakeDispatcher records submissions and serves canned task state.
type fakeDispatcher struct {
	mu         sync.Mutex
	submits    []string
	submitErr  error
	cancelled  []string
	cancelOK   bool
	activeList []dispatch.TaskInfo
}

func (f *fakeDispatcher) Submit(_ context.Context, shadeID int, action catalog.Action) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submits = append(f.submits, fmt.Sprintf("shade:%d:%s", shadeID, action))
	return "task-shade", nil
}

func (f *fakeDispatcher) SubmitScene(_ context.Context, sceneName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submits = append(f.submits, "scene:"+sceneName)
	return "task-scene", nil
}

func (f *fakeDispatcher) Cancel(taskID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, taskID)
	return f.cancelOK
}

func (f *fakeDispatcher) Snapshot() dispatch.Snapshot {
	return dispatch.Snapshot{}
}

func (f *fakeDispatcher) ActiveTasks() []dispatch.TaskInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dispatch.TaskInfo(nil), f.activeList...)
}

func intPtr(v int) *int { return &v }

func testShade(id int) *catalog.Shade {
	return &catalog.Shade{
		ID:       id,
		Name:     fmt.Sprintf("Shade %d", id),
		Room:     "office",
		RemoteID: 0x10,
		Channel:  id,
		UpCode:   intPtr(1000 + id),
		DownCode: intPtr(2000 + id),
		StopCode: intPtr(3000 + id),
	}
}

// testServer builds a Server wired to fakes and returns it with its router.
func testServer(t *testing.T) (*Server, *fakeCatalog, *fakeDispatcher, http.Handler) {
	t.Helper()

	cat := newFakeCatalog()
	disp := &fakeDispatcher{cancelOK: true}
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			APIToken:     testAPIToken,
			TicketSecret: "test-ticket-secret-at-least-32-chars!",
			TicketTTL:    60,
		},
		Logger:     log,
		Catalog:    cat,
		Dispatcher: disp,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return srv, cat, disp, srv.buildRouter()
}

// doRequest performs an authenticated request against the router.
func doRequest(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testAPIToken)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
}

func TestHealth_NoAuthRequired(t *testing.T) {
	_, _, _, router := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["status"] != "ok" {
		t.Errorf("health status field = %v, want ok", body["status"])
	}
}

func TestAuth_RejectsMissingAndWrongToken(t *testing.T) {
	_, _, _, router := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/shades", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/shades", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d, want 401", rec.Code)
	}
}

func TestShadeCRUD(t *testing.T) {
	_, _, _, router := testServer(t)

	payload := `{"id":14,"name":"Office East","room":"office","remote_id":16,"channel":3,"down_code":2014}`
	rec := doRequest(t, router, http.MethodPost, "/api/v1/shades", payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/shades/14", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}
	var shade catalog.Shade
	decodeBody(t, rec, &shade)
	if shade.Name != "Office East" || shade.DownCode == nil || *shade.DownCode != 2014 {
		t.Errorf("unexpected shade: %+v", shade)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/shades?room=office", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list by room status = %d, want 200", rec.Code)
	}
	var list struct {
		Count int `json:"count"`
	}
	decodeBody(t, rec, &list)
	if list.Count != 1 {
		t.Errorf("room filter count = %d, want 1", list.Count)
	}

	rec = doRequest(t, router, http.MethodDelete, "/api/v1/shades/14", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/shades/14", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted status = %d, want 404", rec.Code)
	}
}

func TestCreateShade_ValidationError(t *testing.T) {
	_, _, _, router := testServer(t)

	// No codes mapped at all.
	rec := doRequest(t, router, http.MethodPost, "/api/v1/shades",
		`{"id":5,"name":"Broken","room":"den","remote_id":1,"channel":1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestShadeCommand_Accepted(t *testing.T) {
	_, cat, disp, router := testServer(t)
	cat.shades[14] = testShade(14)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/shades/14/command", `{"action":"down"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	var resp taskResponse
	decodeBody(t, rec, &resp)
	if resp.TaskID != "task-shade" || resp.Status != "accepted" {
		t.Errorf("unexpected response: %+v", resp)
	}

	disp.mu.Lock()
	defer disp.mu.Unlock()
	if len(disp.submits) != 1 || disp.submits[0] != "shade:14:down" {
		t.Errorf("submits = %v", disp.submits)
	}
}

func TestShadeCommand_Errors(t *testing.T) {
	_, _, disp, router := testServer(t)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/shades/14/command", `{"action":"sideways"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad action status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/v1/shades/abc/command", `{"action":"down"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad ID status = %d, want 400", rec.Code)
	}

	disp.mu.Lock()
	disp.submitErr = catalog.ErrShadeNotFound
	disp.mu.Unlock()
	rec = doRequest(t, router, http.MethodPost, "/api/v1/shades/99/command", `{"action":"down"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown shade status = %d, want 404", rec.Code)
	}

	disp.mu.Lock()
	disp.submitErr = catalog.ErrCodeUnmapped
	disp.mu.Unlock()
	rec = doRequest(t, router, http.MethodPost, "/api/v1/shades/14/command", `{"action":"up"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unmapped code status = %d, want 400", rec.Code)
	}
}

func TestSceneLifecycle(t *testing.T) {
	_, cat, disp, router := testServer(t)
	cat.shades[1] = testShade(1)

	payload := `{"description":"evening close","cycle_count":1,"commands":[{"shade_id":1,"action":"down"}]}`
	rec := doRequest(t, router, http.MethodPut, "/api/v1/scenes/evening", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("save status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/scenes/evening", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/v1/scenes/evening/activate", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("activate status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	disp.mu.Lock()
	submitted := append([]string(nil), disp.submits...)
	disp.mu.Unlock()
	if len(submitted) != 1 || submitted[0] != "scene:evening" {
		t.Errorf("submits = %v", submitted)
	}

	rec = doRequest(t, router, http.MethodDelete, "/api/v1/scenes/evening", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/v1/scenes/evening/activate", "")
	_ = rec // dispatcher fake does not check existence; API relies on dispatcher errors
}

func TestActivateScene_NotFound(t *testing.T) {
	_, _, disp, router := testServer(t)
	disp.mu.Lock()
	disp.submitErr = catalog.ErrSceneNotFound
	disp.mu.Unlock()

	rec := doRequest(t, router, http.MethodPost, "/api/v1/scenes/nope/activate", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestTasks_ListAndCancel(t *testing.T) {
	_, _, disp, router := testServer(t)
	disp.activeList = []dispatch.TaskInfo{
		{TaskID: "abc", Target: "shade:14"},
	}

	rec := doRequest(t, router, http.MethodGet, "/api/v1/tasks", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	var list struct {
		Tasks []dispatch.TaskInfo `json:"tasks"`
		Count int                 `json:"count"`
	}
	decodeBody(t, rec, &list)
	if list.Count != 1 || list.Tasks[0].TaskID != "abc" {
		t.Errorf("unexpected task list: %+v", list)
	}

	rec = doRequest(t, router, http.MethodDelete, "/api/v1/tasks/abc", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, want 200", rec.Code)
	}

	disp.mu.Lock()
	disp.cancelOK = false
	disp.mu.Unlock()
	rec = doRequest(t, router, http.MethodDelete, "/api/v1/tasks/gone", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cancel missing status = %d, want 404", rec.Code)
	}
}

func TestWSTicket_IssueAndValidate(t *testing.T) {
	srv, _, _, router := testServer(t)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/auth/ws-ticket", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("ticket status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp wsTicketResponse
	decodeBody(t, rec, &resp)
	if resp.Ticket == "" || resp.ExpiresIn != 60 {
		t.Fatalf("unexpected ticket response: %+v", resp)
	}

	if err := srv.validateTicket(resp.Ticket); err != nil {
		t.Errorf("validateTicket: %v", err)
	}
	if err := srv.validateTicket("garbage"); err == nil {
		t.Error("validateTicket accepted garbage")
	}
}

func TestWebSocket_RequiresTicket(t *testing.T) {
	_, _, _, router := testServer(t)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/ws", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestMetrics_IncludesDispatchSnapshot(t *testing.T) {
	_, _, _, router := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var metrics SystemMetrics
	decodeBody(t, rec, &metrics)
	if metrics.Version != "test" {
		t.Errorf("version = %q, want test", metrics.Version)
	}
	if metrics.Runtime.Goroutines <= 0 {
		t.Errorf("goroutines = %d, want > 0", metrics.Runtime.Goroutines)
	}
}

func TestHub_BroadcastToSubscribedClient(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	hub := NewHub(config.WebSocketConfig{}, log)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, 4),
		subscriptions: map[string]struct{}{dispatch.EventTaskStarted: {}},
	}
	hub.Register(client)
	defer hub.Unregister(client)

	hub.Emit(dispatch.Event{Type: dispatch.EventTaskStarted, TaskID: "t1", Target: "shade:14"})

	select {
	case data := <-client.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal broadcast: %v", err)
		}
		if msg.Type != WSTypeEvent || msg.EventType != dispatch.EventTaskStarted {
			t.Errorf("unexpected message: %+v", msg)
		}
	default:
		t.Fatal("subscribed client received nothing")
	}

	// Unsubscribed channel is not delivered.
	hub.Emit(dispatch.Event{Type: dispatch.EventZombieKilled, TaskID: "t2"})
	select {
	case <-client.send:
		t.Fatal("received event for unsubscribed channel")
	default:
	}
}
