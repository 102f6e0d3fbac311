package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/remapd/internal/device"
	"github.com/nerrad567/remapd/internal/infrastructure/config"
	"github.com/nerrad567/remapd/internal/infrastructure/logging"
	"github.com/nerrad567/remapd/internal/plugin"
	"github.com/nerrad567/remapd/internal/plugin/builtin"
	"github.com/nerrad567/remapd/internal/profile"
	"github.com/nerrad567/remapd/internal/provider"
)

type testEnv struct {
	srv  *httptest.Server
	ctx  *profile.Context
	mem  *provider.Memory
	repo *profile.YAMLFileRepository
}

// newTestEnv wires a server to a context over the in-memory provider with
// one keyboard and one joystick.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mem := provider.NewMemoryFromConfig(config.MemoryProviderConfig{Enabled: true, Keyboards: 1, Joysticks: 1})
	cat := plugin.NewCatalog()
	if err := builtin.Register(cat); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	wsCfg := config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}
	log := logging.Discard()
	hub := NewHub(wsCfg, log)
	hubCtx, cancel := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	pctx := profile.NewContext(mem, cat, profile.WithNotifier(hub.Notify))
	if err := pctx.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	repo := profile.NewYAMLFileRepository(filepath.Join(t.TempDir(), "profiles.yaml"))
	s, err := New(Deps{
		Config:     config.APIConfig{Host: "127.0.0.1"},
		WS:         wsCfg,
		Logger:     log,
		Context:    pctx,
		Repository: repo,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			io.WriteString(w, "remapd_up 1\n") //nolint:errcheck // test handler
		}),
		Hub:     hub,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		pctx.Close()
	})
	return &testEnv{srv: ts, ctx: pctx, mem: mem, repo: repo}
}

// do sends body as JSON and decodes the response into out when non-nil.
func (e *testEnv) do(t *testing.T, method, path string, body, out any) int {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s decoding response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (e *testEnv) createProfile(t *testing.T, title string) ProfileView {
	t.Helper()
	var v ProfileView
	if code := e.do(t, http.MethodPost, "/api/v1/profiles", map[string]string{"title": title}, &v); code != http.StatusCreated {
		t.Fatalf("create profile status = %d", code)
	}
	return v
}

// useKeyboard points a profile's keyboard input and output at the memory provider.
func (e *testEnv) useKeyboard(t *testing.T, profileID string) {
	t.Helper()
	for _, dir := range []device.Direction{device.Input, device.Output} {
		req := setDeviceGroupRequest{Direction: dir, DeviceType: device.TypeKeyboard, ProviderID: provider.MemoryID}
		if code := e.do(t, http.MethodPut, "/api/v1/profiles/"+profileID+"/devices", req, nil); code != http.StatusOK {
			t.Fatalf("set device group status = %d", code)
		}
	}
}

func (e *testEnv) addButtonPlugin(t *testing.T, profileID string, in, out device.Descriptor) PluginView {
	t.Helper()
	var pv PluginView
	base := "/api/v1/profiles/" + profileID + "/plugins"
	if code := e.do(t, http.MethodPost, base, createPluginRequest{Kind: builtin.KindButtonToButton}, &pv); code != http.StatusCreated {
		t.Fatalf("create plugin status = %d", code)
	}
	if code := e.do(t, http.MethodPut, base+"/"+pv.ID+"/bindings/input/0", in, nil); code != http.StatusOK {
		t.Fatalf("set input binding status = %d", code)
	}
	if code := e.do(t, http.MethodPut, base+"/"+pv.ID+"/bindings/output/0", out, &pv); code != http.StatusOK {
		t.Fatalf("set output binding status = %d", code)
	}
	return pv
}

func key(number, value int) device.Descriptor {
	return device.Descriptor{
		IsBound:      true,
		DeviceType:   device.TypeKeyboard,
		DeviceNumber: number,
		KeyType:      device.KeyButton,
		KeyValue:     value,
	}
}

// ===== Health & status =====

func TestHealth(t *testing.T) {
	e := newTestEnv(t)

	var body map[string]any
	if code := e.do(t, http.MethodGet, "/api/v1/health", nil, &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
}

func TestSystemStatus(t *testing.T) {
	e := newTestEnv(t)

	var st SystemStatus
	if code := e.do(t, http.MethodGet, "/api/v1/system/status", nil, &st); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	// 2 inputs + 2 virtual outputs
	if st.Devices.Total != 4 {
		t.Errorf("devices = %d, want 4", st.Devices.Total)
	}
	if st.Profiles.Total != 1 {
		t.Errorf("profiles = %d, want 1 (Global)", st.Profiles.Total)
	}
	if st.MQTT != nil || st.Database != nil {
		t.Errorf("optional sections present: mqtt=%v db=%v", st.MQTT, st.Database)
	}
}

func TestLogLevel(t *testing.T) {
	e := newTestEnv(t)

	var got logLevelBody
	if code := e.do(t, http.MethodGet, "/api/v1/system/log-level", nil, &got); code != http.StatusOK || got.Level != "info" {
		t.Fatalf("GET = %d %+v", code, got)
	}
	if code := e.do(t, http.MethodPut, "/api/v1/system/log-level", logLevelBody{Level: "debug"}, &got); code != http.StatusOK || got.Level != "debug" {
		t.Errorf("PUT debug = %d %+v", code, got)
	}
	if code := e.do(t, http.MethodPut, "/api/v1/system/log-level", logLevelBody{Level: "shouty"}, nil); code != http.StatusUnprocessableEntity {
		t.Errorf("PUT shouty = %d, want 422", code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)

	resp, err := http.Get(e.srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "remapd_up 1") {
		t.Errorf("metrics body = %q", b)
	}
}

func TestRequestIDHeader(t *testing.T) {
	e := newTestEnv(t)

	req, _ := http.NewRequest(http.MethodGet, e.srv.URL+"/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "abc123" {
		t.Errorf("X-Request-ID = %q, want abc123", got)
	}
}

func TestRequestIDGenerated(t *testing.T) {
	e := newTestEnv(t)

	resp, err := http.Get(e.srv.URL + "/api/v1/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if _, err := uuid.Parse(resp.Header.Get("X-Request-ID")); err != nil {
		t.Errorf("X-Request-ID = %q, want a UUID", resp.Header.Get("X-Request-ID"))
	}
}

func TestCORSPreflight(t *testing.T) {
	e := newTestEnv(t)

	req, _ := http.NewRequest(http.MethodOptions, e.srv.URL+"/api/v1/profiles", nil)
	req.Header.Set("Origin", "http://editor.local")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://editor.local" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

// ===== Devices =====

func TestListDevices(t *testing.T) {
	e := newTestEnv(t)

	var all struct {
		Inputs  []GroupView `json:"inputs"`
		Outputs []GroupView `json:"outputs"`
	}
	if code := e.do(t, http.MethodGet, "/api/v1/devices", nil, &all); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(all.Inputs) != 1 || len(all.Inputs[0].Devices) != 2 {
		t.Fatalf("inputs = %+v", all.Inputs)
	}
	if all.Inputs[0].ProviderID != provider.MemoryID {
		t.Errorf("provider = %q", all.Inputs[0].ProviderID)
	}

	var one struct {
		Groups []GroupView `json:"groups"`
	}
	if code := e.do(t, http.MethodGet, "/api/v1/devices?direction=output", nil, &one); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(one.Groups) != 1 || one.Groups[0].Direction != device.Output {
		t.Errorf("groups = %+v", one.Groups)
	}

	if code := e.do(t, http.MethodGet, "/api/v1/devices?direction=sideways", nil, nil); code != http.StatusBadRequest {
		t.Errorf("bad direction status = %d, want 400", code)
	}
}

func TestRescanDevices(t *testing.T) {
	e := newTestEnv(t)
	e.mem.AddInput(device.TypeMouse, "Virtual Mouse")

	var all struct {
		Inputs []GroupView `json:"inputs"`
	}
	if code := e.do(t, http.MethodPost, "/api/v1/devices/rescan", nil, &all); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if n := len(all.Inputs[0].Devices); n != 3 {
		t.Errorf("input devices after rescan = %d, want 3", n)
	}
}

// ===== Profiles =====

func TestProfiles_Tree(t *testing.T) {
	e := newTestEnv(t)

	flight := e.createProfile(t, "Flight")
	var jet ProfileView
	code := e.do(t, http.MethodPost, "/api/v1/profiles/"+flight.ID+"/children", map[string]string{"title": "Jet"}, &jet)
	if code != http.StatusCreated {
		t.Fatalf("create child status = %d", code)
	}
	if jet.ParentID != flight.ID || jet.Path != "Flight / Jet" {
		t.Errorf("child = %+v", jet)
	}

	var list struct {
		Profiles []ProfileView `json:"profiles"`
		Changed  bool          `json:"changed"`
	}
	if code := e.do(t, http.MethodGet, "/api/v1/profiles", nil, &list); code != http.StatusOK {
		t.Fatalf("list status = %d", code)
	}
	if len(list.Profiles) != 2 {
		t.Fatalf("roots = %d, want 2", len(list.Profiles))
	}
	if !list.Profiles[0].Global || list.Profiles[1].Title != "Flight" {
		t.Errorf("roots = %s, %s", list.Profiles[0].Title, list.Profiles[1].Title)
	}
	if len(list.Profiles[1].Children) != 1 || list.Profiles[1].Children[0].ID != jet.ID {
		t.Errorf("children = %+v", list.Profiles[1].Children)
	}
	if !list.Changed {
		t.Error("changed = false after edits")
	}
}

func TestProfiles_Validation(t *testing.T) {
	e := newTestEnv(t)
	global := e.ctx.Global()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"empty title", http.MethodPost, "/api/v1/profiles", map[string]string{"title": "  "}, http.StatusUnprocessableEntity},
		{"unknown profile", http.MethodGet, "/api/v1/profiles/nope", nil, http.StatusNotFound},
		{"rename global", http.MethodPatch, "/api/v1/profiles/" + global.ID(), map[string]string{"title": "Other"}, http.StatusConflict},
		{"delete global", http.MethodDelete, "/api/v1/profiles/" + global.ID(), nil, http.StatusConflict},
		{"bad device type", http.MethodPut, "/api/v1/profiles/" + global.ID() + "/devices",
			setDeviceGroupRequest{Direction: device.Input, DeviceType: "trackball", ProviderID: "x"}, http.StatusUnprocessableEntity},
		{"no active profile", http.MethodGet, "/api/v1/profiles/active", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.do(t, tt.method, tt.path, tt.body, nil); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestProfiles_RenameAndDelete(t *testing.T) {
	e := newTestEnv(t)
	p := e.createProfile(t, "Racing")

	var renamed ProfileView
	if code := e.do(t, http.MethodPatch, "/api/v1/profiles/"+p.ID, map[string]string{"title": "Rally"}, &renamed); code != http.StatusOK {
		t.Fatalf("rename status = %d", code)
	}
	if renamed.Title != "Rally" {
		t.Errorf("title = %q", renamed.Title)
	}

	if code := e.do(t, http.MethodDelete, "/api/v1/profiles/"+p.ID, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete status = %d", code)
	}
	if _, err := e.ctx.FindProfile(p.ID); err == nil {
		t.Error("profile still present after delete")
	}
}

// ===== Activation =====

func TestActivate_EndToEnd(t *testing.T) {
	e := newTestEnv(t)
	p := e.createProfile(t, "Desk")
	e.useKeyboard(t, p.ID)
	e.addButtonPlugin(t, p.ID, key(0, 30), key(0, 48))

	var res activationResponse
	if code := e.do(t, http.MethodPost, "/api/v1/profiles/"+p.ID+"/activate", nil, &res); code != http.StatusOK {
		t.Fatalf("activate status = %d", code)
	}
	if !res.OK || res.Report.ProfileID != p.ID {
		t.Fatalf("activation = %+v", res)
	}

	kbd, _ := e.mem.Input(device.TypeKeyboard, 0)
	if err := kbd.Emit(device.Control{KeyType: device.KeyButton, KeyValue: 30}, 1); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	out, _ := e.mem.Output(device.TypeKeyboard, 0)
	if v, ok := out.Value(device.Control{KeyType: device.KeyButton, KeyValue: 48}); !ok || v != 1 {
		t.Errorf("output = %d, %v, want 1", v, ok)
	}

	var active ProfileView
	if code := e.do(t, http.MethodGet, "/api/v1/profiles/active", nil, &active); code != http.StatusOK {
		t.Fatalf("active status = %d", code)
	}
	if active.ID != p.ID || !active.Active {
		t.Errorf("active = %+v", active)
	}

	if code := e.do(t, http.MethodDelete, "/api/v1/profiles/"+p.ID, nil, nil); code != http.StatusConflict {
		t.Errorf("delete active status = %d, want 409", code)
	}
}

func TestActivate_FailureKeepsPrevious(t *testing.T) {
	e := newTestEnv(t)
	good := e.createProfile(t, "Good")
	e.useKeyboard(t, good.ID)
	e.addButtonPlugin(t, good.ID, key(0, 30), key(0, 48))

	bad := e.createProfile(t, "Bad")
	e.useKeyboard(t, bad.ID)
	e.addButtonPlugin(t, bad.ID, key(4, 30), key(0, 48)) // no fifth keyboard

	var res activationResponse
	e.do(t, http.MethodPost, "/api/v1/profiles/"+good.ID+"/activate", nil, &res)
	if !res.OK {
		t.Fatalf("good activation failed: %+v", res.Report)
	}

	if code := e.do(t, http.MethodPost, "/api/v1/profiles/"+bad.ID+"/activate", nil, &res); code != http.StatusOK {
		t.Fatalf("activate status = %d", code)
	}
	if res.OK || len(res.Report.Outcome.Failures) != 1 {
		t.Fatalf("bad activation = %+v", res)
	}
	if got := e.ctx.ActiveProfile(); got == nil || got.ID() != good.ID {
		t.Errorf("active profile changed to %v", got)
	}
}

// ===== Plugins =====

func TestPluginKinds(t *testing.T) {
	e := newTestEnv(t)

	var body struct {
		Kinds []plugin.KindInfo `json:"kinds"`
	}
	if code := e.do(t, http.MethodGet, "/api/v1/plugin-kinds", nil, &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(body.Kinds) != 3 {
		t.Errorf("kinds = %+v, want 3", body.Kinds)
	}
}

func TestPlugins_CreateUpdateDelete(t *testing.T) {
	e := newTestEnv(t)
	p := e.createProfile(t, "Desk")
	base := "/api/v1/profiles/" + p.ID + "/plugins"

	var pv PluginView
	req := createPluginRequest{Kind: builtin.KindButtonToButton, Title: "Fire", Settings: map[string]any{"invert": true}}
	if code := e.do(t, http.MethodPost, base, req, &pv); code != http.StatusCreated {
		t.Fatalf("create status = %d", code)
	}
	if pv.Title != "Fire" || pv.Settings["invert"] != true || len(pv.Inputs) != 1 || len(pv.Outputs) != 1 {
		t.Errorf("created = %+v", pv)
	}

	if code := e.do(t, http.MethodPatch, base+"/"+pv.ID, map[string]any{"title": "Trigger", "settings": map[string]any{"invert": false}}, &pv); code != http.StatusOK {
		t.Fatalf("update status = %d", code)
	}
	if pv.Title != "Trigger" || pv.Settings["invert"] != false {
		t.Errorf("updated = %+v", pv)
	}

	if code := e.do(t, http.MethodDelete, base+"/"+pv.ID, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete status = %d", code)
	}
	if code := e.do(t, http.MethodGet, base+"/"+pv.ID, nil, nil); code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", code)
	}
}

func TestPlugins_Validation(t *testing.T) {
	e := newTestEnv(t)
	p := e.createProfile(t, "Desk")
	base := "/api/v1/profiles/" + p.ID + "/plugins"

	var pv PluginView
	e.do(t, http.MethodPost, base, createPluginRequest{Kind: builtin.KindButtonToButton}, &pv)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown kind", http.MethodPost, base, createPluginRequest{Kind: "teleport"}, http.StatusUnprocessableEntity},
		{"bad setting", http.MethodPatch, base + "/" + pv.ID, map[string]any{"settings": map[string]any{"invert": "maybe"}}, http.StatusUnprocessableEntity},
		{"bad direction", http.MethodPut, base + "/" + pv.ID + "/bindings/sideways/0", key(0, 1), http.StatusBadRequest},
		{"bad slot", http.MethodPut, base + "/" + pv.ID + "/bindings/input/x", key(0, 1), http.StatusBadRequest},
		{"slot out of range", http.MethodPut, base + "/" + pv.ID + "/bindings/input/3", key(0, 1), http.StatusUnprocessableEntity},
		{"bound without type", http.MethodPut, base + "/" + pv.ID + "/bindings/input/0", device.Descriptor{IsBound: true}, http.StatusUnprocessableEntity},
		{"unknown plugin", http.MethodGet, base + "/nope", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.do(t, tt.method, tt.path, tt.body, nil); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPlugins_Duplicate(t *testing.T) {
	e := newTestEnv(t)
	src := e.createProfile(t, "Desk")
	dst := e.createProfile(t, "Couch")
	orig := e.addButtonPlugin(t, src.ID, key(0, 30), key(0, 48))
	base := "/api/v1/profiles/" + src.ID + "/plugins/" + orig.ID + "/duplicate"

	var same PluginView
	if code := e.do(t, http.MethodPost, base, nil, &same); code != http.StatusCreated {
		t.Fatalf("duplicate status = %d", code)
	}
	if same.ID == orig.ID || same.Title != orig.Title {
		t.Errorf("copy = %+v", same)
	}
	if same.Inputs[0] != orig.Inputs[0] || same.Outputs[0] != orig.Outputs[0] {
		t.Errorf("copy descriptors = %v/%v, want %v/%v", same.Inputs, same.Outputs, orig.Inputs, orig.Outputs)
	}

	var moved PluginView
	if code := e.do(t, http.MethodPost, base, duplicatePluginRequest{ProfileID: dst.ID}, &moved); code != http.StatusCreated {
		t.Fatalf("duplicate to other status = %d", code)
	}
	couch, _ := e.ctx.FindProfile(dst.ID)
	if _, ok := couch.FindPlugin(moved.ID); !ok {
		t.Error("copy not in target profile")
	}
	desk, _ := e.ctx.FindProfile(src.ID)
	if n := len(desk.Plugins()); n != 2 {
		t.Errorf("source plugins = %d, want 2", n)
	}
}

// ===== Config =====

func TestConfig_SaveExportImport(t *testing.T) {
	e := newTestEnv(t)
	p := e.createProfile(t, "Desk")
	e.useKeyboard(t, p.ID)
	e.addButtonPlugin(t, p.ID, key(0, 30), key(0, 48))

	var res activationResponse
	e.do(t, http.MethodPost, "/api/v1/profiles/"+p.ID+"/activate", nil, &res)

	var saved map[string]any
	if code := e.do(t, http.MethodPost, "/api/v1/config/save", nil, &saved); code != http.StatusOK {
		t.Fatalf("save status = %d", code)
	}
	if e.ctx.IsChanged() {
		t.Error("changed after save")
	}
	if _, err := e.repo.Load(context.Background()); err != nil {
		t.Fatalf("repository Load() error = %v", err)
	}

	resp, err := http.Get(e.srv.URL + "/api/v1/config/export")
	if err != nil {
		t.Fatal(err)
	}
	exported, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/yaml" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !bytes.Contains(exported, []byte("Desk")) {
		t.Fatalf("export missing profile: %s", exported)
	}

	// Wipe the tree, then import the export back.
	if code := e.do(t, http.MethodPost, "/api/v1/profiles", map[string]string{"title": "Scratch"}, nil); code != http.StatusCreated {
		t.Fatal("create scratch failed")
	}
	importResp, err := http.Post(e.srv.URL+"/api/v1/config/import", "application/yaml", bytes.NewReader(exported))
	if err != nil {
		t.Fatal(err)
	}
	defer importResp.Body.Close()
	if importResp.StatusCode != http.StatusOK {
		t.Fatalf("import status = %d", importResp.StatusCode)
	}
	if err := json.NewDecoder(importResp.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.Report.ProfileID != p.ID {
		t.Errorf("import activation = %+v", res)
	}
	if n := len(e.ctx.Profiles()); n != 2 {
		t.Errorf("roots after import = %d, want 2", n)
	}
}

func TestConfig_ImportInvalid(t *testing.T) {
	e := newTestEnv(t)

	resp, err := http.Post(e.srv.URL+"/api/v1/config/import", "application/yaml", strings.NewReader("profiles: [unclosed"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

// ===== WebSocket =====

// dialStream connects to the event stream and consumes the hello frame.
func (e *testEnv) dialStream(t *testing.T) (*websocket.Conn, Hello) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f ServerFrame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("reading hello: %v", err)
	}
	if f.Kind != KindHello || f.Hello == nil {
		t.Fatalf("first frame = %+v, want hello", f)
	}
	return conn, *f.Hello
}

func readFrame(t *testing.T, conn *websocket.Conn) ServerFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f ServerFrame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	return f
}

func TestWebSocket_Hello(t *testing.T) {
	e := newTestEnv(t)
	p := e.createProfile(t, "Flight")
	if code := e.do(t, http.MethodPost, "/api/v1/profiles/"+p.ID+"/activate", nil, nil); code != http.StatusOK {
		t.Fatalf("activate status = %d", code)
	}

	_, hello := e.dialStream(t)
	if hello.Version != "test" || hello.ActiveProfile != p.ID {
		t.Errorf("hello = %+v", hello)
	}
}

func TestWebSocket_RelaysContextEvents(t *testing.T) {
	e := newTestEnv(t)
	conn, _ := e.dialStream(t)

	sub := ClientFrame{Op: OpSubscribe, ID: "1", Events: []string{string(profile.EventConfigChanged)}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatal(err)
	}
	if ack := readFrame(t, conn); ack.Kind != KindAck || ack.ID != "1" || len(ack.Filters) != 1 {
		t.Fatalf("ack = %+v", ack)
	}

	e.createProfile(t, "Flight")

	ev := readFrame(t, conn)
	if ev.Kind != KindEvent || ev.Event == nil || ev.Event.Type != profile.EventConfigChanged {
		t.Errorf("event = %+v", ev)
	}
}

func TestWebSocket_ProfileFilter(t *testing.T) {
	e := newTestEnv(t)
	flight := e.createProfile(t, "Flight")
	racing := e.createProfile(t, "Racing")
	conn, _ := e.dialStream(t)

	sub := ClientFrame{Op: OpSubscribe, ID: "1", Events: []string{"profile.*"}, Profile: flight.ID}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatal(err)
	}
	readFrame(t, conn)

	for _, id := range []string{racing.ID, flight.ID} {
		if code := e.do(t, http.MethodPost, "/api/v1/profiles/"+id+"/activate", nil, nil); code != http.StatusOK {
			t.Fatalf("activate status = %d", code)
		}
	}

	ev := readFrame(t, conn)
	if ev.Event == nil || ev.Event.Type != profile.EventProfileActivated || ev.Event.ProfileID != flight.ID {
		t.Errorf("event = %+v, want activation of %s", ev, flight.ID)
	}
}

func TestWebSocket_PingAndErrors(t *testing.T) {
	e := newTestEnv(t)
	conn, _ := e.dialStream(t)

	tests := []struct {
		name     string
		send     any
		wantKind string
		wantID   string
	}{
		{"ping", ClientFrame{Op: OpPing, ID: "p"}, KindPong, "p"},
		{"unknown op", ClientFrame{Op: "shout", ID: "x"}, KindError, "x"},
		{"not json", "garbage", KindError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if raw, ok := tt.send.(string); ok {
				err = conn.WriteMessage(websocket.TextMessage, []byte(raw))
			} else {
				err = conn.WriteJSON(tt.send)
			}
			if err != nil {
				t.Fatal(err)
			}
			f := readFrame(t, conn)
			if f.Kind != tt.wantKind || f.ID != tt.wantID {
				t.Errorf("frame = %+v, want %s/%q", f, tt.wantKind, tt.wantID)
			}
		})
	}
}

func TestMatchEvent(t *testing.T) {
	tests := []struct {
		pattern, typ string
		want         bool
	}{
		{"*", "config.changed", true},
		{"config.changed", "config.changed", true},
		{"config.changed", "config.restored", false},
		{"profile.*", "profile.activated", true},
		{"profile.*", "profile.activation_failed", true},
		{"profile.*", "config.changed", false},
		{"prof.*", "profile.activated", false},
	}
	for _, tt := range tests {
		if got := matchEvent(tt.pattern, tt.typ); got != tt.want {
			t.Errorf("matchEvent(%q, %q) = %v, want %v", tt.pattern, tt.typ, got, tt.want)
		}
	}
}
