package keenetic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

// fakeRouter answers rci/ show commands with canned bodies and records
// policy-set traffic.
type fakeRouter struct {
	t          *testing.T
	namesBody  string // reply to show ip hotspot
	scBody     string // reply to show sc ip hotspot
	hostCalls  []map[string]any
	saveCalls  int
	hostStatus int
}

func (f *fakeRouter) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		switch r.URL.Path {
		case "/rci/":
			var cmd map[string]any
			if err := json.Unmarshal(body, &cmd); err != nil {
				f.t.Fatalf("bad rci command: %v", err)
			}
			show, _ := cmd["show"].(map[string]any)
			if _, sc := show["sc"]; sc {
				io.WriteString(w, f.scBody)
			} else {
				io.WriteString(w, f.namesBody)
			}
		case "/rci/ip/hotspot/host":
			var payload map[string]any
			if err := json.Unmarshal(body, &payload); err != nil {
				f.t.Fatalf("bad host payload: %v", err)
			}
			f.hostCalls = append(f.hostCalls, payload)
			if f.hostStatus != 0 {
				w.WriteHeader(f.hostStatus)
			}
		case "/rci/system/configuration/save":
			f.saveCalls++
		default:
			http.NotFound(w, r)
		}
	})
}

func newTestRegistry(t *testing.T, f *fakeRouter) (*Registry, *httptest.Server) {
	t.Helper()
	srv := httptest.NewTLSServer(f.handler())
	t.Cleanup(srv.Close)
	s, err := NewSession(srv.URL, "admin", "secret")
	if err != nil {
		t.Fatal(err)
	}
	return NewRegistry(s), srv
}

func TestListDevices_MergesNamesAndPolicies(t *testing.T) {
	f := &fakeRouter{
		t: t,
		// Array-wrapped shape for names, bare object for policies: both
		// occur in the wild depending on firmware generation.
		namesBody: `[{"show":{"ip":{"hotspot":{"host":[
			{"mac":"AA:BB:CC:DD:EE:01","name":"Phone"},
			{"mac":"aa:bb:cc:dd:ee:02","name":"Laptop"}
		]}}}}]`,
		scBody: `{"show":{"sc":{"ip":{"hotspot":{"host":[
			{"mac":"aa:bb:cc:dd:ee:01","policy":"Policy0"},
			{"mac":"aa:bb:cc:dd:ee:03"}
		]}}}}}`,
	}
	reg, _ := newTestRegistry(t, f)

	devices, err := reg.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices failed: %v", err)
	}

	want := map[string]Device{
		"aa:bb:cc:dd:ee:01": {MAC: "aa:bb:cc:dd:ee:01", Name: "Phone", Policy: NamedPolicy("Policy0")},
		"aa:bb:cc:dd:ee:02": {MAC: "aa:bb:cc:dd:ee:02", Name: "Laptop", Policy: Unrestricted},
		"aa:bb:cc:dd:ee:03": {MAC: "aa:bb:cc:dd:ee:03", Name: "unknown", Policy: Unrestricted},
	}
	if !reflect.DeepEqual(devices, want) {
		t.Errorf("merged inventory mismatch:\n got %v\nwant %v", devices, want)
	}
}

func TestListDevices_UnrecognizedShape(t *testing.T) {
	for name, body := range map[string]string{
		"string":      `"error"`,
		"number":      `42`,
		"empty array": `[]`,
		"wrong tree":  `{"show":{"version":"4.1"}}`,
		"not json":    `<html>`,
	} {
		t.Run(name, func(t *testing.T) {
			f := &fakeRouter{t: t, namesBody: body, scBody: body}
			reg, _ := newTestRegistry(t, f)

			devices, err := reg.ListDevices(context.Background())
			if err != nil {
				t.Fatalf("unrecognized shape must not error: %v", err)
			}
			if len(devices) != 0 {
				t.Errorf("expected empty inventory, got %v", devices)
			}
		})
	}
}

func TestSetPolicy_NamedThenSave(t *testing.T) {
	f := &fakeRouter{t: t, namesBody: `{}`, scBody: `{}`}
	reg, _ := newTestRegistry(t, f)

	if err := reg.SetPolicy(context.Background(), "AA:BB:CC:DD:EE:01", NamedPolicy("Policy0")); err != nil {
		t.Fatalf("SetPolicy failed: %v", err)
	}

	if len(f.hostCalls) != 1 {
		t.Fatalf("expected 1 host call, got %d", len(f.hostCalls))
	}
	call := f.hostCalls[0]
	if call["mac"] != "aa:bb:cc:dd:ee:01" {
		t.Errorf("expected normalized mac, got %v", call["mac"])
	}
	if call["permit"] != true {
		t.Errorf("expected permit true, got %v", call["permit"])
	}
	if call["policy"] != "Policy0" {
		t.Errorf("active policy must be a bare string, got %v", call["policy"])
	}
	if f.saveCalls != 1 {
		t.Errorf("configuration save must follow the policy set, got %d calls", f.saveCalls)
	}
}

func TestSetPolicy_UnrestrictedMarker(t *testing.T) {
	f := &fakeRouter{t: t}
	reg, _ := newTestRegistry(t, f)

	if err := reg.SetPolicy(context.Background(), "aa:bb:cc:dd:ee:01", Unrestricted); err != nil {
		t.Fatalf("SetPolicy failed: %v", err)
	}

	policy, ok := f.hostCalls[0]["policy"].(map[string]any)
	if !ok {
		t.Fatalf("default policy must be the structured marker, got %v", f.hostCalls[0]["policy"])
	}
	if policy["no"] != true {
		t.Errorf(`expected {"no":true}, got %v`, policy)
	}
}

func TestSetPolicy_HTTPFailure(t *testing.T) {
	f := &fakeRouter{t: t, hostStatus: http.StatusInternalServerError}
	reg, _ := newTestRegistry(t, f)

	if err := reg.SetPolicy(context.Background(), "aa:bb:cc:dd:ee:01", Unrestricted); err == nil {
		t.Fatal("expected failure on 500")
	}
	if f.saveCalls != 0 {
		t.Errorf("save must not run after a failed policy set, got %d calls", f.saveCalls)
	}
}

func TestRegistry_ReauthOnceOn401(t *testing.T) {
	var rciCalls, authGets int
	authorized := false
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth":
			if r.Method == http.MethodGet {
				authGets++
				w.Header().Set("X-NDM-Realm", "r")
				w.Header().Set("X-NDM-Challenge", "c")
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			authorized = true
			w.WriteHeader(http.StatusOK)
		case "/rci/":
			rciCalls++
			if !authorized {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			io.WriteString(w, `{}`)
		}
	}))
	defer srv.Close()

	s, err := NewSession(srv.URL, "admin", "secret")
	if err != nil {
		t.Fatal(err)
	}
	reg := NewRegistry(s)

	devices, err := reg.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices failed after re-auth: %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("expected empty inventory, got %v", devices)
	}
	if authGets != 1 {
		t.Errorf("expected exactly one handshake, got %d", authGets)
	}
	// First rci call 401s, is retried once, and the second show command
	// rides the now-authenticated session.
	if rciCalls != 3 {
		t.Errorf("expected 3 rci calls, got %d", rciCalls)
	}
}

func TestFavorites_PreservesOrderAndFilters(t *testing.T) {
	inventory := map[string]Device{
		"aa:01": {MAC: "aa:01", Name: "Phone"},
		"aa:02": {MAC: "aa:02", Name: "Laptop"},
		"aa:03": {MAC: "aa:03", Name: "TV"},
	}

	got := Favorites(inventory, []string{"aa:03", "ff:ff", "AA:01"})

	if len(got) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(got))
	}
	if got[0].MAC != "aa:03" || got[1].MAC != "aa:01" {
		t.Errorf("favorites order not preserved: %v", got)
	}
}

func TestFavorites_Empty(t *testing.T) {
	if got := Favorites(map[string]Device{}, []string{"aa:01"}); len(got) != 0 {
		t.Errorf("expected no favorites, got %v", got)
	}
	if got := Favorites(nil, nil); len(got) != 0 {
		t.Errorf("expected no favorites, got %v", got)
	}
}
