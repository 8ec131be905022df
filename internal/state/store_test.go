package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), "storage.json"))
}

func TestFavorites_EmptyOnFreshStore(t *testing.T) {
	s := newTestStore(t)
	macs, err := s.FavoriteMACs()
	if err != nil {
		t.Fatalf("FavoriteMACs failed: %v", err)
	}
	if len(macs) != 0 {
		t.Errorf("expected no favorites, got %v", macs)
	}
}

func TestAddFavorite_OrderAndIdempotence(t *testing.T) {
	s := newTestStore(t)
	for _, mac := range []string{"aa:01", "AA:02", "aa:01"} {
		if err := s.AddFavorite(mac); err != nil {
			t.Fatalf("AddFavorite(%s) failed: %v", mac, err)
		}
	}

	macs, err := s.FavoriteMACs()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(macs, []string{"aa:01", "aa:02"}) {
		t.Errorf("expected ordered deduped favorites, got %v", macs)
	}
}

func TestRemoveFavorite(t *testing.T) {
	s := newTestStore(t)
	s.AddFavorite("aa:01")
	s.AddFavorite("aa:02")

	if err := s.RemoveFavorite("aa:01"); err != nil {
		t.Fatalf("RemoveFavorite failed: %v", err)
	}
	if err := s.RemoveFavorite("ff:ff"); err != nil {
		t.Fatalf("removing an absent MAC must be a no-op: %v", err)
	}

	macs, _ := s.FavoriteMACs()
	if !reflect.DeepEqual(macs, []string{"aa:02"}) {
		t.Errorf("expected [aa:02], got %v", macs)
	}
}

func TestLastMessageID_AbsentConversation(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.LastMessageID(42)
	if err != nil {
		t.Fatalf("LastMessageID failed: %v", err)
	}
	if ok {
		t.Error("expected no message id for a fresh conversation")
	}
}

func TestSetLastMessageID_Overwrites(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetLastMessageID(42, 100); err != nil {
		t.Fatal(err)
	}
	if err := s.SetLastMessageID(42, 200); err != nil {
		t.Fatal(err)
	}

	id, ok, err := s.LastMessageID(42)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || id != 200 {
		t.Errorf("expected id 200, got %d (ok=%v)", id, ok)
	}

	// No residual trace of the first id anywhere in the file.
	data, err := os.ReadFile(s.path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "100") {
		t.Errorf("stale message id left in storage: %s", data)
	}
}

func TestSetLastMessageID_SurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.json")
	if err := NewFileStore(path).SetLastMessageID(7, 33); err != nil {
		t.Fatal(err)
	}

	// Fresh store instance over the same file.
	id, ok, err := NewFileStore(path).LastMessageID(7)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || id != 33 {
		t.Errorf("expected persisted id 33, got %d (ok=%v)", id, ok)
	}
}

func TestSetLastMessageID_PreservesUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.json")
	seed := `{"fav_macs":["aa:01"],"conversations":{"42":{"last_message_id":1,"locale":"ru"}}}`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewFileStore(path)
	if err := s.SetLastMessageID(42, 2); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var sf struct {
		Conversations map[string]map[string]any `json:"conversations"`
	}
	if err := json.Unmarshal(data, &sf); err != nil {
		t.Fatal(err)
	}
	rec := sf.Conversations["42"]
	if rec["locale"] != "ru" {
		t.Errorf("unknown conversation field lost on upsert: %v", rec)
	}
	if rec["last_message_id"] != float64(2) {
		t.Errorf("expected updated id 2, got %v", rec["last_message_id"])
	}
}

func TestLegacyUsersShapeMigration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.json")
	seed := `{"fav_macs":[],"users":{"42":{"last_message_id":9}}}`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewFileStore(path)
	id, ok, err := s.LastMessageID(42)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || id != 9 {
		t.Errorf("legacy users record not readable: id=%d ok=%v", id, ok)
	}

	// The next mutation rewrites the file in the canonical shape.
	if err := s.SetLastMessageID(42, 10); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), `"users"`) {
		t.Errorf("legacy key survived the rewrite: %s", data)
	}
	id, ok, _ = s.LastMessageID(42)
	if !ok || id != 10 {
		t.Errorf("expected id 10 after migration rewrite, got %d (ok=%v)", id, ok)
	}
}

func TestSave_NoTempFileLeftBehind(t *testing.T) {
	s := newTestStore(t)
	if err := s.AddFavorite("aa:01"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(s.path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind after atomic write")
	}
}

func TestLoad_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewFileStore(path)
	if _, err := s.FavoriteMACs(); err == nil {
		t.Error("expected an error reading a corrupt store")
	}
	// The corrupt file must not be overwritten by a failed read.
	data, _ := os.ReadFile(path)
	if string(data) != "{not json" {
		t.Errorf("corrupt file was mutated: %s", data)
	}
}
