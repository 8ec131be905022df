// Package state provides the filesystem-backed storage for chat-side
// bookkeeping: the favorite-device MAC list and the last bot message
// rendered per conversation.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/lomovlad/vpn-keenetic-switcher-bot/internal/keenetic"
)

// Store is the chat-state persistence contract used by the dispatcher and
// the favorites CLI.
type Store interface {
	FavoriteMACs() ([]string, error)
	AddFavorite(mac string) error
	RemoveFavorite(mac string) error
	LastMessageID(chatID int64) (int, bool, error)
	SetLastMessageID(chatID int64, messageID int) error
}

var _ Store = (*FileStore)(nil)

// FileStore keeps everything in one JSON file, rewritten atomically
// (temp file + rename) on every mutation so an interrupted write never
// corrupts previously durable data.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by the file at path. The file is
// created on first mutation.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// storageFile is the on-disk layout. Conversation records are kept as raw
// JSON so fields this version doesn't know about survive an upsert.
type storageFile struct {
	FavMACs       []string                   `json:"fav_macs"`
	Conversations map[string]json.RawMessage `json:"conversations"`

	// Users is the legacy key older deployments wrote; it is read as an
	// alias for Conversations and rewritten canonically on the next save.
	Users map[string]json.RawMessage `json:"users,omitempty"`
}

func (s *FileStore) load() (*storageFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &storageFile{Conversations: make(map[string]json.RawMessage)}, nil
		}
		return nil, fmt.Errorf("read storage: %w", err)
	}

	var sf storageFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("unmarshal storage: %w", err)
	}
	if sf.Conversations == nil {
		sf.Conversations = make(map[string]json.RawMessage)
	}
	// Legacy migration: fold users into conversations, conversations wins
	// on collision.
	for id, rec := range sf.Users {
		if _, ok := sf.Conversations[id]; !ok {
			sf.Conversations[id] = rec
		}
	}
	sf.Users = nil
	return &sf, nil
}

func (s *FileStore) save(sf *storageFile) error {
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal storage: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp storage: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp storage: %w", err)
	}
	return nil
}

// FavoriteMACs returns the enrolled MACs in their stored order.
func (s *FileStore) FavoriteMACs() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sf, err := s.load()
	if err != nil {
		return nil, err
	}
	return sf.FavMACs, nil
}

// AddFavorite appends a MAC to the favorite list. Adding a MAC that is
// already enrolled is a no-op.
func (s *FileStore) AddFavorite(mac string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mac = keenetic.NormalizeMAC(mac)
	sf, err := s.load()
	if err != nil {
		return err
	}
	for _, existing := range sf.FavMACs {
		if existing == mac {
			return nil
		}
	}
	sf.FavMACs = append(sf.FavMACs, mac)
	return s.save(sf)
}

// RemoveFavorite drops a MAC from the favorite list. Removing an absent
// MAC is a no-op.
func (s *FileStore) RemoveFavorite(mac string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mac = keenetic.NormalizeMAC(mac)
	sf, err := s.load()
	if err != nil {
		return err
	}
	kept := sf.FavMACs[:0]
	for _, existing := range sf.FavMACs {
		if existing != mac {
			kept = append(kept, existing)
		}
	}
	if len(kept) == len(sf.FavMACs) {
		return nil
	}
	sf.FavMACs = kept
	return s.save(sf)
}

// LastMessageID returns the id of the most recent bot message in the
// conversation, with ok=false when none was recorded.
func (s *FileStore) LastMessageID(chatID int64) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sf, err := s.load()
	if err != nil {
		return 0, false, err
	}
	raw, ok := sf.Conversations[conversationKey(chatID)]
	if !ok {
		return 0, false, nil
	}
	var rec struct {
		LastMessageID *int `json:"last_message_id"`
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return 0, false, fmt.Errorf("unmarshal conversation: %w", err)
	}
	if rec.LastMessageID == nil {
		return 0, false, nil
	}
	return *rec.LastMessageID, true, nil
}

// SetLastMessageID upserts the conversation record, overwriting only the
// message-id field and preserving anything else the record carries.
func (s *FileStore) SetLastMessageID(chatID int64, messageID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sf, err := s.load()
	if err != nil {
		return err
	}

	key := conversationKey(chatID)
	fields := make(map[string]any)
	if raw, ok := sf.Conversations[key]; ok {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return fmt.Errorf("unmarshal conversation: %w", err)
		}
	}
	fields["last_message_id"] = messageID

	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	sf.Conversations[key] = raw
	return s.save(sf)
}

func conversationKey(chatID int64) string {
	return fmt.Sprintf("%d", chatID)
}
