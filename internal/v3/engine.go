package v3

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dmukherjee/snmprecsim/internal/snmperr"
)

// engineRecord is one authoritative engine's persisted boot counter, keyed
// by its hex-encoded engine ID.
type engineRecord struct {
	Boots   uint32 `json:"boots"`
	Updated int64  `json:"updated"`
}

// EngineStateStore persists each authoritative engine's USM boot counter
// (snmpEngineBoots, RFC 3414 §2.2.2) across process restarts, and tracks
// engine time (snmpEngineTime) as wall-clock seconds since this process
// started. One store is shared by every configured engine block.
type EngineStateStore struct {
	path    string
	started time.Time

	mu    sync.Mutex
	state map[string]engineRecord
}

// NewEngineStateStore opens (or creates) the boot-counter file at path. An
// empty path falls back to a file in the OS temp directory, matching the
// teacher's default for a tool that is usually run against a scratch
// cache directory.
func NewEngineStateStore(path string) (*EngineStateStore, error) {
	if path == "" {
		path = filepath.Join(os.TempDir(), "snmprecsim-engine-state.json")
	}
	s := &EngineStateStore{path: path, started: time.Now(), state: map[string]engineRecord{}}
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("%w: loading engine state from %s: %v", snmperr.ErrConfig, path, err)
	}
	return s, nil
}

// GenerateEngineID derives a raw SNMPv3 engine ID from seed: an IANA
// enterprise-number prefix (0x80000000 | enterprise, here the pack's
// placeholder enterprise 0x1F88) followed by a 12-byte SHA-1-derived
// suffix, per RFC 3411 appendix A's octet-5-set-high-bit format. An empty
// seed derives from the current time, so a freshly generated ID differs
// across daemon invocations that didn't pin one explicitly.
func GenerateEngineID(seed string) string {
	if seed == "" {
		seed = fmt.Sprintf("snmprecsim-%d", time.Now().UnixNano())
	}
	h := sha1.Sum([]byte(seed))
	return string(append([]byte{0x80, 0x00, 0x1F, 0x88}, h[:12]...))
}

// ParseEngineID decodes a CLI-supplied engine ID into the raw octet string
// gosnmp expects in UsmSecurityParameters.AuthoritativeEngineID. An
// optional "0x" prefix is accepted; input that isn't valid hex is used
// verbatim as the raw bytes, so a literal ASCII engine ID still works.
func ParseEngineID(input string) (string, error) {
	if input == "" {
		return "", nil
	}
	clean := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(input)), "0x")
	if decoded, err := hex.DecodeString(clean); err == nil {
		return string(decoded), nil
	}
	return input, nil
}

// EnsureBoots increments and persists the boot counter for engineID,
// treating this call as the start of a new incarnation of that engine.
// Call it once per engine block at startup, not per request.
func (s *EngineStateStore) EnsureBoots(engineID string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := hex.EncodeToString([]byte(engineID))

	rec := s.state[key]
	rec.Boots++
	rec.Updated = time.Now().Unix()
	s.state[key] = rec

	if err := s.save(); err != nil {
		return 0, fmt.Errorf("%w: persisting boot counter for engine %s: %v", snmperr.ErrConfig, key, err)
	}
	return rec.Boots, nil
}

// EngineTime reports snmpEngineTime for this process: seconds elapsed
// since the store was opened, which for this daemon is process start.
func (s *EngineStateStore) EngineTime() uint32 {
	return uint32(time.Since(s.started).Seconds())
}

func (s *EngineStateStore) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(b, &s.state)
}

func (s *EngineStateStore) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, b, 0o600)
}
