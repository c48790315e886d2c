// Package rbac is a static, in-process role store. Levels are ordered and
// cumulative: a user at CONTRIBUTOR holds every VISITOR and MEMBER permission.
package rbac

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	id "signet/pkg/domain"
	dErrors "signet/pkg/domain-errors"
)

//go:embed roles.yaml
var defaultRoles []byte

// PermissionChecker is the capability check the access gate awaits before
// consulting compliance.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID id.UserID, permission string) (bool, error)
	HasRole(ctx context.Context, userID id.UserID, role string) (bool, error)
}

// Level is one rung of the role ladder.
type Level struct {
	Code        string
	Rank        int
	SelfService bool
	// Permissions includes those inherited from lower levels.
	Permissions map[string]bool
}

type Store struct {
	mu           sync.RWMutex
	levels       map[string]Level
	order        []string
	defaultLevel string
	assignments  map[id.UserID]string
}

type rolesFile struct {
	DefaultLevel string `yaml:"default_level"`
	Levels       []struct {
		Code        string   `yaml:"code"`
		SelfService bool     `yaml:"self_service"`
		Permissions []string `yaml:"permissions"`
	} `yaml:"levels"`
	Assignments map[string]string `yaml:"assignments"`
}

func Default() (*Store, error) {
	return Load(bytes.NewReader(defaultRoles))
}

// LoadFile reads role definitions from path; an empty path means Default.
func LoadFile(path string) (*Store, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roles: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func Load(r io.Reader) (*Store, error) {
	var file rolesFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode roles: %w", err)
	}
	if len(file.Levels) == 0 {
		return nil, fmt.Errorf("roles: at least one level is required")
	}

	s := &Store{
		levels:      make(map[string]Level, len(file.Levels)),
		assignments: make(map[id.UserID]string),
	}
	inherited := map[string]bool{}
	for rank, l := range file.Levels {
		code := normalize(l.Code)
		if code == "" {
			return nil, fmt.Errorf("roles: level %d has no code", rank)
		}
		if _, dup := s.levels[code]; dup {
			return nil, fmt.Errorf("roles: duplicate level %s", code)
		}
		perms := make(map[string]bool, len(inherited)+len(l.Permissions))
		for p := range inherited {
			perms[p] = true
		}
		for _, p := range l.Permissions {
			perms[strings.TrimSpace(p)] = true
		}
		s.levels[code] = Level{Code: code, Rank: rank, SelfService: l.SelfService, Permissions: perms}
		s.order = append(s.order, code)
		inherited = perms
	}

	s.defaultLevel = s.order[0]
	if file.DefaultLevel != "" {
		s.defaultLevel = normalize(file.DefaultLevel)
		if _, ok := s.levels[s.defaultLevel]; !ok {
			return nil, fmt.Errorf("roles: unknown default level %s", file.DefaultLevel)
		}
	}
	for rawUser, level := range file.Assignments {
		userID, err := id.ParseUserID(rawUser)
		if err != nil {
			return nil, fmt.Errorf("roles: assignment %q: %w", rawUser, err)
		}
		code := normalize(level)
		if _, ok := s.levels[code]; !ok {
			return nil, fmt.Errorf("roles: assignment for %s names unknown level %s", rawUser, level)
		}
		s.assignments[userID] = code
	}
	return s, nil
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Level returns the user's current level; unassigned users hold the default.
func (s *Store) Level(_ context.Context, userID id.UserID) (Level, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	code, ok := s.assignments[userID]
	if !ok {
		code = s.defaultLevel
	}
	return s.levels[code], nil
}

// LookupLevel returns the definition of code.
func (s *Store) LookupLevel(code string) (Level, bool) {
	l, ok := s.levels[normalize(code)]
	return l, ok
}

// Levels lists level codes lowest first.
func (s *Store) Levels() []string {
	return append([]string(nil), s.order...)
}

func (s *Store) HasPermission(ctx context.Context, userID id.UserID, permission string) (bool, error) {
	level, err := s.Level(ctx, userID)
	if err != nil {
		return false, err
	}
	return level.Permissions[permission], nil
}

// HasRole reports whether the user is at role or above.
func (s *Store) HasRole(ctx context.Context, userID id.UserID, role string) (bool, error) {
	want, ok := s.levels[normalize(role)]
	if !ok {
		return false, nil
	}
	level, err := s.Level(ctx, userID)
	if err != nil {
		return false, err
	}
	return level.Rank >= want.Rank, nil
}

// AssignRole sets the user's level. Downgrades are allowed.
func (s *Store) AssignRole(_ context.Context, userID id.UserID, role string) error {
	code := normalize(role)
	if _, ok := s.levels[code]; !ok {
		return dErrors.New(dErrors.CodeValidation, "unknown role "+role)
	}
	if userID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "user_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[userID] = code
	return nil
}

// LevelCode returns the code of the user's current level.
func (s *Store) LevelCode(ctx context.Context, userID id.UserID) (string, error) {
	level, err := s.Level(ctx, userID)
	if err != nil {
		return "", err
	}
	return level.Code, nil
}
