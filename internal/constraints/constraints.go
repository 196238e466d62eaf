// Package constraints manages the user's standing constraints: rules that are
// prepended to every outgoing task so the model honors them across turns.
// Rules live in a YAML file under the workspace dot-directory so they can be
// edited by hand while the app is running.
package constraints

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileName is the rules file relative to the workspace dot-directory.
const FileName = "constraints.yaml"

type rulesFile struct {
	Rules []string `yaml:"rules"`
}

// Store holds the standing constraints and persists them to disk.
type Store struct {
	mu    sync.RWMutex
	path  string
	rules []string
}

// NewStore creates a store backed by dir/constraints.yaml. The file does not
// need to exist yet.
func NewStore(dir string) *Store {
	return &Store{path: filepath.Join(dir, FileName)}
}

// Path returns the absolute path of the backing file.
func (s *Store) Path() string {
	return s.path
}

// Load reads the rules file. A missing file is an empty rule set.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.rules = nil
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("read constraints: %w", err)
	}

	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse constraints: %w", err)
	}

	cleaned := make([]string, 0, len(f.Rules))
	for _, r := range f.Rules {
		if r = strings.TrimSpace(r); r != "" {
			cleaned = append(cleaned, r)
		}
	}

	s.mu.Lock()
	s.rules = cleaned
	s.mu.Unlock()
	return nil
}

// Rules returns a copy of the current rule list.
func (s *Store) Rules() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.rules))
	copy(out, s.rules)
	return out
}

// Add appends a rule and persists the file. Blank rules are rejected.
func (s *Store) Add(rule string) error {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return fmt.Errorf("constraint rule is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, rule)
	return s.saveLocked()
}

// Remove deletes the rule at the given one-based position and persists.
func (s *Store) Remove(pos int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pos < 1 || pos > len(s.rules) {
		return fmt.Errorf("no constraint at position %d", pos)
	}
	s.rules = append(s.rules[:pos-1], s.rules[pos:]...)
	return s.saveLocked()
}

// Clear removes all rules and persists the empty file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = nil
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	data, err := yaml.Marshal(rulesFile{Rules: s.rules})
	if err != nil {
		return fmt.Errorf("encode constraints: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create constraints dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("write constraints: %w", err)
	}
	return nil
}
