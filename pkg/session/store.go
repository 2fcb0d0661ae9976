// Package session persists the private API session between runs.
//
// The state is a single flat JSON document: the device id plus every client
// setting. It is written on every login and read once at start.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	errs "igresolver/pkg/errors"
	"igresolver/pkg/logger"
)

const deviceIDKey = "device_id"

// State is the persisted session
type State struct {
	DeviceID string
	Settings map[string]Value
}

// NewState returns an empty state for deviceID
func NewState(deviceID string) *State {
	return &State{DeviceID: deviceID, Settings: make(map[string]Value)}
}

// Get returns a setting
func (s *State) Get(key string) (Value, bool) {
	v, ok := s.Settings[key]
	return v, ok
}

// Set stores a setting
func (s *State) Set(key string, v Value) {
	if s.Settings == nil {
		s.Settings = make(map[string]Value)
	}
	s.Settings[key] = v
}

func (s *State) MarshalJSON() ([]byte, error) {
	doc := make(map[string]Value, len(s.Settings)+1)
	for k, v := range s.Settings {
		doc[k] = v
	}
	if s.DeviceID != "" {
		doc[deviceIDKey] = Text(s.DeviceID)
	}
	return json.Marshal(doc)
}

func (s *State) UnmarshalJSON(data []byte) error {
	var doc map[string]Value
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("session document is not an object")
	}
	s.DeviceID = ""
	if v, ok := doc[deviceIDKey]; ok {
		id, isText := v.AsText()
		if !isText {
			return fmt.Errorf("%s is %s, want text", deviceIDKey, v.Kind())
		}
		s.DeviceID = id
		delete(doc, deviceIDKey)
	}
	s.Settings = doc
	return nil
}

// Persister loads and saves session state
type Persister interface {
	Load() (*State, error)
	Save(state *State) error
}

// FileStore keeps the state in one file
type FileStore struct {
	path   string
	logger logger.Logger
}

// NewFileStore creates a store at path
func NewFileStore(path string, log logger.Logger) *FileStore {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &FileStore{path: path, logger: log}
}

// Path returns the settings file location
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the state. A missing file yields (nil, nil); an unreadable
// document yields a corrupt_state error.
func (f *FileStore) Load() (*State, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeCorruptState, err, "decode session file %s", f.path)
	}

	f.logger.DebugWithFields("session loaded", map[string]interface{}{
		"path":      f.path,
		"device_id": state.DeviceID,
		"settings":  len(state.Settings),
	})
	return &state, nil
}

// Save writes the state atomically
func (f *FileStore) Save(state *State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if dir := filepath.Dir(f.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create session directory: %w", err)
		}
	}

	tempPath := f.path + ".tmp"
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temporary session file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync session file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close session file: %w", err)
	}

	if err := os.Rename(tempPath, f.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	f.logger.DebugWithFields("session saved", map[string]interface{}{
		"path":      f.path,
		"device_id": state.DeviceID,
	})
	return nil
}
