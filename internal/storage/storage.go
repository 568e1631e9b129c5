// Package storage keeps received payloads and processed results on disk,
// keyed by the client-supplied file name.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	ReceivedDir  = "received"
	ProcessedDir = "processed"
)

// Namespace decides how received files of concurrent sessions are separated.
type Namespace string

const (
	// NamespaceSession stores each session under its own directory.
	NamespaceSession Namespace = "session"
	// NamespaceShared stores every session in one directory; two sessions
	// sending the same name race on the same file and the last writer wins.
	NamespaceShared Namespace = "shared"
)

// StorageError reports a failed filesystem operation.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s %s): %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Storage is rooted at a directory holding the received and processed areas.
type Storage struct {
	root string
	ns   Namespace
}

// New returns a Storage rooted at root. Areas are created on demand.
func New(root string, ns Namespace) (*Storage, error) {
	switch ns {
	case NamespaceSession, NamespaceShared:
	case "":
		ns = NamespaceSession
	default:
		return nil, fmt.Errorf("unknown storage namespace %q (want %q or %q)", ns, NamespaceSession, NamespaceShared)
	}
	if root == "" {
		return nil, errors.New("storage root must not be empty")
	}
	return &Storage{root: root, ns: ns}, nil
}

// Root returns the storage root directory.
func (s *Storage) Root() string { return s.root }

// ReceivedPath is where a session's payload named name is stored.
func (s *Storage) ReceivedPath(sessionID, name string) string {
	if s.ns == NamespaceSession && sessionID != "" {
		return filepath.Join(s.root, ReceivedDir, sessionID, filepath.Base(name))
	}
	return filepath.Join(s.root, ReceivedDir, filepath.Base(name))
}

// ProcessedPath is where a processed result named name is stored.
func (s *Storage) ProcessedPath(name string) string {
	return filepath.Join(s.root, ProcessedDir, filepath.Base(name))
}

// SaveReceived persists an incoming payload and returns its path.
func (s *Storage) SaveReceived(sessionID, name string, data []byte) (string, error) {
	path := s.ReceivedPath(sessionID, name)
	return path, write(path, data)
}

// SaveProcessed persists a processed result and returns its path.
func (s *Storage) SaveProcessed(name string, data []byte) (string, error) {
	path := s.ProcessedPath(name)
	return path, write(path, data)
}

// Overwrite replaces the contents of an existing stored file.
func (s *Storage) Overwrite(path string, data []byte) error {
	return write(path, data)
}

// Read loads a stored file.
func (s *Storage) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &StorageError{Op: "read", Path: path, Err: err}
	}
	return data, nil
}

// Clear deletes both areas.
func (s *Storage) Clear() error {
	for _, area := range []string{ReceivedDir, ProcessedDir} {
		dir := filepath.Join(s.root, area)
		if err := os.RemoveAll(dir); err != nil {
			return &StorageError{Op: "clear", Path: dir, Err: err}
		}
	}
	return nil
}

func write(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &StorageError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	return nil
}
