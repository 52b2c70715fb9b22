// Package sessions manages upload workspaces: one directory of source
// files and one of produced artifacts per session.
package sessions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"comic2kindle/internal/config"
	"comic2kindle/internal/fileutil"
	"comic2kindle/internal/services"
)

// File is one uploaded source registered in a session.
type File struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"-"`
	Size int64  `json:"size"`
}

// Store lays sessions out under the configured upload and output roots:
//
//	uploads/<session>/<fileID>.<ext>
//	output/<session>/<artifact>
type Store struct {
	uploadRoot string
	outputRoot string
}

// NewStore validates workspace access and returns a session store.
func NewStore(cfg *config.Config) (*Store, error) {
	store := &Store{
		uploadRoot: cfg.Paths.UploadDir,
		outputRoot: cfg.Paths.OutputDir,
	}
	for _, dir := range []string{store.uploadRoot, store.outputRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "", "session store", "cannot create workspace directory", err)
		}
		if err := unix.Access(dir, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "", "session store",
				fmt.Sprintf("workspace directory %s is not fully accessible", dir), err)
		}
	}
	return store, nil
}

// Create allocates a new session and returns its identifier.
func (s *Store) Create(_ context.Context) (string, error) {
	id := uuid.NewString()
	if err := os.MkdirAll(s.uploadDir(id), 0o755); err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}
	return id, nil
}

// Exists reports whether the session has an upload directory.
func (s *Store) Exists(sessionID string) bool {
	info, err := os.Stat(s.uploadDir(sessionID))
	return err == nil && info.IsDir()
}

// SaveFile stores an uploaded source under a fresh file ID, preserving the
// original extension so the extractor can dispatch on it. The write is
// atomic so a concurrent conversion never reads a half-written upload.
func (s *Store) SaveFile(sessionID, originalName string, data []byte) (*File, error) {
	if !s.Exists(sessionID) {
		return nil, services.Wrap(services.ErrNotFound, "", "save file", fmt.Sprintf("session %s not found", sessionID), nil)
	}
	ext := strings.ToLower(filepath.Ext(originalName))
	id := uuid.NewString()
	path := filepath.Join(s.uploadDir(sessionID), id+ext)
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write upload: %w", err)
	}
	return &File{ID: id, Name: filepath.Base(originalName), Path: path, Size: int64(len(data))}, nil
}

// ResolveFile maps a file ID back to its stored path. Plain archives match
// by ID prefix; a directory named <id>_images is an already-extracted
// image folder.
func (s *Store) ResolveFile(sessionID, fileID string) (string, error) {
	dir := s.uploadDir(sessionID)
	if info, err := os.Stat(filepath.Join(dir, fileID+"_images")); err == nil && info.IsDir() {
		return filepath.Join(dir, fileID+"_images"), nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", services.Wrap(services.ErrNotFound, "", "resolve file", fmt.Sprintf("session %s not found", sessionID), err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.TrimSuffix(name, filepath.Ext(name)) == fileID {
			return filepath.Join(dir, name), nil
		}
	}
	return "", services.Wrap(services.ErrNotFound, "", "resolve file",
		fmt.Sprintf("file %s not found in session %s", fileID, sessionID), nil)
}

// ListFiles enumerates the uploads of a session sorted by name.
func (s *Store) ListFiles(sessionID string) ([]*File, error) {
	dir := s.uploadDir(sessionID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "", "list files", fmt.Sprintf("session %s not found", sessionID), err)
	}
	var files []*File
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		name := entry.Name()
		files = append(files, &File{
			ID:   strings.TrimSuffix(name, filepath.Ext(name)),
			Name: name,
			Path: filepath.Join(dir, name),
			Size: info.Size(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// OutputDir returns the artifact directory for the session, creating it on
// first use.
func (s *Store) OutputDir(sessionID string) (string, error) {
	dir := filepath.Join(s.outputRoot, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	return dir, nil
}

// OutputFile returns the path of a produced artifact, verifying that the
// name does not escape the session's output directory.
func (s *Store) OutputFile(sessionID, filename string) (string, error) {
	if filepath.Base(filename) != filename || filename == "." || filename == ".." {
		return "", services.Wrap(services.ErrValidation, "", "output file", "invalid artifact name", nil)
	}
	path := filepath.Join(s.outputRoot, sessionID, filename)
	if _, err := os.Stat(path); err != nil {
		return "", services.Wrap(services.ErrNotFound, "", "output file",
			fmt.Sprintf("artifact %s not found", filename), err)
	}
	return path, nil
}

// ListOutputs enumerates produced artifact filenames sorted by name.
func (s *Store) ListOutputs(sessionID string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.outputRoot, sessionID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Remove deletes the session's uploads and artifacts.
func (s *Store) Remove(sessionID string) error {
	if err := os.RemoveAll(s.uploadDir(sessionID)); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(s.outputRoot, sessionID))
}

func (s *Store) uploadDir(sessionID string) string {
	return filepath.Join(s.uploadRoot, sessionID)
}
