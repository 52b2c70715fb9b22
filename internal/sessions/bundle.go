package sessions

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"comic2kindle/internal/services"
)

// WriteBundle streams every artifact of the session into w as a zip
// archive for bulk download.
func (s *Store) WriteBundle(sessionID string, w io.Writer) error {
	names, err := s.ListOutputs(sessionID)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return services.Wrap(services.ErrNotFound, "", "bundle",
			fmt.Sprintf("session %s has no artifacts", sessionID), nil)
	}

	zw := zip.NewWriter(w)
	for _, name := range names {
		entry, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("bundle entry %s: %w", name, err)
		}
		file, err := os.Open(filepath.Join(s.outputRoot, sessionID, name))
		if err != nil {
			return fmt.Errorf("bundle entry %s: %w", name, err)
		}
		_, err = io.Copy(entry, file)
		file.Close()
		if err != nil {
			return fmt.Errorf("bundle entry %s: %w", name, err)
		}
	}
	return zw.Close()
}
