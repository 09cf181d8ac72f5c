package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CheckExisting checks if lgoap.yml or settings.yml already exist in dir.
// Returns an error if they do, nil otherwise
func CheckExisting(dir string) error {
	var existingFiles []string

	for _, name := range []string{ConfigFile, SettingsFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			existingFiles = append(existingFiles, name)
		}
	}

	if len(existingFiles) == 0 {
		return nil
	}

	return &ExistingFilesError{Files: existingFiles}
}

// ExistingFilesError reports project files that initialization would overwrite.
type ExistingFilesError struct {
	Files []string
}

func (e *ExistingFilesError) Error() string {
	return fmt.Sprintf("project already initialized (found %s)", strings.Join(e.Files, ", "))
}
