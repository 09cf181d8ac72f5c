package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/lgoap/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

const (
	// ConfigFile is the authoring file written by Initialize
	ConfigFile = "lgoap.yml"

	// SettingsFile is the runtime settings file written by Initialize
	SettingsFile = "settings.yml"
)

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize writes an example lgoap project into dir and returns the paths
// it created. If force is true, existing project files are replaced.
func Initialize(dir string, force bool) ([]string, error) {
	if force {
		if err := handleForce(dir); err != nil {
			return nil, err
		}
	}

	files, err := getTemplateFiles(dir)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	if err := writeFiles(files); err != nil {
		return nil, err
	}

	if err := validateCreatedFiles(dir); err != nil {
		return nil, err
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths, nil
}

// handleForce removes existing project files if --force was specified
func handleForce(dir string) error {
	for _, name := range []string{ConfigFile, SettingsFile} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	return nil
}

// getTemplateFiles reads all embedded templates
func getTemplateFiles(dir string) ([]FileInfo, error) {
	templates := []struct {
		name string
		path string
	}{
		{"templates/lgoap.yml.tmpl", ConfigFile},
		{"templates/settings.yml.tmpl", SettingsFile},
	}

	files := make([]FileInfo, 0, len(templates))
	for _, t := range templates {
		content, err := templatesFS.ReadFile(t.name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s template: %w", t.path, err)
		}
		files = append(files, FileInfo{
			Path:        filepath.Join(dir, t.path),
			Content:     content,
			Permissions: 0644,
		})
	}

	return files, nil
}

// writeFiles writes all template files to disk
func writeFiles(files []FileInfo) error {
	for _, file := range files {
		if err := os.WriteFile(file.Path, file.Content, file.Permissions); err != nil {
			return fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
	}

	return nil
}

// validateCreatedFiles compiles the written authoring file and loads the
// written settings, so a broken template never reaches the user.
func validateCreatedFiles(dir string) error {
	f, err := config.Load(filepath.Join(dir, ConfigFile))
	if err != nil {
		return fmt.Errorf("created %s is invalid: %w", ConfigFile, err)
	}
	if _, err := f.Build(); err != nil {
		return fmt.Errorf("created %s does not compile: %w", ConfigFile, err)
	}

	if _, err := config.LoadSettings(config.NewViper(), filepath.Join(dir, SettingsFile)); err != nil {
		return fmt.Errorf("created %s is invalid: %w", SettingsFile, err)
	}

	return nil
}
