// Package config manages the user's sheetflow folder: the user profile,
// saved analyses, rules, and warehouse connection catalogs. Everything
// is plain JSON or text so files survive schema migrations and manual
// edits.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"sheetflow/internal/errs"
)

// FolderEnvVar overrides the default folder location, mainly for tests
// and sandboxed hosts.
const FolderEnvVar = "MITO_FOLDER"

// MitoFolder returns the root of the user's settings folder,
// $MITO_FOLDER when set, otherwise ~/.mito.
func MitoFolder() string {
	if dir := os.Getenv(FolderEnvVar); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mito"
	}
	return filepath.Join(home, ".mito")
}

// SavedAnalysesDir is where saved analyses live.
func SavedAnalysesDir() string { return filepath.Join(MitoFolder(), "saved_analyses") }

// RulesDir holds user-authored markdown rule files.
func RulesDir() string { return filepath.Join(MitoFolder(), "rules") }

// DBDir holds the warehouse connection and schema catalogs.
func DBDir() string { return filepath.Join(MitoFolder(), "db") }

// ReadJSONFile decodes a JSON file into out. A missing file returns
// os.ErrNotExist unwrapped so callers can fall back to defaults.
func ReadJSONFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errs.IO("bad_json_file", "cannot parse %s", path).WithCause(err)
	}
	return nil
}

// WriteJSONFile writes v as indented JSON with a full read-modify-write
// discipline: the bytes land in a temp file first and are renamed into
// place, under a best-effort advisory lock. Last writer wins when the
// lock cannot be taken.
func WriteJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.IO("folder_create_failed", "cannot create %s", filepath.Dir(path)).WithCause(err)
	}

	unlock := advisoryLock(path)
	defer unlock()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return errs.IO("file_write_failed", "cannot write %s", path).WithCause(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errs.IO("file_write_failed", "cannot replace %s", path).WithCause(err)
	}
	return nil
}

// advisoryLock takes a create-exclusive lock file next to path, giving
// up after a short wait. The returned func releases it.
func advisoryLock(path string) func() {
	lock := path + ".lock"
	deadline := time.Now().Add(500 * time.Millisecond)
	for {
		f, err := os.OpenFile(lock, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return func() { os.Remove(lock) }
		}
		if time.Now().After(deadline) {
			// Stale or contended lock: proceed, last writer wins.
			return func() {}
		}
		time.Sleep(10 * time.Millisecond)
	}
}
