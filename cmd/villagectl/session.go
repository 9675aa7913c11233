package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// sessionFile is the wallet session saved by login.
type sessionFile struct {
	Address     string    `json:"address"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "villagekeeper")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "villagekeeper")
}

func sessionPath() string { return filepath.Join(cfgDir(), "session.json") }

func saveSession(s sessionFile) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(sessionPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func loadSession() (sessionFile, error) {
	b, err := os.ReadFile(sessionPath())
	if err != nil {
		return sessionFile{}, err
	}
	var s sessionFile
	if err := json.Unmarshal(b, &s); err != nil {
		return sessionFile{}, err
	}
	if s.Address == "" {
		return sessionFile{}, errors.New("no wallet connected (login required)")
	}
	if s.AccessToken != "" && time.Now().After(s.ExpiresAt) {
		return sessionFile{}, errors.New("session expired (login required)")
	}
	return s, nil
}

func dropSession() error {
	err := os.Remove(sessionPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
