// Package credentials keeps the terminal client's login in ~/.portalctl/.env.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	KeyToken  = "PORTALCTL_TOKEN"
	KeyEmail  = "PORTALCTL_EMAIL"
	KeyUserID = "PORTALCTL_USER_ID"

	dirName  = ".portalctl"
	fileName = ".env"
)

var ErrNotLoggedIn = errors.New("not logged in: run 'portalctl login'")

// Credentials is what a successful login leaves behind.
type Credentials struct {
	Token  string
	Email  string
	UserID int64
}

func (c Credentials) LoggedIn() bool {
	return strings.TrimSpace(c.Token) != ""
}

// Store reads and writes one env file. Values exported in the process
// environment win over the file.
type Store struct {
	Path string
}

// DefaultPath is ~/.portalctl/.env.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, dirName, fileName), nil
}

func NewStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		def, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = def
	}
	return &Store{Path: path}, nil
}

// Load returns the stored credentials. A missing file is an empty login.
func (s *Store) Load() (Credentials, error) {
	values, err := s.read()
	if err != nil {
		return Credentials{}, err
	}

	creds := Credentials{
		Token: value(KeyToken, values),
		Email: value(KeyEmail, values),
	}
	if raw := value(KeyUserID, values); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return Credentials{}, fmt.Errorf("invalid %s %q in %s", KeyUserID, raw, s.Path)
		}
		creds.UserID = id
	}
	return creds, nil
}

// Require is Load that fails when nobody is logged in.
func (s *Store) Require() (Credentials, error) {
	creds, err := s.Load()
	if err != nil {
		return Credentials{}, err
	}
	if !creds.LoggedIn() {
		return Credentials{}, ErrNotLoggedIn
	}
	return creds, nil
}

// Save replaces the login keys and keeps anything else in the file.
func (s *Store) Save(creds Credentials) error {
	values, err := s.read()
	if err != nil {
		return err
	}
	values[KeyToken] = creds.Token
	values[KeyEmail] = creds.Email
	if creds.UserID > 0 {
		values[KeyUserID] = strconv.FormatInt(creds.UserID, 10)
	} else {
		delete(values, KeyUserID)
	}
	return s.write(values)
}

// Clear removes the login keys. The file goes away when nothing else is left.
func (s *Store) Clear() error {
	values, err := s.read()
	if err != nil {
		return err
	}
	delete(values, KeyToken)
	delete(values, KeyEmail)
	delete(values, KeyUserID)

	if len(values) == 0 {
		if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", s.Path, err)
		}
		return nil
	}
	return s.write(values)
}

func (s *Store) read() (map[string]string, error) {
	values, err := godotenv.Read(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.Path, err)
	}
	return values, nil
}

func (s *Store) write(values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	if err := godotenv.Write(values, s.Path); err != nil {
		return fmt.Errorf("write %s: %w", s.Path, err)
	}
	if err := os.Chmod(s.Path, 0o600); err != nil {
		return fmt.Errorf("chmod %s: %w", s.Path, err)
	}
	return nil
}

func value(key string, values map[string]string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return strings.TrimSpace(values[key])
}
