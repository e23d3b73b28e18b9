package cert

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// File name suffixes used while a pin is being created or after it has
// been rejected. A staged pin lives next to the final location so the
// promotion is a single rename on the same filesystem.
const (
	stagingSuffix  = ".temp"
	rejectedSuffix = ".rej"
)

// Store persists one pinned certificate per host under a directory,
// PEM-encoded, keyed by host name. All mutations are per-host file
// operations, so concurrent pin creation for different hosts never
// interacts.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir. The directory is created on
// first write, not here.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the directory holding the pinned certificates.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the location of the pinned certificate for host.
func (s *Store) Path(host string) string {
	return filepath.Join(s.dir, host)
}

// StagingPath returns the temporary location used while creating a pin.
func (s *Store) StagingPath(host string) string {
	return s.Path(host) + stagingSuffix
}

// RejectedPath returns the location of the rejected-certificate artifact.
func (s *Store) RejectedPath(host string) string {
	return s.Path(host) + rejectedSuffix
}

// Exists reports whether a pinned certificate exists for host.
func (s *Store) Exists(host string) bool {
	_, err := os.Stat(s.Path(host))
	return err == nil
}

// Load returns the pinned certificate PEM for host.
// A missing pin is reported as os.ErrNotExist.
func (s *Store) Load(host string) (string, error) {
	data, err := os.ReadFile(s.Path(host))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Stage writes pemText to the staging location for host, creating the
// store directory if needed. A later Promote or Reject consumes the
// staged file.
func (s *Store) Stage(host, pemText string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create certificate store: %w", err)
	}
	if err := os.WriteFile(s.StagingPath(host), []byte(pemText), 0o644); err != nil {
		return fmt.Errorf("stage certificate for %s: %w", host, err)
	}
	return nil
}

// Promote atomically moves the staged certificate for host into the
// permanent pin location.
func (s *Store) Promote(host string) error {
	if err := os.Rename(s.StagingPath(host), s.Path(host)); err != nil {
		return fmt.Errorf("promote certificate for %s: %w", host, err)
	}
	return nil
}

// Reject moves the staged certificate for host aside as a rejected
// artifact, replacing any previous one.
func (s *Store) Reject(host string) error {
	rej := s.RejectedPath(host)
	if err := os.Remove(rej); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear rejected certificate for %s: %w", host, err)
	}
	if err := os.Rename(s.StagingPath(host), rej); err != nil {
		return fmt.Errorf("reject certificate for %s: %w", host, err)
	}
	return nil
}

// Remove deletes the pinned certificate for host. Removing a pin that
// does not exist is not an error.
func (s *Store) Remove(host string) error {
	err := os.Remove(s.Path(host))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove certificate for %s: %w", host, err)
	}
	return nil
}

// PinInfo describes one stored pin for auditing.
type PinInfo struct {
	Host      string
	NotBefore time.Time
	NotAfter  time.Time
	Expired   bool

	// Err is set when the stored file could not be parsed as a certificate.
	Err error
}

// Audit walks the store and reports the validity of every pinned
// certificate. Staging files and rejected artifacts are skipped.
func (s *Store) Audit(now time.Time) ([]PinInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var infos []PinInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) == stagingSuffix || filepath.Ext(name) == rejectedSuffix {
			continue
		}
		info := PinInfo{Host: name}
		pemText, err := s.Load(name)
		if err != nil {
			info.Err = err
		} else if cert, err := ParseCertificate(pemText); err != nil {
			info.Err = err
		} else {
			info.NotBefore = cert.NotBefore
			info.NotAfter = cert.NotAfter
			info.Expired = now.After(cert.NotAfter)
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Host < infos[j].Host })
	return infos, nil
}
