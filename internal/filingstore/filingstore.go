// Package filingstore caches downloaded 10-K filings on disk, one JSON
// document per ticker. Filings are immutable once written; Save replaces the
// whole document atomically.
package filingstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/finlegal/tenkdraft/models"
)

// ErrNotFound is returned when no cached filing exists for a ticker.
var ErrNotFound = errors.New("filing not found")

type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating filings dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(ticker string) string {
	return filepath.Join(s.dir, strings.ToUpper(ticker)+"_10k.json")
}

// Save writes the filing atomically (temp file + rename).
func (s *Store) Save(f *models.Filing) error {
	if f.Ticker == "" {
		return errors.New("filing has no ticker")
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling filing %s: %w", f.Ticker, err)
	}
	tmp, err := os.CreateTemp(s.dir, "filing-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing filing %s: %w", f.Ticker, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(f.Ticker)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing filing %s: %w", f.Ticker, err)
	}
	return nil
}

// Load reads the cached filing for ticker, or ErrNotFound.
func (s *Store) Load(ticker string) (*models.Filing, error) {
	data, err := os.ReadFile(s.path(ticker))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, strings.ToUpper(ticker))
		}
		return nil, fmt.Errorf("reading filing %s: %w", ticker, err)
	}
	var f models.Filing
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing filing %s: %w", ticker, err)
	}
	return &f, nil
}

// Exists reports whether a cached filing is present for ticker.
func (s *Store) Exists(ticker string) bool {
	_, err := os.Stat(s.path(ticker))
	return err == nil
}

// List returns the tickers with cached filings, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading filings dir: %w", err)
	}
	var tickers []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, "_10k.json") {
			continue
		}
		tickers = append(tickers, strings.TrimSuffix(name, "_10k.json"))
	}
	sort.Strings(tickers)
	return tickers, nil
}
