package runtime

import (
	"bufio"
	"chat-relay/errors"
	"embed"
	"fmt"
	"io/fs"
	"maps"
	"path"
	"slices"
	"strings"
)

//go:embed censored/*
var censoredFolder embed.FS

// CensoredData is the merged dictionary handed to the moderator.
// Languages counts the words each file contributed, before deduplication.
type CensoredData struct {
	Words     []string
	Languages map[string]int
}

// LanguageNames lists the loaded languages in a stable order, for logs.
func (d *CensoredData) LanguageNames() []string {
	return slices.Sorted(maps.Keys(d.Languages))
}

// CensoredLoader reads one dictionary per language ("fr.txt" holds the French words).
type CensoredLoader struct {
	fs fs.FS
}

func NewCensoredLoader(f fs.FS) *CensoredLoader {
	return &CensoredLoader{fs: f}
}

// NewDefaultCensoredLoader reads the dictionaries shipped with the relay.
func NewDefaultCensoredLoader() *CensoredLoader {
	return NewCensoredLoader(censoredFolder)
}

// LoadAll merges every .txt file of dir. Blank lines and lines starting with # are ignored,
// words are lowercased so the dictionary matches the moderator's normalized text.
func (l *CensoredLoader) LoadAll(dir string) (*CensoredData, error) {
	if _, err := fs.Stat(l.fs, dir); err != nil {
		return nil, fmt.Errorf("censored dictionaries: %w", err)
	}
	files, err := fs.Glob(l.fs, path.Join(dir, "*.txt"))
	if err != nil {
		return nil, err
	}

	data := &CensoredData{Languages: make(map[string]int)}
	unique := make(map[string]struct{})
	for _, file := range files {
		words, err := l.readDictionary(file)
		if err != nil {
			return nil, fmt.Errorf("censored dictionary %s: %w", file, err)
		}
		data.Languages[strings.TrimSuffix(path.Base(file), ".txt")] = len(words)
		for _, word := range words {
			unique[word] = struct{}{}
		}
	}

	if len(unique) == 0 {
		return nil, errors.ErrEmptyWords
	}
	// Sorted so the automaton is built the same way on every start
	data.Words = slices.Sorted(maps.Keys(unique))
	return data, nil
}

func (l *CensoredLoader) readDictionary(file string) ([]string, error) {
	f, err := l.fs.Open(file)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	// bufio handles both \n and \r\n endings
	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	return words, scanner.Err()
}
