package moderation

import (
	"bufio"
	"bytes"
	"embed"
	"io/fs"
	"strings"

	"reviewroom/errors"
)

//go:embed wordlists/*
var wordlistsFolder embed.FS

// WordlistData carries the result of the loading process including
// metadata for logging.
type WordlistData struct {
	Words     []string
	Languages []string
}

// LoadWordlists parses the embedded per-language dictionaries
// (e.g. "en.txt" -> "en") into a unique list of censored words.
func LoadWordlists() (*WordlistData, error) {
	entries, err := fs.ReadDir(wordlistsFolder, "wordlists")
	if err != nil {
		return nil, err
	}

	var languages []string
	uniqueWords := make(map[string]struct{})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		languages = append(languages, strings.TrimSuffix(entry.Name(), ".txt"))

		data, err := wordlistsFolder.ReadFile("wordlists/" + entry.Name())
		if err != nil {
			return nil, err
		}

		// A scanner handles both \n and \r\n line endings
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" {
				uniqueWords[line] = struct{}{}
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	if len(uniqueWords) == 0 {
		return nil, errors.ErrEmptyWords
	}

	words := make([]string, 0, len(uniqueWords))
	for w := range uniqueWords {
		words = append(words, w)
	}
	return &WordlistData{Words: words, Languages: languages}, nil
}
