package moderation

import (
	"bufio"
	"bytes"
	"embed"
	"io/fs"
	"strings"

	errs "chat-gateway/errors"
)

//go:embed censored/*
var censoredFolder embed.FS

// Dictionary carries the loaded word list plus metadata for logging.
type Dictionary struct {
	Words     []string
	Languages []string
}

// LoadDictionary parses the embedded .txt files, one per language, into a
// unique list of blacklisted words.
func LoadDictionary() (*Dictionary, error) {
	entries, err := fs.ReadDir(censoredFolder, "censored")
	if err != nil {
		return nil, err
	}

	var languages []string
	uniqueWords := make(map[string]struct{})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		// Track the language based on the filename (e.g., "fr.txt" -> "fr")
		languages = append(languages, strings.TrimSuffix(entry.Name(), ".txt"))

		data, err := censoredFolder.ReadFile("censored/" + entry.Name())
		if err != nil {
			return nil, err
		}

		// Use a scanner to handle different line endings (\n vs \r\n) correctly
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
		return nil, errs.ErrEmptyWords
	}

	words := make([]string, 0, len(uniqueWords))
	for w := range uniqueWords {
		words = append(words, w)
	}

	return &Dictionary{Words: words, Languages: languages}, nil
}
