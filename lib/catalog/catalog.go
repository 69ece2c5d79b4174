// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog reads the list of items an auction house sells.
//
// Two formats are accepted. The text format has one item per line,
// the name followed by the opening price, separated by whitespace:
//
//	# antiques
//	grandfather clock 120
//	typewriter 45.50
//
// The name is everything before the last field, so it may contain
// spaces. Blank lines and lines starting with # are ignored.
//
// Files ending in .json or .jsonc hold an array of objects, with
// comments and trailing commas allowed:
//
//	[
//	  {"name": "grandfather clock", "price": "120"}, // oak case
//	]
//
// Entries keep file order; the house lists them in that order.
package catalog

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/jsonc"
	"github.com/zeebo/blake3"
)

// Entry is one item for sale.
type Entry struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Catalog is a parsed item file.
type Catalog struct {
	Entries []Entry

	// Digest is the hex BLAKE3-256 of the file contents, logged so
	// operators can tell which catalog a house is selling from.
	Digest string
}

// Load reads and parses the catalog at path. The format is chosen by
// file extension.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	var entries []Entry
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		entries, err = ParseJSONC(data)
	default:
		entries, err = ParseText(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s: catalog is empty", path)
	}
	return &Catalog{Entries: entries, Digest: Digest(data)}, nil
}

// ParseText parses the line-oriented format.
func ParseText(data []byte) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: want \"<name> <price>\", got %q", lineNumber, line)
		}
		entry := Entry{Name: strings.Join(fields[:len(fields)-1], " ")}
		price, err := decimal.NewFromString(fields[len(fields)-1])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid price %q: %w", lineNumber, fields[len(fields)-1], err)
		}
		entry.Price = price
		if err := entry.validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNumber, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// ParseJSONC parses the JSON array format, after stripping comments
// and trailing commas.
func ParseJSONC(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal(jsonc.ToJSON(data), &entries); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	for index, entry := range entries {
		if err := entry.validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", index, err)
		}
	}
	return entries, nil
}

// Digest returns the hex BLAKE3-256 of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (e Entry) validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return errors.New("item name is empty")
	}
	if e.Price.IsNegative() {
		return fmt.Errorf("item %q has negative price %s", e.Name, e.Price)
	}
	return nil
}
