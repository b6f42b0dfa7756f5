// Package manual reads hand-curated holdings files and exposes them as a position source.
package manual

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Entry is one holding in a curated file. Numbers may be written as JSON/YAML
// numbers or strings; they are kept verbatim for the normalizer to parse.
type Entry struct {
	FundID         string `yaml:"fund_id"`
	ID             string `yaml:"id"`
	Symbol         string `yaml:"symbol"`
	Quantity       string `yaml:"quantity"`
	Currency       string `yaml:"currency"`
	Market         string `yaml:"market"`
	Source         string `yaml:"source"`
	InstrumentType string `yaml:"instrument_type"`
	AccountID      string `yaml:"account_id"`
	DisplayName    string `yaml:"display_name"`
	Name           string `yaml:"name"`
}

// Label returns the human-readable name of the entry, if any.
func (e Entry) Label() string {
	return strings.TrimSpace(lo.CoalesceOrEmpty(e.DisplayName, e.Name))
}

// BelongsTo reports whether the entry applies to accountID. Entries without
// an account apply to every account.
func (e Entry) BelongsTo(accountID string) bool {
	return e.AccountID == "" || e.AccountID == accountID
}

// ReadFile loads entries from a JSON or YAML file holding either a list of
// entries or an object with the list under one of listKeys. A missing or
// empty file yields no entries.
func ReadFile(path string, listKeys ...string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading holdings file: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing holdings file %s: %w", path, err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]

	switch root.Kind {
	case yaml.SequenceNode:
		return decodeEntries(path, root)
	case yaml.MappingNode:
		var wrapped map[string]yaml.Node
		if err := root.Decode(&wrapped); err != nil {
			return nil, fmt.Errorf("decoding holdings in %s: %w", path, err)
		}
		for _, key := range listKeys {
			if node, ok := wrapped[key]; ok && node.Kind == yaml.SequenceNode && len(node.Content) > 0 {
				return decodeEntries(path, &node)
			}
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("holdings file %s: expected a list or an object", path)
	}
}

func decodeEntries(path string, node *yaml.Node) ([]Entry, error) {
	var entries []Entry
	if err := node.Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding holdings in %s: %w", path, err)
	}
	return entries, nil
}
