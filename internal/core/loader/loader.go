// internal/core/loader/loader.go
package loader

/*
 * Rule and record file loading.
 *
 * Rule files are YAML (.yaml/.yml, or any other extension) or JSON (.json).
 * The document is either a list of rules or a mapping with a "rules" key.
 * Record files follow the same layout with a "records" key.
 *
 * Key responsibilities:
 *   - Decode rule documents into types.Rule, generating ids where missing
 *   - Reject duplicate rule ids within one document
 *   - Decode record documents into types.Record
 *
 * Dependencies: gopkg.in/yaml.v3
 */

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/davidespo/rules-engine/internal/types"
)

// ruleDocument is the mapping form of a rule file.
type ruleDocument struct {
	Rules []types.Rule `json:"rules" yaml:"rules"`
}

// recordDocument is the mapping form of a record file.
type recordDocument struct {
	Records []any `json:"records" yaml:"records"`
}

// FileSource reads rules from a file on every call.
type FileSource struct {
	Path string
}

// Rules loads the file. The context is unused; reads are local.
func (s FileSource) Rules(_ context.Context) ([]types.Rule, error) {
	return LoadFile(s.Path)
}

// LoadFile reads a rule file. Rules without an id get a generated one.
func LoadFile(path string) ([]types.Rule, error) {
	data, err := readLimited(path)
	if err != nil {
		return nil, err
	}
	rules, err := ParseRules(data, isJSON(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

// ParseRules decodes a rule document. asJSON selects encoding/json,
// otherwise yaml.v3 is used.
func ParseRules(data []byte, asJSON bool) ([]types.Rule, error) {
	var rules []types.Rule
	var doc ruleDocument

	if err := decodeListOrDocument(data, asJSON, &rules, &doc); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if rules == nil {
		rules = doc.Rules
	}

	seen := make(map[string]int, len(rules))
	for i := range rules {
		if rules[i].ID == "" {
			rules[i].ID = types.NewRuleID()
		}
		if prev, ok := seen[rules[i].ID]; ok {
			return nil, fmt.Errorf("%w: %q (rules %d and %d)", types.ErrDuplicateRuleID, rules[i].ID, prev, i)
		}
		seen[rules[i].ID] = i
	}
	return rules, nil
}

// LoadRecords reads a record file.
func LoadRecords(path string) ([]types.Record, error) {
	data, err := readLimited(path)
	if err != nil {
		return nil, err
	}
	records, err := ParseRecords(data, isJSON(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// ParseRecords decodes a record document. Every record must carry an id.
func ParseRecords(data []byte, asJSON bool) ([]types.Record, error) {
	var raw []any
	var doc recordDocument

	if err := decodeListOrDocument(data, asJSON, &raw, &doc); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	if raw == nil {
		raw = doc.Records
	}

	records := make([]types.Record, 0, len(raw))
	for i, r := range raw {
		rec, err := types.RecordFromAny(r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// LoadRecord reads a file holding a single record object.
func LoadRecord(path string) (types.Record, error) {
	data, err := readLimited(path)
	if err != nil {
		return types.Record{}, err
	}

	var raw any
	if isJSON(path) {
		err = json.Unmarshal(data, &raw)
	} else {
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return types.Record{}, fmt.Errorf("%s: decode record: %w", path, err)
	}

	rec, err := types.RecordFromAny(raw)
	if err != nil {
		return types.Record{}, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}

// decodeListOrDocument decodes data into list when the root is a sequence,
// otherwise into doc. Empty input leaves both untouched.
func decodeListOrDocument(data []byte, asJSON bool, list, doc any) error {
	if asJSON {
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) == 0 {
			return nil
		}
		if trimmed[0] == '[' {
			return json.Unmarshal(trimmed, list)
		}
		return json.Unmarshal(trimmed, doc)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return err
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return nil
	}
	node := root.Content[0]
	switch node.Kind {
	case yaml.SequenceNode:
		return node.Decode(list)
	case yaml.MappingNode:
		return node.Decode(doc)
	default:
		return fmt.Errorf("line %d: expected a list or a mapping", node.Line)
	}
}

func readLimited(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, types.MaxRuleDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) > types.MaxRuleDocumentSize {
		return nil, fmt.Errorf("%s exceeds %d bytes", path, types.MaxRuleDocumentSize)
	}
	return data, nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
