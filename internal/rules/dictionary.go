// Package rules holds the rule dictionary: the known base-entity names and the
// attribute-name to attribute-type mapping, plus the sources it is loaded from.
package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/spherical-ai/spherical/libs/entity-filter/internal/observability"
)

// Row is one record of the tabular dictionary source. An empty AttributeType
// registers a base entity.
type Row struct {
	Entity        string `json:"entity" yaml:"entity"`
	AttributeType string `json:"attributeType" yaml:"attribute_type"`
}

// Dictionary is an immutable set of base entities and typed attributes.
// Each name belongs to exactly one category.
type Dictionary struct {
	entities   []string
	attributes map[string]string
	attrNames  []string
	version    string
}

// Empty returns a dictionary with no entries. Filtering against it passes
// every document through.
func Empty() *Dictionary {
	return NewDictionary(nil, nil)
}

// NewDictionary builds a dictionary from explicit entity names and an
// attribute-name to type map. Attribute types may be empty when built this
// way. Names are trimmed, blanks dropped, and an attribute whose name is
// already an entity is ignored.
func NewDictionary(entities []string, attributes map[string]string) *Dictionary {
	d := &Dictionary{attributes: make(map[string]string, len(attributes))}

	seen := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		d.entities = append(d.entities, e)
	}

	for name, typ := range attributes {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, isEntity := seen[name]; isEntity {
			continue
		}
		d.attributes[name] = strings.TrimSpace(typ)
	}

	d.finish()
	return d
}

// FromRows builds a dictionary from source rows. When a name appears more
// than once, the first row wins and the conflicting row is logged and dropped.
func FromRows(rows []Row, logger *observability.Logger) *Dictionary {
	logger = observability.OrNop(logger)
	d := &Dictionary{attributes: make(map[string]string)}
	category := make(map[string]string, len(rows))

	for i, row := range rows {
		name := strings.TrimSpace(row.Entity)
		typ := strings.TrimSpace(row.AttributeType)
		if name == "" {
			logger.Warn().Int("row", i).Msg("Skipping dictionary row with empty entity")
			continue
		}
		if prev, ok := category[name]; ok {
			if prev != typ {
				logger.Warn().
					Str("name", name).
					Str("kept_type", prev).
					Str("dropped_type", typ).
					Msg("Dictionary name registered twice, keeping first row")
			}
			continue
		}
		category[name] = typ

		if typ == "" {
			d.entities = append(d.entities, name)
		} else {
			d.attributes[name] = typ
		}
	}

	d.finish()
	return d
}

func (d *Dictionary) finish() {
	d.attrNames = make([]string, 0, len(d.attributes))
	for name := range d.attributes {
		d.attrNames = append(d.attrNames, name)
	}
	sort.Strings(d.attrNames)
	d.version = d.fingerprint()
}

// fingerprint hashes the sorted contents so equal dictionaries share a version.
func (d *Dictionary) fingerprint() string {
	ents := append([]string(nil), d.entities...)
	sort.Strings(ents)

	h := sha256.New()
	for _, e := range ents {
		h.Write([]byte("e\x00" + e + "\x00"))
	}
	for _, a := range d.attrNames {
		h.Write([]byte("a\x00" + a + "\x00" + d.attributes[a] + "\x00"))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Entities returns the base-entity names in source order.
func (d *Dictionary) Entities() []string {
	return append([]string(nil), d.entities...)
}

// Attributes returns a copy of the attribute-name to type mapping.
func (d *Dictionary) Attributes() map[string]string {
	out := make(map[string]string, len(d.attributes))
	for k, v := range d.attributes {
		out[k] = v
	}
	return out
}

// AttributeNames returns the attribute names sorted lexicographically.
func (d *Dictionary) AttributeNames() []string {
	return append([]string(nil), d.attrNames...)
}

// AttributeType returns the type registered for an attribute name.
func (d *Dictionary) AttributeType(name string) (string, bool) {
	t, ok := d.attributes[name]
	return t, ok
}

// IsEntity reports whether name is a registered base entity.
func (d *Dictionary) IsEntity(name string) bool {
	for _, e := range d.entities {
		if e == name {
			return true
		}
	}
	return false
}

// Len returns the total number of entries.
func (d *Dictionary) Len() int {
	return len(d.entities) + len(d.attributes)
}

// IsEmpty reports whether the dictionary has no entries.
func (d *Dictionary) IsEmpty() bool {
	return d.Len() == 0
}

// Version returns a short content hash of the dictionary.
func (d *Dictionary) Version() string {
	return d.version
}
