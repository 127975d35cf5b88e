package rules

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spherical-ai/spherical/libs/entity-filter/internal/observability"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/storage"
)

// Source errors
var (
	ErrEmptySource  = errors.New("dictionary source is empty")
	ErrMalformedRow = errors.New("malformed dictionary row")
)

// Source provides dictionary rows from some external store.
type Source interface {
	Load(ctx context.Context) ([]Row, error)
	Name() string
}

// Load reads a source and builds a dictionary from it. It never fails: a
// missing, unreadable or malformed source yields an empty dictionary so that
// filtering degrades to pass-through.
func Load(ctx context.Context, src Source, logger *observability.Logger) *Dictionary {
	logger = observability.OrNop(logger)
	if src == nil {
		logger.Warn().Msg("No dictionary source configured, using empty dictionary")
		return Empty()
	}
	logger = logger.WithSource(src.Name())

	start := time.Now()
	rows, err := src.Load(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load dictionary, using empty dictionary")
		return Empty()
	}

	dict := FromRows(rows, logger)
	logger.Info().
		Int("rows", len(rows)).
		Int("entities", len(dict.entities)).
		Int("attributes", len(dict.attributes)).
		Str("version", dict.Version()).
		Dur("duration", time.Since(start)).
		Msg("Loaded rule dictionary")
	return dict
}

// StaticSource serves a fixed set of rows.
type StaticSource struct {
	rows []Row
}

// NewStaticSource creates a source over in-memory rows.
func NewStaticSource(rows []Row) *StaticSource {
	return &StaticSource{rows: append([]Row(nil), rows...)}
}

// Load returns a copy of the rows.
func (s *StaticSource) Load(ctx context.Context) ([]Row, error) {
	return append([]Row(nil), s.rows...), nil
}

// Name identifies the source in logs.
func (s *StaticSource) Name() string { return "static" }

// CSVSource reads a two-column CSV file with an entity column and an
// attribute-type column.
type CSVSource struct {
	path string
}

// NewCSVSource creates a CSV-backed source.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

// Name identifies the source in logs.
func (s *CSVSource) Name() string { return "csv:" + s.path }

// Load reads every row from the file.
func (s *CSVSource) Load(ctx context.Context) ([]Row, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open dictionary csv: %w", err)
	}
	defer f.Close()
	return ParseCSV(f)
}

var (
	entityHeaders = map[string]bool{"entity": true, "name": true, "实体": true, "实体名称": true}
	typeHeaders   = map[string]bool{
		"attribute_type": true, "attribute-type": true, "attribute type": true,
		"type": true, "属性类型": true, "属性": true,
	}
)

// ParseCSV reads dictionary rows from CSV. The first record is treated as a
// header when it names the entity column; otherwise the file is read as
// headerless (entity, attribute_type) pairs.
func ParseCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRow, err)
	}
	if len(records) == 0 {
		return nil, ErrEmptySource
	}

	entityCol, typeCol := 0, 1
	first := records[0]
	if len(first) > 0 {
		first[0] = strings.TrimPrefix(first[0], "\ufeff")
	}
	if col, tcol, ok := headerColumns(first); ok {
		entityCol, typeCol = col, tcol
		records = records[1:]
	}

	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		if len(rec) <= entityCol {
			continue
		}
		row := Row{Entity: strings.TrimSpace(rec[entityCol])}
		if typeCol >= 0 && len(rec) > typeCol {
			row.AttributeType = strings.TrimSpace(rec[typeCol])
		}
		if row.Entity == "" {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// headerColumns locates the entity and type columns in a header record.
// typeCol is -1 when the header has no type column.
func headerColumns(rec []string) (entityCol, typeCol int, ok bool) {
	entityCol, typeCol = -1, -1
	for i, cell := range rec {
		key := strings.ToLower(strings.TrimSpace(cell))
		switch {
		case entityHeaders[key] && entityCol < 0:
			entityCol = i
		case typeHeaders[key] && typeCol < 0:
			typeCol = i
		}
	}
	return entityCol, typeCol, entityCol >= 0
}

// YAMLSource reads a YAML document of the form:
//
//	entities: [E5Q, P20 Ultra Plus]
//	attributes:
//	  75寸: 尺寸
//	  8GB: 内存
type YAMLSource struct {
	path string
}

// NewYAMLSource creates a YAML-backed source.
func NewYAMLSource(path string) *YAMLSource {
	return &YAMLSource{path: path}
}

// Name identifies the source in logs.
func (s *YAMLSource) Name() string { return "yaml:" + s.path }

type yamlDictionary struct {
	Entities   []string          `yaml:"entities"`
	Attributes map[string]string `yaml:"attributes"`
}

// Load reads and decodes the file.
func (s *YAMLSource) Load(ctx context.Context) ([]Row, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read dictionary yaml: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML decodes dictionary rows from YAML. Attributes are emitted in
// name order so the result is deterministic.
func ParseYAML(data []byte) ([]Row, error) {
	var doc yamlDictionary
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRow, err)
	}
	if len(doc.Entities) == 0 && len(doc.Attributes) == 0 {
		return nil, ErrEmptySource
	}

	rows := make([]Row, 0, len(doc.Entities)+len(doc.Attributes))
	for _, e := range doc.Entities {
		rows = append(rows, Row{Entity: e})
	}

	names := make([]string, 0, len(doc.Attributes))
	for name := range doc.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		typ := doc.Attributes[name]
		if strings.TrimSpace(typ) == "" {
			return nil, fmt.Errorf("%w: attribute %q has no type", ErrMalformedRow, name)
		}
		rows = append(rows, Row{Entity: name, AttributeType: typ})
	}
	return rows, nil
}

// SQLSource reads a tenant's rows from the entity_rules table.
type SQLSource struct {
	repo     *storage.RuleRepository
	tenantID string
}

// NewSQLSource creates a database-backed source for one tenant.
func NewSQLSource(repo *storage.RuleRepository, tenantID string) *SQLSource {
	return &SQLSource{repo: repo, tenantID: tenantID}
}

// Name identifies the source in logs.
func (s *SQLSource) Name() string {
	return fmt.Sprintf("sql:%s/%s", s.repo.Table(), s.tenantID)
}

// Load queries the tenant's rules.
func (s *SQLSource) Load(ctx context.Context) ([]Row, error) {
	rules, err := s.repo.ListByTenant(ctx, s.tenantID)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(rules))
	for _, r := range rules {
		rows = append(rows, Row{Entity: r.Entity, AttributeType: r.AttributeType})
	}
	return rows, nil
}
