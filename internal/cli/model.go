package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/nonibytes/uniquery/uniquery"
	"github.com/nonibytes/uniquery/uniquery/decorator"
	"github.com/nonibytes/uniquery/uniquery/query"
	"github.com/nonibytes/uniquery/uniquery/sqldata"
)

// Model is the YAML description of a datasource and its customizations.
type Model struct {
	Driver string       `yaml:"driver"`
	DSN    string       `yaml:"dsn"`
	Tables []ModelTable `yaml:"tables"`

	Relations         []ModelRelation   `yaml:"relations"`
	Segments          []ModelSegment    `yaml:"segments"`
	SortEmulated      []ModelField      `yaml:"sortEmulated"`
	HiddenFields      []ModelField      `yaml:"hiddenFields"`
	HiddenCollections []string          `yaml:"hiddenCollections"`
	Validations       []ModelValidation `yaml:"validations"`
}

type ModelTable struct {
	Name    string        `yaml:"name"`
	Columns []ModelColumn `yaml:"columns"`
}

type ModelColumn struct {
	Name    string   `yaml:"name"`
	Type    string   `yaml:"type"`
	Primary bool     `yaml:"primary"`
	Enum    []string `yaml:"enum"`
}

type ModelRelation struct {
	Collection        string `yaml:"collection"`
	Name              string `yaml:"name"`
	Type              string `yaml:"type"`
	ForeignCollection string `yaml:"foreignCollection"`
	ThroughCollection string `yaml:"throughCollection"`
	ForeignKey        string `yaml:"foreignKey"`
	ForeignKeyTarget  string `yaml:"foreignKeyTarget"`
	OriginKey         string `yaml:"originKey"`
	OriginKeyTarget   string `yaml:"originKeyTarget"`
}

type ModelSegment struct {
	Collection string `yaml:"collection"`
	Name       string `yaml:"name"`
	Field      string `yaml:"field"`
	Operator   string `yaml:"operator"`
	Value      any    `yaml:"value"`
}

type ModelField struct {
	Collection string `yaml:"collection"`
	Field      string `yaml:"field"`
}

type ModelValidation struct {
	Collection string `yaml:"collection"`
	Field      string `yaml:"field"`
	Operator   string `yaml:"operator"`
	Value      any    `yaml:"value"`
}

// LoadModel reads and parses the model file. A .env file next to the process
// is loaded first so the DSN can reference DATABASE_URL.
func LoadModel(path string) (*Model, error) {
	_ = godotenv.Load()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model file: %w", err)
	}
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing model file: %w", err)
	}
	return &m, nil
}

var columnTypes = map[string]uniquery.ColumnType{
	"boolean":  uniquery.Boolean,
	"date":     uniquery.Date,
	"dateonly": uniquery.Dateonly,
	"enum":     uniquery.Enum,
	"number":   uniquery.Number,
	"string":   uniquery.String,
	"uuid":     uniquery.Uuid,
	"json":     uniquery.Json,
}

func (m *Model) dialect() (sqldata.Dialect, error) {
	switch strings.ToLower(m.Driver) {
	case "", "sqlite":
		return sqldata.SQLiteDialect{}, nil
	case "postgres", "postgresql":
		return sqldata.PostgresDialect{}, nil
	default:
		return nil, fmt.Errorf("unknown driver %q", m.Driver)
	}
}

func (m *Model) dsn() (string, error) {
	if m.DSN != "" {
		return m.DSN, nil
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn, nil
	}
	return "", fmt.Errorf("no dsn in model file and DATABASE_URL not set")
}

func (m *Model) tables() ([]sqldata.Table, error) {
	tables := make([]sqldata.Table, 0, len(m.Tables))
	for _, t := range m.Tables {
		table := sqldata.Table{Name: t.Name}
		for _, c := range t.Columns {
			colType, ok := columnTypes[strings.ToLower(c.Type)]
			if !ok {
				return nil, fmt.Errorf("table %s: unknown column type %q", t.Name, c.Type)
			}
			table.Columns = append(table.Columns, sqldata.Column{
				Name:       c.Name,
				Type:       colType,
				PrimaryKey: c.Primary,
				EnumValues: c.Enum,
			})
		}
		tables = append(tables, table)
	}
	return tables, nil
}

// Build opens the database, assembles the decorator stack and applies every
// customization from the model. The returned close function releases the
// connection.
func (m *Model) Build(ctx context.Context, logger zerolog.Logger) (*decorator.Stack, func(), error) {
	dialect, err := m.dialect()
	if err != nil {
		return nil, nil, err
	}
	dsn, err := m.dsn()
	if err != nil {
		return nil, nil, err
	}
	tables, err := m.tables()
	if err != nil {
		return nil, nil, err
	}
	db, err := dialect.Connect(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() { _ = db.Close() }

	source, err := sqldata.NewDataSource(db, dialect, logger, tables...)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	stack := decorator.NewStack(source, decorator.WithLogger(logger))
	if err := m.customize(stack); err != nil {
		closeDB()
		return nil, nil, err
	}
	return stack, closeDB, nil
}

func (m *Model) customize(stack *decorator.Stack) error {
	for _, r := range m.Relations {
		definition, err := r.definition()
		if err != nil {
			return err
		}
		if err := stack.AddRelation(r.Collection, r.Name, definition); err != nil {
			return fmt.Errorf("relation %s.%s: %w", r.Collection, r.Name, err)
		}
	}
	for _, s := range m.Segments {
		op, err := parseOperator(s.Operator)
		if err != nil {
			return fmt.Errorf("segment %s.%s: %w", s.Collection, s.Name, err)
		}
		tree := query.NewLeaf(s.Field, op, s.Value)
		if err := stack.AddSegment(s.Collection, s.Name, decorator.StaticSegment(tree)); err != nil {
			return fmt.Errorf("segment %s.%s: %w", s.Collection, s.Name, err)
		}
	}
	for _, f := range m.SortEmulated {
		if err := stack.EmulateFieldSorting(f.Collection, f.Field); err != nil {
			return fmt.Errorf("sort emulation %s.%s: %w", f.Collection, f.Field, err)
		}
	}
	for _, v := range m.Validations {
		op, err := parseOperator(v.Operator)
		if err != nil {
			return fmt.Errorf("validation %s.%s: %w", v.Collection, v.Field, err)
		}
		rule := uniquery.ValidationRule{Operator: op, Value: v.Value}
		if err := stack.AddValidation(v.Collection, v.Field, rule); err != nil {
			return fmt.Errorf("validation %s.%s: %w", v.Collection, v.Field, err)
		}
	}
	for _, f := range m.HiddenFields {
		if err := stack.ChangeFieldVisibility(f.Collection, f.Field, false); err != nil {
			return fmt.Errorf("hidden field %s.%s: %w", f.Collection, f.Field, err)
		}
	}
	for _, name := range m.HiddenCollections {
		if err := stack.RemoveCollection(name); err != nil {
			return fmt.Errorf("hidden collection %s: %w", name, err)
		}
	}
	return nil
}

func (r ModelRelation) definition() (uniquery.FieldSchema, error) {
	switch strings.ToLower(r.Type) {
	case "manytoone":
		return &uniquery.ManyToOneSchema{
			ForeignCollection: r.ForeignCollection,
			ForeignKey:        r.ForeignKey,
			ForeignKeyTarget:  r.ForeignKeyTarget,
		}, nil
	case "onetoone":
		return &uniquery.OneToOneSchema{
			ForeignCollection: r.ForeignCollection,
			OriginKey:         r.OriginKey,
			OriginKeyTarget:   r.OriginKeyTarget,
		}, nil
	case "onetomany":
		return &uniquery.OneToManySchema{
			ForeignCollection: r.ForeignCollection,
			OriginKey:         r.OriginKey,
			OriginKeyTarget:   r.OriginKeyTarget,
		}, nil
	case "manytomany":
		return &uniquery.ManyToManySchema{
			ThroughCollection: r.ThroughCollection,
			ForeignCollection: r.ForeignCollection,
			ForeignKey:        r.ForeignKey,
			ForeignKeyTarget:  r.ForeignKeyTarget,
			OriginKey:         r.OriginKey,
			OriginKeyTarget:   r.OriginKeyTarget,
		}, nil
	default:
		return nil, fmt.Errorf("unknown relation type %q", r.Type)
	}
}

func parseOperator(name string) (query.Operator, error) {
	for _, op := range query.AllOperators {
		if strings.EqualFold(string(op), name) {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown operator %q", name)
}
