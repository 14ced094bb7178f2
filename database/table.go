package database

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"gorm.io/gorm/clause"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/pipeline"
	"github.com/kbukum/flowkit/provider"
	"github.com/kbukum/flowkit/stream"
	"github.com/kbukum/flowkit/validation"
)

// TableProviderID is the registry id of the SQL table provider.
const TableProviderID = "sql-table"

// MetaTable is the metadata key naming the table an item was read from.
const MetaTable = "sql_table"

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

type tableParams struct {
	// DSN locates the database. A "dsn" credential takes precedence.
	DSN   string `json:"dsn"`
	Table string `json:"table" validate:"required"`
	// CursorColumn orders the rows and becomes the item cursor. It must be
	// unique and increasing for resumption to be exact.
	CursorColumn string `json:"cursor_column"`
	// PageSize is the number of rows fetched per query.
	PageSize int `json:"page_size" validate:"gte=0"`
	// Limit caps the rows read by one Read call. Zero reads everything.
	Limit int `json:"limit" validate:"gte=0"`
}

// TableFactory is the provider.Factory for "sql-table". As a source it pages
// through a table ordered by cursor_column, and each row becomes a map
// payload whose cursor is the JSON encoding of its cursor column value. As a
// sink it inserts map payloads as rows.
func TableFactory(ctx context.Context, creds provider.Credentials, params map[string]any) (provider.Provider, error) {
	var p tableParams
	if err := validation.Decode(params, &p); err != nil {
		return nil, err
	}
	if p.CursorColumn == "" {
		p.CursorColumn = "id"
	}
	if p.PageSize == 0 {
		p.PageSize = 500
	}
	if !identifier.MatchString(p.Table) || !identifier.MatchString(p.CursorColumn) {
		return nil, errors.InvalidParams(fmt.Sprintf("invalid table or column name %q / %q", p.Table, p.CursorColumn))
	}
	if dsn := creds.Get("dsn"); dsn != "" {
		p.DSN = dsn
	}
	if p.DSN == "" {
		return nil, errors.InvalidParams("sql-table needs a dsn param or credential")
	}
	db, err := New(ctx, Config{Enabled: true, DSN: p.DSN, ConnectAttempts: 1}, logger.NewNop())
	if err != nil {
		return nil, errors.ConnectionFailed("database", err)
	}
	return &tableProvider{db: db, params: p}, nil
}

// RegisterProviders adds the SQL providers to reg.
func RegisterProviders(reg *provider.Registry) {
	reg.Register(TableProviderID, TableFactory)
}

type tableProvider struct {
	db     *DB
	params tableParams
}

func (p *tableProvider) Name() string { return TableProviderID }

func (p *tableProvider) Capabilities() provider.Capabilities {
	return provider.Capabilities{ConcurrencySafe: true}
}

func (p *tableProvider) Init(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return FromDatabase(err, "table")
	}
	return nil
}

func (p *tableProvider) Close(context.Context) error { return p.db.Close() }

func (p *tableProvider) Read(_ context.Context, resume stream.Cursor) (pipeline.Iterator[stream.Item], error) {
	if !resume.IsZero() {
		if _, err := decodeCursor(resume); err != nil {
			return nil, err
		}
	}
	read := 0
	fetch := func(ctx context.Context, token string) ([]stream.Item, string, error) {
		size := p.params.PageSize
		if p.params.Limit > 0 {
			size = min(size, p.params.Limit-read)
			if size <= 0 {
				return nil, "", nil
			}
		}
		col := clause.Column{Name: p.params.CursorColumn}
		q := p.db.WithContext(ctx).Table(p.params.Table).
			Order(clause.OrderByColumn{Column: col}).
			Limit(size)
		if token != "" {
			after, err := decodeCursor(stream.Cursor(token))
			if err != nil {
				return nil, "", err
			}
			q = q.Where(clause.Gt{Column: col, Value: after})
		}
		var rows []map[string]any
		if err := q.Find(&rows).Error; err != nil {
			return nil, "", FromDatabase(err, "table "+p.params.Table)
		}

		items := make([]stream.Item, 0, len(rows))
		for _, row := range rows {
			c, err := encodeCursor(row[p.params.CursorColumn])
			if err != nil {
				return nil, "", errors.MalformedItem("row with column "+p.params.CursorColumn, nil).WithCause(err)
			}
			items = append(items, stream.Item{
				Payload:  row,
				Metadata: map[string]any{MetaTable: p.params.Table},
				Cursor:   c,
			})
		}
		read += len(items)
		if len(items) < size {
			return items, "", nil
		}
		return items, string(items[len(items)-1].Cursor), nil
	}
	return pipeline.Paged(fetch, string(resume)), nil
}

func (p *tableProvider) Write(ctx context.Context, items []stream.Item) error {
	rows := make([]map[string]any, len(items))
	for i, item := range items {
		row, ok := item.Payload.(map[string]any)
		if !ok || len(row) == 0 {
			return errors.MalformedItem("non-empty map payload", item.Payload).WithDetail("index", i)
		}
		rows[i] = row
	}
	if err := p.db.WithContext(ctx).Table(p.params.Table).Create(rows).Error; err != nil {
		return FromDatabase(err, "table "+p.params.Table)
	}
	return nil
}

func encodeCursor(v any) (stream.Cursor, error) {
	if v == nil {
		return "", fmt.Errorf("cursor column is null")
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return stream.Cursor(data), nil
}

func decodeCursor(c stream.Cursor) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(c)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errors.InvalidParams("sql-table cursor is not a JSON value").WithDetail("cursor", string(c))
	}
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, _ := n.Float64()
		return f, nil
	}
	return v, nil
}
