package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema creates the generic records table the Postgres store runs on.
const Schema = `
create table if not exists records (
  id bigserial primary key,
  model text not null,
  data jsonb not null default '{}'::jsonb
);
create index if not exists records_model_idx on records (model);
create index if not exists records_data_idx on records using gin (data);`

type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Postgres keeps every model in one jsonb table keyed by (model, id).
type Postgres struct {
	db DB
}

func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	return err
}

func (s *Postgres) Read(ctx context.Context, model string, ids []int64, fields []string) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const q = `select id, data from records where model = $1 and id = any($2)`
	rows, err := s.db.Query(ctx, q, model, ids)
	if err != nil {
		return nil, remote("read", model, err)
	}
	byID, err := scanRecords(rows)
	if err != nil {
		return nil, remote("read", model, err)
	}

	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		rec, ok := byID.records[id]
		if !ok {
			continue
		}
		out = append(out, rec.Only(fields))
	}
	return out, nil
}

func (s *Postgres) Write(ctx context.Context, model string, ids []int64, patch Record) error {
	if len(ids) == 0 {
		return nil
	}
	body, err := json.Marshal(patch)
	if err != nil {
		return remote("write", model, err)
	}
	const q = `
update records
set data = data || $3::jsonb
where model = $1 and id = any($2)`
	tag, err := s.db.Exec(ctx, q, model, ids, string(body))
	if err != nil {
		return remote("write", model, err)
	}
	if tag.RowsAffected() == 0 {
		return remote("write", model, ErrNotFound)
	}
	return nil
}

func (s *Postgres) Create(ctx context.Context, model string, payload Record) (int64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, remote("create", model, err)
	}
	const q = `insert into records (model, data) values ($1, $2::jsonb) returning id`
	var id int64
	if err := s.db.QueryRow(ctx, q, model, string(body)).Scan(&id); err != nil {
		return 0, remote("create", model, err)
	}
	return id, nil
}

func (s *Postgres) Delete(ctx context.Context, model string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	const q = `delete from records where model = $1 and id = any($2)`
	if _, err := s.db.Exec(ctx, q, model, ids); err != nil {
		return remote("delete", model, err)
	}
	return nil
}

func (s *Postgres) Search(ctx context.Context, model string, domain Domain) ([]int64, error) {
	where, args, err := buildWhere(model, domain)
	if err != nil {
		return nil, remote("search", model, err)
	}
	rows, err := s.db.Query(ctx, "select id from records where "+where+" order by id", args...)
	if err != nil {
		return nil, remote("search", model, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, remote("search", model, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, remote("search", model, err)
	}
	return ids, nil
}

func (s *Postgres) SearchRead(ctx context.Context, model string, domain Domain, fields []string) ([]Record, error) {
	where, args, err := buildWhere(model, domain)
	if err != nil {
		return nil, remote("search_read", model, err)
	}
	rows, err := s.db.Query(ctx, "select id, data from records where "+where+" order by id", args...)
	if err != nil {
		return nil, remote("search_read", model, err)
	}
	found, err := scanRecords(rows)
	if err != nil {
		return nil, remote("search_read", model, err)
	}
	out := make([]Record, 0, len(found.order))
	for _, id := range found.order {
		out = append(out, found.records[id].Only(fields))
	}
	return out, nil
}

func (s *Postgres) SearchCount(ctx context.Context, model string, domain Domain) (int, error) {
	where, args, err := buildWhere(model, domain)
	if err != nil {
		return 0, remote("search_count", model, err)
	}
	var n int
	if err := s.db.QueryRow(ctx, "select count(*) from records where "+where, args...).Scan(&n); err != nil {
		return 0, remote("search_count", model, err)
	}
	return n, nil
}

type scanned struct {
	order   []int64
	records map[int64]Record
}

func scanRecords(rows pgx.Rows) (scanned, error) {
	defer rows.Close()
	out := scanned{records: make(map[int64]Record)}
	for rows.Next() {
		var id int64
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return scanned{}, err
		}
		rec := Record{}
		if len(raw) > 0 {
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.UseNumber()
			if err := dec.Decode(&rec); err != nil {
				return scanned{}, fmt.Errorf("decode record %d: %w", id, err)
			}
		}
		rec["id"] = id
		out.order = append(out.order, id)
		out.records[id] = rec
	}
	return out, rows.Err()
}

// buildWhere renders a domain as SQL. Field names travel as parameters so
// callers never splice identifiers into the statement.
func buildWhere(model string, domain Domain) (string, []any, error) {
	clauses := []string{"model = $1"}
	args := []any{model}
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	for _, c := range domain {
		if err := c.validate(); err != nil {
			return "", nil, err
		}
		if c.Field == "id" {
			switch c.Op {
			case OpIn:
				clauses = append(clauses, "id::text = any("+next(listText(c.Value))+"::text[])")
			case OpNotEq:
				clauses = append(clauses, "id::text <> "+next(scalarText(c.Value)))
			default:
				clauses = append(clauses, "id::text = "+next(scalarText(c.Value)))
			}
			continue
		}

		field := next(c.Field) + "::text"
		switch c.Op {
		case OpIn:
			values := next(listText(c.Value)) + "::text[]"
			clauses = append(clauses, fmt.Sprintf("(data->>%s = any(%s) or data->%s->>0 = any(%s))", field, values, field, values))
		case OpNotEq:
			value := next(scalarText(c.Value))
			clauses = append(clauses, fmt.Sprintf("coalesce(data->%s->>0, data->>%s, '') <> %s", field, field, value))
		default:
			value := next(scalarText(c.Value))
			clauses = append(clauses, fmt.Sprintf("(data->>%s = %s or data->%s->>0 = %s)", field, value, field, value))
		}
	}
	return strings.Join(clauses, " and "), args, nil
}
