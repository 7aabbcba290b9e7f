package recordstore

import (
	"context"
	"errors"
	"regexp"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v3"
)

func TestPostgresRead_PreservesRequestedOrderAndFiltersFields(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta("select id, data from records where model = $1 and id = any($2)")).
		WithArgs("dw.participant", []int64{3, 1}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "data"}).
			AddRow(int64(1), []byte(`{"name":"Bea","attendance_status":"late","user_id":[5,"bea"]}`)).
			AddRow(int64(3), []byte(`{"name":"Ada","attendance_status":"present"}`)))

	s := NewPostgres(mock)
	out, err := s.Read(context.Background(), "dw.participant", []int64{3, 1}, []string{"name", "attendance_status"})
	if err != nil {
		t.Fatalf("Read returned err: %v", err)
	}
	if len(out) != 2 || out[0].ID() != 3 || out[1].ID() != 1 {
		t.Fatalf("expected records 3,1 in order, got %+v", out)
	}
	if out[0].String("name") != "Ada" {
		t.Fatalf("expected Ada first, got %q", out[0].String("name"))
	}
	if _, ok := out[1]["user_id"]; ok {
		t.Fatalf("expected user_id to be filtered out")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresWrite_MergesPatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta("update records")).
		WithArgs("dw.meeting.session", []int64{41, 42}, `{"is_connected":false,"state":"done"}`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	s := NewPostgres(mock)
	err = s.Write(context.Background(), "dw.meeting.session", []int64{41, 42}, Record{"state": "done", "is_connected": false})
	if err != nil {
		t.Fatalf("Write returned err: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresWrite_MissingRecordIsNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta("update records")).
		WithArgs("dw.meeting", []int64{7}, `{"state":"done"}`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	s := NewPostgres(mock)
	err = s.Write(context.Background(), "dw.meeting", []int64{7}, Record{"state": "done"})
	var re *RemoteError
	if !errors.As(err, &re) || re.Op != "write" || re.Model != "dw.meeting" {
		t.Fatalf("expected RemoteError for write dw.meeting, got %v", err)
	}
	if !IsNotFound(err) {
		t.Fatalf("expected not found cause, got %v", err)
	}
}

func TestPostgresSearch_MatchesScalarAndRelationalValues(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock pool: %v", err)
	}
	defer mock.Close()

	q := "select id from records where model = $1 and (data->>$2::text = $3 or data->$2::text->>0 = $3) order by id"
	mock.ExpectQuery(regexp.QuoteMeta(q)).
		WithArgs("dw.meeting.session", "planification_id", "7").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(41)).AddRow(int64(42)))

	s := NewPostgres(mock)
	ids, err := s.Search(context.Background(), "dw.meeting.session", Domain{Eq("planification_id", int64(7))})
	if err != nil {
		t.Fatalf("Search returned err: %v", err)
	}
	if len(ids) != 2 || ids[0] != 41 || ids[1] != 42 {
		t.Fatalf("expected [41 42], got %v", ids)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresSearch_RejectsUnknownOperator(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock pool: %v", err)
	}
	defer mock.Close()

	s := NewPostgres(mock)
	_, err = s.Search(context.Background(), "dw.actions", Domain{{Field: "name", Op: "like", Value: "x"}})
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
}

func TestPostgresCreateAndCount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta("insert into records (model, data) values ($1, $2::jsonb) returning id")).
		WithArgs("dw.actions", `{"name":"New Action","session_id":42}`).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(9)))
	mock.ExpectQuery(regexp.QuoteMeta("select count(*) from records where model = $1")).
		WithArgs("dw.actions", "session_id", "42").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	s := NewPostgres(mock)
	id, err := s.Create(context.Background(), "dw.actions", Record{"name": "New Action", "session_id": int64(42)})
	if err != nil {
		t.Fatalf("Create returned err: %v", err)
	}
	if id != 9 {
		t.Fatalf("expected id 9, got %d", id)
	}
	n, err := s.SearchCount(context.Background(), "dw.actions", Domain{Eq("session_id", 42)})
	if err != nil {
		t.Fatalf("SearchCount returned err: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected count 1, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresDelete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta("delete from records where model = $1 and id = any($2)")).
		WithArgs("dw.actions", []int64{9}).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	s := NewPostgres(mock)
	if err := s.Delete(context.Background(), "dw.actions", []int64{9}); err != nil {
		t.Fatalf("Delete returned err: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
