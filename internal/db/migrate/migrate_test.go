package migrate_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"testing/fstest"

	"github.com/jmoiron/sqlx"

	"github.com/willemschots/accounts/assets"
	"github.com/willemschots/accounts/internal/db/migrate"
	"github.com/willemschots/accounts/internal/db/testdb"
)

func Test_RunFS(t *testing.T) {
	run1 := fstest.MapFS{
		"00001_create_test_table.sql": sqlFile(`CREATE TABLE test_table (id INTEGER PRIMARY KEY);`, `DROP TABLE test_table;`),
	}

	run2 := fstest.MapFS{
		"00001_create_test_table.sql": run1["00001_create_test_table.sql"],
		"00002_add_row.sql":           sqlFile(`INSERT INTO test_table (id) VALUES (1);`, `DELETE FROM test_table WHERE id = 1;`),
		"00003_add_another_row.sql":   sqlFile(`INSERT INTO test_table (id) VALUES (2);`, `DELETE FROM test_table WHERE id = 2;`),
	}

	t.Run("ok, progression of migrations", func(t *testing.T) {
		db := testdb.RunUnmigratedWhile(t)

		t.Run("run_1", func(t *testing.T) {
			got, err := migrate.RunFS(context.Background(), db.DB, run1, discardLogger())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			assertVersions(t, got, 1)
			assertNrOfRowsInTestTable(t, db, 0)
		})

		t.Run("run_2", func(t *testing.T) {
			got, err := migrate.RunFS(context.Background(), db.DB, run2, discardLogger())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			assertVersions(t, got, 2, 3)
			assertNrOfRowsInTestTable(t, db, 2)
		})

		t.Run("run_3, nothing to do", func(t *testing.T) {
			got, err := migrate.RunFS(context.Background(), db.DB, run2, discardLogger())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			assertVersions(t, got)

			v, err := migrate.Version(context.Background(), db.DB, run2)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if v != 3 {
				t.Errorf("got version %d, want 3", v)
			}
		})
	})

	t.Run("ok, migrations are logged", func(t *testing.T) {
		db := testdb.RunUnmigratedWhile(t)

		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))

		_, err := migrate.RunFS(context.Background(), db.DB, run1, logger)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !bytes.Contains(buf.Bytes(), []byte("00001_create_test_table.sql")) {
			t.Errorf("expected migration filename in log, got:\n%s", buf.String())
		}
	})

	t.Run("fail, error in migration", func(t *testing.T) {
		db := testdb.RunUnmigratedWhile(t)

		files := fstest.MapFS{
			"00001_create_test_table.sql": run1["00001_create_test_table.sql"],
			"00002_insert_with_typo.sql":  sqlFile(`INSERT INTO test_tabel (id) VALUES (1);`, ``),
		}

		got, err := migrate.RunFS(context.Background(), db.DB, files, discardLogger())
		if err == nil {
			t.Fatalf("expected an error, got nil")
		}

		assertVersions(t, got, 1)

		v, err := migrate.Version(context.Background(), db.DB, files)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if v != 1 {
			t.Errorf("got version %d, want 1", v)
		}
	})

	t.Run("ok, embedded migrations", func(t *testing.T) {
		db := testdb.RunUnmigratedWhile(t)

		_, err := migrate.RunFS(context.Background(), db.DB, assets.MigrationFS, discardLogger())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var n int
		err = db.Get(&n, `SELECT COUNT(*) FROM accounts`)
		if err != nil {
			t.Fatalf("failed to query accounts table: %v", err)
		}
	})
}

func assertVersions(t *testing.T, got []migrate.Migration, want ...int64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("got\n%+v\nwant versions\n%+v\n", got, want)
	}

	for i := range got {
		if got[i].Version != want[i] {
			t.Errorf("got\n%+v\nwant versions\n%+v\n", got, want)
		}
	}
}

// assertNrOfRowsInTestTable checks the number of rows in the test_table.
// Some migrations add rows to it, enabling us to test if migrations were executed.
func assertNrOfRowsInTestTable(t *testing.T, db *sqlx.DB, want int) {
	t.Helper()

	var got int
	err := db.Get(&got, "SELECT COUNT(*) FROM test_table")
	if err != nil {
		t.Fatalf("failed to count test_table: %v", err)
	}

	if got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func sqlFile(up, down string) *fstest.MapFile {
	return &fstest.MapFile{
		Data: []byte("-- +goose Up\n" + up + "\n\n-- +goose Down\n" + down + "\n"),
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
