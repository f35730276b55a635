package database

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNew(t *testing.T) {
	t.Run("creates database and runs migrations", func(t *testing.T) {
		// Create temporary database file
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		db, err := New(dbPath)
		if err != nil {
			t.Fatalf("expected no error creating database, got %v", err)
		}
		defer db.Close()

		// Verify the database file was created
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("expected database file to be created")
		}

		// Verify tables exist by querying them
		tables := []string{"scripts", "script_inputs", "script_runs"}
		for _, table := range tables {
			query := "SELECT COUNT(*) FROM " + table
			var count int
			err := db.conn.QueryRow(query).Scan(&count)
			if err != nil {
				t.Errorf("expected table %s to exist, got error: %v", table, err)
			}
		}
	})

	t.Run("reopens an existing database", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		first, err := New(dbPath)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := first.SaveScript("kept", "a = 1"); err != nil {
			t.Fatalf("expected no error saving script, got %v", err)
		}
		first.Close()

		second, err := New(dbPath)
		if err != nil {
			t.Fatalf("expected no error reopening, got %v", err)
		}
		defer second.Close()

		if _, err := second.GetScript("kept"); err != nil {
			t.Errorf("expected script to survive reopen, got %v", err)
		}
	})

	t.Run("fails with invalid path", func(t *testing.T) {
		// Try to create database in non-existent directory
		invalidPath := "/nonexistent/directory/test.db"

		_, err := New(invalidPath)
		if err == nil {
			t.Error("expected error for invalid path, got nil")
		}
	})
}

func TestScripts(t *testing.T) {
	db := newTestDB(t)

	t.Run("saves and gets script", func(t *testing.T) {
		if err := db.SaveScript("rsi", "r = rsi(close, 14)"); err != nil {
			t.Fatalf("expected no error saving script, got %v", err)
		}

		s, err := db.GetScript("rsi")
		if err != nil {
			t.Fatalf("expected no error getting script, got %v", err)
		}
		if s.Source != "r = rsi(close, 14)" {
			t.Errorf("expected source to round trip, got %q", s.Source)
		}
		if s.CreatedAt.IsZero() || s.UpdatedAt.IsZero() {
			t.Error("expected timestamps to be set")
		}
	})

	t.Run("updates existing script", func(t *testing.T) {
		if err := db.SaveScript("rsi", "r = rsi(close, 7)"); err != nil {
			t.Fatalf("expected no error updating script, got %v", err)
		}

		s, err := db.GetScript("rsi")
		if err != nil {
			t.Fatalf("expected no error getting script, got %v", err)
		}
		if s.Source != "r = rsi(close, 7)" {
			t.Errorf("expected updated source, got %q", s.Source)
		}
	})

	t.Run("returns not found", func(t *testing.T) {
		_, err := db.GetScript("missing")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("lists scripts by name", func(t *testing.T) {
		if err := db.SaveScript("bands", "b = sma(close, 20)"); err != nil {
			t.Fatalf("expected no error saving script, got %v", err)
		}

		scripts, err := db.ListScripts()
		if err != nil {
			t.Fatalf("expected no error listing scripts, got %v", err)
		}
		if len(scripts) != 2 {
			t.Fatalf("expected 2 scripts, got %d", len(scripts))
		}
		if scripts[0].Name != "bands" || scripts[1].Name != "rsi" {
			t.Errorf("expected [bands rsi], got [%s %s]", scripts[0].Name, scripts[1].Name)
		}
	})

	t.Run("deletes script with inputs and runs", func(t *testing.T) {
		if err := db.SetInputValue("bands", "Length", 10); err != nil {
			t.Fatalf("expected no error setting input, got %v", err)
		}
		if err := db.RecordRun(&Run{Script: "bands", BarCount: 10}); err != nil {
			t.Fatalf("expected no error recording run, got %v", err)
		}

		if err := db.DeleteScript("bands"); err != nil {
			t.Fatalf("expected no error deleting script, got %v", err)
		}
		if _, err := db.GetScript("bands"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected script to be gone, got %v", err)
		}

		values, err := db.InputValues("bands")
		if err != nil {
			t.Fatalf("expected no error reading inputs, got %v", err)
		}
		if len(values) != 0 {
			t.Errorf("expected inputs to be deleted, got %v", values)
		}
		runs, err := db.RecentRuns("bands", 10)
		if err != nil {
			t.Fatalf("expected no error reading runs, got %v", err)
		}
		if len(runs) != 0 {
			t.Errorf("expected runs to be deleted, got %d", len(runs))
		}
	})

	t.Run("delete missing script", func(t *testing.T) {
		if err := db.DeleteScript("missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestInputValues(t *testing.T) {
	db := newTestDB(t)

	if err := db.SetInputValue("rsi", "Length", 14); err != nil {
		t.Fatalf("expected no error setting input, got %v", err)
	}
	if err := db.SetInputValue("rsi", "Length", 21); err != nil {
		t.Fatalf("expected no error replacing input, got %v", err)
	}
	if err := db.SetInputValue("rsi", "Upper", 70); err != nil {
		t.Fatalf("expected no error setting input, got %v", err)
	}
	if err := db.SetInputValue("other", "Length", 5); err != nil {
		t.Fatalf("expected no error setting input, got %v", err)
	}

	values, err := db.InputValues("rsi")
	if err != nil {
		t.Fatalf("expected no error reading inputs, got %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("expected 2 inputs, got %d", len(values))
	}
	if values["Length"] != 21 {
		t.Errorf("expected Length 21, got %f", values["Length"])
	}
	if values["Upper"] != 70 {
		t.Errorf("expected Upper 70, got %f", values["Upper"])
	}
}

func TestRuns(t *testing.T) {
	db := newTestDB(t)

	for i := 1; i <= 3; i++ {
		run := &Run{Script: "rsi", BarCount: i * 100, PlotCount: 1, DurationMS: 1.5}
		if err := db.RecordRun(run); err != nil {
			t.Fatalf("expected no error recording run, got %v", err)
		}
		if run.ID == 0 {
			t.Error("expected run ID to be set after save")
		}
	}
	if err := db.RecordRun(&Run{Script: "rsi", Error: "unknown function \"foo\""}); err != nil {
		t.Fatalf("expected no error recording failed run, got %v", err)
	}

	runs, err := db.RecentRuns("rsi", 3)
	if err != nil {
		t.Fatalf("expected no error reading runs, got %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[0].Error == "" {
		t.Error("expected newest run to be the failed one")
	}
	if runs[1].BarCount != 300 || runs[2].BarCount != 200 {
		t.Errorf("expected newest first, got %d then %d", runs[1].BarCount, runs[2].BarCount)
	}
	if runs[1].DurationMS != 1.5 {
		t.Errorf("expected duration 1.5, got %f", runs[1].DurationMS)
	}
}

func TestVersion(t *testing.T) {
	db := newTestDB(t)

	if db.Version() != 1 {
		t.Errorf("expected schema version 1, got %d", db.Version())
	}
}
