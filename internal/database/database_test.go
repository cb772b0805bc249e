package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"jordanella.com/agent-scan/internal/events"
	"jordanella.com/agent-scan/internal/export"
	"jordanella.com/agent-scan/internal/logging"
	"jordanella.com/agent-scan/internal/roles"
	"jordanella.com/agent-scan/internal/scan"
	"jordanella.com/agent-scan/pkg/templates"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := OpenAndMigrate(dbPath, logging.Discard("Database"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func offset(seconds float64) *time.Duration {
	d := time.Duration(seconds * float64(time.Second))
	return &d
}

func testSession(id string, start time.Time, agents ...string) scan.Session {
	s := scan.Session{
		ID:        id,
		StartedAt: start,
		EndedAt:   start.Add(40 * time.Second),
		Completed: true,
	}
	for i, a := range agents {
		s.Results = append(s.Results, scan.SlotResult{
			Index:     i + 1,
			Label:     templates.Label(a),
			Score:     0.95,
			Selected:  offset(float64(i)),
			Confirmed: offset(float64(i) + 10),
			Locked:    true,
		})
	}
	return s
}

func TestDatabaseInitialization(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetLogger(logging.Discard("Database"))

	if err := db.RunMigrations(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	version, err := db.GetVersion()
	if err != nil {
		t.Fatalf("Failed to get version: %v", err)
	}
	if version != LatestVersion() {
		t.Errorf("Expected version %d, got %d", LatestVersion(), version)
	}

	// Running again is a no-op
	if err := db.RunMigrations(); err != nil {
		t.Fatalf("Second migration run failed: %v", err)
	}

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)

	if err := db.MigrateDown(2); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	version, err := db.GetVersion()
	if err != nil {
		t.Fatalf("Failed to get version: %v", err)
	}
	if version != 2 {
		t.Errorf("Expected version 2 after rollback, got %d", version)
	}

	stats, _ := db.GetStats()
	if _, ok := stats["slot_picks"]; ok {
		t.Errorf("slot_picks should be dropped")
	}

	if err := db.RunMigrations(); err != nil {
		t.Fatalf("Re-applying migrations failed: %v", err)
	}
}

func TestSaveAndGetSession(t *testing.T) {
	db := openTestDB(t)
	start := time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC)

	session := testSession("s-1", start, "sova", "jett", "Unknown")
	session.Results[2].Selected = nil
	session.Results[2].Confirmed = nil
	session.Results[2].Locked = false

	rec := NewRecorder(db, roles.Default())
	if err := rec.RecordSession(context.Background(), session); err != nil {
		t.Fatalf("RecordSession failed: %v", err)
	}

	got, err := db.GetSession("s-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if !got.StartedAt.Equal(start) || got.Duration() != 40*time.Second || !got.Completed {
		t.Errorf("Unexpected session %+v", got)
	}
	if len(got.Picks) != 3 {
		t.Fatalf("Expected 3 picks, got %d", len(got.Picks))
	}

	sova := got.Picks[0]
	if sova.Agent != "sova" || sova.Role != "initiator" || !sova.Locked {
		t.Errorf("Unexpected pick %+v", sova)
	}
	if sova.Confirmed == nil || *sova.Confirmed != 10*time.Second {
		t.Errorf("Expected confirmation offset 10s, got %v", sova.Confirmed)
	}

	unknown := got.Picks[2]
	if unknown.Role != "Unknown" || unknown.Selected != nil || unknown.Confirmed != nil {
		t.Errorf("Unknown slot should have no offsets, got %+v", unknown)
	}
}

func TestSaveSessionReplacesPicks(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	start := time.Now().Add(-time.Hour)

	// An incomplete session recorded on reset, then recorded again
	first := FromSession(testSession("s-2", start, "omen"), roles.Default())
	first.Completed = false
	if err := db.SaveSession(ctx, first); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	second := FromSession(testSession("s-2", start, "omen", "viper"), roles.Default())
	if err := db.SaveSession(ctx, second); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	got, err := db.GetSession("s-2")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if !got.Completed || len(got.Picks) != 2 {
		t.Errorf("Expected the second save to win, got completed=%v picks=%d", got.Completed, len(got.Picks))
	}
}

func TestSaveSessionAssignsID(t *testing.T) {
	db := openTestDB(t)

	rec := &SessionRecord{StartedAt: time.Now(), EndedAt: time.Now()}
	if err := db.SaveSession(context.Background(), rec); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	if rec.ID == "" {
		t.Fatalf("Expected a generated ID")
	}
	if _, err := db.GetSession(rec.ID); err != nil {
		t.Errorf("Generated session not found: %v", err)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.GetSession("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	rec := NewRecorder(db, nil)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if err := rec.RecordSession(ctx, testSession(id, base.Add(time.Duration(i)*time.Hour), "sage")); err != nil {
			t.Fatalf("RecordSession failed: %v", err)
		}
	}

	sessions, err := db.ListSessions(2)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != "c" || sessions[1].ID != "b" {
		t.Fatalf("Unexpected order %v", sessionIDs(sessions))
	}
	if len(sessions[0].Picks) != 1 {
		t.Errorf("Listed sessions should carry their picks")
	}

	deleted, err := db.DeleteSessionsBefore(base.Add(90 * time.Minute))
	if err != nil {
		t.Fatalf("DeleteSessionsBefore failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 deleted sessions, got %d", deleted)
	}

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats["sessions"] != 1 || stats["slot_picks"] != 1 {
		t.Errorf("Picks should cascade with their sessions, got %v", stats)
	}
}

func TestTimesCompareAcrossZones(t *testing.T) {
	db := openTestDB(t)
	rec := NewRecorder(db, nil)
	east := time.FixedZone("UTC+9", 9*60*60)
	west := time.FixedZone("UTC-5", -5*60*60)

	// 10:00 UTC written as 19:00+09:00; a 12:00 UTC cutoff written as 07:00-05:00
	start := time.Date(2024, 6, 1, 19, 0, 0, 0, east)
	if err := rec.RecordSession(context.Background(), testSession("tokyo", start, "sage")); err != nil {
		t.Fatalf("RecordSession failed: %v", err)
	}
	if _, err := db.LogScanError(ScanError{Category: "capture", Source: "engine", Message: "x", OccurredAt: start}); err != nil {
		t.Fatalf("LogScanError failed: %v", err)
	}

	cutoff := time.Date(2024, 6, 1, 7, 0, 0, 0, west)
	stats, err := db.GetScanErrorStats(cutoff.Add(-3*time.Hour), cutoff)
	if err != nil {
		t.Fatalf("GetScanErrorStats failed: %v", err)
	}
	if stats["capture"] != 1 {
		t.Errorf("Error inside the window was not counted: %v", stats)
	}

	deleted, err := db.DeleteSessionsBefore(cutoff)
	if err != nil {
		t.Fatalf("DeleteSessionsBefore failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Session two hours before the cutoff should be deleted, got %d", deleted)
	}
	if n, err := db.DeleteOldScanErrors(cutoff); err != nil || n != 1 {
		t.Errorf("Expected 1 deleted scan error, got %d (%v)", n, err)
	}
}

func sessionIDs(sessions []*SessionRecord) []string {
	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
	}
	return ids
}

func TestAnalytics(t *testing.T) {
	db := openTestDB(t)
	rec := NewRecorder(db, roles.Default())
	ctx := context.Background()
	start := time.Now()

	sessions := []scan.Session{
		testSession("1", start, "jett", "sage", "omen", "sova", "jett"),
		testSession("2", start.Add(time.Hour), "jett", "killjoy", "viper", "fade", "raze"),
	}
	sessions[1].Completed = false
	for _, s := range sessions {
		if err := rec.RecordSession(ctx, s); err != nil {
			t.Fatalf("RecordSession failed: %v", err)
		}
	}

	agents, err := db.AgentFrequency(2)
	if err != nil {
		t.Fatalf("AgentFrequency failed: %v", err)
	}
	if len(agents) != 2 || agents[0] != (export.Count{Name: "jett", Count: 3}) {
		t.Errorf("Unexpected agent frequency %v", agents)
	}

	all, err := db.AgentFrequency(0)
	if err != nil {
		t.Fatalf("AgentFrequency failed: %v", err)
	}
	if len(all) != 8 {
		t.Errorf("Expected 8 distinct agents, got %d", len(all))
	}

	dist, err := db.RoleDistribution()
	if err != nil {
		t.Fatalf("RoleDistribution failed: %v", err)
	}
	if dist[0] != (export.Count{Name: "duelist", Count: 4}) {
		t.Errorf("Expected duelist first with 4 picks, got %v", dist)
	}

	totals, err := db.Totals()
	if err != nil {
		t.Fatalf("Totals failed: %v", err)
	}
	if totals != (SessionTotals{Sessions: 2, Completed: 1, Picks: 10}) {
		t.Errorf("Unexpected totals %+v", totals)
	}
}

func TestScanErrors(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()

	ev := events.NewScanErrorEvent("engine", errors.New("no display"), map[string]interface{}{"category": "capture"})
	if _, err := db.LogScanError(ScanErrorFromEvent(ev)); err != nil {
		t.Fatalf("LogScanError failed: %v", err)
	}
	if _, err := db.LogScanError(ScanError{Category: "region", Source: "engine", Message: "out of bounds"}); err != nil {
		t.Fatalf("LogScanError failed: %v", err)
	}

	recent, err := db.GetRecentScanErrors(10)
	if err != nil {
		t.Fatalf("GetRecentScanErrors failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Expected 2 errors, got %d", len(recent))
	}
	if recent[1].Category != "capture" || recent[1].Message != "no display" {
		t.Errorf("Event fields not preserved: %+v", recent[1])
	}

	stats, err := db.GetScanErrorStats(now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("GetScanErrorStats failed: %v", err)
	}
	if stats["capture"] != 1 || stats["region"] != 1 {
		t.Errorf("Unexpected stats %v", stats)
	}

	deleted, err := db.DeleteOldScanErrors(now.Add(time.Minute))
	if err != nil || deleted != 2 {
		t.Errorf("Expected 2 deleted errors, got %d (%v)", deleted, err)
	}
}

func TestBackup(t *testing.T) {
	db := openTestDB(t)
	if err := NewRecorder(db, nil).RecordSession(context.Background(), testSession("b", time.Now(), "neon")); err != nil {
		t.Fatalf("RecordSession failed: %v", err)
	}

	backupPath := filepath.Join(t.TempDir(), "backup", "copy.db")
	if err := db.Backup(backupPath); err != nil {
		t.Fatalf("Backup failed: %v", err)
	}

	copyDB, err := OpenAndMigrate(backupPath, logging.Discard("Database"))
	if err != nil {
		t.Fatalf("Failed to open backup: %v", err)
	}
	defer copyDB.Close()

	if _, err := copyDB.GetSession("b"); err != nil {
		t.Errorf("Backup should contain the session: %v", err)
	}
}
