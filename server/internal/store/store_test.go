package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/quizfunnel/quizfunnel/pkg/types"
	"github.com/quizfunnel/quizfunnel/server/internal/scoring"
)

var base = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func event(name string, at time.Time, session string) types.Event {
	return types.Event{
		EventName:  name,
		Timestamp:  at,
		CustomData: types.CustomData{SessionID: session, PixelID: "1311550759901086"},
	}
}

func result(id string) scoring.QuizResult {
	return scoring.QuizResult{
		ID:              id,
		ParticipantName: "Ana",
		Responses: []types.QuizResponse{
			{QuestionID: "q1", SelectedOptionIDs: []string{"1a", "1b"}, Timestamp: base},
		},
		StyleScores: []scoring.StyleScore{
			{Style: types.StyleNatural, Points: 2, Percentage: 100, Rank: 1},
		},
		PredominantStyle:       scoring.StyleScore{Style: types.StyleNatural, Points: 2, Percentage: 100, Rank: 1},
		ComplementaryStyles:    []scoring.StyleScore{},
		TotalQuestionsExpected: 10,
		CalculatedAt:           base,
	}
}

// --- shared contract, run against every backend ---

func testStoreContract(t *testing.T, st Store) {
	ctx := context.Background()

	t.Run("events ordered and filtered", func(t *testing.T) {
		err := st.AppendEvents(ctx, []types.Event{
			event(types.EventLead, base.Add(2*time.Hour), "s2"),
			event(types.EventPageView, base, "s1"),
			event(types.EventQuizStart, base.Add(time.Hour), "s1"),
		})
		if err != nil {
			t.Fatalf("AppendEvents: %v", err)
		}
		all, err := st.ListEvents(ctx, time.Time{})
		if err != nil {
			t.Fatalf("ListEvents: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("ListEvents(zero): got %d, want 3", len(all))
		}
		if all[0].EventName != types.EventPageView || all[2].EventName != types.EventLead {
			t.Errorf("order: got %s..%s", all[0].EventName, all[2].EventName)
		}
		if all[0].CustomData.PixelID != "1311550759901086" || !all[0].Timestamp.Equal(base) {
			t.Errorf("round trip lost fields: %+v", all[0])
		}

		recent, err := st.ListEvents(ctx, base.Add(time.Hour))
		if err != nil {
			t.Fatalf("ListEvents(since): %v", err)
		}
		if len(recent) != 2 {
			t.Errorf("ListEvents(since): got %d, want 2 (since is inclusive)", len(recent))
		}
	})

	t.Run("append nothing", func(t *testing.T) {
		if err := st.AppendEvents(ctx, nil); err != nil {
			t.Errorf("AppendEvents(nil): %v", err)
		}
	})

	t.Run("results round trip", func(t *testing.T) {
		want := result("r-1")
		if err := st.SaveResult(ctx, want); err != nil {
			t.Fatalf("SaveResult: %v", err)
		}
		got, err := st.GetResult(ctx, "r-1")
		if err != nil {
			t.Fatalf("GetResult: %v", err)
		}
		if got.ParticipantName != "Ana" || got.PredominantStyle.Style != types.StyleNatural {
			t.Errorf("GetResult: got %+v", got)
		}
		if len(got.Responses) != 1 || got.Responses[0].SelectedOptionIDs[1] != "1b" {
			t.Errorf("responses: got %+v", got.Responses)
		}
		if !got.CalculatedAt.Equal(base) {
			t.Errorf("CalculatedAt: got %v", got.CalculatedAt)
		}
	})

	t.Run("result overwrite", func(t *testing.T) {
		r := result("r-2")
		if err := st.SaveResult(ctx, r); err != nil {
			t.Fatal(err)
		}
		r.ParticipantName = "Bia"
		if err := st.SaveResult(ctx, r); err != nil {
			t.Fatal(err)
		}
		got, err := st.GetResult(ctx, "r-2")
		if err != nil {
			t.Fatal(err)
		}
		if got.ParticipantName != "Bia" {
			t.Errorf("ParticipantName: got %q, want Bia", got.ParticipantName)
		}
	})

	t.Run("missing result", func(t *testing.T) {
		_, err := st.GetResult(ctx, "nope")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("GetResult(missing): got %v, want ErrNotFound", err)
		}
	})

	t.Run("result without id", func(t *testing.T) {
		if err := st.SaveResult(ctx, scoring.QuizResult{}); err == nil {
			t.Error("SaveResult without id: expected error")
		}
	})
}

func TestMemoryContract(t *testing.T) {
	testStoreContract(t, NewMemory(0))
}

func TestSQLiteContract(t *testing.T) {
	st, err := OpenSQLite(filepath.Join(t.TempDir(), "quiz.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer st.Close()
	testStoreContract(t, st)
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	if _, err := OpenSQLite("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestSQLite_DeleteEventsBefore(t *testing.T) {
	st, err := OpenSQLite(filepath.Join(t.TempDir(), "quiz.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer st.Close()
	ctx := context.Background()
	_ = st.AppendEvents(ctx, []types.Event{
		event(types.EventPageView, base.Add(-48*time.Hour), "old"),
		event(types.EventPageView, base, "new"),
	})
	n, err := st.DeleteEventsBefore(ctx, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("DeleteEventsBefore: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d, want 1", n)
	}
	left, _ := st.ListEvents(ctx, time.Time{})
	if len(left) != 1 || left[0].CustomData.SessionID != "new" {
		t.Errorf("remaining: %+v", left)
	}
}

func TestRebind(t *testing.T) {
	pg := &SQL{driver: DriverPostgres}
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Errorf("postgres rebind: got %q", got)
	}
	lite := &SQL{driver: DriverSQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite rebind: got %q", got)
	}
}

// --- memory retention ---

func TestMemory_Evict(t *testing.T) {
	st := NewMemory(24 * time.Hour)
	_ = st.AppendEvents(context.Background(), []types.Event{
		event(types.EventPageView, base.Add(-25*time.Hour), "a"),
		event(types.EventPageView, base.Add(-23*time.Hour), "b"),
		event(types.EventPageView, base, "c"),
	})

	if n := st.Evict(base); n != 1 {
		t.Errorf("Evict: removed %d, want 1", n)
	}
	if st.Count() != 2 {
		t.Errorf("Count after Evict: got %d, want 2", st.Count())
	}
	if n := st.Evict(base); n != 0 {
		t.Errorf("second Evict: removed %d, want 0", n)
	}
}

func TestMemory_ZeroRetentionKeepsEverything(t *testing.T) {
	st := NewMemory(0)
	_ = st.AppendEvents(context.Background(), []types.Event{event(types.EventPageView, base.Add(-1000*time.Hour), "a")})
	if n := st.Evict(base); n != 0 {
		t.Errorf("Evict with zero retention removed %d", n)
	}
}

func TestMemory_ListReturnsCopy(t *testing.T) {
	st := NewMemory(0)
	_ = st.AppendEvents(context.Background(), []types.Event{event(types.EventPageView, base, "a")})
	got, _ := st.ListEvents(context.Background(), time.Time{})
	got[0].EventName = "mutated"
	again, _ := st.ListEvents(context.Background(), time.Time{})
	if again[0].EventName != types.EventPageView {
		t.Error("ListEvents exposed internal storage")
	}
}

func TestMemory_RunStopsOnCancel(t *testing.T) {
	st := NewMemory(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		st.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	st := NewMemory(time.Hour)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = st.AppendEvents(ctx, []types.Event{event(types.EventPageView, base.Add(time.Duration(i)*time.Second), "s")})
			_, _ = st.ListEvents(ctx, base)
			st.Evict(base)
		}(i)
	}
	wg.Wait()
	if st.Count() != 20 {
		t.Errorf("Count: got %d, want 20", st.Count())
	}
}
