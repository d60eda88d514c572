package services

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestReportService_DailyHours(t *testing.T) {
	db := newSvcDB(t)
	events := newEventSvc(t, db)
	ctx := context.Background()

	for _, in := range []EventInput{
		{Title: "Night pour", Start: "2025-11-01T22:00", End: "2025-11-02T03:00"}, // DST ends 02:00 on 11-02
		{Title: "Crane", Start: "2025-11-02T08:00", End: "2025-11-02T10:30"},
		{Title: "Outside range", Start: "2025-11-10T08:00", End: "2025-11-10T09:00"},
	} {
		if _, err := events.Create(ctx, "u1", in); err != nil {
			t.Fatalf("create %q: %v", in.Title, err)
		}
	}
	if _, err := events.Create(ctx, "u2", EventInput{Title: "Other user", Start: "2025-11-02T08:00", End: "2025-11-02T18:00"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	svc := &ReportService{DB: db, Clock: events.Clock}
	got, err := svc.DailyHours(ctx, "u1", "2025-11-01", "2025-11-03")
	if err != nil {
		t.Fatalf("daily hours: %v", err)
	}

	want := map[string]float64{
		"2025-11-01": 2,
		"2025-11-02": 4 + 2.5, // 00:00-03:00 local spans 4 real hours
		"2025-11-03": 0,
	}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i, row := range got {
		w, ok := want[row.Day]
		if !ok || math.Abs(row.Hours-w) > 1e-9 {
			t.Fatalf("row %d %+v, want %v", i, row, w)
		}
		if i > 0 && got[i-1].Day >= row.Day {
			t.Fatalf("rows not ordered: %+v", got)
		}
	}
}

func TestReportService_ClipsToRange(t *testing.T) {
	db := newSvcDB(t)
	events := newEventSvc(t, db)
	ctx := context.Background()
	if _, err := events.Create(ctx, "u1", EventInput{Title: "Week", Start: "2025-11-03", End: "2025-11-09", AllDay: true}); err != nil {
		t.Fatalf("create: %v", err)
	}

	svc := &ReportService{DB: db, Clock: events.Clock}
	got, err := svc.DailyHours(ctx, "u1", "2025-11-05", "2025-11-05")
	if err != nil {
		t.Fatalf("daily hours: %v", err)
	}
	if len(got) != 1 || got[0].Day != "2025-11-05" || math.Abs(got[0].Hours-24) > 1e-9 {
		t.Fatalf("got %+v", got)
	}
}

func TestReportService_InvalidRange(t *testing.T) {
	svc := &ReportService{DB: newSvcDB(t), Clock: nyClock(t)}
	ctx := context.Background()

	for _, r := range [][2]string{
		{"2025-11-05", "2025-11-04"},
		{"11/05/2025", "2025-11-06"},
		{"2024-01-01", "2025-12-31"},
	} {
		if _, err := svc.DailyHours(ctx, "u1", r[0], r[1]); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%v: expected ErrInvalidInput, got %v", r, err)
		}
	}
}
