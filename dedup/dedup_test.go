package dedup

import (
	"testing"
	"time"
)

func TestDuplicateWithinWindowSuppressed(t *testing.T) {
	s := New(30 * time.Second)
	now := time.Unix(1_750_000_000, 0).UTC()

	direct := "KD8ABC-9>APZ001,WIDE1-1:=4042.77N/07400.36W>Test"
	digipeated := "KD8ABC-9>APZ001,WIDE1-1,W2XYZ*,WIDE2-1:=4042.77N/07400.36W>Test"

	if s.IsDuplicate(direct, now) {
		t.Fatal("first copy must pass")
	}
	if !s.IsDuplicate(digipeated, now.Add(5*time.Second)) {
		t.Fatal("digipeated copy within window must be suppressed")
	}
	if !s.IsDuplicate(direct, now.Add(10*time.Second)) {
		t.Fatal("repeat within window must be suppressed")
	}
	if s.IsDuplicate(direct, now.Add(time.Minute)) {
		t.Fatal("repeat after window must pass")
	}
}

func TestDifferentPacketsPass(t *testing.T) {
	s := New(30 * time.Second)
	now := time.Unix(1_750_000_000, 0).UTC()

	if s.IsDuplicate("KD8ABC>APRS:>status one", now) {
		t.Fatal("first line must pass")
	}
	if s.IsDuplicate("KD8ABC>APRS:>status two", now) {
		t.Fatal("different info field must pass")
	}
	if s.IsDuplicate("W1AW>APRS:>status one", now) {
		t.Fatal("different source must pass")
	}

	checked, duplicates, _ := s.Stats()
	if checked != 3 || duplicates != 0 {
		t.Fatalf("stats = %d checked / %d duplicates, want 3/0", checked, duplicates)
	}
}
