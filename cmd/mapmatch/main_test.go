package main

import (
	"testing"
	"time"
)

func TestParseObservation(t *testing.T) {
	obs, err := parseObservation([]string{"bus-42", "2026-08-30T10:15:00Z", "12.5", "-3.25"})
	if err != nil {
		t.Fatalf("parseObservation failed: %v", err)
	}
	if obs.VehicleID != "bus-42" {
		t.Errorf("VehicleID = %q, want bus-42", obs.VehicleID)
	}
	if obs.Point.X != 12.5 || obs.Point.Y != -3.25 {
		t.Errorf("Point = %+v, want {12.5 -3.25}", obs.Point)
	}
	want := time.Date(2026, 8, 30, 10, 15, 0, 0, time.UTC)
	if !obs.Time.Equal(want) {
		t.Errorf("Time = %v, want %v", obs.Time, want)
	}
}

func TestParseObservationErrors(t *testing.T) {
	cases := [][]string{
		{"", "2026-08-30T10:15:00Z", "1", "2"},
		{"bus-42", "yesterday", "1", "2"},
		{"bus-42", "100", "one", "2"},
		{"bus-42", "100", "1", "two"},
	}
	for _, record := range cases {
		if _, err := parseObservation(record); err == nil {
			t.Errorf("parseObservation(%v) succeeded, want error", record)
		}
	}
}

func TestParseTimeUnixSeconds(t *testing.T) {
	got, err := parseTime("1756550100.5")
	if err != nil {
		t.Fatalf("parseTime failed: %v", err)
	}
	want := time.Unix(1756550100, 500000000)
	if !got.Equal(want) {
		t.Errorf("parseTime = %v, want %v", got, want)
	}
}
