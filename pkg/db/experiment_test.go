package db_test

import (
	"testing"

	"github.com/felafax/split/pkg/db"
)

func TestAsExperimentStatus(t *testing.T) {
	t.Run("it parses every known status", func(t *testing.T) {
		for _, status := range []db.ExperimentStatus{
			db.Draft, db.Running, db.Paused, db.Completed, db.Cancelled,
		} {
			parsed, err := db.AsExperimentStatus(status.String())
			if err != nil {
				t.Errorf("unexpected error for %s: %v", status, err)
			}
			if parsed != status {
				t.Errorf("unmatch: (actual, expected) = (%s, %s)", parsed, status)
			}
		}
	})

	t.Run("it rejects unknown status", func(t *testing.T) {
		if _, err := db.AsExperimentStatus("exploded"); err == nil {
			t.Error("error is expected, but not")
		}
	})
}

func TestExperimentStatusTransitions(t *testing.T) {
	type transition struct {
		from db.ExperimentStatus
		to   db.ExperimentStatus
	}

	allowed := map[transition]bool{}
	for _, tr := range []transition{
		{db.Draft, db.Running},
		{db.Paused, db.Running},
		{db.Running, db.Paused},
		{db.Draft, db.Completed},
		{db.Running, db.Completed},
		{db.Paused, db.Completed},
		{db.Draft, db.Cancelled},
		{db.Running, db.Cancelled},
		{db.Paused, db.Cancelled},
	} {
		allowed[tr] = true
	}

	statuses := []db.ExperimentStatus{
		db.Draft, db.Running, db.Paused, db.Completed, db.Cancelled,
	}

	for _, from := range statuses {
		for _, to := range statuses {
			expected := allowed[transition{from, to}]
			if actual := from.CanTransitTo(to); actual != expected {
				t.Errorf(
					"unmatch: CanTransitTo(%s -> %s): (actual, expected) = (%v, %v)",
					from, to, actual, expected,
				)
			}
		}
	}

	t.Run("terminal statuses never transit", func(t *testing.T) {
		for _, from := range []db.ExperimentStatus{db.Completed, db.Cancelled} {
			for _, to := range statuses {
				if from.CanTransitTo(to) {
					t.Errorf("terminal status %s may transit to %s, but should not", from, to)
				}
			}
		}
	})

	t.Run("SourcesOf agrees with CanTransitTo", func(t *testing.T) {
		for _, to := range statuses {
			for _, from := range db.SourcesOf(to) {
				if !from.CanTransitTo(to) {
					t.Errorf("SourcesOf(%s) contains %s, but CanTransitTo denies it", to, from)
				}
			}
		}
	})
}

func TestParticipantKey(t *testing.T) {
	t.Run("user id takes precedence", func(t *testing.T) {
		key, err := db.ParticipantKey("user-1", "sess-1")
		if err != nil {
			t.Fatal(err)
		}
		if key != "user/user-1" {
			t.Errorf("unmatch: (actual, expected) = (%s, user/user-1)", key)
		}
	})

	t.Run("session id is used when user id is empty", func(t *testing.T) {
		key, err := db.ParticipantKey("", "sess-1")
		if err != nil {
			t.Fatal(err)
		}
		if key != "session/sess-1" {
			t.Errorf("unmatch: (actual, expected) = (%s, session/sess-1)", key)
		}
	})

	t.Run("it rejects empty identities", func(t *testing.T) {
		if _, err := db.ParticipantKey("", ""); err == nil {
			t.Error("error is expected, but not")
		}
	})
}
