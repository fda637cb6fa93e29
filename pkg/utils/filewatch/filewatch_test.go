package filewatch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/felafax/split/pkg/utils/filewatch"
)

func TestUntilModifyContext(t *testing.T) {
	t.Run("when a file is created in a watched directory, it cancels context", func(t *testing.T) {
		dir := t.TempDir()

		ctx, cancel, err := filewatch.UntilModifyContext(context.Background(), dir)
		if err != nil {
			t.Fatal(err)
		}
		defer cancel()

		if err := ctx.Err(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		file := filepath.Join(dir, "file")
		if f, err := os.Create(file); err != nil {
			t.Fatal(err)
		} else {
			f.Close()
		}

		deadlineCh := make(<-chan time.Time)
		if dl, ok := t.Deadline(); ok {
			deadlineCh = time.After(time.Until(dl) - 1*time.Second)
		}
		select {
		case <-ctx.Done():
			// pass
		case <-deadlineCh:
			t.Fatal("context is not canceled")
		}
	})

	t.Run("when a watched file is written, it cancels context", func(t *testing.T) {
		dir := t.TempDir()
		file := filepath.Join(dir, "conf.yaml")
		if err := os.WriteFile(file, []byte("a: 1\n"), os.FileMode(0o644)); err != nil {
			t.Fatal(err)
		}

		ctx, cancel, err := filewatch.UntilModifyContext(context.Background(), file)
		if err != nil {
			t.Fatal(err)
		}
		defer cancel()

		if err := os.WriteFile(file, []byte("a: 2\n"), os.FileMode(0o644)); err != nil {
			t.Fatal(err)
		}

		deadlineCh := make(<-chan time.Time)
		if dl, ok := t.Deadline(); ok {
			deadlineCh = time.After(time.Until(dl) - 1*time.Second)
		}
		select {
		case <-ctx.Done():
			// pass
		case <-deadlineCh:
			t.Fatal("context is not canceled")
		}
	})

	t.Run("when a target file does not exist, it returns error", func(t *testing.T) {
		dir := t.TempDir()
		_, _, err := filewatch.UntilModifyContext(
			context.Background(), filepath.Join(dir, "no-such-file"),
		)
		if err == nil {
			t.Fatal("error is expected, but not")
		}
	})
}
