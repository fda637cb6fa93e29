package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/felafax/split/cmd/loops/recurring"
	"github.com/felafax/split/cmd/loops/tasks/autostop"
	kdb "github.com/felafax/split/pkg/db"
	"github.com/felafax/split/pkg/loop"
)

type LoggerOptions func(*log.Logger) *log.Logger

func byLogger(l *log.Logger, opt ...LoggerOptions) *log.Logger {
	for _, o := range opt {
		l = o(l)
	}
	return l
}

func Copied() LoggerOptions {
	return func(l *log.Logger) *log.Logger {
		return log.New(l.Writer(), l.Prefix(), l.Flags())
	}
}

func WithPrefix(pre string) LoggerOptions {
	return func(l *log.Logger) *log.Logger {
		l.SetPrefix(pre)
		return l
	}
}

func WithTimestamp() LoggerOptions {
	return func(l *log.Logger) *log.Logger {
		l.SetFlags(l.Flags() | log.Ldate | log.Ltime | log.Lmicroseconds)
		return l
	}
}

// Wrapper for monitoring loop tasks
//
//	Log the start and end of each time a task is executed. Essentially, it executes a task.
func monitor[T any](logger *log.Logger, task loop.Task[T]) loop.Task[T] {
	// counter for execution of the task
	var counter uint64
	return func(ctx context.Context, t T) (ret T, next loop.Next) {
		// func() capture the 'counter' variable
		counter += 1
		timestamp := time.Now()

		logger.Printf("task start: #0x%X: ", counter)

		// log at the end of the task
		defer func() {
			logger.Printf(
				"task end: #0x%X (takes %s): %s\n with value = %#v",
				counter, time.Since(timestamp), next, ret,
			)
		}()

		// execute the task specified by the argument
		ret, next = task(ctx, t)
		return
	}
}

// Manifest for starting a loop, which determines how the loop should behave.
type LoopManifest struct {
	// Which loop to run
	Type kdb.LoopType

	// Policy for the looping
	Policy recurring.Policy
}

// Start the loop named in the manifest.
//
// Args:
//
// - ctx
//
// - logger : logger for monitoring loop.
//
// - db : database accessor
//
// - manifest
func StartLoop(
	ctx context.Context,
	logger *log.Logger,
	db kdb.SplitDatabase,
	manifest LoopManifest,
) error {
	switch manifest.Type {
	case kdb.Autostop:
		return startAutostopLoop(ctx, logger, db, manifest)
	default:
		return fmt.Errorf(`%w: "%s"`, kdb.ErrUnknownLoopType, manifest.Type)
	}
}

func startAutostopLoop(
	ctx context.Context,
	logger *log.Logger,
	db kdb.SplitDatabase,
	manifest LoopManifest,
) error {
	_, err := loop.Start(
		ctx, autostop.Seed(),
		monitor(
			byLogger(logger, Copied(), WithPrefix("[autostop loop]")),
			autostop.Task(
				db.Experiments(),
				time.Now,
			).Applied(manifest.Policy),
		),
		loop.WithTimeout(30*time.Second),
	)
	return err
}
