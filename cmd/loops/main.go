package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/felafax/split/cmd/loops/recurring"
	configs "github.com/felafax/split/pkg/configs/server"
	kdb "github.com/felafax/split/pkg/db"
	kpg "github.com/felafax/split/pkg/db/postgres"
	"github.com/felafax/split/pkg/utils/args"
	"github.com/felafax/split/pkg/utils/filewatch"
	"github.com/felafax/split/pkg/utils/try"
)

func main() {
	logger := log.Default()
	ctx, cancel := signal.NotifyContext(
		context.Background(), os.Interrupt, os.Kill, syscall.SIGTERM,
	)
	// call cancel() when this function exits
	defer cancel()

	// define command line flags
	//-- path to config file
	pconfig := flag.String(
		"config", os.Getenv("SPLIT_CONFIG"), "path to config file",
	)
	pSchemaRepo := flag.String(
		"schema-repo", os.Getenv("SPLIT_SCHEMA"), "schema repository path",
	)
	//-- which loop type to run
	loopType := args.Parser(kdb.AsLoopType)
	flag.Var(loopType, "type", "one of loop type")
	//-- loop policy
	policy := args.Parser(recurring.ParsePolicy)
	flag.Var(
		policy, "policy",
		`loop policy (syntax: forever[:COOLDOWN]|backlog).`+
			` "forever[:COOLDOWN]" = run forever until error. When backlog is over, `+
			`wait COOLDOWN (optional duration. default: 0) as inteval.`+
			` "backlog" = run until error or backlog is over.`,
	)
	// parse command line flags
	flag.Parse()

	{
		// watch config
		wctx, cancel, err := filewatch.UntilModifyContext(ctx, *pconfig)
		if err != nil {
			logger.Fatal(err)
		}
		defer cancel()
		ctx = wctx
	}

	conf := try.To(configs.LoadServerConfig(*pconfig)).OrFatal(logger)

	schemaRepo := *pSchemaRepo
	if schemaRepo == "" {
		schemaRepo = conf.SchemaRepository
	}

	db := try.To(kpg.New(
		ctx, conf.DBURI, kpg.WithSchemaRepository(schemaRepo),
	)).OrFatal(logger)
	defer db.Close()

	{
		ctx_, ccan := db.Schema().Context(ctx)
		defer ccan()
		ctx = ctx_
	}

	logger.Printf(
		`start loop "%s" /w policy "%s"`,
		loopType.Value().String(), policy.Value().String(),
	)

	err := StartLoop(
		ctx, logger, db,
		LoopManifest{
			Type:   loopType.Value(),
			Policy: recurring.UntilError(policy.Value()),
		},
	)

	if err == nil {
		return
	} else if errors.Is(err, context.Canceled) {
		logger.Fatal(err, "(loop context is cancelled by:", context.Cause(ctx), ")")
	}

	if ctx.Err() != nil {
		logger.Fatal(err)
	}
}
