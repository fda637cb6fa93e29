package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"

	"github.com/felafax/split/pkg/db/postgres"
	kio "github.com/felafax/split/pkg/io"
	"github.com/felafax/split/pkg/utils/try"
)

func main() {
	logger := log.Default()
	ctx, cancel := signal.NotifyContext(
		context.Background(),
		os.Interrupt, os.Kill,
	)
	defer cancel()

	port := 5432
	if sp := os.Getenv("DB_PORT"); sp != "" {
		p, err := strconv.Atoi(sp)
		if err == nil {
			port = p
		}
	}

	phost := flag.String("host", os.Getenv("DB_HOST"), "The host of the database.")
	pport := flag.Int("port", port, "The port of the database.")
	puser := flag.String("user", os.Getenv("DB_USER"), "The user of the database.")
	ppass := flag.String("pass", os.Getenv("DB_PASSWORD"), "The password of the database.")
	pdatabase := flag.String("database", os.Getenv("DB_NAME"), "The name of the database.")
	pschema := flag.String("schema", os.Getenv("SPLIT_SCHEMA"), "The path to the schema repository directory.")
	flag.Parse()

	// optional positional argument: copy the schema repository there,
	// so that sidecars can watch the same files the upgrader applied.
	if dest := flag.Arg(0); dest != "" {
		logger.Println("copying schema files...")
		if err := kio.DirCopy(*pschema, dest); err != nil {
			logger.Fatal(err)
		}
	}

	db := try.To(postgres.New(
		ctx,
		fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s",
			*puser, *ppass, *phost, *pport, *pdatabase,
		),
		postgres.WithSchemaRepository(*pschema),
	)).OrFatal(logger)
	defer db.Close()

	if err := db.Schema().Upgrade(ctx); err != nil {
		logger.Fatal(err)
	}
	logger.Printf("schema is up to date: version %d", try.To(db.Schema().Version(ctx)).OrFatal(logger))
}
