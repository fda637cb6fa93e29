package main

import (
	"context"
	"flag"
	"log"
	"net/url"
	"path"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/felafax/split/cmd/splitd/handlers"
	"github.com/felafax/split/pkg/auth"
	"github.com/felafax/split/pkg/buildtime"
	kcf "github.com/felafax/split/pkg/configs/server"
	kdb "github.com/felafax/split/pkg/db"
	kpg "github.com/felafax/split/pkg/db/postgres"
	"github.com/felafax/split/pkg/utils/echoutil"
	"github.com/felafax/split/pkg/utils/filewatch"
	kstrings "github.com/felafax/split/pkg/utils/strings"
)

func main() {

	configPath := flag.String("config-path", "", "server config path")
	loglevel := flag.String("loglevel", "info", "log level. debug|info|warn|error|off")
	pcert := flag.String("cert", "", "certification file for TLS")
	pkey := flag.String("certkey", "", "key of certification file for TLS")
	flag.Parse()

	log.Println("version:", buildtime.VersionString())

	e := echo.New()
	e.Pre(middleware.AddTrailingSlash())

	// set log
	echoutil.SetLevel(e, *loglevel)
	e.HTTPErrorHandler = func(err error, ctx echo.Context) {
		e.DefaultHTTPErrorHandler(err, ctx)
		e.Logger.Error(err)
	}
	e.Use(echoutil.LogHandlerFunc)

	// read configfile
	conf, err := kcf.LoadServerConfig(*configPath)
	if err != nil {
		log.Fatalf("can not read configration: %s", err)
	}

	{
		// restart (via the process supervisor) when the config changes
		cctx, cancel, err := filewatch.UntilModifyContext(context.Background(), *configPath)
		if err != nil {
			log.Fatalf("can not watch configration: %s", err)
		}
		defer cancel()
		context.AfterFunc(cctx, func() {
			log.Println("config file is updated. quit to restart server.")
			graceful, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := e.Shutdown(graceful); err != nil {
				log.Printf("error on shutdown by config update: %s", err)
			}
		})
	}

	api, err := root("/api")
	if err != nil {
		log.Fatalf("api root /api is invalid url or path: %s", err)
	}

	// get dbaccesor
	ctx := context.Background()
	db, err := getDBAccesor(ctx, conf)
	if err != nil {
		log.Fatalf("can not connect to database: %s", err.Error())
	}
	defer db.Close()

	{
		// refuse to keep serving against an outdated schema
		sctx, cancel := db.Schema().Context(ctx)
		defer cancel()
		context.AfterFunc(sctx, func() {
			if err := context.Cause(sctx); err != nil && err != context.Canceled {
				log.Printf("schema check failed: %s. quit.", err)
				graceful, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := e.Shutdown(graceful); err != nil {
					log.Printf("error on shutdown by schema check: %s", err)
				}
			}
		})
	}

	if conf.TokenSecret != "" {
		e.Use(auth.Middleware([]byte(conf.TokenSecret)))
	}

	// handlers
	e.GET("/health", handlers.HealthHandler())

	{
		e.POST(api("experiments"), handlers.CreateExperimentHandler(db.Experiments()))
		e.GET(api("experiments"), handlers.FindExperimentHandler(db.Experiments()))
		e.GET(
			api("experiments/:experimentId/"),
			handlers.GetExperimentHandler(db.Experiments(), db.Assignments()),
		)

		e.POST(
			api("experiments/:experimentId/variants"),
			handlers.AddVariantHandler(db.Experiments(), "experimentId"),
		)

		e.PUT(
			api("experiments/:experimentId/start"),
			handlers.TransitExperimentHandler(db.Experiments(), "experimentId", kdb.Running),
		)
		e.PUT(
			api("experiments/:experimentId/pause"),
			handlers.TransitExperimentHandler(db.Experiments(), "experimentId", kdb.Paused),
		)
		e.PUT(
			api("experiments/:experimentId/complete"),
			handlers.TransitExperimentHandler(db.Experiments(), "experimentId", kdb.Completed),
		)
		e.PUT(
			api("experiments/:experimentId/cancel"),
			handlers.TransitExperimentHandler(db.Experiments(), "experimentId", kdb.Cancelled),
		)

		e.POST(
			api("experiments/:experimentId/assignments"),
			handlers.AssignVariantHandler(db.Assignments(), "experimentId"),
		)
		e.POST(
			api("experiments/:experimentId/results"),
			handlers.RecordResultHandler(db.Assignments(), "experimentId"),
		)
		e.GET(
			api("experiments/:experimentId/stats"),
			handlers.GetStatsHandler(db.Experiments(), db.Assignments()),
		)
	}

	log.Println("registred routes:")
	for _, r := range e.Routes() {
		log.Println(r.Method, r.Path)
	}

	cert, key := *pcert, *pkey
	if cert != "" && key != "" {
		e.Logger.Fatal(e.StartTLS(":"+conf.ServerPort, cert, key))
	} else {
		e.Logger.Fatal(e.Start(":" + conf.ServerPort))
	}
}

func getDBAccesor(ctx context.Context, conf *kcf.ServerConfig) (kdb.SplitDatabase, error) {
	options := []kpg.Option{}
	if conf.SchemaRepository != "" {
		options = append(options, kpg.WithSchemaRepository(conf.SchemaRepository))
	}
	return kpg.New(ctx, conf.DBURI, options...)
}

// create api URL factory
//
// args:
//   - root: api root
//
// return:
// - func: it receive relative path from root, and returns full-path of URL.
func root(r string) (func(...string) string, error) {
	origin := ""
	base := ""
	{
		b, err := url.Parse(r)
		if err != nil {
			return nil, err
		}
		base = b.Path
		if b.Host != "" || b.Scheme != "" {
			_r := *b
			r := &_r
			r.RawPath = ""
			r.Path = ""
			r.RawQuery = ""
			r.Fragment = ""
			origin = r.String()
		}
	}
	origin = kstrings.SupplySuffix(origin, "/")

	return func(s ...string) string {
		parts := make([]string, len(s)+1)
		parts[0] = base
		copy(parts[1:], s)
		p := path.Join(parts...)
		p = kstrings.TrimPrefixAll(p, "/")

		return kstrings.SupplySuffix(origin+p, "/")
	}, nil
}
