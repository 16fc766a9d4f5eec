package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/pborman/getopt/v2"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/geopods/podflow/docs"

	"github.com/geopods/podflow/api"
	"github.com/geopods/podflow/api/middleware"
	"github.com/geopods/podflow/internal/cache"
	"github.com/geopods/podflow/internal/config"
	"github.com/geopods/podflow/internal/graphdef"
	"github.com/geopods/podflow/internal/metrics"
	"github.com/geopods/podflow/internal/scheduler"
	"github.com/geopods/podflow/internal/sources"
)

type opts struct {
	storageAccounts   []string
	port              uint32
	cacheSize         uint64
	metrics           bool
	metricsPort       uint32
	threads           int
	chunkBudget       int
	trustedProxies    []string
	blockedIPs        []string
	blockedUserAgents []string
}

func fromConfig(cfg config.Config) opts {
	return opts{
		storageAccounts:   cfg.StorageAccounts,
		port:              cfg.Port,
		cacheSize:         cfg.CacheSizeMB,
		metrics:           cfg.MetricsEnabled,
		metricsPort:       cfg.MetricsPort,
		threads:           cfg.NThreads,
		chunkBudget:       cfg.ChunkBudget,
		trustedProxies:    cfg.TrustedProxies,
		blockedIPs:        nil,
		blockedUserAgents: nil,
	}
}

func parseAsListOfStrings(fallback []string, value string) []string {
	if len(value) == 0 {
		return fallback
	}
	items := strings.Split(value, ",")
	for i, item := range items {
		items[i] = strings.TrimSpace(item)
	}
	return items
}

// parseopts layers pborman/getopt/v2 flags on top of config.FromEnv's
// environment-variable defaults: env var first, then flag override.
func parseopts() opts {
	help := getopt.BoolLong("help", 0, "print this help text")

	o := fromConfig(config.FromEnv())
	o.blockedIPs = parseAsListOfStrings(nil, os.Getenv("PODFLOW_BLOCKED_IPS"))
	o.blockedUserAgents = parseAsListOfStrings(nil, os.Getenv("PODFLOW_BLOCKED_USER_AGENTS"))

	storageAccountsCSV := strings.Join(o.storageAccounts, ",")
	getopt.FlagLong(
		&storageAccountsCSV,
		"storage-accounts",
		0,
		"Comma-separated list of storage accounts that should be accepted by the API.\n"+
			"Can also be set by environment variable 'PODFLOW_STORAGE_ACCOUNTS'",
		"string",
	)

	getopt.FlagLong(
		&o.port,
		"port",
		0,
		"Port to start server on. Defaults to 8080.\n"+
			"Can also be set by environment variable 'PODFLOW_PORT'",
		"int",
	)

	getopt.FlagLong(
		&o.cacheSize,
		"cache-size",
		0,
		"Max size of the response cache, in megabytes. A value of zero\n"+
			"disables caching. Defaults to 0.\n"+
			"Can also be set by environment variable 'PODFLOW_CACHE_SIZE'",
		"int",
	)

	getopt.FlagLong(
		&o.metrics,
		"metrics",
		0,
		"Turn on server metrics, posted to /metrics using the prometheus data\n"+
			"model. Off by default.\n"+
			"Can also be set by environment variable 'PODFLOW_METRICS'",
	)

	getopt.FlagLong(
		&o.metricsPort,
		"metrics-port",
		0,
		"Port to host the /metrics endpoint on, always separate from the main\n"+
			"server port. Defaults to 8081. Ignored unless --metrics is set.\n"+
			"Can also be set by environment variable 'PODFLOW_METRICS_PORT'",
		"int",
	)

	getopt.FlagLong(
		&o.threads,
		"threads",
		0,
		"Size of the shared thread budget for evaluating compositor sources in\n"+
			"parallel. Defaults to the host's CPU count.\n"+
			"Can also be set by environment variable 'PODFLOW_THREADS'",
		"int",
	)

	getopt.FlagLong(
		&o.chunkBudget,
		"chunk-budget",
		0,
		"Max cells per reduce tile. Defaults to 1000000.\n"+
			"Can also be set by environment variable 'PODFLOW_CHUNK_BUDGET'",
		"int",
	)

	getopt.FlagLong(
		&o.trustedProxies,
		"trusted-proxies",
		0,
		"Comma-separated list of proxy network origins to trust forwarded\n"+
			"client IP headers from.\n"+
			"Can also be set by environment variable 'PODFLOW_TRUSTED_PROXIES'",
		"string",
	)

	getopt.FlagLong(
		&o.blockedIPs,
		"blocked-ips",
		0,
		"Comma-separated list of ips which shouldn't be allowed to access the application.\n"+
			"Can also be set by environment variable 'PODFLOW_BLOCKED_IPS'",
		"string",
	)

	getopt.FlagLong(
		&o.blockedUserAgents,
		"blocked-user-agents",
		0,
		"Comma-separated list of user agents which shouldn't be allowed to access the application.\n"+
			"Can also be set by environment variable 'PODFLOW_BLOCKED_USER_AGENTS'",
		"string",
	)

	getopt.Parse()
	if *help {
		getopt.Usage()
		os.Exit(0)
	}

	o.storageAccounts = parseAsListOfStrings(nil, storageAccountsCSV)
	return o
}

func setupApp(app *gin.Engine, endpoint *api.Endpoint, metric *metrics.Metrics, o *opts) {
	app.Use(middleware.RequestID())
	app.Use(middleware.FormattedLogger())
	app.Use(gin.Recovery())
	app.Use(gzip.Gzip(gzip.BestSpeed))
	app.Use(middleware.RequestBlocker(o.blockedIPs, o.blockedUserAgents))

	flow := app.Group("/")
	flow.Use(middleware.ErrorHandler)

	if metric != nil {
		flow.Use(metrics.NewGinMiddleware(metric))
	}

	app.GET("/", endpoint.Health)
	flow.POST("graph", endpoint.GraphPost)
	flow.POST("eval", endpoint.EvalPost)

	app.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

// connectionStringsFromEnv reads one PODFLOW_STORAGE_KEY_<N> environment
// variable per trusted account, ordered the same way the
// --storage-accounts list is ordered.
func connectionStringsFromEnv(accounts []string) map[string]string {
	out := make(map[string]string, len(accounts))
	for i, account := range accounts {
		if key := os.Getenv(fmt.Sprintf("PODFLOW_STORAGE_KEY_%d", i)); key != "" {
			out[strings.TrimRight(account, "/")] = key
		}
	}
	return out
}

// @title        podflow API
// @version      0.0
// @description  Evaluates lazy, composable geospatial/temporal raster pipelines.
// @contact.name geopods
// @schemes      https
func main() {
	o := parseopts()

	sched := scheduler.New(o.threads)

	var responseCache *cache.Cache
	if o.cacheSize > 0 {
		c, err := cache.New(o.cacheSize)
		if err != nil {
			panic(err)
		}
		responseCache = c
		defer responseCache.Close()
	}

	var metric *metrics.Metrics
	if o.metrics {
		metric = metrics.NewMetrics()
		metric.SetThreadBudget(o.threads)
		metric.ObserveThreadsInUse(func() float64 { return float64(sched.ThreadsInUse()) })
	}

	builder := graphdef.NewBuilder(sched, o.chunkBudget)
	connMaker := sources.NewAzureConnectionMaker(o.storageAccounts, connectionStringsFromEnv(o.storageAccounts))
	builder.RegisterAdapter("blob", graphdef.BlobAdapterFactory(connMaker))

	endpoint := api.Endpoint{Builder: builder, Cache: responseCache, Metrics: metric}

	app := gin.New()
	if err := app.SetTrustedProxies(o.trustedProxies); err != nil {
		panic(err)
	}

	if metric != nil {
		metricsApp := gin.New()
		if err := metricsApp.SetTrustedProxies(o.trustedProxies); err != nil {
			panic(err)
		}
		metricsApp.Use(gin.Recovery())
		metricsApp.GET("metrics", metrics.NewGinHandler(metric))

		go func() {
			metricsApp.Run(fmt.Sprintf(":%d", o.metricsPort))
		}()
	}

	setupApp(app, &endpoint, metric, &o)
	app.Run(fmt.Sprintf(":%d", o.port))
}
