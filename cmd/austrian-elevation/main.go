package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ogdwien/go-austrianelevation"
)

var (
	rootCmd = &cobra.Command{
		Use:           "austrian-elevation",
		Short:         "Look up elevations from the Austrian elevation row files.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flagBaseURL       string
	flagCacheDir      string
	flagSQLitePath    string
	flagS3Bucket      string
	flagS3Prefix      string
	flagRequesterPays bool
	flagSRID          int
	flagTimeout       time.Duration
	flagLogLevel      string
	flagAddr          string
)

func init() {
	cobra.EnablePrefixMatching = true

	rootCmd.PersistentFlags().StringVar(&flagBaseURL, "base-url", envOr("AUSTRIAN_ELEVATION_BASE_URL", austrianelevation.DefaultBaseURL), "base URL of the row files")
	rootCmd.PersistentFlags().StringVar(&flagCacheDir, "cache-dir", envOr("AUSTRIAN_ELEVATION_CACHE_DIR", defaultCacheDir()), "directory in which row files are stored")
	rootCmd.PersistentFlags().StringVar(&flagSQLitePath, "sqlite", os.Getenv("AUSTRIAN_ELEVATION_SQLITE"), "store row files in this SQLite database instead of the cache directory")
	rootCmd.PersistentFlags().StringVar(&flagS3Bucket, "s3-bucket", os.Getenv("AUSTRIAN_ELEVATION_S3_BUCKET"), "fetch row files from a mirror in this S3 bucket instead of the base URL")
	rootCmd.PersistentFlags().StringVar(&flagS3Prefix, "s3-prefix", "", "key prefix of the S3 mirror")
	rootCmd.PersistentFlags().BoolVar(&flagRequesterPays, "s3-requester-pays", false, "send requester pays header with S3 requests")
	rootCmd.PersistentFlags().IntVar(&flagSRID, "srid", envIntOr("AUSTRIAN_ELEVATION_SRID", austrianelevation.DefaultSRID), "SRID of the row file coordinates")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 60*time.Second, "HTTP client timeout for row file requests")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level, err := log.ParseLevel(flagLogLevel)
		if err != nil {
			return err
		}
		log.SetLevel(level)
		return nil
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "lookup <x> <y>",
		Short: "print the elevation at a projected coordinate",
		Args:  cobra.ExactArgs(2),
		RunE:  lookupCommand,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "lookup4326 <longitude> <latitude>",
		Short: "print the elevation at a longitude and latitude",
		Args:  cobra.ExactArgs(2),
		RunE:  lookup4326Command,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "prefetch <minx> <miny> <maxx> <maxy>",
		Short: "store all row files intersecting a projected bounding box",
		Args:  cobra.ExactArgs(4),
		RunE:  prefetchCommand,
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "serve elevations over HTTP",
		Args:  cobra.NoArgs,
		RunE:  serveCommand,
	}
	serveCmd.Flags().StringVar(&flagAddr, "addr", ":8080", "address to listen on")
	rootCmd.AddCommand(serveCmd)
}

func lookupCommand(cmd *cobra.Command, args []string) error {
	p, err := parsePoint(args)
	if err != nil {
		return err
	}
	es, closeStore, err := newElevationService()
	if err != nil {
		return err
	}
	defer closeStore()
	elevation, ok, err := es.Elevation(cmd.Context(), p)
	if err != nil {
		return err
	}
	return printElevation(cmd, elevation, ok)
}

func lookup4326Command(cmd *cobra.Command, args []string) error {
	p, err := parsePoint(args)
	if err != nil {
		return err
	}
	es, closeStore, err := newElevationService()
	if err != nil {
		return err
	}
	defer closeStore()
	elevation, ok, err := es.Elevation4326(cmd.Context(), p)
	if err != nil {
		return err
	}
	return printElevation(cmd, elevation, ok)
}

func prefetchCommand(cmd *cobra.Command, args []string) error {
	minPoint, err := parsePoint(args[:2])
	if err != nil {
		return err
	}
	maxPoint, err := parsePoint(args[2:])
	if err != nil {
		return err
	}
	rowKeys, err := austrianelevation.RowKeysInBound(orb.Bound{Min: minPoint, Max: maxPoint})
	if err != nil {
		return err
	}
	es, closeStore, err := newElevationService()
	if err != nil {
		return err
	}
	defer closeStore()

	log.WithField("rows", len(rowKeys)).Info("prefetching row files")
	bar := progressbar.Default(int64(len(rowKeys)), "prefetching")
	if err := es.RowFileSet().Prefetch(cmd.Context(), rowKeys, func(austrianelevation.RowKey) {
		_ = bar.Add(1)
	}); err != nil {
		return err
	}
	return bar.Finish()
}

func serveCommand(cmd *cobra.Command, args []string) error {
	es, closeStore, err := newElevationService()
	if err != nil {
		return err
	}
	defer closeStore()
	log.WithField("addr", flagAddr).Info("serving")
	server := &http.Server{
		Addr:              flagAddr,
		Handler:           newHandler(es, log.StandardLogger()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-cmd.Context().Done()
		_ = server.Close()
	}()
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newElevationService returns an ElevationService configured from the command
// line flags and a function that closes its store.
func newElevationService() (*austrianelevation.ElevationService, func(), error) {
	var source austrianelevation.RowSource
	if flagS3Bucket != "" {
		s3Source, err := austrianelevation.NewS3Source(flagS3Bucket, flagS3Prefix, flagRequesterPays)
		if err != nil {
			return nil, nil, err
		}
		source = s3Source
	} else {
		source = austrianelevation.NewHTTPSource(flagBaseURL,
			austrianelevation.WithHTTPClient(&http.Client{Timeout: flagTimeout}),
		)
	}

	var store austrianelevation.RowStore
	closeStore := func() {}
	if flagSQLitePath != "" {
		sqliteStore, err := austrianelevation.NewSQLiteStore(flagSQLitePath)
		if err != nil {
			return nil, nil, err
		}
		store = sqliteStore
		closeStore = func() {
			if err := sqliteStore.Close(); err != nil {
				log.WithError(err).Error("closing store")
			}
		}
	} else {
		store = austrianelevation.NewDirStore(flagCacheDir)
	}

	es, err := austrianelevation.NewAustrianElevationService(
		austrianelevation.WithSource(source),
		austrianelevation.WithStore(store),
		austrianelevation.WithSRID(flagSRID),
		austrianelevation.WithLogger(log.StandardLogger()),
	)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return es, closeStore, nil
}

func parsePoint(args []string) (orb.Point, error) {
	x, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return orb.Point{}, err
	}
	y, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return orb.Point{}, err
	}
	return orb.Point{x, y}, nil
}

func printElevation(cmd *cobra.Command, elevation int, ok bool) error {
	if !ok {
		return errors.New("no elevation found")
	}
	fmt.Fprintln(cmd.OutOrStdout(), elevation)
	return nil
}

func defaultCacheDir() string {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "."
	}
	return filepath.Join(userCacheDir, "austrian-elevation")
}

func envOr(key, value string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return value
}

func envIntOr(key string, value int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return value
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd.SetHelpTemplate(`{{.UsageString}}`)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error(err)
		stop()
		os.Exit(1)
	}
}
