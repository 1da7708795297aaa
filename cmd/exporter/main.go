package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/airbusgeo/godal"
	"github.com/airbusgeo/lulc-exporter/export"
	"github.com/airbusgeo/lulc-exporter/interface/catalog/mpc"
	"github.com/airbusgeo/lulc-exporter/interface/provider"
	"github.com/airbusgeo/lulc-exporter/service"
	"github.com/airbusgeo/lulc-exporter/service/log"
	"github.com/airbusgeo/osio"
	"github.com/airbusgeo/osio/gcs"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type config struct {
	AOI        string
	Collection string
	StartTime  string
	EndTime    string

	Destination     string
	StacURL         string
	SASTokenURL     string
	SubscriptionKey string
	ProcessingDir   string
	Zip             bool
	KeepWorkingDir  bool
	Stream          bool

	Port string
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.AOI, "aoi", "", "GeoJson of the area to export")
	flag.StringVar(&config.Collection, "collection", "", "STAC collection to export (defaults to the annual land-cover collection)")
	flag.StringVar(&config.StartTime, "start-time", "", "start of the time window (optional)")
	flag.StringVar(&config.EndTime, "end-time", "", "end of the time window (optional)")

	flag.StringVar(&config.Destination, "destination", ".", "where the products are stored (local directory or gs:// uri)")
	flag.StringVar(&config.StacURL, "stac-url", mpc.SearchURL, "STAC search endpoint")
	flag.StringVar(&config.SASTokenURL, "sas-url", mpc.SASTokenURL, "SAS token endpoint signing the asset hrefs (empty to disable signing)")
	flag.StringVar(&config.SubscriptionKey, "subscription-key", "", "Planetary Computer subscription key (optional)")
	flag.StringVar(&config.ProcessingDir, "workdir", os.TempDir(), "working directory to store intermediate results")
	flag.BoolVar(&config.Zip, "zip", false, "also bundle the products in a zip archive")
	flag.BoolVar(&config.KeepWorkingDir, "keep-workdir", false, "keep the intermediate files of the run")
	flag.BoolVar(&config.Stream, "stream", false, "read the assets in place through GDAL VSI handlers instead of downloading them")

	flag.StringVar(&config.Port, "port", "", "listening port of the export service (empty for a one-shot export)")
	flag.Parse()

	if config.AOI == "" && config.Port == "" {
		return nil, fmt.Errorf("missing --aoi or --port")
	}
	return &config, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := run(ctx); err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}

	stcl, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("storage.newclient: %w", err)
	}
	gcsh, err := gcs.Handle(ctx, gcs.GCSClient(stcl))
	if err != nil {
		return fmt.Errorf("gcs.handle: %w", err)
	}
	gcsa, err := osio.NewAdapter(gcsh)
	if err != nil {
		return fmt.Errorf("osio.new: %w", err)
	}
	if err := godal.RegisterVSIHandler("gs://", gcsa); err != nil {
		return fmt.Errorf("register osio: %w", err)
	}
	godal.RegisterAll()

	outputStorage, err := service.NewOutputStorage(ctx, config.Destination)
	if err != nil {
		return fmt.Errorf("output storage: %w", err)
	}

	exporter := export.Exporter{
		Items:          &mpc.Provider{URL: config.StacURL},
		Storage:        outputStorage,
		WorkingDir:     config.ProcessingDir,
		ZipBundle:      config.Zip,
		KeepWorkingDir: config.KeepWorkingDir,
	}
	if config.SASTokenURL != "" {
		exporter.Signer = &mpc.Signer{URL: config.SASTokenURL, SubscriptionKey: config.SubscriptionKey}
	}
	if config.Stream {
		// No asset provider: the stack opens the hrefs through /vsicurl/ and gs://
		exporter.StreamAssets = true
	} else {
		gsProvider, err := provider.NewGSAssetProvider(ctx)
		if err != nil {
			return fmt.Errorf("gs provider: %w", err)
		}
		exporter.AssetProviders = []provider.AssetProvider{gsProvider, &provider.URLAssetProvider{}}
	}

	if config.AOI != "" {
		return exportAOI(ctx, &exporter, config)
	}

	// HTTP Server
	r := mux.NewRouter()
	exporter.AddHandler(r)
	s := http.Server{
		Addr:    ":" + config.Port,
		Handler: handlers.LoggingHandler(os.Stdout, r),
	}

	wg := errgroup.Group{}
	wg.Go(func() error {
		log.Logger(ctx).Sugar().Infof("export service listening on %s", s.Addr)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("exporter.ListenAndServe: %w", err)
		}
		return nil
	})
	wg.Go(func() error {
		<-ctx.Done()
		sctx, cncl := context.WithTimeout(context.Background(), 30*time.Second)
		defer cncl()
		return s.Shutdown(sctx)
	})
	return wg.Wait()
}

func exportAOI(ctx context.Context, exporter *export.Exporter, config *config) error {
	area, err := export.AreaFromFile(config.AOI, config.Collection, config.StartTime, config.EndTime)
	if err != nil {
		return err
	}

	uris, err := exporter.ExportArea(log.With(ctx, zap.String("aoi", area.AOIID)), *area)
	if err != nil {
		return err
	}
	for _, uri := range uris {
		fmt.Println(uri)
	}
	return nil
}
