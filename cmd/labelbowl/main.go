// Command labelbowl downloads an annotated image dataset (from the platform
// API or a bucket export), builds a data generator over it, iterates one
// epoch and writes a class balance chart plus a few annotated sample renders.
//
//	labelbowl -platform https://gate.example.com/api/v1 -dataset <id> -type box
//	labelbowl -bucket-endpoint localhost:9000 -bucket exports -prefix pets -type class
//	labelbowl -demo
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/Noofbiz/labelbowl/bucket"
	"github.com/Noofbiz/labelbowl/datasets"
	"github.com/Noofbiz/labelbowl/entities"
	"github.com/Noofbiz/labelbowl/platform"
)

var log = logrus.WithField("cmd", "labelbowl")

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file (flags set explicitly override it)")
	platformURL := flag.String("platform", "", "platform API base URL")
	token := flag.String("token", "", "platform API token (default $LABELBOWL_TOKEN)")
	datasetID := flag.String("dataset", "", "platform dataset id")
	bucketEndpoint := flag.String("bucket-endpoint", "", "S3 endpoint (host:port) of a bucket export; credentials from $MINIO_ACCESS_KEY/$MINIO_SECRET_KEY")
	bucketName := flag.String("bucket", "", "bucket holding the dataset export")
	prefix := flag.String("prefix", "", "dataset prefix inside the bucket")
	dataPath := flag.String("data-path", "", "local cache root (default ~/.dataloop/datasets/<name>_<id>)")
	annotationType := flag.String("type", "box", "annotation type to load: box, class, binary, segment or empty for images only")
	batchSize := flag.Int("batch-size", 0, "batch size (0 disables batching)")
	workers := flag.Int("workers", 0, "parallel sample loaders per batch (0 loads sequentially)")
	seed := flag.Int64("seed", datasets.DefaultSeed, "shuffle seed")
	noShuffle := flag.Bool("no-shuffle", false, "keep lexicographic image order")
	balance := flag.Bool("balance", false, "oversample minority classes")
	overwrite := flag.Bool("overwrite", false, "delete the local cache and download again")
	out := flag.String("out", "output", "output directory for the class balance chart and sample renders")
	visualize := flag.Int("visualize", 3, "number of annotated samples to render (requires no batching)")
	demo := flag.Bool("demo", false, "serve a generated demo dataset from an in-process fake platform")
	verbose := flag.Bool("v", false, "debug logging and progress bars")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.WithError(err).Fatal("loading configuration")
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "platform":
			cfg.Platform.BaseURL = *platformURL
		case "token":
			cfg.Platform.Token = *token
		case "dataset":
			cfg.Dataset = *datasetID
		case "bucket-endpoint":
			cfg.Bucket.Endpoint = *bucketEndpoint
		case "bucket":
			cfg.Bucket.Name = *bucketName
		case "prefix":
			cfg.Bucket.Prefix = *prefix
		case "data-path":
			cfg.DataPath = *dataPath
		case "type":
			cfg.Type = *annotationType
		case "batch-size":
			cfg.BatchSize = *batchSize
		case "workers":
			cfg.Workers = *workers
		case "seed":
			cfg.Seed = seed
		case "no-shuffle":
			cfg.NoShuffle = *noShuffle
		case "balance":
			cfg.Balance = *balance
		case "overwrite":
			cfg.Overwrite = *overwrite
		case "out":
			cfg.Out = *out
		case "visualize":
			cfg.Visualize = *visualize
		case "demo":
			cfg.Demo = *demo
		}
	})
	cfg.applyEnv()
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, cfg, *verbose); err != nil {
		log.WithError(err).Fatal("labelbowl failed")
	}
}

func run(ctx context.Context, cfg config, verbose bool) error {
	annotationType, err := entities.ParseAnnotationType(cfg.Type)
	if err != nil {
		return err
	}

	var fs afero.Fs = afero.NewOsFs()
	if cfg.Demo {
		d, err := startDemo()
		if err != nil {
			return errors.WithMessage(err, "starting demo platform")
		}
		defer d.Close()
		cfg.Platform.BaseURL = d.URL
		cfg.Platform.Token = d.Token
		cfg.Dataset = d.DatasetID
		cfg.Bucket = bucketConfig{}
		fs = afero.NewMemMapFs()
		if cfg.DataPath == "" {
			cfg.DataPath = "/demo"
		}
		log.WithField("url", d.URL).Info("serving demo dataset")
	}

	source, err := openSource(ctx, cfg, fs)
	if err != nil {
		return err
	}

	opts := []datasets.Option{
		datasets.WithFs(fs),
		datasets.WithVerbose(verbose),
		datasets.WithShuffle(!cfg.NoShuffle),
		datasets.WithClassBalancing(cfg.Balance),
		datasets.WithOverwrite(cfg.Overwrite),
		datasets.WithBatchSize(cfg.BatchSize),
		datasets.WithNumWorkers(cfg.Workers),
	}
	if cfg.DataPath != "" {
		opts = append(opts, datasets.WithDataPath(cfg.DataPath))
	}
	if cfg.Seed != nil {
		opts = append(opts, datasets.WithSeed(*cfg.Seed))
	}
	if cfg.BatchSize > 0 {
		opts = append(opts, datasets.WithCollate(datasets.DefaultCollate))
	}

	g, err := datasets.NewGenerator(ctx, source, annotationType, opts...)
	if err != nil {
		return err
	}

	start := time.Now()
	var batches int
	for _, err := range g.All(ctx) {
		if err != nil {
			return errors.WithMessagef(err, "iterating batch %d", batches)
		}
		batches++
	}
	log.WithFields(logrus.Fields{
		"dataset": source.DatasetName(),
		"items":   humanize.Comma(int64(g.NumItems())),
		"batches": humanize.Comma(int64(batches)),
		"classes": g.NumClasses(),
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Info("iterated one epoch")
	fmt.Printf("%s: %d items in %d batches, labels %v\n", source.DatasetName(), g.NumItems(), batches, g.LabelStatistics())

	if err := os.MkdirAll(cfg.Out, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", cfg.Out)
	}
	chart := filepath.Join(cfg.Out, "class_balance.png")
	if err := plotClassBalance(chart, g.LabelStatistics()); err != nil {
		return err
	}
	log.WithField("path", chart).Info("wrote class balance chart")

	if cfg.Visualize > 0 {
		if cfg.BatchSize > 0 {
			log.Warn("skipping sample renders, visualization needs batching off")
			return nil
		}
		if err := writeSamples(g, cfg.Out, cfg.Visualize); err != nil {
			return err
		}
	}
	return nil
}

// openSource returns the bucket export when a bucket is configured, the
// platform dataset otherwise.
func openSource(ctx context.Context, cfg config, fs afero.Fs) (datasets.Source, error) {
	if cfg.Bucket.Name != "" {
		client, err := minio.New(cfg.Bucket.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.Bucket.AccessKey, cfg.Bucket.SecretKey, ""),
			Secure: cfg.Bucket.Secure,
		})
		if err != nil {
			return nil, errors.Wrap(err, "creating bucket client")
		}
		src, err := bucket.NewSource(ctx, client, cfg.Bucket.Name, cfg.Bucket.Prefix, nil, bucket.WithFs(fs))
		if err != nil {
			return nil, err
		}
		return src, nil
	}

	if cfg.Dataset == "" {
		return nil, errors.New("either -dataset (with -platform) or -bucket is required")
	}
	cfg.Platform.Fs = fs
	client, err := platform.New(cfg.Platform)
	if err != nil {
		return nil, err
	}
	dataset, err := client.Datasets.Get(ctx, cfg.Dataset)
	if err != nil {
		return nil, errors.WithMessagef(err, "fetching dataset %q", cfg.Dataset)
	}
	return dataset, nil
}
