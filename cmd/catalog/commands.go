package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"

	"github.com/banshee-data/annotation.catalog/internal/catalog"
	"github.com/banshee-data/annotation.catalog/internal/config"
	"github.com/banshee-data/annotation.catalog/internal/db"
	"github.com/banshee-data/annotation.catalog/internal/fsutil"
	"github.com/banshee-data/annotation.catalog/internal/monitoring"
	"github.com/banshee-data/annotation.catalog/internal/pipeline"
	"github.com/banshee-data/annotation.catalog/internal/report"
	"github.com/banshee-data/annotation.catalog/internal/security"
	"github.com/banshee-data/annotation.catalog/internal/split"
	"github.com/banshee-data/annotation.catalog/internal/version"
	"github.com/banshee-data/annotation.catalog/internal/video"
)

const (
	stageRun      catalog.Stage = "run"
	stageVideoMap catalog.Stage = "videomap"
)

// common holds the flags every pipeline command accepts.
type common struct {
	configPath string
	ledger     string
	logsDir    string
	quiet      bool
}

func newFlagSet(name string, out io.Writer) (*flag.FlagSet, *common) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	c := &common{}
	fs.StringVar(&c.configPath, "config", "", "path to a JSON config file (defaults apply when empty)")
	fs.StringVar(&c.ledger, "ledger", "", "SQLite run ledger path (overrides ledger_path)")
	fs.StringVar(&c.logsDir, "logs", "", "directory for failure logs (overrides logs_dir)")
	fs.BoolVar(&c.quiet, "quiet", false, "suppress info-level diagnostics")
	return fs, c
}

func (c *common) load() (*config.CatalogConfig, error) {
	monitoring.SetQuiet(c.quiet)
	cfg := config.DefaultCatalogConfig()
	if c.configPath != "" {
		var err error
		if cfg, err = config.LoadCatalogConfig(c.configPath); err != nil {
			return nil, err
		}
	}
	if c.ledger != "" {
		cfg.LedgerPath = &c.ledger
	}
	if c.logsDir != "" {
		cfg.LogsDir = &c.logsDir
	}
	return cfg, nil
}

func required(fs *flag.FlagSet, names ...string) error {
	for _, n := range names {
		if f := fs.Lookup(n); f == nil || f.Value.String() == "" {
			return fmt.Errorf("%s: -%s is required", fs.Name(), n)
		}
	}
	return nil
}

func newPipeline(cfg *config.CatalogConfig) (*pipeline.Pipeline, error) {
	asm, err := catalog.NewAssembler(cfg.AssemblyOptions(), nil)
	if err != nil {
		return nil, err
	}
	return pipeline.New(
		fsutil.OSFileSystem{},
		asm,
		video.NewFFProbe(cfg.GetFFProbePath()),
		video.NewFrameExtractor(cfg.GetFFmpegPath(), cfg.GetFrameRate()),
	), nil
}

// tally is what a stage reports back to the ledger.
type tally struct {
	images      int
	annotations int
}

// record runs fn against p, bracketed by a ledger run when a ledger is
// configured.
func record(cfg *config.CatalogConfig, stage catalog.Stage, p *pipeline.Pipeline, fn func(*pipeline.Pipeline) (tally, error)) error {
	path := cfg.GetLedgerPath()
	if path == "" {
		_, err := fn(p)
		return err
	}

	ledger, err := db.NewDB(path)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer ledger.Close()

	cfgJSON, err := cfg.MarshalIndent()
	if err != nil {
		return err
	}
	runID, err := ledger.StartRun(stage, string(cfgJSON), version.String())
	if err != nil {
		return err
	}
	monitoring.Infof("ledger: run %s (%s) started", runID, stage)

	t, runErr := fn(p.WithLedger(ledger, runID))
	status := db.StatusSucceeded
	if runErr != nil {
		status = db.StatusFailed
	}
	if err := ledger.FinishRun(runID, status, t.images, t.annotations); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func writeLog(p *pipeline.Pipeline, cfg *config.CatalogConfig, stage catalog.Stage, failures []catalog.Failure, out io.Writer) {
	path, err := p.WriteFailureLog(cfg.GetLogsDir(), stage, failures)
	if err != nil {
		monitoring.Errorf("writing %s failure log: %v", stage, err)
		return
	}
	if path != "" {
		fmt.Fprintf(out, "%d %s failures written to %s\n", len(failures), stage, path)
	}
}

func runConvert(ctx context.Context, args []string, out io.Writer) error {
	fs, c := newFlagSet("convert", out)
	viaDir := fs.String("via", "", "directory of VIA annotation exports")
	videoDir := fs.String("videos", "", "directory of source videos")
	cocoDir := fs.String("coco", "", "output directory for per-source catalogs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "via", "videos", "coco"); err != nil {
		return err
	}
	cfg, err := c.load()
	if err != nil {
		return err
	}
	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}

	return record(cfg, catalog.StageConvert, p, func(p *pipeline.Pipeline) (tally, error) {
		res, err := p.ConvertAll(ctx, *viaDir, *videoDir, *cocoDir)
		if err != nil {
			return tally{}, err
		}
		var t tally
		for _, s := range res.Sources {
			t.images += s.Images
			t.annotations += s.Annotations
		}
		fmt.Fprintf(out, "converted %d sources (%d images, %d annotations), %d failed\n",
			len(res.Sources), t.images, t.annotations, len(res.Failures))
		writeLog(p, cfg, catalog.StageConvert, res.Failures, out)
		return t, nil
	})
}

func runMerge(_ context.Context, args []string, out io.Writer) error {
	fs, c := newFlagSet("merge", out)
	cocoDir := fs.String("coco", "", "directory of per-source catalogs")
	merged := fs.String("out", "", "merged catalog path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "coco", "out"); err != nil {
		return err
	}
	cfg, err := c.load()
	if err != nil {
		return err
	}
	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}

	return record(cfg, catalog.StageMerge, p, func(p *pipeline.Pipeline) (tally, error) {
		cat, failures, err := p.MergeAll(*cocoDir, *merged)
		writeLog(p, cfg, catalog.StageMerge, failures, out)
		if err != nil {
			return tally{}, err
		}
		fmt.Fprintf(out, "merged %d images and %d annotations into %s\n", len(cat.Images), len(cat.Annotations), *merged)
		return tally{len(cat.Images), len(cat.Annotations)}, nil
	})
}

func runFrames(ctx context.Context, args []string, out io.Writer) error {
	fs, c := newFlagSet("frames", out)
	viaDir := fs.String("via", "", "directory of VIA annotation exports")
	videoDir := fs.String("videos", "", "directory of source videos")
	framesDir := fs.String("frames", "", "output directory for frame images")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "via", "videos", "frames"); err != nil {
		return err
	}
	cfg, err := c.load()
	if err != nil {
		return err
	}
	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}

	return record(cfg, catalog.StageFrames, p, func(p *pipeline.Pipeline) (tally, error) {
		failures, err := p.ExtractAllFrames(ctx, *viaDir, *videoDir, *framesDir)
		writeLog(p, cfg, catalog.StageFrames, failures, out)
		if err != nil {
			return tally{}, err
		}
		fmt.Fprintf(out, "frames written to %s, %d videos failed\n", *framesDir, len(failures))
		return tally{}, nil
	})
}

func runVideoMap(_ context.Context, args []string, out io.Writer) error {
	fs, c := newFlagSet("videomap", out)
	viaDir := fs.String("via", "", "directory of VIA annotation exports")
	path := fs.String("out", "", "video map path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "via", "out"); err != nil {
		return err
	}
	cfg, err := c.load()
	if err != nil {
		return err
	}
	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}

	return record(cfg, stageVideoMap, p, func(p *pipeline.Pipeline) (tally, error) {
		vm, err := p.WriteVideoMap(*viaDir, *path)
		if err != nil {
			return tally{}, err
		}
		fmt.Fprintf(out, "%d videos written to %s\n", len(vm.Filenames), *path)
		return tally{}, nil
	})
}

func runAll(ctx context.Context, args []string, out io.Writer) error {
	fs, c := newFlagSet("run", out)
	var paths pipeline.Paths
	fs.StringVar(&paths.ViaDir, "via", "", "directory of VIA annotation exports")
	fs.StringVar(&paths.VideoDir, "videos", "", "directory of source videos")
	fs.StringVar(&paths.CocoDir, "coco", "", "output directory for per-source catalogs")
	fs.StringVar(&paths.MergedPath, "merged", "", "merged catalog path")
	fs.StringVar(&paths.FramesDir, "frames", "", "output directory for frame images")
	fs.StringVar(&paths.VideoMapPath, "videomap", "", "video map path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "via", "videos", "coco", "merged", "frames", "videomap"); err != nil {
		return err
	}
	cfg, err := c.load()
	if err != nil {
		return err
	}
	paths.LogsDir = cfg.GetLogsDir()
	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}

	return record(cfg, stageRun, p, func(p *pipeline.Pipeline) (tally, error) {
		sum, err := p.RunAll(ctx, paths)
		for _, path := range sum.LogFiles {
			fmt.Fprintf(out, "failures written to %s\n", path)
		}
		if err != nil {
			return tally{}, err
		}
		fmt.Fprintf(out, "catalog %s: %d images, %d annotations, %d failures\n",
			paths.MergedPath, len(sum.Merged.Images), len(sum.Merged.Annotations), sum.FailureCount())
		return tally{len(sum.Merged.Images), len(sum.Merged.Annotations)}, nil
	})
}

func runSplit(_ context.Context, args []string, out io.Writer) error {
	fs, c := newFlagSet("split", out)
	merged := fs.String("merged", "", "merged catalog path")
	videoMap := fs.String("videomap", "", "video map path")
	outDir := fs.String("out", "", "output directory for the split catalogs")
	train := fs.Float64("train", -1, "training share of videos (overrides train_fraction)")
	validation := fs.Float64("validation", -1, "validation share of videos (overrides validation_fraction)")
	seed := fs.Uint64("seed", 0, "shuffle seed (overrides split_seed; 0 picks one)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "merged", "videomap", "out"); err != nil {
		return err
	}
	cfg, err := c.load()
	if err != nil {
		return err
	}
	f := cfg.Fractions()
	if *train >= 0 {
		f.Train = *train
	}
	if *validation >= 0 {
		f.Validation = *validation
	}
	if *seed == 0 {
		*seed = cfg.GetSplitSeed()
	}
	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}

	return record(cfg, catalog.StageSplit, p, func(p *pipeline.Pipeline) (tally, error) {
		m, failures, err := p.Split(*merged, *videoMap, *outDir, f, *seed)
		writeLog(p, cfg, catalog.StageSplit, failures, out)
		if err != nil {
			return tally{}, err
		}
		var t tally
		for _, n := range split.Names() {
			t.images += len(m.Keys[n])
			fmt.Fprintf(out, "%-10s %3d videos %6d images\n", n, len(m.Videos[n]), len(m.Keys[n]))
		}
		fmt.Fprintf(out, "seed %d, %d unannotated images left out\n", m.Seed, len(m.Unannotated))
		return t, nil
	})
}

func runReport(_ context.Context, args []string, out io.Writer) error {
	fs, c := newFlagSet("report", out)
	path := fs.String("catalog", "", "catalog to summarise")
	splitDir := fs.String("split", "", "directory written by the split command")
	png := fs.String("png", "", "write a box area histogram to this PNG file")
	html := fs.String("html", "", "write an HTML chart page to this file")
	bins := fs.Int("bins", 40, "histogram bins")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "catalog"); err != nil {
		return err
	}
	cfg, err := c.load()
	if err != nil {
		return err
	}
	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}

	cat, err := p.LoadCatalog(*path)
	if err != nil {
		return err
	}
	r := report.Build(cat)
	if *splitDir != "" {
		for _, n := range split.Names() {
			subPath, err := security.JoinWithin(*splitDir, string(n)+".json")
			if err != nil {
				return err
			}
			sub, err := p.LoadCatalog(subPath)
			if err != nil {
				return err
			}
			r.AddSplit(string(n), sub)
		}
	}
	if err := r.WriteText(out); err != nil {
		return err
	}

	if *png != "" {
		data, err := report.AreaHistogram(cat, *bins)
		if err != nil {
			return err
		}
		if err := writeFile(p.FS, *png, data); err != nil {
			return err
		}
		fmt.Fprintf(out, "histogram written to %s\n", *png)
	}
	if *html != "" {
		var buf bytes.Buffer
		if err := report.RenderHTML(r, &buf); err != nil {
			return err
		}
		if err := writeFile(p.FS, *html, buf.Bytes()); err != nil {
			return err
		}
		fmt.Fprintf(out, "chart written to %s\n", *html)
	}
	return nil
}

func writeFile(fsys fsutil.FileSystem, path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return fsys.WriteFile(path, data, 0o644)
}

func runMigrate(_ context.Context, args []string, out io.Writer) error {
	fs, c := newFlagSet("migrate", out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := c.load()
	if err != nil {
		return err
	}
	path := cfg.GetLedgerPath()
	if path == "" {
		return errors.New("migrate: no ledger configured; pass -ledger or set ledger_path")
	}
	return db.RunMigrateCommand(fs.Args(), path, out)
}

func runVersion(_ context.Context, _ []string, out io.Writer) error {
	fmt.Fprintln(out, version.String())
	return nil
}
