package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/andresmejia3/facedetector/internal/config"
	"github.com/andresmejia3/facedetector/internal/detect"
	"github.com/andresmejia3/facedetector/internal/server"
	"github.com/andresmejia3/facedetector/internal/storage"
	"github.com/andresmejia3/facedetector/internal/utils"
	"github.com/spf13/cobra"
)

// ServeOptions mirrors the serve flags. Only flags the user set override the config.
type ServeOptions struct {
	Addr         string
	Workers      int
	Backlog      int
	CascadeDir   string
	StorageRoot  string
	Namespace    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxPayload   uint64
}

var serveOpts ServeOptions

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept images over TCP and return them with detected faces marked",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyServeFlags(cmd, Cfg, &serveOpts); err != nil {
			return err
		}
		return runServe(cmd)
	},
}

func init() {
	bindServeFlags(serveCmd, &serveOpts)
	rootCmd.AddCommand(serveCmd)
}

func bindServeFlags(cmd *cobra.Command, opts *ServeOptions) {
	d := config.Default()
	f := cmd.Flags()
	f.StringVarP(&opts.Addr, "addr", "a", d.Server.Addr, "Address to listen on")
	f.IntVarP(&opts.Workers, "workers", "w", d.Server.Workers, "Number of connection workers")
	f.IntVarP(&opts.Backlog, "backlog", "b", d.Server.Backlog, "Accepted connections allowed to wait for a worker")
	f.StringVarP(&opts.CascadeDir, "cascades", "c", d.Detection.CascadeDir, "Directory holding the OpenCV haarcascade_*.xml files (shipped with OpenCV under share/opencv4/haarcascades)")
	f.StringVarP(&opts.StorageRoot, "storage", "s", d.Storage.Root, "Root directory for received and processed images")
	f.StringVar(&opts.Namespace, "namespace", d.Storage.Namespace, "Storage layout: session (per-connection folders) or shared")
	f.DurationVar(&opts.ReadTimeout, "read-timeout", d.Server.ReadTimeout, "Longest wait for the peer to send more data (0 disables)")
	f.DurationVar(&opts.WriteTimeout, "write-timeout", d.Server.WriteTimeout, "Longest wait for the peer to accept more data (0 disables)")
	f.Uint64Var(&opts.MaxPayload, "max-payload", d.Server.MaxPayloadLength, "Largest accepted payload in bytes")
}

// applyServeFlags copies explicitly set flags over cfg and re-validates it.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config, opts *ServeOptions) error {
	f := cmd.Flags()
	if f.Changed("addr") {
		cfg.Server.Addr = opts.Addr
	}
	if f.Changed("workers") {
		cfg.Server.Workers = opts.Workers
	}
	if f.Changed("backlog") {
		cfg.Server.Backlog = opts.Backlog
	}
	if f.Changed("cascades") {
		cfg.Detection.CascadeDir = opts.CascadeDir
	}
	if f.Changed("storage") {
		cfg.Storage.Root = opts.StorageRoot
	}
	if f.Changed("namespace") {
		cfg.Storage.Namespace = opts.Namespace
	}
	if f.Changed("read-timeout") {
		cfg.Server.ReadTimeout = opts.ReadTimeout
	}
	if f.Changed("write-timeout") {
		cfg.Server.WriteTimeout = opts.WriteTimeout
	}
	if f.Changed("max-payload") {
		cfg.Server.MaxPayloadLength = opts.MaxPayload
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

// loadClassifiers builds the registry and prints the startup report.
func loadClassifiers(w io.Writer, dc config.DetectionConfig) (*detect.Registry, error) {
	reg, report := detect.LoadRegistry(detect.DefaultDescriptors(dc.CascadeDir, dc.Params()), detect.LoadCascade)
	printReport(w, report)
	if reg.Len() == 0 {
		return nil, fmt.Errorf("no classifier in %s could be loaded: %w", dc.CascadeDir, detect.ErrNoClassifiers)
	}
	return reg, nil
}

func printReport(w io.Writer, report detect.Report) {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "CLASSIFIER\tFILE\tSTATUS")
	fmt.Fprintln(tw, "----------\t----\t------")
	for _, res := range report {
		status := "✅ loaded"
		if !res.OK() {
			status = "❌ " + res.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", res.Descriptor.ID, res.Descriptor.Path, status)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d of %d classifiers available\n", report.Loaded(), len(report))
}

func runServe(cmd *cobra.Command) error {
	ctx := cmd.Context()

	log, err := newLogger(Cfg.Log)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	fmt.Fprintf(os.Stderr, "🔍 Loading classifiers from %s\n", Cfg.Detection.CascadeDir)
	reg, err := loadClassifiers(os.Stderr, Cfg.Detection)
	if err != nil {
		utils.Die("Cannot start without a face classifier", err)
	}
	defer reg.Close()

	st, err := storage.New(Cfg.Storage.Root, storage.Namespace(Cfg.Storage.Namespace))
	if err != nil {
		return err
	}

	var rec server.Recorder = server.NopRecorder{}
	db, err := openDB(ctx, false)
	if err != nil {
		return err
	}
	if db != nil {
		rec = db
		fmt.Fprintf(os.Stderr, "🗄️  Auditing transfers to PostgreSQL\n")
	}

	srv := server.New(server.Config{
		Addr:         Cfg.Server.Addr,
		Workers:      Cfg.Server.Workers,
		Backlog:      Cfg.Server.Backlog,
		ReadTimeout:  Cfg.Server.ReadTimeout,
		WriteTimeout: Cfg.Server.WriteTimeout,
		Limits:       Cfg.Server.Limits(),
	}, detect.NewPipeline(reg, Cfg.Detection.OverlapThreshold), st, rec, log)

	fmt.Fprintf(os.Stderr, "🚀 Serving on %s with %d workers (storage: %s, %s layout)\n",
		Cfg.Server.Addr, Cfg.Server.Workers, st.Root(), Cfg.Storage.Namespace)

	if err := srv.ListenAndServe(ctx); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "👋 Shutdown complete\n")
	return nil
}
