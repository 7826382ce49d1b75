// Command cate-webapi calls a single method of a running Cate WebAPI service
// and prints its progress and result.
//
//	cate-webapi -config cate.toml -method get_data_sources -params '["esa_cci_odp"]'
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaharia-lab/cate/config"
	"github.com/shaharia-lab/cate/observability"
	"github.com/shaharia-lab/cate/tasks"
	"github.com/shaharia-lab/cate/webapi"
)

func main() {
	interrupts := make(chan os.Signal, 2)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)

	if err := run(context.Background(), os.Args[1:], os.Stdout, interrupts); err != nil {
		fmt.Fprintf(os.Stderr, "cate-webapi: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	url        string
	method     string
	params     string
	title      string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("cate-webapi", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "path to a TOML config file")
	fs.StringVar(&opts.url, "url", "", "WebSocket URL, overrides the configured service address")
	fs.StringVar(&opts.method, "method", "", "method to call")
	fs.StringVar(&opts.params, "params", "[]", "JSON array or object of call parameters")
	fs.StringVar(&opts.title, "title", "", "task title, defaults to the method name")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.method == "" {
		return nil, errors.New("-method is required")
	}
	if opts.title == "" {
		opts.title = opts.method
	}
	return opts, nil
}

func loadConfig(path string) (*config.WebAPIConfig, error) {
	if path == "" {
		cfg := config.Default()
		return &cfg, nil
	}
	return config.Load(path)
}

func run(ctx context.Context, args []string, stdout io.Writer, interrupts <-chan os.Signal) error {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}

	params := json.RawMessage(opts.params)
	if !json.Valid(params) {
		return fmt.Errorf("-params is not valid JSON: %s", opts.params)
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if cfg.Disabled {
		return errors.New("the WebAPI is disabled in the configuration")
	}

	logger, err := observability.NewLogger(cfg.Logging.Backend, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}

	storage, closeStorage, err := tasks.NewStorage(ctx, cfg.Tasks.Driver, cfg.Tasks.DSN, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStorage(); err != nil {
			logger.WithErr(err).Warn("Failed to close task storage")
		}
	}()

	url := opts.url
	if url == "" {
		url = cfg.WebSocketURL()
	}

	clientOpts := append(cfg.ClientOptions(),
		webapi.UseLogger(logger),
		webapi.UseOnWarning(func(w webapi.Warning) {
			logger.Warnf("WebAPI warning: %s", w)
		}),
	)
	client, err := webapi.Open(ctx, url, clientOpts...)
	if err != nil {
		return err
	}
	defer client.Close()

	tracker := tasks.NewTracker(client.ID(), storage, logger)
	job := tracker.Track(ctx, opts.title, func(onProgress webapi.ProgressHandler) *webapi.Job {
		return client.Call(opts.method, params, func(progress webapi.Progress) {
			onProgress(progress)
			printProgress(stdout, progress)
		})
	})

	cancelled := false
	for {
		select {
		case <-job.Done():
			return printResult(ctx, stdout, job)
		case <-ctx.Done():
			return ctx.Err()
		case sig := <-interrupts:
			if cancelled {
				return fmt.Errorf("interrupted by %s", sig)
			}
			cancelled = true
			logger.Infof("Received %s, cancelling job %d", sig, job.ID())
			if _, err := tracker.Cancel(job.ID()); err != nil {
				logger.WithErr(err).Warn("Failed to cancel job")
			}
		}
	}
}

func printProgress(w io.Writer, progress webapi.Progress) {
	if fraction := progress.Fraction(); fraction >= 0 {
		fmt.Fprintf(w, "[%3.0f%%] %s\n", fraction*100, progress.Message)
		return
	}
	fmt.Fprintf(w, "[....] %s\n", progress.Message)
}

func printResult(ctx context.Context, w io.Writer, job *webapi.Job) error {
	response, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("%s %s: %w", job.Request().Method, job.Status(), err)
	}

	var out any
	if err := json.Unmarshal(response, &out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	pretty, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format response: %w", err)
	}
	fmt.Fprintln(w, string(pretty))
	return nil
}
