// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gogama/httpq"
	"github.com/gogama/httpq/metrics"
	"github.com/gogama/httpq/request"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sync/errgroup"
)

// A download is one fetched URL and the file it is written to.
type download struct {
	r    *request.Request
	name string
	bar  *mpb.Bar
}

func fetch(ctx *cli.Context) error {
	urls := []string(ctx.Args())
	if len(urls) == 0 {
		return cli.NewExitError("no url provided", 2)
	}
	p, err := parsePriority(priority)
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	cfg, logger, err := settings(ctx)
	if err != nil {
		return err
	}

	handlers := &httpq.HandlerGroup{}
	cfg.Handlers = handlers
	var reg *prometheus.Registry
	if metricsAddr != "" {
		reg = prometheus.NewRegistry()
		metrics.New(reg).Install(handlers)
	}
	s, err := httpq.New(cfg)
	if err != nil {
		return err
	}
	if reg != nil {
		metrics.RegisterScheduler(reg, s)
		stop := serveMetrics(metricsAddr, reg, logger)
		defer stop()
	}
	return run(s, urls, p)
}

func run(s *httpq.Scheduler, urls []string, p request.Priority) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := s.Start(); err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Close(closeCtx)
	}()

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}
	fs := afero.NewBasePathFs(afero.NewOsFs(), outputDir)

	var out io.Writer = os.Stdout
	if quiet {
		out = io.Discard
	}
	bars := mpb.NewWithContext(ctx, mpb.WithWidth(64), mpb.WithOutput(out))

	names := make(map[string]int)
	var downloads []*download
	for _, u := range urls {
		r, err := s.NewRequest(http.MethodGet, u)
		if err != nil {
			return err
		}
		r.Priority = p
		d := &download{r: r, name: uniqueName(names, fileName(r))}
		d.bar = newBar(bars, d.name)
		d.hook(fs)
		ok, err := s.Enqueue(r)
		if err != nil {
			return err
		}
		if !ok {
			d.bar.Abort(true)
			continue
		}
		downloads = append(downloads, d)
	}

	var g errgroup.Group
	errs := make([]error, len(downloads))
	for i, d := range downloads {
		g.Go(func() error {
			_, err := s.Wait(ctx, d.r)
			if err != nil {
				d.bar.Abort(false)
			} else {
				d.bar.SetTotal(-1, true)
			}
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()
	bars.Wait()

	var failed int
	for i, d := range downloads {
		e := d.r.Execution()
		if errs[i] != nil {
			failed++
			fmt.Printf("%-24s failed: %v\n", d.name, errs[i])
			continue
		}
		fmt.Printf("%-24s %s in %s\n", d.name, humanize.Bytes(uint64(e.BytesRead)), e.Duration().Round(time.Millisecond))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(downloads))
	}
	return nil
}

// hook makes d's Request write its response body into a file on fs
// and report progress on d's bar.
func (d *download) hook(fs afero.Fs) {
	d.r.Hooks.OnResponse = func(e *request.Execution, body io.Reader) error {
		if n := e.Response.ContentLength; n > 0 {
			d.bar.SetTotal(n, false)
		}
		f, err := fs.Create(d.name)
		if err != nil {
			return err
		}
		if _, err = io.Copy(f, body); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	}
	d.r.Hooks.OnProgress = func(_ *request.Execution, read, _ int64) {
		d.bar.SetCurrent(read)
	}
}

func newBar(p *mpb.Progress, name string) *mpb.Bar {
	return p.New(0,
		mpb.BarStyle().Lbound("╢").Filler("█").Tip("█").Padding("░").Rbound("╟"),
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DindentRight}),
			decor.OnComplete(
				decor.AverageETA(decor.ET_STYLE_GO, decor.WC{W: 4}), "done",
			),
		),
		mpb.AppendDecorators(
			decor.AverageSpeed(decor.SizeB1024(0), "% .2f"),
		),
	)
}

// fileName picks a local file name for r from the last element of its
// URL path.
func fileName(r *request.Request) string {
	name := path.Base(r.URL().Path)
	if name == "." || name == "/" || name == "" {
		return "index.html"
	}
	return name
}

func uniqueName(seen map[string]int, name string) string {
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	return name[:len(name)-len(ext)] + "." + strconv.Itoa(n) + ext
}

// serveMetrics serves reg on addr until the returned function is
// called.
func serveMetrics(addr string, reg *prometheus.Registry, logger logrus.FieldLogger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server failed")
		}
	}()
	logger.WithField("addr", addr).Info("serving metrics")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
