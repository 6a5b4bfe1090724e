package serve

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/brimdata/raexec/api/client"
	"github.com/brimdata/raexec/cli"
	"github.com/brimdata/raexec/cmd/raexec/root"
	"github.com/brimdata/raexec/pkg/charm"
	"github.com/brimdata/raexec/runtime/memexec"
	"github.com/brimdata/raexec/service"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var Cmd = &charm.Spec{
	Name:  "serve",
	Usage: "serve [options] [plan.yaml ...]",
	Short: "serve plan execution over HTTP",
	Long: `
The serve command listens on the address given by -l and executes the plan
documents clients post to it. Tables in the documents named on the command
line are loaded before the service starts. Tables carried by posted
documents are added to the same catalog, so later plans may scan them.

Metrics are served at /metrics.`,
	New: New,
}

func init() {
	root.Raexec.Add(Cmd)
}

type Command struct {
	*root.Command
	conf       service.Config
	listenAddr string
}

func New(parent charm.Command, f *flag.FlagSet) (charm.Command, error) {
	c := &Command{Command: parent.(*root.Command)}
	f.Func("cors.origin", "CORS allowed origin (may be repeated)", func(s string) error {
		c.conf.CORSAllowedOrigins = append(c.conf.CORSAllowedOrigins, s)
		return nil
	})
	f.StringVar(&c.conf.DefaultResponseFormat, "defaultfmt", service.DefaultResponseFormat, "default response format (json, text, arrow)")
	f.StringVar(&c.listenAddr, "l", net.JoinHostPort("", strconv.Itoa(client.DefaultPort)), "[addr]:port to listen on")
	return c, nil
}

func (c *Command) Run(args []string) error {
	ctx, cleanup, err := c.Init()
	if err != nil {
		return err
	}
	defer cleanup()
	catalog := memexec.NewCatalog()
	for _, path := range args {
		doc, err := root.ReadDocument(path)
		if err != nil {
			return err
		}
		for _, t := range doc.Tables {
			catalog.Add(t.Name, t.Data.WithFragments(t.Fragments))
		}
	}
	registry := prometheus.NewRegistry()
	c.conf.Exec = c.ExecFlags.Exec
	c.conf.Memory = c.ExecFlags.Memory
	c.conf.Catalog = catalog
	c.conf.Cache = c.ExecFlags.Cache(registry)
	c.conf.Registry = registry
	c.conf.Logger = c.Logger
	c.conf.EngineLogger = c.LogFlags.Engine(c.Logger)
	c.conf.Version = cli.Version()
	core, err := service.NewCore(c.conf)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", c.listenAddr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:     core,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	c.Logger.Info("Listening", zap.Stringer("addr", ln.Addr()))
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		c.Logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return group.Wait()
}
