package cli

import (
	"github.com/spf13/cobra"

	"github.com/suredone/qdone/internal/backoff"
	"github.com/suredone/qdone/internal/config"
	"github.com/suredone/qdone/internal/dedup"
	"github.com/suredone/qdone/internal/enqueue"
	"github.com/suredone/qdone/internal/resolver"
	"github.com/suredone/qdone/internal/sqsapi"
	"github.com/suredone/qdone/internal/ui"
	"github.com/suredone/qdone/internal/urlcache"
	"github.com/suredone/qdone/internal/worker"
)

// globalFlags holds the persistent flags every subcommand shares, before
// translation into a config.Options value. Only one command's RunE ever
// reads it, so no synchronization is needed despite the shared pointer.
type globalFlags struct {
	prefix     string
	failSuffix string
	region     string
	quiet      bool
	verbose    bool
}

// options builds a config.Options from the documented defaults, overridden
// by whichever global flags were actually set.
func (g *globalFlags) options() config.Options {
	o := config.Default()
	if g.prefix != "" {
		o.Prefix = g.prefix
	}
	if g.failSuffix != "" {
		o.FailSuffix = g.failSuffix
	}
	o.Region = g.region
	o.Quiet = g.quiet
	o.Verbose = g.verbose
	return o
}

// app bundles the dependencies a subcommand wires together once its
// options are known. AWS connection is deferred to sqsConnect so commands
// that never touch the service (--help, parse-time validation errors)
// never require credentials.
type app struct {
	out *ui.Output
}

func newApp() *app {
	return &app{out: ui.DefaultOutput()}
}

func (a *app) pipeline(api sqsapi.API, o config.Options) *enqueue.Pipeline {
	res := resolver.New(api, urlcache.New())
	bc := backoff.New(backoff.WithMaxRetries(o.SendRetries))
	var store dedup.Store
	if o.ExternalDedup {
		store = dedup.NewMemoryStore()
	}
	return enqueue.New(api, res, bc, store)
}

func (a *app) loop(api sqsapi.API, sd *worker.Shutdown) *worker.Loop {
	res := resolver.New(api, urlcache.New())
	exec := worker.NewExecutor(api, a.out)
	return worker.NewLoop(api, res, exec, sd)
}

// sqsConnect opens a real connection to the hosted queue service for the
// given region, using cmd's context.
func sqsConnect(cmd *cobra.Command, region string) (*sqsapi.Client, error) {
	return sqsapi.Connect(cmd.Context(), region)
}
