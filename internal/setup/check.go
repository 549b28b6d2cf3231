package setup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"tag-bridge/internal/engine"
	"tag-bridge/internal/logger"
	"tag-bridge/internal/profile"
)

type EnginePinger interface {
	Ping(ctx context.Context) error
}

type StatsSource interface {
	Stats(ctx context.Context) (map[string]any, error)
}

// Result is the outcome of one check. Critical failures make the setup unusable.
type Result struct {
	Name     string `json:"name"`
	OK       bool   `json:"ok"`
	Critical bool   `json:"critical"`
	Detail   string `json:"detail"`
}

type Report struct {
	Results []Result `json:"results"`
}

// Healthy reports whether every critical check passed.
func (r Report) Healthy() bool {
	for _, res := range r.Results {
		if res.Critical && !res.OK {
			return false
		}
	}
	return true
}

func (r Report) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder
	for _, res := range r.Results {
		mark := "OK  "
		if !res.OK {
			mark = "FAIL"
			if !res.Critical {
				mark = "WARN"
			}
		}
		fmt.Fprintf(&sb, "[%s] %-10s %s\n", mark, res.Name, res.Detail)
	}
	if r.Healthy() {
		sb.WriteString("setup looks good\n")
	} else {
		sb.WriteString("setup has critical problems\n")
	}
	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

type Options struct {
	Engine       EnginePinger
	Remote       StatsSource
	WorkflowPath string
	InputDir     string
	Profiles     *profile.Store
	Logger       *logger.Logger
}

// Checker validates that the bridge can run: engine reachable, workflow
// loadable, profile present and remote service reachable.
type Checker struct {
	opts Options
	log  *logger.Logger
}

func NewChecker(opts Options) *Checker {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Checker{opts: opts, log: log.With("component", "setup")}
}

func (c *Checker) Run(ctx context.Context) Report {
	rep := Report{Results: []Result{
		c.checkInputDir(),
		c.checkEngine(ctx),
		c.checkWorkflow(),
		c.checkProfile(),
		c.checkRemote(ctx),
	}}
	for _, r := range rep.Results {
		if !r.OK {
			c.log.Warn("setup check failed", "check", r.Name, "critical", r.Critical, "detail", r.Detail)
		}
	}
	return rep
}

func (c *Checker) checkInputDir() Result {
	res := Result{Name: "input_dir"}
	if c.opts.InputDir == "" {
		res.OK = true
		res.Detail = "not configured, images are passed by local path"
		return res
	}
	dir := filepath.Dir(filepath.Clean(c.opts.InputDir))
	info, err := os.Stat(dir)
	switch {
	case err != nil:
		res.Detail = fmt.Sprintf("engine installation not found at %s", dir)
	case !info.IsDir():
		res.Detail = fmt.Sprintf("%s is not a directory", dir)
	default:
		res.OK = true
		res.Detail = "engine installation found at " + dir
	}
	return res
}

func (c *Checker) checkEngine(ctx context.Context) Result {
	res := Result{Name: "engine", Critical: true}
	if c.opts.Engine == nil {
		res.Detail = "no engine client"
		return res
	}
	if err := c.opts.Engine.Ping(ctx); err != nil {
		res.Detail = "engine not reachable: " + err.Error()
		return res
	}
	res.OK = true
	res.Detail = "engine is running"
	return res
}

func (c *Checker) checkWorkflow() Result {
	res := Result{Name: "workflow", Critical: true}
	g, err := engine.LoadGraph(c.opts.WorkflowPath)
	if err != nil {
		res.Detail = err.Error()
		return res
	}
	res.OK = true
	res.Detail = fmt.Sprintf("workflow valid (%d nodes)", len(g))
	return res
}

func (c *Checker) checkProfile() Result {
	res := Result{Name: "profile"}
	if c.opts.Profiles == nil {
		res.Detail = "no profile store"
		return res
	}
	p, err := c.opts.Profiles.Load()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		res.Detail = "preference profile not found, run 'bridge profile build'"
	case err != nil:
		res.Detail = err.Error()
	default:
		res.OK = true
		res.Detail = fmt.Sprintf("profile loaded (%d liked, %d disliked)", p.TotalLiked, p.TotalDisliked)
	}
	return res
}

func (c *Checker) checkRemote(ctx context.Context) Result {
	res := Result{Name: "remote"}
	if c.opts.Remote == nil {
		res.Detail = "no remote client"
		return res
	}
	stats, err := c.opts.Remote.Stats(ctx)
	if err != nil {
		res.Detail = "remote service not reachable: " + err.Error()
		return res
	}
	res.OK = true
	res.Detail = fmt.Sprintf("remote service reachable (%d stats)", len(stats))
	return res
}
