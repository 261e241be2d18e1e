package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gorustyt/vnavmesh/common"
	"github.com/gorustyt/vnavmesh/navmesh"
	"github.com/gorustyt/vnavmesh/scene"
)

const usage = `commands:
  zone NAME | zone -        switch zone, "-" leaves the current one
  ready on|off              toggle world readiness
  filter HEX                set the layout filter key
  festivals A B C D         set the active festivals (hex)
  reload | rebuild          reload the navmesh, rebuild ignores the cache
  at X Y Z                  set the agent position
  moveto X Y Z | flyto X Y Z
  stop                      cancel all path requests
  status | zones | help | quit`

func runAction(c *cli.Context) error {
	e, err := newEnv(c, envOptions{})
	if err != nil {
		return err
	}
	defer e.Close()

	s := newSession(e.mgr, e.world, c.App.Writer)
	g, ctx := errgroup.WithContext(c.Context)
	lines := make(chan string)
	go readLines(os.Stdin, lines)

	if addr := e.cfg.MetricsAddr; addr != "" {
		srv := &http.Server{Addr: addr, Handler: s.handler(e)}
		g.Go(func() error {
			e.log.Info("serving metrics", zap.String("addr", addr))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return s.loop(ctx, lines, e.cfg.TickInterval)
	})
	err = g.Wait()
	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

var errQuit = errors.New("quit")

func (s *session) handler(e *env) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		// the manager belongs to the tick goroutine; serve its last status line
		fmt.Fprintln(w, *s.status.Load())
	})
	return mux
}

// readLines forwards stdin lines until EOF, then closes out. It is not part
// of the errgroup because a blocked read cannot be interrupted.
func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		out <- sc.Text()
	}
}

// session owns the manager for the run command. All its methods run on the
// tick goroutine.
type session struct {
	mgr   *navmesh.Manager
	world *scene.StaticWorld
	out   io.Writer

	pos     common.Vec3
	pending []*navmesh.PathTask
	status  atomic.Pointer[string] // read by the HTTP handler
}

func newSession(mgr *navmesh.Manager, world *scene.StaticWorld, out io.Writer) *session {
	s := &session{mgr: mgr, world: world, out: out}
	s.publishStatus()
	return s
}

func (s *session) publishStatus() {
	line := s.mgr.Status()
	s.status.Store(&line)
}

func (s *session) loop(ctx context.Context, lines <-chan string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	fmt.Fprintln(s.out, usage)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return errQuit
			}
			if err := s.handle(line); err != nil {
				if errors.Is(err, errQuit) {
					return err
				}
				fmt.Fprintln(s.out, "error:", err)
			}
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *session) tick() {
	s.mgr.Update()
	s.reportFinished()
	s.publishStatus()
}

// reportFinished prints resolved path requests in submission order and moves
// the agent to the end of each successful path.
func (s *session) reportFinished() {
	for len(s.pending) > 0 {
		t := s.pending[0]
		points, err := t.Result()
		if errors.Is(err, navmesh.ErrPending) {
			return
		}
		s.pending = s.pending[1:]
		switch {
		case t.Cancelled():
			fmt.Fprintf(s.out, "path %s cancelled\n", t.ID)
		case err != nil:
			fmt.Fprintf(s.out, "path %s failed: %v\n", t.ID, err)
		default:
			parts := make([]string, len(points))
			for i, p := range points {
				parts[i] = formatVec(p)
			}
			fmt.Fprintf(s.out, "path %s: %s\n", t.ID, strings.Join(parts, " -> "))
			s.pos = points[len(points)-1]
		}
	}
}

func (s *session) handle(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "quit", "exit":
		return errQuit
	case "help":
		fmt.Fprintln(s.out, usage)
	case "status":
		fmt.Fprintln(s.out, s.mgr.Status())
		if err := s.mgr.LastError(); err != nil {
			fmt.Fprintln(s.out, "last error:", err)
		}
	case "zones":
		fmt.Fprintln(s.out, strings.Join(s.world.Zones(), " "))
	case "zone":
		if len(args) != 1 {
			return errors.New("usage: zone NAME")
		}
		name := args[0]
		if name == "-" {
			name = ""
		}
		return s.world.SetZone(name)
	case "ready":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return errors.New("usage: ready on|off")
		}
		s.world.SetReady(args[0] == "on")
	case "filter":
		if len(args) != 1 {
			return errors.New("usage: filter HEX")
		}
		key, err := strconv.ParseUint(args[0], 16, 32)
		if err != nil {
			return errors.Wrap(err, "filter")
		}
		s.world.SetFilter(uint32(key))
	case "festivals":
		var festivals [4]uint32
		if len(args) > len(festivals) {
			return errors.New("usage: festivals A B C D")
		}
		for i, a := range args {
			id, err := strconv.ParseUint(a, 16, 32)
			if err != nil {
				return errors.Wrapf(err, "festival %d", i)
			}
			festivals[i] = uint32(id)
		}
		s.world.SetFestivals(festivals)
	case "reload", "rebuild":
		return s.mgr.Reload(cmd == "reload")
	case "at":
		p, err := parseVec(strings.Join(args, " "))
		if err != nil {
			return err
		}
		s.pos = p
	case "moveto", "flyto":
		to, err := parseVec(strings.Join(args, " "))
		if err != nil {
			return err
		}
		t := s.mgr.QueryPath(s.pos, to, cmd == "flyto", context.Background())
		if t == nil {
			return navmesh.ErrNotReady
		}
		s.pending = append(s.pending, t)
		fmt.Fprintf(s.out, "path %s queued\n", t.ID)
	case "stop":
		return s.mgr.CancelAllQueries()
	default:
		return errors.Errorf("unknown command %q, try help", cmd)
	}
	return nil
}
