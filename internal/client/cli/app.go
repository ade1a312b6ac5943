package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/marketkeeper/internal/client/app"
	"github.com/dmitrijs2005/marketkeeper/internal/client/connectivity"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// App is the interactive front end over an initialized core.
type App struct {
	core   *app.Core
	reader *bufio.Reader
	out    io.Writer

	mu       sync.Mutex
	userName string
	mode     Mode
}

func NewApp(core *app.Core, in io.Reader, out io.Writer) *App {
	return &App{core: core, reader: bufio.NewReader(in), out: out}
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode != mode {
		a.mode = mode
		fmt.Fprintf(a.out, "\nSwitched to %s mode\n", mode)
	}
}

func (a *App) setUser(name string) {
	a.mu.Lock()
	a.userName = name
	a.mu.Unlock()
}

func (a *App) getStatus() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := ""
	if a.userName != "" {
		s = a.userName + " "
	}
	if a.mode != "" {
		s = s + string(a.mode)
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

func (a *App) isLoggedIn() bool {
	return a.core.Auth.Authenticated()
}

// Run blocks in the REPL until the user exits or the input ends.
func (a *App) Run(ctx context.Context) {
	fmt.Fprintln(a.out, "Welcome to marketkeeper CLI (type 'help' for commands)")

	if a.isLoggedIn() {
		if res, err := a.core.Auth.Me(ctx); err == nil {
			a.setUser(res.Data.DisplayName)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.watchConnectivity(ctx)

	runREPL(ctx, a, a.getStatus, a.reader)
}

// watchConnectivity keeps the prompt's mode in line with the probe.
func (a *App) watchConnectivity(ctx context.Context) {
	sub := a.core.Status.Subscribe(connectivity.Topic)
	defer sub.Unsubscribe()

	if a.core.Online.Online(ctx) {
		a.setMode(ModeOnline)
	} else {
		a.setMode(ModeOffline)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-sub.C:
			if !ok {
				return
			}
			if st.Online {
				a.setMode(ModeOnline)
			} else {
				a.setMode(ModeOffline)
			}
		}
	}
}
