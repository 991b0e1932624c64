//go:build !windows && !darwin

package platform

import (
	"os/exec"
	"sync"
)

// headlessApp has no tray. Run blocks until Stop.
type headlessApp struct {
	config   AppConfig
	done     chan struct{}
	stopOnce sync.Once
}

func NewApp(cfg AppConfig) App {
	return &headlessApp{
		config: cfg,
		done:   make(chan struct{}),
	}
}

func (a *headlessApp) Run() error {
	<-a.done
	return nil
}

func (a *headlessApp) OpenBrowser(url string) error {
	return exec.Command("xdg-open", url).Start()
}

func (a *headlessApp) Stop() {
	a.stopOnce.Do(func() {
		close(a.done)
		if a.config.OnQuit != nil {
			a.config.OnQuit()
		}
	})
}
