//go:build windows

package platform

import (
	"context"
	"os/exec"
	"sync"

	"github.com/tailscale/walk"
)

type windowsApp struct {
	config     AppConfig
	app        *walk.Application
	notifyIcon *walk.NotifyIcon
	running    bool
	done       chan struct{}
	mu         sync.Mutex
	stopOnce   sync.Once
}

func NewApp(cfg AppConfig) App {
	return &windowsApp{config: cfg, done: make(chan struct{})}
}

func (a *windowsApp) Run() error {
	if a.config.NoTray {
		<-a.done
		return nil
	}

	var err error

	// InitApp must precede every other walk call.
	a.app, err = walk.InitApp()
	if err != nil {
		return err
	}

	walk.App().SetOrganizationName("Open2E")
	walk.App().SetProductName("Open2E")

	a.notifyIcon, err = walk.NewNotifyIcon()
	if err != nil {
		return err
	}

	if err := a.notifyIcon.SetToolTip("Open2E - Open Ended Evaluation"); err != nil {
		return err
	}
	_ = a.notifyIcon.SetIcon(walk.IconApplication())

	a.notifyIcon.MouseDown().Attach(func(x, y int, button walk.MouseButton) {
		if button == walk.LeftButton {
			open(a.config, a)
		}
	})

	openAction := walk.NewAction()
	_ = openAction.SetText("Open Open2E")
	openAction.Triggered().Attach(func() {
		open(a.config, a)
	})

	quitAction := walk.NewAction()
	_ = quitAction.SetText("Quit")
	quitAction.Triggered().Attach(func() {
		a.Stop()
	})

	actions := a.notifyIcon.ContextMenu().Actions()
	_ = actions.Add(openAction)
	_ = actions.Add(walk.NewSeparatorAction())
	_ = actions.Add(quitAction)

	if err := a.notifyIcon.SetVisible(true); err != nil {
		return err
	}

	a.mu.Lock()
	a.running = true
	a.mu.Unlock()

	a.app.Run()
	return nil
}

func (a *windowsApp) OpenBrowser(url string) error {
	cmd := exec.CommandContext(context.Background(), "rundll32", "url.dll,FileProtocolHandler", url)
	return cmd.Start()
}

func (a *windowsApp) Stop() {
	a.stopOnce.Do(func() {
		a.mu.Lock()
		if a.running {
			if a.notifyIcon != nil {
				a.notifyIcon.Dispose()
			}
			if a.app != nil {
				a.app.Exit(0)
			}
		}
		a.mu.Unlock()
		close(a.done)

		if a.config.OnQuit != nil {
			a.config.OnQuit()
		}
	})
}
