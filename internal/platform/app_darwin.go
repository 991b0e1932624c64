//go:build darwin

package platform

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"text/template"

	"github.com/progrium/darwinkit/macos/appkit"
	"github.com/progrium/darwinkit/macos/foundation"
	"github.com/progrium/darwinkit/objc"
)

const (
	launchAgentLabel = "com.open2e.open2e"
	launchAgentPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.AppPath}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <false/>
</dict>
</plist>`
)

type macApp struct {
	config      AppConfig
	statusItem  appkit.StatusItem
	startupItem appkit.MenuItem
	running     bool
	done        chan struct{}
	mu          sync.Mutex
	stopOnce    sync.Once
}

func NewApp(cfg AppConfig) App {
	return &macApp{config: cfg, done: make(chan struct{})}
}

// Run must be called from the main OS thread.
func (a *macApp) Run() error {
	if a.config.NoTray {
		<-a.done
		return nil
	}

	objc.WithAutoreleasePool(func() {
		app := appkit.Application_SharedApplication()
		app.SetActivationPolicy(appkit.ApplicationActivationPolicyAccessory)

		a.statusItem = appkit.StatusBar_SystemStatusBar().StatusItemWithLength(appkit.VariableStatusItemLength)

		if button := a.statusItem.Button(); button.Ptr != nil {
			button.SetTitle("Open2E")
		}

		menu := appkit.NewMenu()

		openItem := appkit.NewMenuItemWithAction("Open Open2E", "o", func(sender objc.Object) {
			open(a.config, a)
		})
		menu.AddItem(openItem)

		menu.AddItem(appkit.MenuItem_SeparatorItem())

		a.startupItem = appkit.NewMenuItemWithAction(startupTitle(), "", func(sender objc.Object) {
			a.toggleStartup()
		})
		menu.AddItem(a.startupItem)

		menu.AddItem(appkit.MenuItem_SeparatorItem())

		quitItem := appkit.NewMenuItemWithAction("Quit", "q", func(sender objc.Object) {
			a.Stop()
		})
		menu.AddItem(quitItem)

		a.statusItem.SetMenu(menu)

		a.mu.Lock()
		a.running = true
		a.mu.Unlock()

		app.Run()
	})

	return nil
}

func startupTitle() string {
	if enabled, _ := IsStartupEnabled(); enabled {
		return "Disable Start at Login"
	}
	return "Enable Start at Login"
}

func (a *macApp) toggleStartup() {
	if enabled, _ := IsStartupEnabled(); enabled {
		_ = DisableStartup()
	} else if appPath, err := os.Executable(); err == nil {
		_ = EnableStartup(appPath)
	}

	if a.startupItem.Ptr != nil {
		a.startupItem.SetTitle(startupTitle())
	}
}

func (a *macApp) OpenBrowser(url string) error {
	nsURL := foundation.URL_URLWithString(url)
	if nsURL.Ptr == nil {
		return exec.Command("open", url).Start()
	}
	appkit.Workspace_SharedWorkspace().OpenURL(nsURL)
	return nil
}

func (a *macApp) Stop() {
	a.stopOnce.Do(func() {
		a.mu.Lock()
		wasRunning := a.running
		a.running = false
		a.mu.Unlock()

		if wasRunning {
			objc.WithAutoreleasePool(func() {
				appkit.Application_SharedApplication().Terminate(nil)
			})
		}
		close(a.done)

		if a.config.OnQuit != nil {
			a.config.OnQuit()
		}
	})
}

var plistTemplate = template.Must(template.New("plist").Parse(launchAgentPlist))

func launchAgentPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, "Library", "LaunchAgents", launchAgentLabel+".plist"), nil
}

// EnableStartup installs a launch agent that starts appPath at login.
func EnableStartup(appPath string) error {
	plistPath, err := launchAgentPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(plistPath), 0o755); err != nil {
		return fmt.Errorf("create LaunchAgents dir: %w", err)
	}

	var buf bytes.Buffer
	if err := plistTemplate.Execute(&buf, struct{ Label, AppPath string }{launchAgentLabel, appPath}); err != nil {
		return fmt.Errorf("render plist: %w", err)
	}
	if err := os.WriteFile(plistPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write plist: %w", err)
	}

	if err := exec.Command("launchctl", "load", plistPath).Run(); err != nil {
		return fmt.Errorf("launchctl load: %w", err)
	}
	return nil
}

// DisableStartup unloads and removes the launch agent.
func DisableStartup() error {
	plistPath, err := launchAgentPath()
	if err != nil {
		return err
	}
	if !fileExists(plistPath) {
		return nil
	}

	_ = exec.Command("launchctl", "unload", plistPath).Run()

	if err := os.Remove(plistPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove plist: %w", err)
	}
	return nil
}

// IsStartupEnabled reports whether the launch agent is installed.
func IsStartupEnabled() (bool, error) {
	plistPath, err := launchAgentPath()
	if err != nil {
		return false, err
	}
	return fileExists(plistPath), nil
}
