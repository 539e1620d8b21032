package roddriver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"stgpx/internal/components/telemetry"
	"stgpx/lib/snapshotutil"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Engine is a supported browser. rod speaks the Chrome DevTools Protocol so
// only Chromium based browsers are offered.
type Engine string

const (
	EngineChrome   Engine = "chrome"
	EngineChromium Engine = "chromium"
	EngineEdge     Engine = "edge"
)

var Engines = []Engine{EngineChrome, EngineChromium, EngineEdge}

var ErrNoEngine = errors.New("no browser engine selected")

func ParseEngine(value string) (Engine, error) {
	if value == "" {
		return "", ErrNoEngine
	}
	for _, e := range Engines {
		if strings.EqualFold(value, string(e)) {
			return e, nil
		}
	}
	return "", fmt.Errorf("unsupported browser engine %q, expected one of %v", value, Engines)
}

var engineBinaries = map[Engine][]string{
	EngineChrome: {
		"google-chrome",
		"google-chrome-stable",
		"chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		`C:\Program Files\Google\Chrome\Application\chrome.exe`,
	},
	EngineChromium: {
		"chromium",
		"chromium-browser",
		"/Applications/Chromium.app/Contents/MacOS/Chromium",
	},
	EngineEdge: {
		"microsoft-edge",
		"microsoft-edge-stable",
		"msedge",
		"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
		`C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`,
	},
}

// LookupEngine finds the executable of engine on this machine.
func LookupEngine(engine Engine) (string, error) {
	for _, candidate := range engineBinaries[engine] {
		if filepath.IsAbs(candidate) {
			_, err := os.Stat(candidate)
			if err == nil {
				return candidate, nil
			}
			continue
		}
		path, err := exec.LookPath(candidate)
		if err == nil {
			return path, nil
		}
	}
	if engine != EngineEdge {
		path, found := launcher.LookPath()
		if found {
			return path, nil
		}
	}
	return "", fmt.Errorf("could not find an executable for %s", engine)
}

type Options struct {
	Engine Engine
	// overrides the executable found by LookupEngine
	Bin string
	// if set, a managed browser is requested from this launcher service
	// (ws://host:7317) instead of starting a local process
	RemoteURL string
	Headless  bool
	// downloads are saved here without a save dialog, if empty the browser's
	// default behavior is kept
	DownloadDir       string
	NavigationTimeout time.Duration
	// may be nil
	Snapshots snapshotutil.Output
}

// Launch starts (or connects to) a browser and opens the tab every call of
// the returned driver works on.
func Launch(ctx context.Context, opts Options, tel telemetry.API) (*Driver, error) {
	tel = telemetry.NewScopedAPI("roddriver", tel)
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = time.Second * 30
	}

	var (
		browser *rod.Browser
		local   *launcher.Launcher
	)

	if opts.RemoteURL != "" {
		l, err := launcher.NewManaged(opts.RemoteURL)
		if err != nil {
			return nil, fmt.Errorf("connect to launcher service: %w", err)
		}
		l = l.Headless(opts.Headless)
		client, err := l.Client()
		if err != nil {
			return nil, fmt.Errorf("launch remote browser: %w", err)
		}
		browser = rod.New().Context(ctx).Client(client)
		tel.ReportInfo("using remote browser", opts.RemoteURL)
	} else {
		if opts.Engine == "" && opts.Bin == "" {
			return nil, ErrNoEngine
		}
		bin := opts.Bin
		if bin == "" {
			var err error
			bin, err = LookupEngine(opts.Engine)
			if err != nil {
				return nil, err
			}
		}
		tel.ReportInfo("launching browser", opts.Engine, bin)

		local = launcher.New().
			Context(ctx).
			Bin(bin).
			Headless(opts.Headless)
		controlUrl, err := local.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch %s: %w", bin, err)
		}
		browser = rod.New().Context(ctx).ControlURL(controlUrl)
	}

	err := browser.Connect()
	if err != nil {
		killLauncher(local)
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	d := &Driver{
		browser:    browser,
		launcher:   local,
		navTimeout: opts.NavigationTimeout,
		snapshots:  opts.Snapshots,
		tel:        tel,
	}

	if opts.DownloadDir != "" {
		dir, err := filepath.Abs(opts.DownloadDir)
		if err != nil {
			d.Close()
			return nil, err
		}
		err = proto.BrowserSetDownloadBehavior{
			Behavior:     proto.BrowserSetDownloadBehaviorBehaviorAllow,
			DownloadPath: dir,
		}.Call(browser)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("set download directory: %w", err)
		}
		tel.ReportDebug("downloads redirected", dir)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	d.page = page

	return d, nil
}

func killLauncher(l *launcher.Launcher) {
	if l == nil {
		return
	}
	l.Kill()
	l.Cleanup()
}
