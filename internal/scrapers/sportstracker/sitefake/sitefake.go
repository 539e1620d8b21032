// Package sitefake simulates the parts of the Sports-Tracker UI the client
// touches on top of a fakedriver.Driver.
package sitefake

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"stgpx/internal/driver"
	"stgpx/internal/driver/fakedriver"
	"stgpx/internal/scrapers/sportstracker"
)

const BaseUrl = "https://www.sports-tracker.com/"

type Options struct {
	Username string
	Password string
	// workouts in the listing
	Activities int
	// workouts rendered per "Show more", defaults to 2
	PageSize int
	// correct submissions rejected before a login succeeds
	RejectLogins   int
	NoCookieBanner bool
	// the navigation menu starts closed after every page load
	MenuCollapsed bool
	// with MenuCollapsed, the toggle is rendered but never clickable
	MenuToggleCovered bool
	// "Show more" is rendered but never clickable
	StallPagination bool
	// listing indexes whose Export button never becomes clickable
	StuckExports map[int]bool
	// if set, every export writes a file here, colliding names get the
	// browser's " (n)" suffix
	DownloadDir string
}

type page int

const (
	pageHome page = iota
	pageDashboard
	pageWorkout
)

type Site struct {
	Driver *fakedriver.Driver

	opts Options
	sel  sportstracker.Selectors

	page        page
	workout     int
	cookies     bool
	loginOpen   bool
	loggedIn    bool
	accountOpen bool
	menuOpen    bool
	myWorkouts  bool
	shown       int
	editOpen    bool
	dialogOpen  bool

	LoginSubmissions int
	Logouts          int
	ShowMoreClicks   int
	// ids of exported workouts, in export order
	Exported []string
	// files written to DownloadDir
	Downloads []string
}

func New(opts Options) *Site {
	if opts.PageSize <= 0 {
		opts.PageSize = 2
	}
	s := &Site{
		opts:    opts,
		sel:     sportstracker.DefaultSelectors(),
		cookies: opts.NoCookieBanner,
	}
	s.Driver = fakedriver.New(s.route)

	d := s.Driver
	d.OnClick(s.sel.CookieDecline, func() error {
		s.cookies = true
		return s.render()
	})
	d.OnClick(s.sel.LoginOpen, func() error {
		s.loginOpen = true
		return s.render()
	})
	d.OnClick(s.sel.LoginSubmit, s.submitLogin)
	d.OnClick(s.sel.Account, func() error {
		s.accountOpen = true
		return s.render()
	})
	d.OnClick(s.sel.Logout, func() error {
		s.loggedIn = false
		s.accountOpen = false
		s.Logouts++
		return s.render()
	})
	d.OnClick(s.sel.MenuToggle, func() error {
		s.menuOpen = true
		return s.render()
	})
	d.OnClick(s.sel.MyWorkouts, func() error {
		s.myWorkouts = true
		s.shown = min(s.opts.PageSize, s.opts.Activities)
		return s.render()
	})
	d.OnClick(s.sel.ShowMore, func() error {
		s.ShowMoreClicks++
		s.shown = min(s.shown+s.opts.PageSize, s.opts.Activities)
		return s.render()
	})
	d.OnClick(s.sel.Edit, func() error {
		s.editOpen = true
		return s.render()
	})
	d.OnClick(s.sel.Export, s.export)
	d.OnKey(driver.KeyEscape, func() error {
		s.editOpen = false
		s.dialogOpen = false
		return s.render()
	})
	return s
}

// WorkoutID is the id of the workout at listing index i.
func WorkoutID(i int) string {
	return fmt.Sprintf("w%03d", i)
}

// WorkoutURL is the absolute url of the workout at listing index i.
func WorkoutURL(i int) string {
	return BaseUrl + "workout/fake-user/" + WorkoutID(i)
}

func (s *Site) LoggedIn() bool {
	return s.loggedIn
}

func (s *Site) route(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	base, _ := url.Parse(BaseUrl)
	if u.Host != base.Host {
		return "", fmt.Errorf("unknown host %q", u.Host)
	}

	s.menuOpen = false
	s.accountOpen = false
	s.editOpen = false
	s.dialogOpen = false

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	switch {
	case u.Path == "" || u.Path == "/":
		s.page = pageHome
	case segments[0] == "dashboard":
		s.page = pageDashboard
		s.myWorkouts = false
		s.shown = 0
	case segments[0] == "workout" && len(segments) == 3:
		idx := -1
		for i := 0; i < s.opts.Activities; i++ {
			if WorkoutID(i) == segments[2] {
				idx = i
			}
		}
		if idx < 0 {
			return "", fmt.Errorf("404: %s", u.Path)
		}
		s.page = pageWorkout
		s.workout = idx
	default:
		return "", fmt.Errorf("404: %s", u.Path)
	}
	return s.html(), nil
}

func (s *Site) render() error {
	return s.Driver.SetHTML(s.html())
}

func (s *Site) submitLogin() error {
	s.LoginSubmissions++
	username := s.Driver.Value(s.sel.Username)
	password := s.Driver.Value(s.sel.Password)
	valid := username == s.opts.Username && password == s.opts.Password
	if valid && s.LoginSubmissions > s.opts.RejectLogins {
		s.loggedIn = true
		s.loginOpen = false
	}
	return s.render()
}

func (s *Site) export() error {
	id := WorkoutID(s.workout)
	s.Exported = append(s.Exported, id)
	s.dialogOpen = true
	if s.opts.DownloadDir != "" {
		name, err := s.download(id)
		if err != nil {
			return err
		}
		s.Downloads = append(s.Downloads, name)
	}
	return s.render()
}

func (s *Site) download(id string) (string, error) {
	name := id + ".gpx"
	for n := 1; ; n++ {
		_, err := os.Stat(filepath.Join(s.opts.DownloadDir, name))
		if os.IsNotExist(err) {
			break
		}
		if err != nil {
			return "", err
		}
		name = fmt.Sprintf("%s (%d).gpx", id, n)
	}
	contents := fmt.Sprintf(`<?xml version="1.0"?><gpx version="1.1" creator="sitefake"><trk><name>%s</name></trk></gpx>`, id)
	err := os.WriteFile(filepath.Join(s.opts.DownloadDir, name), []byte(contents), 0644)
	return name, err
}

func (s *Site) html() string {
	var b strings.Builder
	b.WriteString("<html><body>\n")

	if !s.cookies {
		b.WriteString(`<div class="consent"><button>Decline All</button></div>` + "\n")
	}

	b.WriteString("<header>\n")
	if s.opts.MenuCollapsed && !s.menuOpen {
		attr := ""
		if s.opts.MenuToggleCovered {
			attr = " " + fakedriver.NotReadyAttr
		}
		fmt.Fprintf(&b, `<button class="nav-menu-toggle"%s>Menu</button>`+"\n", attr)
	} else {
		b.WriteString(`<nav><a href="/dashboard">Dashboard</a><a href="/">Explore</a></nav>` + "\n")
	}
	if s.loggedIn {
		b.WriteString(`<button ng-show="loggedInUser">fake-user</button>` + "\n")
		if s.accountOpen {
			b.WriteString(`<button>Log out</button>` + "\n")
		}
	} else {
		b.WriteString(`<button>Login</button>` + "\n")
		if s.loginOpen {
			b.WriteString(`<form>
<input placeholder="Email or username" value="">
<input type="password" placeholder="Password" value="">
<input type="submit" value="Login">
<span>Login with Facebook</span>
</form>` + "\n")
		}
	}
	b.WriteString("</header>\n")

	switch s.page {
	case pageDashboard:
		b.WriteString(`<div class="tabs"><span>Feed</span><span>My workouts</span></div>` + "\n")
		if s.myWorkouts {
			b.WriteString("<ul>\n")
			for i := 0; i < s.shown; i++ {
				fmt.Fprintf(&b, `<li class="workout-item"><a class="feed-card__link" href="/workout/fake-user/%s">Workout %d</a></li>`+"\n", WorkoutID(i), i+1)
			}
			b.WriteString("</ul>\n")
			if s.shown < s.opts.Activities || s.opts.StallPagination {
				attr := ""
				if s.opts.StallPagination {
					attr = " " + fakedriver.NotReadyAttr
				}
				fmt.Fprintf(&b, "<button%s>Show more</button>\n", attr)
			}
		}
	case pageWorkout:
		fmt.Fprintf(&b, "<h1>%s</h1>\n<button>Edit</button>\n", WorkoutID(s.workout))
		if s.editOpen {
			attr := ""
			if s.opts.StuckExports[s.workout] {
				attr = " " + fakedriver.NotReadyAttr
			}
			fmt.Fprintf(&b, `<div class="menu"><button%s>Export</button><button>Delete</button></div>`+"\n", attr)
		}
		if s.dialogOpen {
			b.WriteString(`<div class="dialog"><p>Download started</p><button>Cancel</button></div>` + "\n")
		}
	}

	b.WriteString("</body></html>\n")
	return b.String()
}
