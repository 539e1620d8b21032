package commands

import (
	"time"

	"stgpx/internal/cleanup"
	"stgpx/internal/scrapers/sportstracker"
	"stgpx/lib/configutil"

	"golang.org/x/time/rate"
)

// Config is the tuning file, every field is optional.
type Config struct {
	BaseUrl   string                  `json:"base_url"`
	Selectors sportstracker.Selectors `json:"selectors"`
	Timeouts  struct {
		// seconds
		Short        float64 `json:"short"`
		Long         float64 `json:"long"`
		LoginAttempt float64 `json:"login_attempt"`
		Navigation   float64 `json:"navigation"`
	} `json:"timeouts"`
	Login struct {
		MaxAttempts int `json:"max_attempts"`
		// seconds, the delay between attempts is uniformly distributed
		// between the two
		BackoffMin float64 `json:"backoff_min"`
		BackoffMax float64 `json:"backoff_max"`
	} `json:"login"`
	MaxStalledProbes int `json:"max_stalled_probes"`
	// navigations per second, negative disables throttling
	NavigationRate   float64 `json:"navigation_rate"`
	CleanupExtension string  `json:"cleanup_extension"`
}

func defaultConfig() Config {
	timeouts := sportstracker.DefaultTimeouts()

	var c Config
	c.BaseUrl = sportstracker.DefaultBaseUrl
	c.Timeouts.Short = timeouts.Short.Seconds()
	c.Timeouts.Long = timeouts.Long.Seconds()
	c.Timeouts.LoginAttempt = timeouts.LoginAttempt.Seconds()
	c.Timeouts.Navigation = 30
	c.Login.MaxAttempts = sportstracker.DefaultMaxAttempts
	c.Login.BackoffMin = 1
	c.Login.BackoffMax = 3
	c.MaxStalledProbes = sportstracker.DefaultMaxStalledProbes
	c.NavigationRate = float64(sportstracker.DefaultNavigationRate)
	c.CleanupExtension = cleanup.DefaultExtension
	return c
}

// readConfig reads path (and its .local override), selectors are left
// alone so a partial override does not inherit pieces of the default.
func readConfig(path string) (Config, error) {
	return configutil.ReadWithDefaults(path, defaultConfig())
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (c Config) clientOptions() sportstracker.ClientOptions {
	navRate := rate.Limit(c.NavigationRate)
	if c.NavigationRate < 0 {
		navRate = rate.Inf
	}
	return sportstracker.ClientOptions{
		BaseUrl:   c.BaseUrl,
		Selectors: c.Selectors,
		Timeouts: sportstracker.Timeouts{
			Short:        seconds(c.Timeouts.Short),
			Long:         seconds(c.Timeouts.Long),
			LoginAttempt: seconds(c.Timeouts.LoginAttempt),
		},
		MaxAttempts:      c.Login.MaxAttempts,
		MaxStalledProbes: c.MaxStalledProbes,
		LoginBackOff:     sportstracker.UniformBackOff(seconds(c.Login.BackoffMin), seconds(c.Login.BackoffMax)),
		NavigationRate:   navRate,
	}
}
