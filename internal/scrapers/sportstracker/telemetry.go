package sportstracker

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	report_client_open           = "client.open"
	report_client_cookie_banner  = "client.cookie-banner"
	report_client_login_attempt  = "client.login-attempt"
	report_client_login          = "client.login"
	report_client_logout         = "client.logout"
	report_client_menu           = "client.menu"
	report_client_enumerate      = "client.enumerate"
	report_client_enumerate_item = "client.enumerate-item"
	report_client_export         = "client.export"
	report_client_export_all     = "client.export-all"
	report_client_return         = "client.return-to-listing"
	report_client_snapshot       = "client.snapshot"
)

var tracer = otel.Tracer("stgpx/internal/scrapers/sportstracker")
var meter = otel.Meter("stgpx/internal/scrapers/sportstracker")

var exportCounter, _ = meter.Int64Counter(
	"stgpx.exports",
	metric.WithDescription("Activities the export workflow was run for, by result."),
)

var loginAttemptCounter, _ = meter.Int64Counter(
	"stgpx.login_attempts",
	metric.WithDescription("Submissions of the login form."),
)
