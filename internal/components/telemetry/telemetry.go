package telemetry

// API is where every component sends its logs. It is passed in explicitly
// so tests can swap in a Recorder and assert on what was reported.
type API interface {
	// ReportBroken reports a component that failed and needs attention.
	//
	// id names the component and the operation, not the line that failed:
	// an Export button that never becomes clickable inside ExportAll is
	// reported as "client.export-all", the failing step goes into params
	// or the wrapped error. ids are lowercase, dots separate a component
	// from its method and dashes join words.
	ReportBroken(id string, params ...any)

	// ReportWarning reports something unexpected that the caller recovered
	// from, ids follow ReportBroken.
	ReportWarning(id string, params ...any)

	// ReportInfo reports progress someone running the tool wants to see.
	ReportInfo(msg string, params ...any)

	// ReportDebug reports details hidden unless asked for.
	ReportDebug(msg string, params ...any)

	// ReportCount reports the current value of a counter.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id and message with a namespace, usually the
// package the reports come from.
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) scoped(id string) string {
	return s.namespace + ": " + id
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(s.scoped(id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(s.scoped(id), params...)
}

func (s ScopedAPI) ReportInfo(msg string, params ...any) {
	s.inner.ReportInfo(s.scoped(msg), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(s.scoped(msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(s.scoped(id), count)
}
