package models

// SourceCredentials carries the per-source token for one batch. The
// pipeline never acquires or refreshes tokens itself; an expired token
// surfaces as a fatal-for-batch error from the adapter.
type SourceCredentials struct {
	Token string `json:"token" binding:"required"`
}

// RunBatchRequest is the body of POST /api/sync/:source/run.
type RunBatchRequest struct {
	Credentials SourceCredentials `json:"credentials" binding:"required"`
}

// RunAllRequest carries credentials per source for POST /api/sync/run-all.
// Sources without an entry are skipped.
type RunAllRequest struct {
	Credentials map[TaskSource]SourceCredentials `json:"credentials" binding:"required"`
}

// RunAllResponse reports per-source outcomes; a failed source carries its
// error without blocking the others.
type RunAllResponse struct {
	Results []SourceOutcome `json:"results"`
}

// SourceOutcome is one source's result inside a run-all response.
type SourceOutcome struct {
	Source TaskSource   `json:"source"`
	Result *BatchResult `json:"result,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// CalendarPushRequest is the body of POST /api/calendar/push.
type CalendarPushRequest struct {
	Credentials SourceCredentials `json:"credentials" binding:"required"`
}
