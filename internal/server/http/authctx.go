package httpserver

import "context"

type ctxKey string

const subjectKey ctxKey = "notes.subject"

// WithSubject stores the authenticated username in the request context.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// SubjectFromCtx fetches the authenticated username from the context.
func SubjectFromCtx(ctx context.Context) (string, bool) {
	v := ctx.Value(subjectKey)
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
