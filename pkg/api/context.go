package api

import (
	"context"
	"net/http"

	"github.com/zoe-analytics/zoe/pkg/apperr"
)

type contextKey string

const (
	ctxKeyUID  contextKey = "zoe.uid"
	ctxKeyRole contextKey = "zoe.role"
)

func callerFrom(r *http.Request) (uid, role string, err error) {
	uid, uidOK := r.Context().Value(ctxKeyUID).(string)
	role, roleOK := r.Context().Value(ctxKeyRole).(string)
	if !uidOK || !roleOK || uid == "" {
		return "", "", apperr.New(apperr.Auth, "missing or invalid credentials")
	}
	return uid, role, nil
}

func withCaller(ctx context.Context, uid, role string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyUID, uid)
	ctx = context.WithValue(ctx, ctxKeyRole, role)
	return ctx
}
