package client

import (
	"context"
	"os/exec"
	"strings"
)

// TokenSource yields a bearer token for the remote transport. Returning
// an error is not fatal to a dispatch: the request is sent
// unauthenticated and the remote side decides.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource returns a fixed token. An empty value means
// unauthenticated.
type StaticTokenSource string

func (s StaticTokenSource) Token(context.Context) (string, error) {
	return string(s), nil
}

// CommandTokenSource runs a command (typically
// "gcloud auth print-access-token") and uses its trimmed stdout as the
// token.
type CommandTokenSource struct {
	Name string
	Args []string
}

func (s CommandTokenSource) Token(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, s.Name, s.Args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
