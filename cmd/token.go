package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/satriahrh/vidqa/internal/auth"
	"github.com/satriahrh/vidqa/internal/config"
)

// issueToken writes a client bearer token for subject, signed with the
// configured secret
func issueToken(w io.Writer, cfg *config.Config, subject string) error {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return errors.New("token subject is required")
	}
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set, the API accepts unauthenticated requests")
	}

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, auth.DefaultTokenTTL)
	if err != nil {
		return err
	}
	token, err := tokens.GenerateToken(subject)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	_, err = fmt.Fprintln(w, token)
	return err
}
