package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/dkeye/voicegate/internal/adapters/auth"
	"github.com/dkeye/voicegate/internal/config"
	"github.com/dkeye/voicegate/internal/domain"
)

// issueToken prints a member token signed with the configured secret.
func issueToken(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	validator, err := auth.NewJWTValidator(auth.Options{
		Secret:       cfg.Auth.Secret,
		SecretBase64: cfg.Auth.SecretBase64,
		Issuer:       cfg.Auth.Issuer,
	})
	if err != nil {
		return err
	}
	ident, err := domain.NewIdentity(domain.UserID(c.String("member")), c.String("nickname"), "")
	if err != nil {
		return err
	}
	token, err := validator.Issue(ident, c.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
