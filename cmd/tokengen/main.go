// Command tokengen mints an access token signed with the configured secret,
// for calling the API locally without the auth service.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/slotbook/internal/config"
	"github.com/jwalitptl/slotbook/pkg/auth"
)

func main() {
	id := flag.String("id", "", "user id (required)")
	role := flag.String("role", auth.RoleCustomer, "CUSTOMER or SERVICE_PROVIDER")
	email := flag.String("email", "", "optional e-mail claim")
	flag.Parse()

	if *id == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *role != auth.RoleCustomer && *role != auth.RoleProvider {
		log.Fatal().Str("role", *role).Msg("unknown role")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	token, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer).
		GenerateAccessToken(auth.Principal{ID: *id, Role: *role, Email: *email})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to sign token")
	}
	fmt.Println(token)
}
