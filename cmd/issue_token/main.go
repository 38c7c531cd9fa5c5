package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/fixora/condoguard/application/port/outbound"
	"github.com/fixora/condoguard/infrastructure/config"
	"github.com/fixora/condoguard/infrastructure/service/jwt"
)

// issue_token mints an access token for operators and for the
// authentication service that reports login events.
func main() {
	subject := flag.String("subject", "", "user or service ID (required)")
	role := flag.String("role", outbound.RoleAdmin, "role: admin or service")
	flag.Parse()

	if *subject == "" {
		log.Fatal("-subject is required")
	}
	if *role != outbound.RoleAdmin && *role != outbound.RoleService {
		log.Fatalf("unsupported role: %s", *role)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	tokenService, err := jwt.NewJWTService(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize JWT service: %v", err)
	}

	token, err := tokenService.GenerateAccessToken(outbound.TokenClaims{
		UserID:    *subject,
		Role:      *role,
		SessionID: uuid.NewString(),
	})
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}

	log.Printf("Issued %s token for %s, valid for %s", *role, *subject, cfg.AccessTokenTTL)
	fmt.Println(token)
}
