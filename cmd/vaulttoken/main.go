package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"

	"AegisVault/internal/auth"
	"AegisVault/internal/config"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	subject := flag.String("sub", "", "principal address (0x...)")
	role := flag.String("role", auth.RoleUser, "user|oracle")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	flag.Parse()

	if err := issue(*configPath, *subject, *role, *ttl); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func issue(configPath, subject, role string, ttl time.Duration) error {
	subject = strings.TrimSpace(subject)
	if !common.IsHexAddress(subject) {
		return fmt.Errorf("--sub must be a hex address")
	}
	if role != auth.RoleUser && role != auth.RoleOracle {
		return fmt.Errorf("--role must be %s or %s", auth.RoleUser, auth.RoleOracle)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if ttl <= 0 {
		ttl = cfg.Auth.TokenTTL
	}

	j := auth.JWT{Secret: []byte(cfg.Auth.JWTSecret), TokenTTL: ttl, Issuer: cfg.Auth.Issuer}
	token, exp, err := j.Sign(auth.Claims{
		Role:             role,
		RegisteredClaims: jwt.RegisteredClaims{Subject: common.HexToAddress(subject).Hex()},
	})
	if err != nil {
		return err
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", exp.Format(time.RFC3339))
	return nil
}
