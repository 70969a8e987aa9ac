// cmd/gentoken/main.go: Emite un JWT de desarrollo firmado con JWT_SECRET.
// Uso: go run ./cmd/gentoken -user <uuid> -rol administrador
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"clinica/internal/config"
	"clinica/internal/middleware"

	"github.com/golang-jwt/jwt/v5"
)

func main() {
	userID := flag.String("user", "", "usuario id (uuid)")
	username := flag.String("username", "dev", "username claim")
	rol := flag.String("rol", middleware.RolAdministrador, "usuario | fisioterapeuta | administrador")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "-user is required")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	now := time.Now()
	claims := middleware.JWTClaims{
		UserID:   *userID,
		Username: *username,
		Rol:      *rol,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   *userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(*ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(signed)
}
