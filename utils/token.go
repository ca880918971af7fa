package utils

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// ServiceClaims is the credential carried by upstream services (the
// extraction pipeline) on ingestion calls. Tokens are minted per business.
type ServiceClaims struct {
	Service    string `json:"service"`
	BusinessId string `json:"business_id"`
	jwt.StandardClaims
}

var jwtSecret = []byte(getJwtSecret())

func getJwtSecret() string {
	secret := os.Getenv("API_SECRET")
	if secret == "" {
		return "DocLedger-Secret"
	}
	return secret
}

func tokenLifespanHours() int {
	hours, err := strconv.Atoi(os.Getenv("TOKEN_HOUR_LIFESPAN"))
	if err != nil || hours <= 0 {
		return 24
	}
	return hours
}

// JwtGenerate mints a service token scoped to one business.
func JwtGenerate(service string, businessId string) (string, error) {
	if service == "" || businessId == "" {
		return "", errors.New("service and business id are required")
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &ServiceClaims{
		Service:    service,
		BusinessId: businessId,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(time.Hour * time.Duration(tokenLifespanHours())).Unix(),
			IssuedAt:  time.Now().Unix(),
		},
	})

	return t.SignedString(jwtSecret)
}

// JwtValidate verifies a service token and returns its claims.
func JwtValidate(token string) (*ServiceClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &ServiceClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("there's a problem with the signing method")
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*ServiceClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.BusinessId == "" {
		return nil, errors.New("token has no business scope")
	}
	return claims, nil
}
