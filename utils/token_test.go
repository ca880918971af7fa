package utils

import (
	"strings"
	"testing"
)

func TestJwtRoundTrip(t *testing.T) {
	token, err := JwtGenerate("extraction", "biz-1")
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}

	claims, err := JwtValidate(token)
	if err != nil {
		t.Fatalf("JwtValidate: %v", err)
	}
	if claims.Service != "extraction" {
		t.Errorf("service = %q, want extraction", claims.Service)
	}
	if claims.BusinessId != "biz-1" {
		t.Errorf("business id = %q, want biz-1", claims.BusinessId)
	}
	if claims.ExpiresAt <= claims.IssuedAt {
		t.Error("token expires at or before issuance")
	}
}

func TestJwtGenerate_RequiresScope(t *testing.T) {
	if _, err := JwtGenerate("", "biz-1"); err == nil {
		t.Error("expected error for empty service")
	}
	if _, err := JwtGenerate("extraction", ""); err == nil {
		t.Error("expected error for empty business id")
	}
}

func TestJwtValidate_RejectsTampered(t *testing.T) {
	token, err := JwtGenerate("extraction", "biz-1")
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}

	// flip a character in the signature segment
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %d segments", len(parts))
	}
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	if _, err := JwtValidate(tampered); err == nil {
		t.Error("expected tampered token to be rejected")
	}
}

func TestJwtValidate_RejectsGarbage(t *testing.T) {
	if _, err := JwtValidate("not-a-token"); err == nil {
		t.Error("expected parse error")
	}
}
