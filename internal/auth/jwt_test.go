package auth

import (
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", "test-secret-test-secret-test-secret-test")
	os.Exit(m.Run())
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("password123")
	if err != nil {
		t.Fatal(err)
	}
	if hash == "password123" {
		t.Fatal("Hash must not equal the plaintext")
	}
	if err := CheckPassword(hash, "password123"); err != nil {
		t.Fatalf("Expected matching password to verify: %v", err)
	}
	if err := CheckPassword(hash, "wrong"); err == nil {
		t.Fatal("Expected mismatching password to fail")
	}
}

func TestAccessTokenRoundtrip(t *testing.T) {
	token, err := GenerateToken(42, "alice")
	if err != nil {
		t.Fatal(err)
	}

	claims, err := ValidateToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != 42 || claims.Username != "alice" {
		t.Fatalf("Unexpected claims: %+v", claims)
	}

	// A refresh token must not validate as an access token
	refresh, err := GenerateRefreshToken(42, "alice", 7)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ValidateToken(refresh); err == nil {
		t.Fatal("Refresh token accepted as access token")
	}
	if _, err := ValidateRefreshToken(refresh); err != nil {
		t.Fatalf("Refresh token failed its own validation: %v", err)
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	if _, err := ValidateToken("not-a-token"); err == nil {
		t.Fatal("Expected garbage token to be rejected")
	}
}
