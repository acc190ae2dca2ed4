package turn

import (
	"testing"
	"time"
)

func TestGenerateAndValidateCredentials(t *testing.T) {
	username, password := GenerateCredentials("shared-secret", "peer-1", time.Hour)

	if err := ValidateCredentials("shared-secret", username, password); err != nil {
		t.Fatalf("ValidateCredentials: %v", err)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	username, password := GenerateCredentials("shared-secret", "peer-1", time.Hour)

	if err := ValidateCredentials("other-secret", username, password); err == nil {
		t.Fatal("expected validation failure with wrong secret")
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	username, password := GenerateCredentials("shared-secret", "peer-1", -time.Minute)

	if err := ValidateCredentials("shared-secret", username, password); err == nil {
		t.Fatal("expected validation failure for expired credentials")
	}
}
