package vault

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "simple", input: "physics", wantErr: false},
		{name: "with separators", input: "my-vault_2.0", wantErr: false},
		{name: "minimum length", input: "abc", wantErr: false},
		{name: "maximum length", input: strings.Repeat("a", 63), wantErr: false},
		{name: "too short", input: "ab", wantErr: true},
		{name: "too long", input: strings.Repeat("a", 64), wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "leading separator", input: "-physics", wantErr: true},
		{name: "trailing separator", input: "physics.", wantErr: true},
		{name: "space", input: "my vault", wantErr: true},
		{name: "slash", input: "a/b/c", wantErr: true},
		{name: "non ascii", input: "physík", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidVaultName) {
				t.Errorf("ValidateName(%q) error should wrap ErrInvalidVaultName, got %v", tt.input, err)
			}
		})
	}
}
