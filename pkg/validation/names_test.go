package validation

import (
	"strings"
	"testing"
)

func TestValidateNamespace(t *testing.T) {
	tests := []struct {
		name      string
		namespace string
		wantErr   bool
	}{
		// Valid namespaces
		{"simple", "prod", false},
		{"single char", "a", false},
		{"with digits", "team42", false},
		{"with hyphen", "kube-system", false},
		{"digits only", "123", false},
		{"max length", strings.Repeat("a", 63), false},

		// Invalid namespaces - injection attempts
		{"empty", "", true},
		{"flag injection", "-n", true},
		{"flag injection long", "--kubeconfig=/etc/evil", true},
		{"shell metacharacters", "prod; rm -rf /", true},
		{"newline", "prod\n--all-namespaces", true},
		{"uppercase", "Prod", true},
		{"underscore", "my_ns", true},
		{"dot", "prod.internal", true},
		{"spaces", "pr od", true},
		{"trailing hyphen", "prod-", true},
		{"leading hyphen", "-prod", true},
		{"too long", strings.Repeat("a", 64), true},
		{"unicode", "prodü", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNamespace(tt.namespace)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateNamespace(%q) error = %v, wantErr %v", tt.namespace, err, tt.wantErr)
			}
		})
	}
}

func TestValidateResourceName(t *testing.T) {
	tests := []struct {
		name     string
		resource string
		wantErr  bool
	}{
		// Valid names
		{"bare pod", "web-0", false},
		{"replicaset pod", "checkout-7d9fb4c6d-x2k9p", false},
		{"subdomain", "metrics.apps", false},
		{"single char", "a", false},
		{"max total length", strings.Repeat("a", 63) + "." + strings.Repeat("b", 63), false},

		// Invalid names
		{"empty", "", true},
		{"flag injection", "--all", true},
		{"uppercase", "Web-0", true},
		{"underscore", "web_0", true},
		{"trailing dot", "web.", true},
		{"double dot", "web..apps", true},
		{"segment too long", strings.Repeat("a", 64), true},
		{"total too long", strings.Repeat(strings.Repeat("a", 60)+".", 5), true},
		{"shell metacharacters", "web-0$(reboot)", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateResourceName(tt.resource)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateResourceName(%q) error = %v, wantErr %v", tt.resource, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeNamespace(t *testing.T) {
	tests := []struct {
		name      string
		namespace string
		want      string
		wantErr   bool
	}{
		{"lowercase passthrough", "prod", "prod", false},
		{"uppercase normalized", "PROD", "prod", false},
		{"mixed case", "Kube-System", "kube-system", false},
		{"whitespace trimmed", "  prod  ", "prod", false},
		{"invalid rejected", "my_ns", "", true},
		{"empty rejected", "   ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeNamespace(tt.namespace)
			if (err != nil) != tt.wantErr {
				t.Errorf("SanitizeNamespace(%q) error = %v, wantErr %v", tt.namespace, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("SanitizeNamespace(%q) = %q, want %q", tt.namespace, got, tt.want)
			}
		})
	}
}
