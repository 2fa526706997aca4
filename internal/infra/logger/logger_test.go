package logger

import "testing"

func TestMaskIdentifier(t *testing.T) {
	cases := map[string]string{
		"":                     "",
		"john.doe@example.com": "joh***@example.com",
		"+1234567890":          "+12***7890",
		"treasury-ops":         "tr***ps",
		"bob":                  "***",
	}
	for in, want := range cases {
		if got := MaskIdentifier(in); got != want {
			t.Fatalf("MaskIdentifier(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMaskIP(t *testing.T) {
	if got := MaskIP("192.168.1.100"); got != "192.168.*.*" {
		t.Fatalf("unexpected ipv4 mask %q", got)
	}
	if got := MaskIP("2001:0db8:85a3:0000:0000:8a2e:0370:7334"); got != "2001:0db8:85a3:0000:*:*:*:*" {
		t.Fatalf("unexpected ipv6 mask %q", got)
	}
}

func TestMaskIPRejectsUnknownShapes(t *testing.T) {
	for _, in := range []string{"localhost", "10.0.1", "fe80::1"} {
		if got := MaskIP(in); got != "***" {
			t.Fatalf("MaskIP(%q) = %q, want ***", in, got)
		}
	}
}

func TestNewBuildsLoggerPerEnvironment(t *testing.T) {
	for _, env := range []string{"development", "production"} {
		log, err := New(env, "auction-registry")
		if err != nil {
			t.Fatalf("New(%q) returned error: %v", env, err)
		}
		if log == nil {
			t.Fatalf("New(%q) returned nil logger", env)
		}
	}
}
