package config

import "testing"

func TestExpandEnv(t *testing.T) {
	t.Setenv("COALESCE_SET", "hello")
	t.Setenv("COALESCE_EMPTY", "")

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"set var", "value: ${COALESCE_SET}", "value: hello"},
		{"unset var", "value: ${COALESCE_UNSET_XYZ}", "value: "},
		{"fallback when unset", "value: ${COALESCE_UNSET_XYZ:-fb}", "value: fb"},
		{"fallback ignored when set", "value: ${COALESCE_SET:-fb}", "value: hello"},
		{"fallback when empty", "value: ${COALESCE_EMPTY:-fb}", "value: fb"},
		{"empty fallback", "value: ${COALESCE_UNSET_XYZ:-}", "value: "},
		{"two refs", "${COALESCE_SET}/${COALESCE_SET}", "hello/hello"},
		{"no refs", "plain: text", "plain: text"},
		{"bare dollar untouched", "path: $COALESCE_SET/x", "path: $COALESCE_SET/x"},
		{"url fallback", "u: ${COALESCE_UNSET_XYZ:-redis://h:6379/0}", "u: redis://h:6379/0"},
	}
	for _, tc := range cases {
		if got := ExpandEnv(tc.input); got != tc.want {
			t.Errorf("%s: ExpandEnv(%q) = %q, want %q", tc.name, tc.input, got, tc.want)
		}
	}
}

func TestExpandEnvInsideYAMLDocument(t *testing.T) {
	t.Setenv("COALESCE_REDIS", "redis://10.0.0.9:6379")
	input := "storage:\n  backend: redis\n  redis_url: ${COALESCE_REDIS}\n"
	want := "storage:\n  backend: redis\n  redis_url: redis://10.0.0.9:6379\n"
	if got := ExpandEnv(input); got != want {
		t.Errorf("ExpandEnv = %q, want %q", got, want)
	}
}
