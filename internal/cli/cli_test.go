package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"code.byted.org/khicago/kvmirror"
)

func newStore(t *testing.T) *kvmirror.Store {
	t.Helper()
	s := kvmirror.New("@cli:", kvmirror.WithPreload(false), kvmirror.WithSyncWrites())
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func run(t *testing.T, s *kvmirror.Store, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	if err := Run(context.Background(), s, args, &buf); err != nil {
		t.Fatalf("run %v: %v", args, err)
	}
	return buf.String()
}

func TestRunSetGet(t *testing.T) {
	s := newStore(t)

	run(t, s, "set", "name", "jean")
	run(t, s, "set", "-type", "number", "count", "42")
	run(t, s, "set", "-type", "json", "user", `{"id":1}`)

	if got := run(t, s, "get", "name", "count", "user"); got != "jean\n42\n{\"id\":1}\n" {
		t.Fatalf("get output = %q", got)
	}
	if got := run(t, s, "keys"); got != "name\ncount\nuser\n" {
		t.Fatalf("keys output = %q", got)
	}
}

func TestRunGetMissing(t *testing.T) {
	s := newStore(t)
	err := Run(context.Background(), s, []string{"get", "nope"}, &bytes.Buffer{})
	if !errors.Is(err, kvmirror.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRunSearchAndDump(t *testing.T) {
	s := newStore(t)
	run(t, s, "set", "user:1", "a")
	run(t, s, "set", "user:2", "b")
	run(t, s, "set", "team:1", "c")

	if got := run(t, s, "search", "user:*"); got != "user:1\ta\nuser:2\tb\n" {
		t.Fatalf("search output = %q", got)
	}
	if got := run(t, s, "search", "-regexp", `^team`); got != "team:1\tc\n" {
		t.Fatalf("regexp search output = %q", got)
	}

	dump := run(t, s, "dump")
	if !strings.Contains(dump, "team:1\t{\"type\":\"string\",\"value\":\"c\"}") {
		t.Fatalf("dump output = %q", dump)
	}
}

func TestRunRemoveAndClear(t *testing.T) {
	s := newStore(t)
	run(t, s, "set", "a", "1")
	run(t, s, "set", "b", "2")
	run(t, s, "set", "c", "3")

	run(t, s, "rm", "a", "b")
	if got := run(t, s, "keys"); got != "c\n" {
		t.Fatalf("keys after rm = %q", got)
	}
	run(t, s, "clear")
	if got := run(t, s, "keys"); got != "" {
		t.Fatalf("keys after clear = %q", got)
	}
}

func TestRunUsageErrors(t *testing.T) {
	s := newStore(t)
	cases := [][]string{
		nil,
		{"get"},
		{"rm"},
		{"set", "only-key"},
		{"search"},
		{"bogus"},
		{"set", "-bogus", "k", "v"},
		{"search", "-nope", "x"},
	}
	for _, args := range cases {
		err := Run(context.Background(), s, args, &bytes.Buffer{})
		if !errors.Is(err, ErrUsage) {
			t.Fatalf("args %v: err = %v, want ErrUsage", args, err)
		}
	}
}

func TestRunInvalidPattern(t *testing.T) {
	s := newStore(t)
	err := Run(context.Background(), s, []string{"search", "[a-"}, &bytes.Buffer{})
	if !errors.Is(err, kvmirror.ErrInvalidPattern) {
		t.Fatalf("err = %v, want ErrInvalidPattern", err)
	}
	err = Run(context.Background(), s, []string{"search", "-regexp", "("}, &bytes.Buffer{})
	if !errors.Is(err, kvmirror.ErrInvalidPattern) {
		t.Fatalf("err = %v, want ErrInvalidPattern", err)
	}
}

func TestRunRequiresStoreAndOutput(t *testing.T) {
	if err := Run(context.Background(), nil, []string{"keys"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for nil store")
	}
	if err := Run(context.Background(), newStore(t), []string{"keys"}, nil); err == nil {
		t.Fatal("expected error for nil output")
	}
}

func TestParseValue(t *testing.T) {
	cases := []struct {
		typ, text string
		want      kvmirror.Value
	}{
		{"string", "x", kvmirror.String("x")},
		{"number", "1.5", kvmirror.Number(1.5)},
		{"bool", "true", kvmirror.Bool(true)},
		{"null", "", kvmirror.Null()},
		{"date", "2024-03-01", kvmirror.Date(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))},
		{"date", "2024-03-01T10:00:00.123Z", kvmirror.Date(time.Date(2024, 3, 1, 10, 0, 0, 123e6, time.UTC))},
		{"json", `[1,2]`, kvmirror.MustObject([]any{1.0, 2.0})},
		{"json", `"text"`, kvmirror.String("text")},
	}
	for _, tc := range cases {
		got, err := ParseValue(tc.typ, tc.text)
		if err != nil {
			t.Fatalf("ParseValue(%q, %q): %v", tc.typ, tc.text, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("ParseValue(%q, %q) = %v, want %v", tc.typ, tc.text, got, tc.want)
		}
	}

	for _, bad := range [][2]string{{"number", "x"}, {"bool", "maybe"}, {"date", "yesterday"}, {"json", "{"}} {
		if _, err := ParseValue(bad[0], bad[1]); !errors.Is(err, kvmirror.ErrInvalidValue) {
			t.Fatalf("ParseValue(%q, %q) err = %v, want ErrInvalidValue", bad[0], bad[1], err)
		}
	}
	if _, err := ParseValue("blob", "x"); err == nil {
		t.Fatal("expected unknown type error")
	}
}
