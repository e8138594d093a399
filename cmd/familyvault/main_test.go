package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPrompterReadsLinesWhenNotATerminal(t *testing.T) {
	var out bytes.Buffer
	p := newPrompter(strings.NewReader("family-pw\r\nadmin1\n"), &out)

	first, err := p.secret("Family password: ")
	if err != nil {
		t.Fatalf("secret() error = %v", err)
	}
	second, err := p.secret("Admin password: ")
	if err != nil {
		t.Fatalf("secret() error = %v", err)
	}
	if first != "family-pw" || second != "admin1" {
		t.Errorf("secrets = %q, %q; want family-pw, admin1", first, second)
	}
	if out.Len() != 0 {
		t.Errorf("prompt written for non-terminal input: %q", out.String())
	}

	if _, err := p.secret("again: "); err == nil {
		t.Error("secret() on exhausted input error = nil, want EOF error")
	}
}

func TestPrompterAcceptsFinalLineWithoutNewline(t *testing.T) {
	p := newPrompter(strings.NewReader("only"), io.Discard)
	got, err := p.secret("pw: ")
	if err != nil {
		t.Fatalf("secret() error = %v", err)
	}
	if got != "only" {
		t.Errorf("secret() = %q, want only", got)
	}
}

func TestBlobKeygenCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blobs.key")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs([]string{"blob", "keygen", path})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out.String(), "Public key: age1") {
		t.Errorf("output = %q, want public key", out.String())
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("identity file not written: %v", err)
	}
}

func TestMigrateAndRegisterCommands(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DB_TYPE", "sqlite")
	t.Setenv("DB_PATH", filepath.Join(dir, "cli.db"))
	t.Setenv("BLOB_TYPE", "memory")
	t.Setenv("BCRYPT_COST", "4")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")

	run := func(stdin string, args ...string) (string, error) {
		var out bytes.Buffer
		rootCmd.SetIn(strings.NewReader(stdin))
		rootCmd.SetOut(&out)
		rootCmd.SetErr(io.Discard)
		rootCmd.SetArgs(args)
		err := rootCmd.Execute()
		return out.String(), err
	}
	t.Cleanup(func() {
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	out, err := run("", "migrate")
	if err != nil {
		t.Fatalf("migrate error = %v", err)
	}
	if !strings.Contains(out, "Schema at version") {
		t.Errorf("migrate output = %q", out)
	}

	out, err = run("family1\nalice1\n", "family", "register", "Smith", "--admin-name", "Alice", "--relationship", "Mother")
	if err != nil {
		t.Fatalf("family register error = %v", err)
	}
	if !strings.Contains(out, `Registered family "Smith"`) {
		t.Errorf("register output = %q", out)
	}

	if _, err := run("family1\nalice1\n", "family", "register", "Smith", "--admin-name", "Alice"); err == nil {
		t.Error("duplicate family register error = nil")
	}
}
