package config

import (
	"testing"

	"github.com/subfortress/ropforge/internal/arch"
)

func TestResolveArch(t *testing.T) {
	cases := map[string]int{"amd64": 8, "x86_64": 8, "i386": 4, "x86": 4}
	for name, wantWord := range cases {
		cfg := &BuildConfig{Arch: name}
		a, err := cfg.ResolveArch()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if a.WordBytes != wantWord {
			t.Errorf("%s: word size = %d, want %d", name, a.WordBytes, wantWord)
		}
	}
}

func TestResolveArchRejectsUnknown(t *testing.T) {
	cfg := &BuildConfig{Arch: "arm64"}
	if _, err := cfg.ResolveArch(); err == nil {
		t.Error("expected an error for an unsupported architecture")
	}
}

func TestResolveKeepRegs(t *testing.T) {
	cfg := &BuildConfig{Arch: "amd64", KeepRegs: []string{"RAX", "rdi"}}
	a, _ := cfg.ResolveArch()
	regs, err := cfg.ResolveKeepRegs(a)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !regs[arch.RAX] || !regs[arch.RDI] {
		t.Errorf("expected rax and rdi set, got %v", regs)
	}
	if len(regs) != 2 {
		t.Errorf("expected exactly 2 entries, got %d", len(regs))
	}
}

func TestResolveKeepRegsRejectsUnknownName(t *testing.T) {
	cfg := &BuildConfig{Arch: "amd64", KeepRegs: []string{"notareg"}}
	a, _ := cfg.ResolveArch()
	if _, err := cfg.ResolveKeepRegs(a); err == nil {
		t.Error("expected an error for an unknown register name")
	}
}

func TestResolveBadBytes(t *testing.T) {
	cfg := &BuildConfig{BadBytes: []string{"0x00", "0x0A", "ff"}}
	bad, err := cfg.ResolveBadBytes()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for _, b := range []byte{0x00, 0x0A, 0xFF} {
		if !bad[b] {
			t.Errorf("expected byte 0x%x to be marked bad", b)
		}
	}
}

func TestDefaultBuildConfigIsValid(t *testing.T) {
	cfg := DefaultBuildConfig()
	if _, err := cfg.ResolveArch(); err != nil {
		t.Fatalf("default config has an invalid arch: %v", err)
	}
}
