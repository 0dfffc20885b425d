package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/subfortress/ropforge/internal/arch"
)

var amd64Names = map[string]arch.Register{
	"rax": arch.RAX, "rbx": arch.RBX, "rcx": arch.RCX, "rdx": arch.RDX,
	"rsi": arch.RSI, "rdi": arch.RDI, "rbp": arch.RBP, "rsp": arch.RSP,
	"r8": arch.R8, "r9": arch.R9, "r10": arch.R10, "r11": arch.R11,
	"r12": arch.R12, "r13": arch.R13, "r14": arch.R14, "r15": arch.R15,
	"rip": arch.RIP,
}

var i386Names = map[string]arch.Register{
	"eax": arch.EAX, "ebx": arch.EBX, "ecx": arch.ECX, "edx": arch.EDX,
	"esi": arch.ESI, "edi": arch.EDI, "ebp": arch.EBP, "esp": arch.ESP,
	"eip": arch.EIP,
}

// ResolveArch turns c.Arch into the architecture descriptor the engine
// runs against.
func (c *BuildConfig) ResolveArch() (*arch.Architecture, error) {
	switch strings.ToLower(c.Arch) {
	case "amd64", "x86_64", "x64":
		return arch.AMD64(), nil
	case "i386", "x86":
		return arch.I386(), nil
	default:
		return nil, fmt.Errorf("config: unknown arch %q", c.Arch)
	}
}

// ResolveKeepRegs maps c.KeepRegs's register names to engine.Params'
// KeepRegs set for the given architecture.
func (c *BuildConfig) ResolveKeepRegs(a *arch.Architecture) (map[int]bool, error) {
	names := i386Names
	if a.WordBytes == 8 {
		names = amd64Names
	}
	out := make(map[int]bool, len(c.KeepRegs))
	for _, n := range c.KeepRegs {
		r, ok := names[strings.ToLower(n)]
		if !ok {
			return nil, fmt.Errorf("config: unknown register %q for %s", n, a.Name)
		}
		out[r] = true
	}
	return out, nil
}

// RegisterByName resolves a single register name (e.g. "rax") against
// a's register set, for callers that take a register on the command
// line rather than through a BuildConfig.
func RegisterByName(a *arch.Architecture, name string) (arch.Register, bool) {
	names := i386Names
	if a.WordBytes == 8 {
		names = amd64Names
	}
	r, ok := names[strings.ToLower(name)]
	return r, ok
}

// ResolveBadBytes parses c.BadBytes's "0xNN" strings into a byte set.
func (c *BuildConfig) ResolveBadBytes() (map[byte]bool, error) {
	out := make(map[byte]bool, len(c.BadBytes))
	for _, s := range c.BadBytes {
		v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 8)
		if err != nil {
			return nil, fmt.Errorf("config: bad byte %q: %w", s, err)
		}
		out[byte(v)] = true
	}
	return out, nil
}
