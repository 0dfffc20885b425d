package lito

import "testing"

func TestSingleByteInstructions(t *testing.T) {
	tests := []struct {
		name     string
		code     []byte
		expected int
	}{
		{"NOP", []byte{0x90}, 1},
		{"PUSH EAX", []byte{0x50}, 1},
		{"POP EAX", []byte{0x58}, 1},
		{"POP EDI", []byte{0x5F}, 1},
		{"RET", []byte{0xC3}, 1},
		{"INT3", []byte{0xCC}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			length, err := DisassembleLength(tt.code, 0, false)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if length != tt.expected {
				t.Errorf("expected length %d, got %d", tt.expected, length)
			}
		})
	}
}

func TestModRMInstructions(t *testing.T) {
	tests := []struct {
		name     string
		code     []byte
		expected int
	}{
		{"MOV EAX, EBX", []byte{0x89, 0xD8}, 2},
		{"MOV reg, [base+disp8]", []byte{0x8B, 0x40, 0x04}, 3},
		{"ADD EAX, EBX", []byte{0x01, 0xD8}, 2},
		{"XOR ECX, ECX", []byte{0x31, 0xC9}, 2},
		{"LEA EAX, [EBX+disp32]", []byte{0x8D, 0x83, 0x01, 0x02, 0x03, 0x04}, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			length, err := DisassembleLength(tt.code, 0, false)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if length != tt.expected {
				t.Errorf("expected length %d, got %d", tt.expected, length)
			}
		})
	}
}

func TestImmediateInstructions(t *testing.T) {
	tests := []struct {
		name     string
		code     []byte
		mode64   bool
		expected int
	}{
		{"MOV EAX, imm32", []byte{0xB8, 0x01, 0x02, 0x03, 0x04}, false, 5},
		{"MOV RAX, imm64 (REX.W)", append([]byte{0x48, 0xB8}, make([]byte, 8)...), true, 10},
		{"ADD EAX, imm32", []byte{0x05, 0x01, 0x02, 0x03, 0x04}, false, 5},
		{"ADD r/m32, imm8", []byte{0x83, 0xC0, 0x04}, false, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			length, err := DisassembleLength(tt.code, 0, tt.mode64)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if length != tt.expected {
				t.Errorf("expected length %d, got %d", tt.expected, length)
			}
		})
	}
}

func TestIsControlFlow(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want bool
	}{
		{"RET", []byte{0xC3}, true},
		{"RET imm16", []byte{0xC2, 0x04, 0x00}, true},
		{"NOP", []byte{0x90}, false},
		{"JMP reg (FF /4)", []byte{0xFF, 0xE0}, true},
		{"CALL reg (FF /2)", []byte{0xFF, 0xD0}, true},
		{"MOV EAX, ECX (FF-free)", []byte{0x89, 0xC8}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instr, err := Disassemble(tt.code, 0, false)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := instr.IsControlFlow(); got != tt.want {
				t.Errorf("IsControlFlow() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQuickLengthNeverStalls(t *testing.T) {
	// An undecodable byte still has to let a caller stepping forward
	// through the buffer progress by at least one byte.
	if n := QuickLength([]byte{0x0F, 0xFF}, 0, false); n < 1 {
		t.Errorf("QuickLength returned %d, want >= 1", n)
	}
}

func TestDisassembleErrorsOnTruncatedInput(t *testing.T) {
	// A MOV reg, imm32 opcode with no immediate bytes following it.
	if _, err := Disassemble([]byte{0xB8}, 0, false); err == nil {
		t.Error("expected an error decoding a truncated instruction")
	}
}
