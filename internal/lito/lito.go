package lito

/*
 * Lito - x86/x64 instruction length disassembler
 *
 * Stream-level convenience wrappers over the Parser: decode a whole
 * buffer, or just the length of one instruction without keeping its
 * fields around. internal/gadgetdb builds on Disassemble and
 * IsControlFlow to find gadget windows and uses none of the helpers
 * in this file.
 */

import (
	"fmt"
)

// InstructionStream is a decoded view of a contiguous code buffer.
type InstructionStream struct {
	Code         []byte
	Instructions []*Instruction
	Mode64       bool
}

// NewInstructionStream creates a new instruction stream.
func NewInstructionStream(code []byte, mode64 bool) *InstructionStream {
	return &InstructionStream{
		Code:         code,
		Instructions: make([]*Instruction, 0),
		Mode64:       mode64,
	}
}

// ParseAll decodes every instruction in the stream, stopping at the
// first one that fails to decode.
func (s *InstructionStream) ParseAll() error {
	offset := 0

	for offset < len(s.Code) {
		instr, err := Disassemble(s.Code, offset, s.Mode64)
		if err != nil {
			return fmt.Errorf("failed to parse at offset %d: %w", offset, err)
		}

		s.Instructions = append(s.Instructions, instr)
		offset += int(instr.Length)
	}

	return nil
}

// GetTotalLength returns the combined length of all decoded instructions.
func (s *InstructionStream) GetTotalLength() int {
	total := 0
	for _, instr := range s.Instructions {
		total += int(instr.Length)
	}
	return total
}

// GetControlFlowInstructions returns only the control-flow instructions
// in the stream, in order.
func (s *InstructionStream) GetControlFlowInstructions() []*Instruction {
	controlFlow := make([]*Instruction, 0)
	for _, instr := range s.Instructions {
		if instr.IsControlFlow() {
			controlFlow = append(controlFlow, instr)
		}
	}
	return controlFlow
}

// QuickLength returns an instruction's length without keeping its
// decoded fields, for callers that only need to step over bytes.
// On a decode failure it returns 1 so a caller stepping forward always
// makes progress.
func QuickLength(code []byte, offset int, mode64 bool) int {
	length, err := DisassembleLength(code, offset, mode64)
	if err != nil {
		return 1
	}
	return length
}
