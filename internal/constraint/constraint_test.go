package constraint

import "testing"

func TestVerifyAddressRejectsABadByte(t *testing.T) {
	c := New(0)
	c.Add(NewBadBytes(0x0a), true)

	if c.VerifyAddress(0x00000a00, 4) {
		t.Error("expected an address containing 0x0a to fail verification")
	}
	if !c.VerifyAddress(0x00414141, 4) {
		t.Error("expected a clean address to pass verification")
	}
}

func TestVerifyAddressWithNoBadBytesAlwaysPasses(t *testing.T) {
	c := New(0)
	if !c.VerifyAddress(0xffffffff, 4) {
		t.Error("expected verification to pass when no bad bytes are configured")
	}
}

func TestAllowsReturnDefaultsToPermissive(t *testing.T) {
	c := New(0)
	for _, kind := range []int{0, 1, 2} {
		if !c.AllowsReturn(kind) {
			t.Errorf("kind %d: expected permissive default", kind)
		}
	}
}

func TestAllowsReturnHonorsTheReturnPredicate(t *testing.T) {
	c := New(0)
	c.Add(NewReturn(true, false, false), true)
	if !c.AllowsReturn(0) {
		t.Error("expected RET to be allowed")
	}
	if c.AllowsReturn(1) {
		t.Error("expected JMP to be forbidden")
	}
	if c.AllowsReturn(2) {
		t.Error("expected CALL to be forbidden")
	}
}

func TestValidPaddingAvoidsBadBytes(t *testing.T) {
	c := New(1)
	c.Add(NewBadBytes(0x00), true)

	ok, value := c.ValidPadding(4)
	if !ok {
		t.Fatal("expected a valid padding word to be found")
	}
	for i := 0; i < 4; i++ {
		if byte(value>>(8*uint(i))) == 0x00 {
			t.Errorf("padding word 0x%x contains a forbidden byte", value)
		}
	}
}

func TestKeepRegReportsOnlyKeptRegisters(t *testing.T) {
	c := New(0)
	c.Add(NewKeepRegs(1, 3), true)
	if !c.KeepReg(1) || !c.KeepReg(3) {
		t.Error("expected registers 1 and 3 to be kept")
	}
	if c.KeepReg(2) {
		t.Error("register 2 was never added to KeepRegs")
	}
}

func TestSpIncBoundsReflectMaxAndMinSpInc(t *testing.T) {
	c := New(0)
	c.Add(NewMaxSpInc(64), true)
	c.Add(NewMinSpInc(8), true)

	min, minOK, max, maxOK := c.SpIncBounds()
	if !minOK || min != 8 {
		t.Errorf("min = %d (ok=%v), want 8", min, minOK)
	}
	if !maxOK || max != 64 {
		t.Errorf("max = %d (ok=%v), want 64", max, maxOK)
	}
}
