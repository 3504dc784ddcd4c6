package jenkins

import "testing"

func TestHashString(t *testing.T) {
	for input, expect := range map[string]uint32{
		``:                                       0x31b8a510,
		`a`:                                      0x58d68708,
		`abc`:                                    0x0e397631,
		`hello world!`:                           0x4b8946db, // exactly one block, goes through the tail only
		`Four score and seven years ago`:         0x17770551,
		`settings/hp_settings/bullet_damage.bin`: 0x92354326,
		`editor/entities/jc_vehicles/vehicle.ee`: 0xc5c0feb0,
	} {
		h := HashString(input)
		if h != expect {
			t.Errorf("Unexpected hash for input %q: expect=0x%08x result=0x%08x", input, expect, h)
		}
	}
}

func TestHashStringFoldsNonASCII(t *testing.T) {
	if HashString("café") != HashString("caf?") {
		t.Error("non-ASCII rune was not folded to '?'")
	}
}

func TestHashMatchesHashString(t *testing.T) {
	const name = "models/jc_characters/main_characters/rico/rico_body.modelc"
	if Hash([]byte(name)) != HashString(name) {
		t.Error("byte and string hash differ for ASCII input")
	}
}

func TestHashWithSeed(t *testing.T) {
	if HashWithSeed([]byte("abc"), 0) != Hash([]byte("abc")) {
		t.Error("zero seed differs from unseeded hash")
	}
	if HashWithSeed([]byte("abc"), 1) == Hash([]byte("abc")) {
		t.Error("seed has no effect on the result")
	}
}
