package codec

import "testing"

func TestToHex(t *testing.T) {
	got := ToHex([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	if got != "deadbeef" {
		t.Fatalf("got %q, want %q", got, "deadbeef")
	}
}

func TestFilterPrintableASCII(t *testing.T) {
	got := FilterPrintableASCII([]byte{0x00, 'h', 'i', 0x01, ' ', 0x7F, 0x80})
	want := "hi \x7f"
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestHexDump(t *testing.T) {
	got := HexDump([]byte{'h', 'i', 0x00})
	want := "(68 69 00) (hi.)"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
