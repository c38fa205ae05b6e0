package nlri

import "testing"

func TestAFSupported(t *testing.T) {
	cases := []struct {
		af   AF
		want bool
	}{
		{AF{AFIIPv4, SAFIUnicast}, true},
		{AF{AFIIPv6, SAFIUnicast}, true},
		{AF{AFIIPv4, SAFIMulticast}, true},
		{AF{AFIIPv6, SAFIMulticast}, true},
		{AF{AFI(99), SAFIUnicast}, false},
		{AF{AFIIPv4, SAFI(99)}, false},
	}
	for _, c := range cases {
		if got := c.af.Supported(); got != c.want {
			t.Errorf("%s.Supported() = %v, want %v", c.af, got, c.want)
		}
	}
}

func TestAFIMaxBits(t *testing.T) {
	if AFIIPv4.MaxBits() != 32 {
		t.Errorf("AFIIPv4.MaxBits() = %d, want 32", AFIIPv4.MaxBits())
	}
	if AFIIPv6.MaxBits() != 128 {
		t.Errorf("AFIIPv6.MaxBits() = %d, want 128", AFIIPv6.MaxBits())
	}
	if AFI(99).MaxBits() != 0 {
		t.Errorf("unrecognized AFI.MaxBits() = %d, want 0", AFI(99).MaxBits())
	}
}
