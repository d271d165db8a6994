package connstr

import "testing"

func TestParse_Valid(t *testing.T) {
	cases := []struct {
		raw  string
		want Endpoint
	}{
		{"udpin:0.0.0.0:14550", Endpoint{Kind: KindUDPIn, IP: "0.0.0.0", Port: 14550}},
		{"udpout:127.0.0.1:14551", Endpoint{Kind: KindUDPOut, IP: "127.0.0.1", Port: 14551}},
		{"tcpout:10.0.0.5:5760", Endpoint{Kind: KindTCPOut, IP: "10.0.0.5", Port: 5760}},
		{"serial:/dev/ttyUSB0:57600", Endpoint{Kind: KindSerial, Device: "/dev/ttyUSB0", Baud: 57600}},
	}

	for _, c := range cases {
		got, err := Parse(c.raw)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.raw, err)
		}
		if got != c.want {
			t.Fatalf("Parse(%q) = %+v, want %+v", c.raw, got, c.want)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []string{
		"",
		"udpin",
		"udpin:300.1.1.1:14550",
		"udpin:1.2.3.4:80",
		"udpin:1.2.3.4:70000",
		"serial::57600",
		"serial:/dev/ttyUSB0:0",
		"ftp:1.2.3.4:14550",
	}

	for _, raw := range cases {
		if _, err := Parse(raw); err == nil {
			t.Fatalf("Parse(%q) = nil error, want InvalidConnectionString", raw)
		}
	}
}
