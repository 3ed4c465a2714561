package introspect

import (
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestResolvePrecedence(t *testing.T) {
	tests := []struct {
		name       string
		in         Inputs
		wantIP     string
		wantSource Source
	}{
		{
			name:       "x-real-ip wins over everything",
			in:         Inputs{Remote: netip.MustParseAddr("198.51.100.9"), RealIP: "203.0.113.5", ForwardedFor: "1.2.3.4"},
			wantIP:     "203.0.113.5",
			wantSource: SourceRealIP,
		},
		{
			name:       "x-real-ip is trimmed",
			in:         Inputs{RealIP: "  203.0.113.5 \t"},
			wantIP:     "203.0.113.5",
			wantSource: SourceRealIP,
		},
		{
			name:       "socket wins over forwarded-for",
			in:         Inputs{Remote: netip.MustParseAddr("198.51.100.9"), ForwardedFor: "1.2.3.4, 5.6.7.8"},
			wantIP:     "198.51.100.9",
			wantSource: SourceRemote,
		},
		{
			name:       "first forwarded-for element",
			in:         Inputs{ForwardedFor: "1.2.3.4, 5.6.7.8"},
			wantIP:     "1.2.3.4",
			wantSource: SourceForwardedFor,
		},
		{
			name:       "no signals",
			in:         Inputs{},
			wantIP:     "127.0.0.1",
			wantSource: SourceDefault,
		},
		{
			name:       "malformed x-real-ip skipped",
			in:         Inputs{Remote: netip.MustParseAddr("192.0.2.1"), RealIP: "not-an-ip"},
			wantIP:     "192.0.2.1",
			wantSource: SourceRemote,
		},
		{
			name:       "malformed first forwarded-for element is not replaced by the second",
			in:         Inputs{ForwardedFor: "garbage, 5.6.7.8"},
			wantIP:     "127.0.0.1",
			wantSource: SourceDefault,
		},
		{
			name:       "x-real-ip with port is not a literal",
			in:         Inputs{RealIP: "203.0.113.5:80", ForwardedFor: "2001:db8::1"},
			wantIP:     "2001:db8::1",
			wantSource: SourceForwardedFor,
		},
		{
			name:       "ipv4-mapped socket address is unmapped",
			in:         Inputs{Remote: netip.MustParseAddr("::ffff:192.0.2.7")},
			wantIP:     "192.0.2.7",
			wantSource: SourceRemote,
		},
	}
	r, err := NewResolver()
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve(tt.in)
			if got.Addr.String() != tt.wantIP || got.Source != tt.wantSource {
				t.Errorf("Resolve() = %v (%v), want %v (%v)", got.Addr, got.Source, tt.wantIP, tt.wantSource)
			}
		})
	}
}

func TestNilBuilderUsesDefaultPrecedence(t *testing.T) {
	b := NewBuilder(nil)
	if diff := cmp.Diff(DefaultPrecedence, b.Resolver().Order()); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if got := b.Resolver().Resolve(Inputs{}); got.Addr != DefaultIP || got.Source != SourceDefault {
		t.Errorf("Resolve() = %v (%v), want %v", got.Addr, got.Source, DefaultIP)
	}
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ip", nil)
	r.RemoteAddr = "198.51.100.9:51234"
	r.Header.Add("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	res, _ := NewResolver()
	got := res.FromRequest(r)
	if got.Addr.String() != "198.51.100.9" || got.Source != SourceRemote {
		t.Errorf("FromRequest() = %v (%v)", got.Addr, got.Source)
	}

	r.RemoteAddr = "[2001:db8::5]:443"
	if got := res.FromRequest(r); got.Addr.String() != "2001:db8::5" {
		t.Errorf("FromRequest() ipv6 = %v", got.Addr)
	}

	r.RemoteAddr = "pipe"
	if got := res.FromRequest(r); got.Addr.String() != "1.2.3.4" {
		t.Errorf("FromRequest() with unparsable remote = %v", got.Addr)
	}
}

func TestParsePrecedence(t *testing.T) {
	tests := []struct {
		in      string
		want    []Source
		wantErr bool
	}{
		{in: "", want: DefaultPrecedence},
		{in: "remote, x-forwarded-for", want: []Source{SourceRemote, SourceForwardedFor}},
		{in: "X-Forwarded-For,x-real-ip,remote", want: []Source{SourceForwardedFor, SourceRealIP, SourceRemote}},
		{in: "remote,remote", wantErr: true},
		{in: "remote,default", wantErr: true},
		{in: "cf-connecting-ip", wantErr: true},
	}
	for _, tt := range tests {
		r, err := ParsePrecedence(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParsePrecedence(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePrecedence(%q) error = %v", tt.in, err)
			continue
		}
		if diff := cmp.Diff(tt.want, r.Order()); diff != "" {
			t.Errorf("ParsePrecedence(%q) order mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestCustomOrderAppliesConsistently(t *testing.T) {
	r, err := NewResolver(SourceRemote, SourceRealIP)
	if err != nil {
		t.Fatal(err)
	}
	in := Inputs{Remote: netip.MustParseAddr("192.0.2.1"), RealIP: "203.0.113.5", ForwardedFor: "1.2.3.4"}
	if got := r.Resolve(in); got.Source != SourceRemote {
		t.Errorf("Resolve() source = %v, want remote", got.Source)
	}
	in.Remote = netip.Addr{}
	if got := r.Resolve(in); got.Source != SourceRealIP {
		t.Errorf("Resolve() source = %v, want x-real-ip", got.Source)
	}
	in.RealIP = ""
	if got := r.Resolve(in); got.Source != SourceDefault {
		t.Errorf("forwarded-for not in order, got source %v", got.Source)
	}
}
