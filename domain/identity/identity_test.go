package identity_test

import (
	"testing"

	"github.com/artpar/tokengate/domain/identity"
)

func TestResolve_ForwardedFor_FirstHop(t *testing.T) {
	got := identity.Resolve(identity.RequestMeta{
		ForwardedFor: "203.0.113.7, 10.0.0.1, 10.0.0.2",
		RealIP:       "198.51.100.1",
		RemoteAddr:   "10.0.0.2:41234",
	})
	if got != "203.0.113.7" {
		t.Errorf("identity = %q, want first forwarded hop", got)
	}
}

func TestResolve_ForwardedFor_SingleHop(t *testing.T) {
	got := identity.Resolve(identity.RequestMeta{ForwardedFor: " 203.0.113.7 "})
	if got != "203.0.113.7" {
		t.Errorf("identity = %q, want trimmed hop", got)
	}
}

func TestResolve_RealIP_WhenNoForwardedFor(t *testing.T) {
	got := identity.Resolve(identity.RequestMeta{
		RealIP:     "198.51.100.1",
		RemoteAddr: "10.0.0.2:41234",
	})
	if got != "198.51.100.1" {
		t.Errorf("identity = %q, want real-ip header", got)
	}
}

func TestResolve_EmptyForwardedForFallsThrough(t *testing.T) {
	got := identity.Resolve(identity.RequestMeta{
		ForwardedFor: "  ",
		RealIP:       "198.51.100.1",
	})
	if got != "198.51.100.1" {
		t.Errorf("identity = %q, want real-ip when forwarded-for is blank", got)
	}
}

func TestResolve_RemoteAddr_StripsPort(t *testing.T) {
	got := identity.Resolve(identity.RequestMeta{RemoteAddr: "192.0.2.44:55012"})
	if got != "192.0.2.44" {
		t.Errorf("identity = %q, want host without port", got)
	}
}

func TestResolve_RemoteAddr_IPv6(t *testing.T) {
	got := identity.Resolve(identity.RequestMeta{RemoteAddr: "[2001:db8::1]:443"})
	if got != "2001:db8::1" {
		t.Errorf("identity = %q, want bare ipv6 host", got)
	}
}

func TestResolve_RemoteAddr_NoPort(t *testing.T) {
	got := identity.Resolve(identity.RequestMeta{RemoteAddr: "192.0.2.44"})
	if got != "192.0.2.44" {
		t.Errorf("identity = %q, want bare host", got)
	}
}

func TestResolve_NoSignals_ReturnsUnknown(t *testing.T) {
	got := identity.Resolve(identity.RequestMeta{})
	if got != identity.Unknown {
		t.Errorf("identity = %q, want %q", got, identity.Unknown)
	}
}
