package escrow

import (
	"errors"
	"testing"
)

func TestParseReleaseMode(t *testing.T) {
	for _, v := range []string{"", "open"} {
		mode, err := ParseReleaseMode(v)
		if err != nil || mode != ReleaseOpen {
			t.Fatalf("ParseReleaseMode(%q) = %v, %v", v, mode, err)
		}
	}
	mode, err := ParseReleaseMode("parties")
	if err != nil || mode != ReleaseParties {
		t.Fatalf("ParseReleaseMode(parties) = %v, %v", mode, err)
	}
	if _, err := ParseReleaseMode("everyone"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestAllowRelease(t *testing.T) {
	trade := baseTrade()
	open := Policy{Release: ReleaseOpen}
	if !open.allowRelease(trade, testOutsider) {
		t.Fatalf("open policy must allow any caller")
	}
	parties := Policy{Release: ReleaseParties}
	for _, caller := range [][20]byte{testBuyer, testSeller, testVerifier} {
		if !parties.allowRelease(trade, caller) {
			t.Fatalf("parties policy must allow trade parties")
		}
	}
	if parties.allowRelease(trade, testOutsider) {
		t.Fatalf("parties policy must reject outsiders")
	}
	if parties.allowRelease(trade, testArbitrator) {
		t.Fatalf("parties policy must not grant the arbitrator release rights")
	}
}
