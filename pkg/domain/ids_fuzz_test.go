package domain

import (
	"strings"
	"testing"
)

// FuzzParseAccountID checks that arbitrary external account references either
// parse to a value that round-trips or are rejected, without panicking.
func FuzzParseAccountID(f *testing.F) {
	f.Add("")
	f.Add("acct-42")
	f.Add("  padded  ")
	f.Add(strings.Repeat("x", 200))
	f.Add("'; DROP TABLE accounts;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		account, err := ParseAccountID(input)
		if err != nil {
			return
		}
		if account.IsNil() {
			t.Error("accepted an empty account id")
		}
		roundTrip, err2 := ParseAccountID(account.String())
		if err2 != nil {
			t.Errorf("accepted value failed round-trip: %v", err2)
		}
		if roundTrip != account {
			t.Error("round-trip changed the account id")
		}
	})
}

// FuzzParseCountryCode checks the alpha-2 normalization invariant: every
// accepted code is exactly two upper-case letters.
func FuzzParseCountryCode(f *testing.F) {
	f.Add("DE")
	f.Add("de")
	f.Add(" us ")
	f.Add("DEU")
	f.Add("1A")
	f.Add("")

	f.Fuzz(func(t *testing.T, input string) {
		code, err := ParseCountryCode(input)
		if err != nil {
			return
		}
		s := code.String()
		if len(s) != 2 {
			t.Errorf("accepted code %q is not two characters", s)
		}
		for _, r := range s {
			if r < 'A' || r > 'Z' {
				t.Errorf("accepted code %q is not upper-case letters", s)
			}
		}
	})
}
