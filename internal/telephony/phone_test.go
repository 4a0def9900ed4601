package telephony

import (
	"errors"
	"testing"

	"github.com/prophone/prophone/internal/testutil"
)

// --- Phone normalization ---

func TestNormalizePhone(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input, want string
	}{
		{"+1 415 555 2671", "+14155552671"},
		{"+1-415-555-2671", "+14155552671"},
		{"+44 20 7946 0958", "+442079460958"},
		{"+14155552671", "+14155552671"},
		{"+(1) 415-555-2671", "+14155552671"},
	}
	for _, c := range cases {
		got, err := NormalizePhone(c.input)
		testutil.NoError(t, err)
		testutil.Equal(t, c.want, got)
	}
}

func TestNormalizePhone_RejectsInvalid(t *testing.T) {
	t.Parallel()
	invalid := []string{
		"4155552671",        // no +
		"+1",                // too short
		"+1234567890123456", // too long (>15 digits)
		"+abc",              // non-digits
		"",                  // empty
		"not-a-phone",       // garbage
		"+1+4155552671",     // multiple + signs
		"++14155552671",     // double + at start
		"+١٢٣٤٥٦٧٨٩٠", // Arabic-Indic digits (non-ASCII)
	}
	for _, p := range invalid {
		_, err := NormalizePhone(p)
		if !errors.Is(err, ErrInvalidPhoneNumber) {
			t.Errorf("NormalizePhone(%q): got %v, want ErrInvalidPhoneNumber", p, err)
		}
	}
}

func TestFormatNational(t *testing.T) {
	t.Parallel()
	testutil.Equal(t, "(415) 555-2671", FormatNational("+14155552671"))
	// Unparseable input falls through unchanged so both display fields stay populated.
	testutil.Equal(t, "garbage", FormatNational("garbage"))
}

// --- Area codes ---

func TestValidAreaCode(t *testing.T) {
	t.Parallel()
	valid := []string{"212", "415", "000"}
	for _, a := range valid {
		testutil.True(t, ValidAreaCode(a), "area code %q should be valid", a)
	}
	invalid := []string{"12", "1234", "abcd", "21a", "", " 212", "2 12", "٢١٢"}
	for _, a := range invalid {
		testutil.False(t, ValidAreaCode(a), "area code %q should be invalid", a)
	}
}

// --- Phone country detection ---

func TestPhoneCountry(t *testing.T) {
	t.Parallel()
	cases := []struct {
		phone, want string
	}{
		{"+14155552671", "US"},
		{"+442079460958", "GB"},
		{"+919876543210", "IN"},
	}
	for _, c := range cases {
		got := PhoneCountry(c.phone)
		testutil.Equal(t, c.want, got)
	}
	testutil.Equal(t, "", PhoneCountry("not-a-phone"))
}

// --- Country allow-list ---

func TestIsAllowedCountry(t *testing.T) {
	t.Parallel()
	// Empty list allows all.
	testutil.True(t, IsAllowedCountry("+14155552671", nil), "empty list should allow all")

	allowed := []string{"US", "GB"}
	testutil.True(t, IsAllowedCountry("+14155552671", allowed), "US number should be allowed")
	testutil.True(t, IsAllowedCountry("+442079460958", allowed), "UK number should be allowed")
	testutil.False(t, IsAllowedCountry("+919876543210", allowed), "IN number should be blocked")

	// Canadian number blocked when only US is allowed (both share +1).
	testutil.False(t, IsAllowedCountry("+16135550123", []string{"US"}), "CA number should be blocked when only US allowed")

	// Unparseable phones are blocked when a list is set.
	testutil.False(t, IsAllowedCountry("garbage", []string{"US"}), "unparseable phone should be blocked")
}
