package validation

import "testing"

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		want     error
	}{
		{"Abcdef12", nil},
		{"LongerPassword99", nil},
		{"short1A", ErrPasswordTooShort},
		{"alllowercase1", ErrPasswordTooWeak},
		{"ALLUPPERCASE1", ErrPasswordTooWeak},
		{"NoDigitsHere", ErrPasswordTooWeak},
		{"Password123", ErrPasswordCommon},
		{"Changeme", ErrPasswordTooWeak},
	}

	for _, tc := range tests {
		if got := ValidatePassword(tc.password); got != tc.want {
			t.Errorf("ValidatePassword(%q) = %v, want %v", tc.password, got, tc.want)
		}
	}
}

func TestValidateUsername(t *testing.T) {
	valid := []string{"alice", "bob_smith", "User123", "abc"}
	for _, name := range valid {
		if err := ValidateUsername(name); err != nil {
			t.Errorf("ValidateUsername(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"ab", "1alice", "alice-smith", "alice smith", "_alice", ""}
	for _, name := range invalid {
		if err := ValidateUsername(name); err == nil {
			t.Errorf("ValidateUsername(%q) = nil, want error", name)
		}
	}
}

func TestValidateApplicationName(t *testing.T) {
	valid := []string{"Firefox", "VS Code", "draw.io", "app-2", "Krita 5_2"}
	for _, name := range valid {
		if err := ValidateApplicationName(name); err != nil {
			t.Errorf("ValidateApplicationName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"", "<script>", "-leading", "name\x00null"}
	for _, name := range invalid {
		if err := ValidateApplicationName(name); err == nil {
			t.Errorf("ValidateApplicationName(%q) = nil, want error", name)
		}
	}
}

func TestValidateDescription(t *testing.T) {
	if err := ValidateDescription("A containerized web browser."); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	long := make([]byte, 2001)
	for i := range long {
		long[i] = 'a'
	}
	if err := ValidateDescription(string(long)); err != ErrInputTooLong {
		t.Errorf("expected ErrInputTooLong, got %v", err)
	}
}
