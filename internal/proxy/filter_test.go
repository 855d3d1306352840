package proxy

import "testing"

func TestFilterDenyBeatsEverything(t *testing.T) {
	f := NewFilter([]string{"*.example.com"}, []string{"evil.example.com"}, nil)
	if got := f.Check("evil.example.com", 443); got != Deny {
		t.Fatalf("Check() = %v, want Deny", got)
	}
	if got := f.Check("api.example.com", 443); got != Allow {
		t.Fatalf("Check() = %v, want Allow", got)
	}
}

func TestFilterInterceptShadowsAllow(t *testing.T) {
	f := NewFilter([]string{"*.example.com"}, nil, []string{"api.example.com"})
	if got := f.Check("api.example.com", 443); got != Intercept {
		t.Fatalf("Check() = %v, want Intercept", got)
	}
}

func TestFilterEmptyAllowListDefaultsAllow(t *testing.T) {
	f := NewFilter(nil, nil, nil)
	if got := f.Check("anything.com", 443); got != Allow {
		t.Fatalf("Check() = %v, want Allow", got)
	}
}

func TestFilterNonEmptyAllowListDeniesUnmatched(t *testing.T) {
	f := NewFilter([]string{"github.com"}, nil, nil)
	if got := f.Check("evil.com", 443); got != Deny {
		t.Fatalf("Check() = %v, want Deny", got)
	}
	if got := f.Check("github.com", 443); got != Allow {
		t.Fatalf("Check() = %v, want Allow", got)
	}
}

func TestFilterSubdomainPatternPrecision(t *testing.T) {
	f := NewFilter([]string{"*.example.com"}, nil, nil)
	if got := f.Check("example.com", 443); got != Deny {
		t.Fatalf("Check() = %v, want Deny for bare base domain", got)
	}
	if got := f.Check("api.example.com", 443); got != Allow {
		t.Fatalf("Check() = %v, want Allow for subdomain", got)
	}
}

func TestFilterCaseInsensitive(t *testing.T) {
	f := NewFilter([]string{"GitHub.com"}, nil, nil)
	if got := f.Check("GITHUB.COM", 443); got != Allow {
		t.Fatalf("Check() = %v, want Allow (case-insensitive)", got)
	}
}

func TestFilterDeterministic(t *testing.T) {
	f := NewFilter([]string{"github.com"}, []string{"evil.com"}, []string{"intercepted.com"})
	for i := 0; i < 5; i++ {
		if got := f.Check("github.com", 443); got != Allow {
			t.Fatalf("iteration %d: Check() = %v, want Allow", i, got)
		}
	}
}
