package globpolicy

import "testing"

func TestExcludeWinsOverInclude(t *testing.T) {
	s := NewSet([]string{"**/.DS_Store"}, []string{"**/.DS_Store"}, nil)
	d := s.Evaluate(".DS_Store", false)
	if d.Visible {
		t.Fatalf("excluded path must not be visible even when also included")
	}
	if d.AlwaysIncluded {
		t.Fatalf("excluded path cannot be always-included")
	}
}

func TestIncludeMarksAlwaysIncluded(t *testing.T) {
	s := NewSet(nil, []string{"secrets/*.env"}, nil)
	d := s.Evaluate("secrets/prod.env", false)
	if !d.Visible || !d.AlwaysIncluded {
		t.Fatalf("included path should be visible and always-included: %+v", d)
	}
}

func TestNoRulesIsPermissive(t *testing.T) {
	s := NewSet(nil, nil, nil)
	d := s.Evaluate("anything/at/all.txt", false)
	if !d.Visible || d.AlwaysIncluded || d.Private {
		t.Fatalf("empty policy should be fully permissive: %+v", d)
	}
}

func TestPrivateFiles(t *testing.T) {
	s := NewSet(nil, nil, []string{"**/.env"})
	d := s.Evaluate("api/.env", false)
	if !d.Private {
		t.Fatalf(".env should be marked private")
	}
}
