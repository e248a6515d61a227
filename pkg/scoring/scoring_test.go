package scoring

import "testing"

func TestSizePenalty(t *testing.T) {
	tests := []struct {
		name      string
		additions int
		deletions int
		want      int
	}{
		{"empty", 0, 0, 0},
		{"small", 50, 30, 0},
		{"just below first band", 99, 0, 0},
		{"first band lower bound", 60, 40, 5},
		{"medium", 150, 150, 10},
		{"second band upper edge", 299, 0, 5},
		{"second band lower bound", 300, 0, 10},
		{"third band upper edge", 400, 99, 10},
		{"third band lower bound", 400, 100, 20},
		{"large", 700, 500, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SizePenalty(tt.additions, tt.deletions); got != tt.want {
				t.Errorf("SizePenalty(%d, %d) = %d, want %d", tt.additions, tt.deletions, got, tt.want)
			}
		})
	}
}

func TestSizePenalty_Boundaries(t *testing.T) {
	want := map[int]int{99: 0, 100: 5, 299: 5, 300: 10, 499: 10, 500: 20}
	for total, penalty := range want {
		if got := SizePenalty(total, 0); got != penalty {
			t.Errorf("SizePenalty(%d, 0) = %d, want %d", total, got, penalty)
		}
		if got := SizePenalty(0, total); got != penalty {
			t.Errorf("SizePenalty(0, %d) = %d, want %d", total, got, penalty)
		}
	}
}

func TestHasTests(t *testing.T) {
	tests := []struct {
		name  string
		paths []string
		want  bool
	}{
		{"tests directory", []string{"src/lib", "tests/t"}, true},
		{"jest directory", []string{"src/c", "__tests__/c.test"}, true},
		{"test infix", []string{"src/u", "src/u.test.ts"}, true},
		{"no tests", []string{"src/main", "src/lib"}, false},
		{"nested tests directory", []string{"crates/core/tests/integration.rs"}, true},
		{"go test file", []string{"pkg/guardian/guardian_test.go"}, true},
		{"rust sibling test", []string{"src/feature.rs", "src/feature_test.rs"}, true},
		{"python test prefix", []string{"app/test_views.py"}, true},
		{"spec infix", []string{"web/app.spec.tsx"}, true},
		{"tests as file name", []string{"docs/tests"}, false},
		{"contest is not a test", []string{"src/contest.go"}, false},
		{"latest is not a test", []string{"src/latest_build.go"}, false},
		{"empty", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasTests(tt.paths); got != tt.want {
				t.Errorf("HasTests(%v) = %v, want %v", tt.paths, got, tt.want)
			}
		})
	}
}

func TestIsSingleScope(t *testing.T) {
	tests := []struct {
		name  string
		paths []string
		want  bool
	}{
		{"empty", nil, true},
		{"single path", []string{"a/x"}, true},
		{"two scopes", []string{"a/x", "b/y"}, false},
		{"same scope", []string{"src/main.rs", "src/lib.rs", "src/utils.rs"}, true},
		{"src and tests", []string{"src/main.rs", "tests/integration.rs"}, false},
		{"different roots", []string{"backend/src/main.rs", "frontend/src/app.tsx"}, false},
		{"root files differ", []string{"go.mod", "go.sum"}, false},
		{"root file matches dir", []string{"README.md", "README.md/x"}, true},
		{"leading slash", []string{"/src/a.go", "src/b.go"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSingleScope(tt.paths); got != tt.want {
				t.Errorf("IsSingleScope(%v) = %v, want %v", tt.paths, got, tt.want)
			}
		})
	}
}
