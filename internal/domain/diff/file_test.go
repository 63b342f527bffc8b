package diff

import "testing"

func TestDetectKind(t *testing.T) {
	tests := []struct {
		path string
		want Kind
	}{
		{"internal/service/review.go", KindGo},
		{"src/Main.java", KindJava},
		{"app/Model.kt", KindKotlin},
		{"scripts/load.py", KindPython},
		{"web/app.tsx", KindTypeScript},
		{"migrations/0001_init.sql", KindSQL},
		{"config/app.yaml", KindYAML},
		{"config/app.YML", KindYAML},
		{"package.json", KindJSON},
		{"build.gradle", KindGradle},
		{"README.md", KindMarkdown},
		{"Makefile", KindUnknown},
	}
	for _, tt := range tests {
		if got := DetectKind(tt.path); got != tt.want {
			t.Errorf("DetectKind(%q) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func TestIsSourceIsConfig(t *testing.T) {
	src := File{Path: "a.go", Kind: KindGo}
	if !src.IsSource() || src.IsConfig() {
		t.Error("go file should be source, not config")
	}
	cfg := File{Path: "a.yaml", Kind: KindYAML}
	if cfg.IsSource() || !cfg.IsConfig() {
		t.Error("yaml file should be config, not source")
	}
	md := File{Path: "a.md", Kind: KindMarkdown}
	if md.IsSource() || md.IsConfig() {
		t.Error("markdown is neither source nor config")
	}
}

func TestEstimateTokens(t *testing.T) {
	f := File{Patch: "12345678"} // 8 chars -> 2 tokens
	if got := f.EstimateTokens(); got != 2 {
		t.Errorf("EstimateTokens = %d, want 2", got)
	}
	// Full content takes precedence over the patch.
	f.Content = "1234"
	if got := f.EstimateTokens(); got != 1 {
		t.Errorf("EstimateTokens with content = %d, want 1", got)
	}
	if got := (File{}).EstimateTokens(); got != 0 {
		t.Errorf("EstimateTokens empty = %d, want 0", got)
	}
}
