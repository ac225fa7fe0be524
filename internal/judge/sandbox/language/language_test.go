package language

import (
	"strings"
	"testing"

	"github.com/Majnu04/doflow-sub001/internal/judge/sandbox/profile"
	appErr "github.com/Majnu04/doflow-sub001/pkg/errors"
)

func TestRegistryGet(t *testing.T) {
	reg := NewDefaultRegistry()
	tests := []struct {
		id      string
		wantErr bool
	}{
		{id: "javascript"},
		{id: " Python "},
		{id: "cpp"},
		{id: "cobol", wantErr: true},
		{id: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			a, err := reg.Get(tt.id)
			if tt.wantErr {
				if appErr.GetCode(err) != appErr.LanguageNotSupported {
					t.Fatalf("expected LanguageNotSupported, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if a.Spec().ID != strings.ToLower(strings.TrimSpace(tt.id)) {
				t.Fatalf("unexpected adapter %s", a.Spec().ID)
			}
		})
	}
	if got := strings.Join(reg.IDs(), ","); got != "cpp,javascript,python" {
		t.Fatalf("unexpected ids %s", got)
	}
}

func TestRenderAppendsShim(t *testing.T) {
	code := "function solution(input) { return input; }"
	files, err := JavaScript().Render(code)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(files) != 1 || files[0].Name != "main.js" {
		t.Fatalf("unexpected files %+v", files)
	}
	content := string(files[0].Content)
	if !strings.HasPrefix(content, code) {
		t.Fatalf("user code must come first")
	}
	if !strings.Contains(content, `typeof solution !== "function"`) {
		t.Fatalf("shim missing")
	}

	files, err = CPP().Render("int main(){}")
	if err != nil {
		t.Fatalf("render cpp: %v", err)
	}
	if string(files[0].Content) != "int main(){}" {
		t.Fatalf("cpp source must be unchanged")
	}
}

func TestRenderRejectsEmptyCode(t *testing.T) {
	for _, code := range []string{"", "  \n\t", "a\x00b"} {
		if _, err := Python().Render(code); appErr.GetCode(err) != appErr.ValidationFailed {
			t.Fatalf("code %q: expected ValidationFailed, got %v", code, err)
		}
	}
}

func TestConfigureOverlaysAndAdds(t *testing.T) {
	reg := NewDefaultRegistry()
	err := reg.Configure([]profile.LanguageSpec{
		{ID: "javascript", TimeMultiplier: 1.5, DefaultTimeLimitMs: 3000},
		{ID: "ruby", SourceFile: "main.rb", RunCmdTpl: "ruby {src}"},
	})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	js, _ := reg.Get("javascript")
	if js.Spec().TimeMultiplier != 1.5 || js.Spec().DefaultTimeLimitMs != 3000 {
		t.Fatalf("overlay not applied: %+v", js.Spec())
	}
	if js.Spec().RunCmdTpl == "" {
		t.Fatalf("overlay must keep built-in command")
	}
	files, _ := js.Render("console.log(1)")
	if !strings.Contains(string(files[0].Content), "solution") {
		t.Fatalf("overlay must keep shim")
	}

	ruby, err := reg.Get("ruby")
	if err != nil {
		t.Fatalf("get ruby: %v", err)
	}
	files, _ = ruby.Render("puts 1")
	if string(files[0].Content) != "puts 1" {
		t.Fatalf("template adapter must not add a shim")
	}

	if err := reg.Configure([]profile.LanguageSpec{{ID: "go"}}); appErr.GetCode(err) != appErr.ValidationFailed {
		t.Fatalf("expected validation error for incomplete spec, got %v", err)
	}
}
