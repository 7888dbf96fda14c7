package amrsweep

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSessionName(t *testing.T) {
	got := SessionName("7", "2000", "295", -170, 140, 3)
	if got != "7_2000G_295K_-170to140deg_by3" {
		t.Errorf("SessionName = %q", got)
	}
	if got := SessionName("12", "50", "4.2", 0, 90, 0.5); got != "12_50G_4.2K_0to90deg_by0.5" {
		t.Errorf("SessionName = %q", got)
	}
}

func testSession() Session {
	return Session{
		RootDir:    "/data/amr",
		Sample:     SampleInfo{SampleID: "NiFe-7", FieldStrength: "2000", Temperature: "295"},
		StartAngle: -170,
		EndAngle:   140,
		Increment:  3,
	}
}

func TestSessionReview(t *testing.T) {
	t.Run("confirmed by pressing enter", func(t *testing.T) {
		var out bytes.Buffer
		in := strings.NewReader("\n\n\n\n\n7\n\n")
		name, err := testSession().Review(NewPrompter(in, &out))
		if err != nil {
			t.Fatalf("Review failed: %v", err)
		}
		if name != "7_2000G_295K_-170to140deg_by3" {
			t.Errorf("name = %q", name)
		}
		for _, want := range []string{"Magnetic Field: 2000", "Temperature: 295", "Sample Name: NiFe-7", "-170deg to 140deg by 3", "OK? -- 7_2000G_295K_-170to140deg_by3"} {
			if !strings.Contains(out.String(), want) {
				t.Errorf("prompt output missing %q", want)
			}
		}
	})

	t.Run("operator rejects a value", func(t *testing.T) {
		in := strings.NewReader("\nn\n")
		if _, err := testSession().Review(NewPrompter(in, &bytes.Buffer{})); err == nil {
			t.Error("expected error when operator answers n")
		}
	})

	t.Run("measurement id required", func(t *testing.T) {
		in := strings.NewReader("\n\n\n\n\n\n")
		if _, err := testSession().Review(NewPrompter(in, &bytes.Buffer{})); err == nil {
			t.Error("expected error for empty measurement id")
		}
	})

	t.Run("input ends early", func(t *testing.T) {
		in := strings.NewReader("\n\n")
		if _, err := testSession().Review(NewPrompter(in, &bytes.Buffer{})); err == nil {
			t.Error("expected error when stdin closes")
		}
	})
}

func TestCreateSessionDir(t *testing.T) {
	root := t.TempDir()
	dir, err := CreateSessionDir(root, "7_2000G_295K_-170to140deg_by3")
	if err != nil {
		t.Fatalf("CreateSessionDir failed: %v", err)
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		t.Fatalf("expected directory at %s: %v", dir, err)
	}
	if dir != filepath.Join(root, "7_2000G_295K_-170to140deg_by3") {
		t.Errorf("dir = %q", dir)
	}
	if _, err := CreateSessionDir(root, "7_2000G_295K_-170to140deg_by3"); err == nil {
		t.Error("expected error when the session directory already exists")
	}
}
