package amrsweep

import (
	"os"
	"path/filepath"
	"testing"
)

const testRunFile = `controller: amr-controller
root_dir: /data/amr
start_angle: -170
end_angle: 140
angle_increment: 3
measurements_per_angle: 4
rotate_there_and_back: true
track_std_dev: true
source_current_amps: 0.0001
sample:
  sample_id: NiFe-7
  sample_pad: B2
  temperature: "295"
  field_strength: "2000"
`

func TestLoadRunFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.yaml")
	if err := os.WriteFile(path, []byte(testRunFile), 0o644); err != nil {
		t.Fatal(err)
	}

	rf, err := LoadRunFile(path)
	if err != nil {
		t.Fatalf("LoadRunFile failed: %v", err)
	}
	if rf.Controller != "amr-controller" || rf.StartAngle != -170 || rf.Sample.SampleID != "NiFe-7" {
		t.Errorf("unexpected run file: %+v", rf)
	}

	s := rf.Session()
	if s.Increment != 3 || s.RootDir != "/data/amr" || s.Sample.FieldStrength != "2000" {
		t.Errorf("unexpected session: %+v", s)
	}

	cmd := rf.Command("/data/amr/7_2000G_295K_-170to140deg_by3")
	if cmd["command"] != "execute_sweep" {
		t.Errorf("command = %v", cmd["command"])
	}
	if cmd["output_dir"] != "/data/amr/7_2000G_295K_-170to140deg_by3" {
		t.Errorf("output_dir = %v", cmd["output_dir"])
	}
	if cmd["measurements_per_angle"] != 4.0 {
		t.Errorf("measurements_per_angle = %v", cmd["measurements_per_angle"])
	}
	if cmd["source_current_amps"] != 0.0001 {
		t.Errorf("source_current_amps = %v", cmd["source_current_amps"])
	}
	for _, key := range []string{"velocity_deg_per_sec", "angle_offset"} {
		if _, ok := cmd[key]; ok {
			t.Errorf("unset %s should not be sent", key)
		}
	}
	if cmd["rotate_there_and_back"] != true || cmd["track_std_dev"] != true {
		t.Errorf("set flags not sent: %v", cmd)
	}

	sc, err := applyOverrides(SweepConfig{MeasurementsPerAngle: 1, Velocity: 10}, cmd)
	if err != nil {
		t.Fatalf("controller rejected run file command: %v", err)
	}
	if sc.MeasurementsPerAngle != 4 || !sc.RotateThereAndBack || sc.Sample.SamplePad != "B2" {
		t.Errorf("unexpected sweep config: %+v", sc)
	}
}

func TestLoadRunFileErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadRunFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	noCtrl := filepath.Join(dir, "noctrl.yaml")
	os.WriteFile(noCtrl, []byte("start_angle: 0\n"), 0o644)
	if _, err := LoadRunFile(noCtrl); err == nil {
		t.Error("expected error without controller")
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("controller: [\n"), 0o644)
	if _, err := LoadRunFile(bad); err == nil {
		t.Error("expected YAML parse error")
	}
}

func TestRunFileKeepsControllerDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.yaml")
	body := "controller: amr-controller\nstart_angle: 0\nend_angle: 90\nangle_increment: 5\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	rf, err := LoadRunFile(path)
	if err != nil {
		t.Fatalf("LoadRunFile failed: %v", err)
	}

	cmd := rf.Command(t.TempDir())
	for _, key := range []string{"rotate_there_and_back", "angle_offset", "track_std_dev", "source_current_amps", "sample_id"} {
		if _, ok := cmd[key]; ok {
			t.Errorf("%s sent although the run file leaves it out", key)
		}
	}

	configured := SweepConfig{MeasurementsPerAngle: 2, Velocity: 10, RotateThereAndBack: true, TrackStdDev: true, AngleOffset: 1.5}
	sc, err := applyOverrides(configured, cmd)
	if err != nil {
		t.Fatalf("applyOverrides failed: %v", err)
	}
	if !sc.RotateThereAndBack || !sc.TrackStdDev || sc.AngleOffset != 1.5 {
		t.Errorf("controller defaults overwritten: %+v", sc)
	}
}
