package amrsweep

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// SessionName builds the per-run directory name, e.g. 7_2000G_295K_-170to140deg_by3.
func SessionName(id, field, temp string, start, end, inc float64) string {
	return fmt.Sprintf("%s_%sG_%sK_%vto%vdeg_by%v", id, field, temp, start, end, inc)
}

// Prompter asks the operator to confirm values before anything moves.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Ask prints prompt and returns the operator's line without surrounding space.
func (p *Prompter) Ask(prompt string) (string, error) {
	if _, err := fmt.Fprint(p.out, prompt); err != nil {
		return "", err
	}
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Confirm shows label and waits for Enter. Typing n or no aborts.
func (p *Prompter) Confirm(label string) error {
	ans, err := p.Ask(label + " ")
	if err != nil {
		return err
	}
	switch strings.ToLower(ans) {
	case "n", "no":
		return fmt.Errorf("operator rejected %q", label)
	}
	return nil
}

// Session is what the operator reviews before a run.
type Session struct {
	RootDir    string
	Sample     SampleInfo
	StartAngle float64
	EndAngle   float64
	Increment  float64
}

// Review walks the operator through the confirmation prompts, asks for a measurement
// ID and returns the confirmed session directory name.
func (s Session) Review(p *Prompter) (string, error) {
	fmt.Fprintln(p.out, "PLEASE CONFIRM EXPERIMENTAL PARAMETERS ARE CORRECT [press enter]")
	labels := []string{
		"Magnetic Field: " + s.Sample.FieldStrength,
		"Temperature: " + s.Sample.Temperature,
		"Root Data Directory: " + s.RootDir,
		"Sample Name: " + s.Sample.SampleID,
		fmt.Sprintf("%vdeg to %vdeg by %v", s.StartAngle, s.EndAngle, s.Increment),
	}
	for _, l := range labels {
		if err := p.Confirm(l); err != nil {
			return "", err
		}
	}

	id, err := p.Ask("Enter measurement ID number (prepended to data directory name): ")
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", errors.New("measurement ID is required")
	}

	name := SessionName(id, s.Sample.FieldStrength, s.Sample.Temperature, s.StartAngle, s.EndAngle, s.Increment)
	if err := p.Confirm("OK? -- " + name); err != nil {
		return "", err
	}
	return name, nil
}

// CreateSessionDir makes root/name. An existing directory is an error so runs never
// overwrite each other.
func CreateSessionDir(root, name string) (string, error) {
	dir := filepath.Join(root, name)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating session directory: %w", err)
	}
	return dir, nil
}
