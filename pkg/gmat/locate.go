package gmat

import (
	"os"
	"os/exec"
	"path/filepath"
)

// EnvConsole names the environment variable that can point at the console.
const EnvConsole = "GMAT_CONSOLE"

// ReportFileName is the report the engine writes into its output directory.
const ReportFileName = "DefaultReportFile.txt"

// knownInstalls are the default Windows install locations of the R2019a
// beta console.
var knownInstalls = []string{
	`C:\Program Files (x86)\GMAT-R2019aBeta-Windows-x64-public\bin\GmatConsole.exe`,
	`C:\Program Files\GMAT-R2019aBeta-Windows-x64-public\bin\GmatConsole.exe`,
}

var consoleNames = []string{"GmatConsole", "GmatConsole.exe"}

// Locate finds the engine console. The first existing candidate wins:
// the explicit path, $GMAT_CONSOLE, the known install locations, then
// GmatConsole on PATH.
func Locate(explicit string) (string, error) {
	candidates := make([]string, 0, len(knownInstalls)+2)
	if explicit != "" {
		candidates = append(candidates, explicit)
	}
	if env := os.Getenv(EnvConsole); env != "" {
		candidates = append(candidates, env)
	}
	candidates = append(candidates, knownInstalls...)

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}

	for _, name := range consoleNames {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}

	return "", ErrConsoleNotFound
}

// ReportSource returns where a console writes its report: the output
// directory next to its bin directory.
func ReportSource(console string) string {
	return filepath.Join(filepath.Dir(console), "..", "output", ReportFileName)
}
