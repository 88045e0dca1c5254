// Package preflight validates the runtime environment before the daemon
// starts accepting uploads: directory permissions, the classifier script, and
// the Python interpreter it runs under.
package preflight

import (
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"

	"pipewatch/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every applicable check for the given config.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Content directory", cfg.Paths.ContentDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckPython(cfg.Classifier.Python),
		CheckClassifierScript(cfg.Classifier.Script),
	}
	if cfg.Classifier.WorkDir != "" {
		results = append(results, CheckDirectoryAccess("Classifier work directory", cfg.Classifier.WorkDir))
	}
	return results
}

// AllPassed reports whether every check in results succeeded.
func AllPassed(results []Result) bool {
	for _, result := range results {
		if !result.Passed {
			return false
		}
	}
	return true
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckPython verifies the configured Python interpreter resolves to an
// executable.
func CheckPython(binary string) Result {
	const name = "Python interpreter"
	if binary == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not found in PATH)", binary)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckClassifierScript verifies the analysis script exists and is readable.
func CheckClassifierScript(script string) Result {
	const name = "Classifier script"
	if script == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(script)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", script)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", script, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", script)}
	}
	if err := unix.Access(script, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", script, err)}
	}
	return Result{Name: name, Passed: true, Detail: script}
}
