// Command test_runner runs the engine's test suite with a hermetic environment:
// exchange credentials are blanked and paper trading is forced, so no test can
// reach a live venue even when the developer's shell exports real keys.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

var (
	verbose    = flag.Bool("v", false, "verbose output")
	short      = flag.Bool("short", false, "run only short tests")
	race       = flag.Bool("race", true, "enable the race detector")
	cover      = flag.String("cover", "", "write a coverage profile to this file")
	timeout    = flag.Duration("timeout", 5*time.Minute, "test timeout")
	testRegexp = flag.String("run", "", "run only tests matching the regular expression")
	packages   = flag.String("pkg", "./...", "comma-separated package patterns")
)

// sensitiveEnv is cleared before the tests start.
var sensitiveEnv = []string{
	"BINANCE_API_KEY",
	"BINANCE_API_SECRET",
	"API_KEY",
	"ADMIN_TOKEN",
	"REDIS_ADDR",
	"RISK_CONFIG_PATH",
	"DB_PATH",
}

func main() {
	flag.Parse()

	args := []string{"test"}
	if *verbose {
		args = append(args, "-v")
	}
	if *short {
		args = append(args, "-short")
	}
	if *race {
		args = append(args, "-race")
	}
	if *cover != "" {
		args = append(args, "-coverprofile="+*cover)
	}
	args = append(args, fmt.Sprintf("-timeout=%s", timeout.String()))
	if *testRegexp != "" {
		args = append(args, fmt.Sprintf("-run=%s", *testRegexp))
	}
	for _, p := range strings.Split(*packages, ",") {
		if p = strings.TrimSpace(p); p != "" {
			args = append(args, p)
		}
	}

	cmd := exec.Command("go", args...)
	cmd.Env = testEnv(os.Environ())
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	fmt.Printf("Running tests with args: %s\n", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		fmt.Printf("Error running tests: %v\n", err)
		os.Exit(1)
	}
}

// testEnv drops sensitive variables and pins the engine to paper trading.
func testEnv(base []string) []string {
	env := make([]string, 0, len(base)+2)
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if isSensitive(key) || key == "PAPER_TRADING" {
			continue
		}
		env = append(env, kv)
	}
	return append(env, "PAPER_TRADING=true", "TEST_ENV=true")
}

func isSensitive(key string) bool {
	for _, k := range sensitiveEnv {
		if k == key {
			return true
		}
	}
	return false
}
