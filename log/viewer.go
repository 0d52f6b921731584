package log

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"go-mkimg/config"
)

var summaryAliases = map[string]string{
	"00":      ResultsLogName,
	"results": ResultsLogName,
	"01":      SuccessLogName,
	"success": SuccessLogName,
	"02":      FailureLogName,
	"failure": FailureLogName,
	"07":      DebugLogName,
	"debug":   DebugLogName,
}

// ListLogs writes the summary logs and every attempt log found under
// cfg.LogsPath.
func ListLogs(cfg *config.Config, w io.Writer) error {
	fmt.Fprintln(w, "Summary logs:")
	fmt.Fprintf(w, "  00 or results  - %s\n", ResultsLogName)
	fmt.Fprintf(w, "  01 or success  - %s\n", SuccessLogName)
	fmt.Fprintf(w, "  02 or failure  - %s\n", FailureLogName)
	fmt.Fprintf(w, "  07 or debug    - %s\n", DebugLogName)
	fmt.Fprintln(w)

	names, err := AttemptLogs(cfg)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return nil
	}

	fmt.Fprintln(w, "Attempt logs:")
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", name)
	}
	return nil
}

// AttemptLogs returns the attempt log file names, sorted.
func AttemptLogs(cfg *config.Config) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(cfg.LogsPath, AttemptLogDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".log") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ResolveLogPath maps a summary alias ("00", "results", ...) or an attempt
// log file name to its path.
func ResolveLogPath(cfg *config.Config, logName string) string {
	if file, ok := summaryAliases[logName]; ok {
		return filepath.Join(cfg.LogsPath, file)
	}
	if strings.Contains(logName, ".attempt-") {
		return filepath.Join(cfg.LogsPath, AttemptLogDir, filepath.Base(logName))
	}
	return filepath.Join(cfg.LogsPath, logName)
}

// ViewLog copies a log to w, or hands it to $PAGER when page is set and a
// pager is installed.
func ViewLog(cfg *config.Config, logName string, w io.Writer, page bool) error {
	logPath := ResolveLogPath(cfg, logName)

	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer file.Close()

	if page {
		if pager, ok := findPager(); ok {
			return viewWithPager(pager, logPath)
		}
	}

	_, err = io.Copy(w, file)
	return err
}

// TailLog writes the last n lines of a log to w.
func TailLog(cfg *config.Config, logName string, n int, w io.Writer) error {
	file, err := os.Open(ResolveLogPath(cfg, logName))
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	return nil
}

// GetLogSummary counts the entries of the success and failure lists.
func GetLogSummary(cfg *config.Config) map[string]int {
	summary := make(map[string]int)

	if lines, err := countLines(filepath.Join(cfg.LogsPath, SuccessLogName)); err == nil {
		summary["success"] = lines
	}
	if lines, err := countLines(filepath.Join(cfg.LogsPath, FailureLogName)); err == nil {
		summary["failed"] = lines
	}

	return summary
}

// countLines counts entry lines, skipping the header and blank lines.
func countLines(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	count := 0
	scanner := bufio.NewScanner(file)
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if first {
			first = false
			continue
		}
		if line != "" && !strings.HasPrefix(line, "#") {
			count++
		}
	}

	return count, scanner.Err()
}

func findPager() (string, bool) {
	pager := os.Getenv("PAGER")
	if pager == "" {
		pager = "less"
	}
	path, err := exec.LookPath(pager)
	return path, err == nil
}

func viewWithPager(pager, path string) error {
	cmd := exec.Command(pager, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
