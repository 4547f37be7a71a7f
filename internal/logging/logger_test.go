package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// resetState clears package globals between tests.
func resetState() {
	Close()
	loggersMu.Lock()
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()
	logsDir = ""
	optsMu.Lock()
	opts = Options{}
	optsMu.Unlock()
}

func TestDisabledByDefault(t *testing.T) {
	defer resetState()
	tempDir := t.TempDir()

	if err := Initialize(tempDir, Options{DebugMode: false}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	Memory("this should go nowhere")
	Agent("neither should this")

	if _, err := os.Stat(filepath.Join(tempDir, ".snerd", "logs")); !os.IsNotExist(err) {
		entries, _ := os.ReadDir(filepath.Join(tempDir, ".snerd", "logs"))
		if len(entries) > 0 {
			t.Errorf("log files written with debug disabled: %v", entries)
		}
	}
}

func TestCategoriesWriteSeparateFiles(t *testing.T) {
	defer resetState()
	tempDir := t.TempDir()

	if err := Initialize(tempDir, Options{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	Memory("recorded an event for chapter %d", 3)
	ToolsDebug("executing %s", "save_draft")
	ContextWarn("over budget")
	Close()

	entries, err := os.ReadDir(filepath.Join(tempDir, ".snerd", "logs"))
	if err != nil {
		t.Fatalf("read logs dir: %v", err)
	}

	found := map[string]bool{}
	for _, e := range entries {
		for _, cat := range []string{"memory", "tools", "context", "boot"} {
			if strings.HasSuffix(e.Name(), "_"+cat+".log") {
				found[cat] = true
			}
		}
	}
	for _, cat := range []string{"memory", "tools", "context"} {
		if !found[cat] {
			t.Errorf("no log file for category %s (have %v)", cat, entries)
		}
	}
}

func TestCategoryFilter(t *testing.T) {
	defer resetState()
	tempDir := t.TempDir()

	err := Initialize(tempDir, Options{
		DebugMode:  true,
		Level:      "debug",
		Categories: map[string]bool{"memory": false},
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if IsCategoryEnabled(CategoryMemory) {
		t.Error("memory category should be disabled")
	}
	if !IsCategoryEnabled(CategoryTools) {
		t.Error("unlisted categories should default to enabled")
	}
}

func TestLevelFiltering(t *testing.T) {
	defer resetState()
	tempDir := t.TempDir()

	if err := Initialize(tempDir, Options{DebugMode: true, Level: "warn"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	l := Get(CategoryAgent)
	l.Debug("dropped")
	l.Info("dropped")
	l.Warn("kept warn")
	l.Error("kept error")
	Close()

	entries, err := os.ReadDir(filepath.Join(tempDir, ".snerd", "logs"))
	if err != nil {
		t.Fatalf("read logs dir: %v", err)
	}
	var content string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), "_agent.log") {
			data, err := os.ReadFile(filepath.Join(tempDir, ".snerd", "logs", e.Name()))
			if err != nil {
				t.Fatalf("read log: %v", err)
			}
			content = string(data)
		}
	}
	if strings.Contains(content, "dropped") {
		t.Errorf("sub-warn messages logged: %q", content)
	}
	if !strings.Contains(content, "kept warn") || !strings.Contains(content, "kept error") {
		t.Errorf("warn/error messages missing: %q", content)
	}
}

func TestInitializeRequiresWorkspace(t *testing.T) {
	defer resetState()
	if err := Initialize("", Options{DebugMode: true}); err == nil {
		t.Error("expected error for empty workspace")
	}
}
