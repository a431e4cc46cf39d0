// cmd/preflight/main.go
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hamed0406/sitemonitor/internal/config"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg, err := config.Load()
	if err != nil {
		fail(err.Error())
	}

	entries, err := os.ReadDir(cfg.BaseDir)
	if err != nil {
		fail("BASE_DIR unreadable: " + err.Error() + " (/metrics will answer 500).")
	}
	ok("BASE_DIR=" + cfg.BaseDir)

	excluded := make(map[string]bool, len(cfg.ExcludeDirs))
	for _, d := range cfg.ExcludeDirs {
		excluded[d] = true
	}
	declared := 0
	for _, e := range entries {
		if !e.IsDir() || excluded[e.Name()] {
			continue
		}
		if _, err := os.Stat(filepath.Join(cfg.BaseDir, e.Name(), cfg.EnvFile)); err == nil {
			declared++
		}
	}
	if declared == 0 {
		warn(fmt.Sprintf("no subdirectory of %s has a %s file; /metrics will be empty.", cfg.BaseDir, cfg.EnvFile))
	} else {
		ok(fmt.Sprintf("%d site directories with %s", declared, cfg.EnvFile))
	}

	if cfg.ChunkSize > 100 {
		warn(fmt.Sprintf("CHUNK_SIZE=%d is high; many sockets will be open at once.", cfg.ChunkSize))
	}
	chunks := (declared + cfg.ChunkSize - 1) / cfg.ChunkSize
	worst := time.Duration(chunks)*2*cfg.ProbeTimeout + time.Duration(max(chunks-1, 0))*cfg.ChunkPause
	if worst > 10*time.Second {
		warn(fmt.Sprintf("worst-case scrape takes %s; raise the collector's scrape_timeout or CHUNK_SIZE.", worst))
	} else {
		ok(fmt.Sprintf("worst-case scrape %s (timeout %s, chunk %d)", worst, cfg.ProbeTimeout, cfg.ChunkSize))
	}

	if len(cfg.APIKeys) == 0 {
		warn("API_KEYS empty: /debug and /test are open to anyone who can reach ADDR.")
	} else {
		ok(fmt.Sprintf("%d API key(s) configured", len(cfg.APIKeys)))
	}
	if cfg.TestRPM == 0 {
		warn("TEST_RPM=0: /test is not rate limited.")
	}

	ok("preflight passed")
}
